package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtmqa/vtmsmoke/internal/config"
	"github.com/vtmqa/vtmsmoke/webdriver"
)

// remoteEnd is a W3C endpoint that accepts one session.
type remoteEnd struct {
	mu       sync.Mutex
	version  string
	requests []string
	bodies   map[string]map[string]interface{}
}

func newRemoteEnd(t *testing.T, driverVersion string) (*remoteEnd, string) {
	r := &remoteEnd{version: driverVersion, bodies: make(map[string]map[string]interface{})}
	s := httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(s.Close)
	return r, s.URL
}

func (r *remoteEnd) serve(w http.ResponseWriter, req *http.Request) {
	var body map[string]interface{}
	json.NewDecoder(req.Body).Decode(&body)
	key := req.Method + " " + req.URL.Path

	r.mu.Lock()
	r.requests = append(r.requests, key)
	r.bodies[key] = body
	r.mu.Unlock()

	var value interface{}
	if key == "POST /session" {
		value = map[string]interface{}{
			"sessionId": "s1",
			"capabilities": map[string]interface{}{
				"browserName":    "chrome",
				"browserVersion": "120.0.6099.109",
				"chrome":         map[string]interface{}{"chromedriverVersion": r.version + " (3419140ab665596f21b385ce136419fde0924272-refs/branch-heads/6099@{#1483})"},
			},
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	json.NewEncoder(w).Encode(map[string]interface{}{"value": value})
}

func (r *remoteEnd) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.requests...)
}

func TestLaunchRemote(t *testing.T) {
	end, addr := newRemoteEnd(t, "120.0.6099.109")
	cfg := config.Default()
	cfg.Browser.RemoteURL = addr
	cfg.Browser.MinDriverVersion = "114.0.0"
	logger, _ := test.NewNullLogger()

	s, err := Launch(context.Background(), cfg, logger)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RunID())

	assert.Equal(t, []string{
		"POST /session",
		"POST /session/s1/timeouts",
		"POST /session/s1/window/rect",
	}, end.seen())

	caps := end.bodies["POST /session"]["capabilities"].(map[string]interface{})["alwaysMatch"].(map[string]interface{})
	chromeOpts := caps["goog:chromeOptions"].(map[string]interface{})
	assert.Contains(t, chromeOpts["args"], "--window-size=1280,720")
	assert.Contains(t, chromeOpts["args"], "--lang=cs-CZ")
	assert.Equal(t, map[string]interface{}{"browser": "SEVERE"}, caps["goog:loggingPrefs"])
	assert.Equal(t, float64(20000), end.bodies["POST /session/s1/timeouts"]["pageLoad"])

	require.NoError(t, s.Close())
	assert.Equal(t, "DELETE /session/s1", end.seen()[3])
}

func TestLaunchRejectsOldDriver(t *testing.T) {
	end, addr := newRemoteEnd(t, "99.0.4844.51")
	cfg := config.Default()
	cfg.Browser.RemoteURL = addr
	cfg.Browser.MinDriverVersion = "114"
	logger, _ := test.NewNullLogger()

	_, err := Launch(context.Background(), cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older than the required 114.0.0")
	assert.Equal(t, []string{"POST /session", "DELETE /session/s1"}, end.seen(), "the session must be released")
}

func TestLaunchMissingDriver(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.DriverPath = "/nonexistent/chromedriver"
	cfg.Timeouts.Action = time.Second
	logger, _ := test.NewNullLogger()

	_, err := Launch(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "starting chromedriver")
}

func TestDriverVersion(t *testing.T) {
	tests := []struct {
		desc   string
		caps   webdriver.Capabilities
		want   string
		wantOK bool
	}{
		{
			desc:   "four part version with build hash",
			caps:   webdriver.Capabilities{"chrome": map[string]interface{}{"chromedriverVersion": "120.0.6099.109 (3419140a)"}},
			want:   "120.0.6099",
			wantOK: true,
		},
		{
			desc:   "short version",
			caps:   webdriver.Capabilities{"chrome": map[string]interface{}{"chromedriverVersion": "2.46"}},
			want:   "2.46.0",
			wantOK: true,
		},
		{
			desc: "not chrome",
			caps: webdriver.Capabilities{"browserName": "firefox"},
		},
		{
			desc: "garbage",
			caps: webdriver.Capabilities{"chrome": map[string]interface{}{"chromedriverVersion": "dev build"}},
		},
	}
	for _, test := range tests {
		got, ok := DriverVersion(test.caps)
		if assert.Equal(t, test.wantOK, ok, test.desc) && ok {
			assert.Equal(t, test.want, got.String(), test.desc)
		}
	}
}

func TestCapabilities(t *testing.T) {
	cfg := config.Default()
	cfg.Browser.Headless = true
	cfg.Browser.Binary = "vendor/chrome-linux/chrome"

	data, err := json.Marshal(Capabilities(cfg))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"browserName": "chrome",
		"goog:chromeOptions": {
			"binary": "vendor/chrome-linux/chrome",
			"args": ["--no-sandbox", "--disable-dev-shm-usage", "--headless=new", "--window-size=1280,720", "--lang=cs-CZ"],
			"prefs": {"intl.accept_languages": "cs-CZ"}
		},
		"goog:loggingPrefs": {"browser": "SEVERE"}
	}`, string(data))
}
