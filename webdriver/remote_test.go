package webdriver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

const testSessionID = "session-1"

type recordedRequest struct {
	Method, Path string
	Body         map[string]interface{}
}

// fakeRemote is a minimal W3C remote end serving canned replies.
type fakeRemote struct {
	mu       sync.Mutex
	requests []recordedRequest
	replies  map[string]func(body map[string]interface{}) (int, interface{})
	// raw, when set, answers every request after the session is created.
	raw string
}

func newFakeRemote(t *testing.T) (*fakeRemote, *httptest.Server) {
	f := &fakeRemote{replies: map[string]func(map[string]interface{}) (int, interface{}){
		"POST /session": func(map[string]interface{}) (int, interface{}) {
			return http.StatusOK, map[string]interface{}{
				"sessionId":    testSessionID,
				"capabilities": map[string]interface{}{"browserName": "chrome", "browserVersion": "120.0.6099.109"},
			}
		},
		"DELETE /session/" + testSessionID: func(map[string]interface{}) (int, interface{}) {
			return http.StatusOK, nil
		},
	}}
	s := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(s.Close)
	return f, s
}

func (f *fakeRemote) on(method, path string, reply func(body map[string]interface{}) (int, interface{})) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[method+" "+path] = reply
}

func (f *fakeRemote) answerRaw(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw = body
}

func (f *fakeRemote) value(method, path string, v interface{}) {
	f.on(method, path, func(map[string]interface{}) (int, interface{}) { return http.StatusOK, v })
}

func (f *fakeRemote) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeRemote) handle(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	var body map[string]interface{}
	if len(data) > 0 {
		json.Unmarshal(data, &body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{r.Method, r.URL.Path, body})
	reply, ok := f.replies[r.Method+" "+r.URL.Path]
	raw := f.raw
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if raw != "" {
		fmt.Fprint(w, raw)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"value":{"error":"unknown command","message":"%s %s"}}`, r.Method, r.URL.Path)
		return
	}
	code, v := reply(body)
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{"value": v})
}

func newTestRemote(t *testing.T) (*fakeRemote, WebDriver) {
	t.Helper()
	f, s := newFakeRemote(t)
	wd, err := NewRemote(Capabilities{"browserName": "chrome"}, s.URL)
	if err != nil {
		t.Fatalf("NewRemote(_, %q) returned error: %v", s.URL, err)
	}
	return f, wd
}

func elementRef(id string) map[string]string {
	return map[string]string{webElementKey: id}
}

func TestNewSession(t *testing.T) {
	f, wd := newTestRemote(t)

	if got, want := wd.SessionID(), testSessionID; got != want {
		t.Errorf("wd.SessionID() = %q, want %q", got, want)
	}
	if got, want := wd.Capabilities()["browserVersion"], "120.0.6099.109"; got != want {
		t.Errorf("wd.Capabilities()[browserVersion] = %v, want %q", got, want)
	}

	reqs := f.recorded()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	want := map[string]interface{}{
		"capabilities":        map[string]interface{}{"alwaysMatch": map[string]interface{}{"browserName": "chrome"}},
		"desiredCapabilities": map[string]interface{}{"browserName": "chrome"},
	}
	if diff := cmp.Diff(want, reqs[0].Body); diff != "" {
		t.Errorf("new session payload mismatch (-want +got):\n%s", diff)
	}

	if err := wd.Quit(); err != nil {
		t.Fatalf("wd.Quit() returned error: %v", err)
	}
	if wd.SessionID() != "" {
		t.Errorf("wd.SessionID() = %q after Quit, want empty", wd.SessionID())
	}
}

func TestNewSessionLegacyReply(t *testing.T) {
	f, s := newFakeRemote(t)
	// Legacy remote ends put the session id at the top level.
	f.answerRaw(`{"sessionId":"legacy-1","status":0,"value":{"browserName":"chrome"}}`)

	wd, err := NewRemote(nil, s.URL)
	if err != nil {
		t.Fatalf("NewRemote(nil, %q) returned error: %v", s.URL, err)
	}
	if got, want := wd.SessionID(), "legacy-1"; got != want {
		t.Errorf("wd.SessionID() = %q, want %q", got, want)
	}
}

func TestStatus(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("GET", "/status", map[string]interface{}{
		"build":   map[string]string{"version": "120.0.6099.109 (3419140ab665596f21b385ce136419fde0924272-refs/branch-heads/6099@{#1483})"},
		"message": "ChromeDriver ready for new sessions.",
		"os":      map[string]string{"arch": "x86_64", "name": "Linux", "version": "6.5.0"},
		"ready":   true,
	})

	status, err := wd.Status()
	if err != nil {
		t.Fatalf("wd.Status() returned error: %v", err)
	}
	if !status.Ready {
		t.Errorf("status.Ready = false, want true")
	}
	if !strings.HasPrefix(status.Build.Version, "120.0.6099.109") {
		t.Errorf("status.Build.Version = %q, want prefix 120.0.6099.109", status.Build.Version)
	}
	if got, want := status.OS.Name, "Linux"; got != want {
		t.Errorf("status.OS.Name = %q, want %q", got, want)
	}
}

func TestNavigation(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/url", nil)
	f.value("GET", "/session/"+testSessionID+"/url", "https://vtm.zive.cz/")
	f.value("GET", "/session/"+testSessionID+"/title", "VTM.cz – Věda, technika, zajímavosti, budoucnost")

	if err := wd.Get("https://vtm.zive.cz/"); err != nil {
		t.Fatalf("wd.Get() returned error: %v", err)
	}
	url, err := wd.CurrentURL()
	if err != nil {
		t.Fatalf("wd.CurrentURL() returned error: %v", err)
	}
	if url != "https://vtm.zive.cz/" {
		t.Errorf("wd.CurrentURL() = %q, want %q", url, "https://vtm.zive.cz/")
	}
	title, err := wd.Title()
	if err != nil {
		t.Fatalf("wd.Title() returned error: %v", err)
	}
	if want := "VTM.cz – Věda, technika, zajímavosti, budoucnost"; title != want {
		t.Errorf("wd.Title() = %q, want %q", title, want)
	}

	var got []string
	for _, r := range f.recorded()[1:] {
		got = append(got, r.Method+" "+r.Path)
	}
	want := []string{
		"POST /session/" + testSessionID + "/url",
		"GET /session/" + testSessionID + "/url",
		"GET /session/" + testSessionID + "/title",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestSetTimeouts(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/timeouts", nil)

	if err := wd.SetTimeouts(Timeouts{PageLoad: 20 * time.Second, Script: 1500 * time.Millisecond}); err != nil {
		t.Fatalf("wd.SetTimeouts() returned error: %v", err)
	}
	reqs := f.recorded()
	want := map[string]interface{}{"pageLoad": float64(20000), "script": float64(1500)}
	if diff := cmp.Diff(want, reqs[len(reqs)-1].Body); diff != "" {
		t.Errorf("timeouts payload mismatch (-want +got):\n%s", diff)
	}

	n := len(f.recorded())
	if err := wd.SetTimeouts(Timeouts{}); err != nil {
		t.Fatalf("wd.SetTimeouts(Timeouts{}) returned error: %v", err)
	}
	if len(f.recorded()) != n {
		t.Errorf("wd.SetTimeouts(Timeouts{}) sent a request, want none")
	}
}

func TestFindElements(t *testing.T) {
	f, wd := newTestRemote(t)
	f.on("POST", "/session/"+testSessionID+"/elements", func(body map[string]interface{}) (int, interface{}) {
		if body["using"] != ByCSSSelector || body["value"] != "img[alt*='VTM']" {
			return http.StatusOK, []interface{}{}
		}
		return http.StatusOK, []interface{}{elementRef("e1"), map[string]string{legacyElementKey: "e2"}}
	})
	f.value("GET", "/session/"+testSessionID+"/element/e1/displayed", false)
	f.value("GET", "/session/"+testSessionID+"/element/e2/displayed", true)

	elems, err := wd.FindElements(ByCSSSelector, "img[alt*='VTM']")
	if err != nil {
		t.Fatalf("wd.FindElements() returned error: %v", err)
	}
	var ids []string
	for _, e := range elems {
		ids = append(ids, e.ID())
	}
	if diff := cmp.Diff([]string{"e1", "e2"}, ids); diff != "" {
		t.Errorf("element ids mismatch (-want +got):\n%s", diff)
	}

	for i, want := range []bool{false, true} {
		got, err := elems[i].IsDisplayed()
		if err != nil {
			t.Fatalf("elems[%d].IsDisplayed() returned error: %v", i, err)
		}
		if got != want {
			t.Errorf("elems[%d].IsDisplayed() = %t, want %t", i, got, want)
		}
	}

	none, err := wd.FindElements(ByCSSSelector, ".missing")
	if err != nil {
		t.Fatalf("wd.FindElements(.missing) returned error: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("wd.FindElements(.missing) returned %d elements, want 0", len(none))
	}
}

func TestError(t *testing.T) {
	f, wd := newTestRemote(t)
	f.on("POST", "/session/"+testSessionID+"/element", func(map[string]interface{}) (int, interface{}) {
		return http.StatusNotFound, map[string]string{
			"error":   "no such element",
			"message": "no such element: Unable to locate element",
		}
	})

	_, err := wd.FindElement(ByCSSSelector, "#nope")
	if err == nil {
		t.Fatal("wd.FindElement(#nope) returned nil error, want no such element")
	}
	if !HasCode(err, ErrNoSuchElement) {
		t.Errorf("HasCode(%v, %q) = false, want true", err, ErrNoSuchElement)
	}
	want := &Error{Err: "no such element", Message: "no such element: Unable to locate element", HTTPCode: http.StatusNotFound}
	if diff := cmp.Diff(want, err); diff != "" {
		t.Errorf("error mismatch (-want +got):\n%s", diff)
	}
}

func TestLegacyError(t *testing.T) {
	f, wd := newTestRemote(t)
	f.answerRaw(`{"status":21,"value":{"message":"page load"}}`)

	err := wd.Get("https://example.com/")
	if !IsTimeout(err) {
		t.Fatalf("wd.Get() error = %v, want a timeout", err)
	}
	if got, want := err.Error(), "timeout: page load"; got != want {
		t.Errorf("err.Error() = %q, want %q", got, want)
	}
}

func TestElementInteraction(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/element", elementRef("q"))
	f.value("POST", "/session/"+testSessionID+"/element/q/clear", nil)
	f.value("POST", "/session/"+testSessionID+"/element/q/value", nil)
	f.value("POST", "/session/"+testSessionID+"/element/q/click", nil)
	f.value("GET", "/session/"+testSessionID+"/element/q/attribute/type", "search")
	f.value("GET", "/session/"+testSessionID+"/element/q/name", "input")

	q, err := wd.FindElement(ByCSSSelector, "input[type='search']")
	if err != nil {
		t.Fatalf("wd.FindElement() returned error: %v", err)
	}
	if err := q.Clear(); err != nil {
		t.Fatalf("q.Clear() returned error: %v", err)
	}
	if err := q.SendKeys("test" + EnterKey); err != nil {
		t.Fatalf("q.SendKeys() returned error: %v", err)
	}
	if err := q.Click(); err != nil {
		t.Fatalf("q.Click() returned error: %v", err)
	}
	typ, err := q.GetAttribute("type")
	if err != nil || typ != "search" {
		t.Errorf("q.GetAttribute(type) = %q, %v, want %q, nil", typ, err, "search")
	}
	tag, err := q.TagName()
	if err != nil || tag != "input" {
		t.Errorf("q.TagName() = %q, %v, want %q, nil", tag, err, "input")
	}

	var sendKeys map[string]interface{}
	for _, r := range f.recorded() {
		if r.Path == "/session/"+testSessionID+"/element/q/value" {
			sendKeys = r.Body
		}
	}
	if diff := cmp.Diff(map[string]interface{}{"text": "test"}, sendKeys); diff != "" {
		t.Errorf("send keys payload mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteScriptWithElement(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/element", elementRef("a1"))
	f.on("POST", "/session/"+testSessionID+"/execute/sync", func(body map[string]interface{}) (int, interface{}) {
		return http.StatusOK, body["args"]
	})

	a, err := wd.FindElement(ByCSSSelector, "article a")
	if err != nil {
		t.Fatalf("wd.FindElement() returned error: %v", err)
	}
	got, err := wd.ExecuteScript("return arguments;", []interface{}{a, 7})
	if err != nil {
		t.Fatalf("wd.ExecuteScript() returned error: %v", err)
	}
	want := []interface{}{
		map[string]interface{}{webElementKey: "a1", legacyElementKey: "a1"},
		float64(7),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("script result mismatch (-want +got):\n%s", diff)
	}

	nilArgs, err := wd.ExecuteScript("return 1;", nil)
	if err != nil {
		t.Fatalf("wd.ExecuteScript(nil args) returned error: %v", err)
	}
	if diff := cmp.Diff([]interface{}{}, nilArgs, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("nil args were not sent as an empty list (-want +got):\n%s", diff)
	}
}

func TestMoveTo(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/element", elementRef("hdr"))
	f.value("POST", "/session/"+testSessionID+"/actions", nil)
	f.value("DELETE", "/session/"+testSessionID+"/actions", nil)

	hdr, err := wd.FindElement(ByTagName, "header")
	if err != nil {
		t.Fatalf("wd.FindElement() returned error: %v", err)
	}
	if err := wd.MoveTo(hdr); err != nil {
		t.Fatalf("wd.MoveTo() returned error: %v", err)
	}

	reqs := f.recorded()
	perform := reqs[len(reqs)-2]
	if perform.Method != "POST" {
		t.Fatalf("perform request method = %s, want POST", perform.Method)
	}
	actions := perform.Body["actions"].([]interface{})
	pointer := actions[0].(map[string]interface{})
	move := pointer["actions"].([]interface{})[0].(map[string]interface{})
	if diff := cmp.Diff(map[string]interface{}{webElementKey: "hdr"}, move["origin"]); diff != "" {
		t.Errorf("pointer move origin mismatch (-want +got):\n%s", diff)
	}
	if release := reqs[len(reqs)-1]; release.Method != "DELETE" {
		t.Errorf("last request method = %s, want DELETE (release actions)", release.Method)
	}
}

func TestScreenshot(t *testing.T) {
	f, wd := newTestRemote(t)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	f.value("GET", "/session/"+testSessionID+"/screenshot", base64.StdEncoding.EncodeToString(png))

	got, err := wd.Screenshot()
	if err != nil {
		t.Fatalf("wd.Screenshot() returned error: %v", err)
	}
	if diff := cmp.Diff(png, got); diff != "" {
		t.Errorf("screenshot mismatch (-want +got):\n%s", diff)
	}
}

func TestLog(t *testing.T) {
	f, wd := newTestRemote(t)
	f.value("POST", "/session/"+testSessionID+"/se/log", []interface{}{
		map[string]interface{}{"level": "SEVERE", "message": "https://vtm.zive.cz/x.js 0:0 Uncaught", "timestamp": 1700000000000},
	})

	msgs, err := wd.Log(log.Browser)
	if err != nil {
		t.Fatalf("wd.Log(browser) returned error: %v", err)
	}
	want := []log.Message{{
		Timestamp: time.Unix(1700000000, 0),
		Level:     log.Severe,
		Message:   "https://vtm.zive.cz/x.js 0:0 Uncaught",
	}}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("log messages mismatch (-want +got):\n%s", diff)
	}
}

func TestWait(t *testing.T) {
	_, wd := newTestRemote(t)

	calls := 0
	cond := func(WebDriver) (bool, error) {
		calls++
		return calls == 3, nil
	}
	if err := wd.WaitWithTimeoutAndInterval(cond, time.Second, time.Millisecond); err != nil {
		t.Fatalf("wd.WaitWithTimeoutAndInterval() returned error: %v", err)
	}
	if calls != 3 {
		t.Errorf("condition evaluated %d times, want 3", calls)
	}

	never := func(WebDriver) (bool, error) { return false, nil }
	err := wd.WaitWithTimeoutAndInterval(never, 20*time.Millisecond, time.Millisecond)
	if !IsTimeout(err) {
		t.Errorf("wd.WaitWithTimeoutAndInterval(never) = %v, want a timeout", err)
	}

	boom := fmt.Errorf("boom")
	failing := func(WebDriver) (bool, error) { return false, boom }
	if err := wd.WaitWithTimeout(failing, time.Second); err != boom {
		t.Errorf("wd.WaitWithTimeout(failing) = %v, want %v", err, boom)
	}
}
