// Package browser owns the single browser page the checks share.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blang/semver"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vtmqa/vtmsmoke/internal/config"
	"github.com/vtmqa/vtmsmoke/webdriver"
	"github.com/vtmqa/vtmsmoke/webdriver/chrome"
	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

// Session is one browser page plus everything needed to drive it.
type Session struct {
	wd      webdriver.WebDriver
	service *webdriver.Service
	cfg     *config.Config
	log     logrus.FieldLogger
	runID   string

	driverLog io.Closer
}

// New wraps an existing WebDriver session.
func New(wd webdriver.WebDriver, cfg *config.Config, logger logrus.FieldLogger) *Session {
	runID := uuid.NewString()
	return &Session{
		wd:    wd,
		cfg:   cfg,
		runID: runID,
		log: logger.WithFields(logrus.Fields{
			"component": "browser",
			"run":       runID,
		}),
	}
}

// Launch starts chromedriver (and Xvfb when configured) and opens a Chrome
// session, or connects to browser.remote_url when that is set. Everything
// acquired is released again if a later step fails.
func Launch(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (_ *Session, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	executor := cfg.Browser.RemoteURL
	var (
		service   *webdriver.Service
		driverLog *io.PipeWriter
	)
	if executor == "" {
		driverLog = driverOutput(logger)
		opts := []webdriver.ServiceOption{
			webdriver.StartTimeout(cfg.Timeouts.Action),
		}
		if driverLog != nil {
			opts = append(opts, webdriver.Output(driverLog))
		}
		if cfg.Browser.Xvfb {
			opts = append(opts, webdriver.StartFrameBufferWithOptions(webdriver.FrameBufferOptions{
				ScreenSize: fmt.Sprintf("%dx%dx24", cfg.Browser.Width, cfg.Browser.Height),
			}))
		}
		service, err = webdriver.NewChromeDriverService(cfg.Browser.DriverPath, cfg.Browser.Port, opts...)
		if err != nil {
			if driverLog != nil {
				driverLog.Close()
			}
			return nil, fmt.Errorf("starting chromedriver %s: %w", cfg.Browser.DriverPath, err)
		}
		executor = service.Addr()
		defer func() {
			if err != nil {
				service.Stop()
				if driverLog != nil {
					driverLog.Close()
				}
			}
		}()
	}

	wd, err := webdriver.NewRemote(Capabilities(cfg), executor)
	if err != nil {
		return nil, fmt.Errorf("creating browser session at %s: %w", executor, err)
	}
	defer func() {
		if err != nil {
			wd.Quit()
		}
	}()

	s := New(wd, cfg, logger)
	s.service = service
	if driverLog != nil {
		s.driverLog = driverLog
	}

	if err := s.checkDriverVersion(); err != nil {
		return nil, err
	}
	if err := wd.SetTimeouts(webdriver.Timeouts{PageLoad: cfg.Timeouts.Action, Script: cfg.Timeouts.Action}); err != nil {
		return nil, fmt.Errorf("setting session timeouts: %w", err)
	}
	if !cfg.Browser.Headless {
		if err := wd.ResizeWindow(cfg.Browser.Width, cfg.Browser.Height); err != nil {
			s.log.WithError(err).Warn("Could not resize the browser window")
		}
	}

	s.log.WithFields(logrus.Fields{
		"executor": executor,
		"browser":  wd.Capabilities()["browserVersion"],
	}).Info("Browser session started")
	return s, nil
}

// driverOutput forwards chromedriver's own output to the debug log.
func driverOutput(logger logrus.FieldLogger) *io.PipeWriter {
	w, ok := logger.(interface {
		WriterLevel(logrus.Level) *io.PipeWriter
	})
	if !ok {
		return nil
	}
	return w.WriterLevel(logrus.DebugLevel)
}

// Capabilities returns the desired capabilities for cfg.
func Capabilities(cfg *config.Config) webdriver.Capabilities {
	caps := webdriver.Capabilities{"browserName": "chrome"}

	chr := chrome.Capabilities{
		Path: cfg.Browser.Binary,
		Args: []string{"--no-sandbox", "--disable-dev-shm-usage"},
	}
	if cfg.Browser.Headless {
		chr.Headless()
	}
	chr.WindowSize(cfg.Browser.Width, cfg.Browser.Height)
	if cfg.Browser.Lang != "" {
		chr.Lang(cfg.Browser.Lang)
	}
	caps.AddChrome(chr)
	caps.SetLogLevel(log.Browser, log.Severe)
	return caps
}

// DriverVersion extracts the chromedriver version from negotiated
// capabilities, e.g. "120.0.6099.109 (3419140a...)" becomes 120.0.6099.
func DriverVersion(caps webdriver.Capabilities) (semver.Version, bool) {
	chr, ok := caps["chrome"].(map[string]interface{})
	if !ok {
		return semver.Version{}, false
	}
	raw, ok := chr["chromedriverVersion"].(string)
	if !ok || raw == "" {
		return semver.Version{}, false
	}
	raw = strings.Fields(raw)[0]
	if parts := strings.Split(raw, "."); len(parts) > 3 {
		raw = strings.Join(parts[:3], ".")
	}
	v, err := semver.ParseTolerant(raw)
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}

func (s *Session) checkDriverVersion() error {
	if s.cfg.Browser.MinDriverVersion == "" {
		return nil
	}
	want, err := semver.ParseTolerant(s.cfg.Browser.MinDriverVersion)
	if err != nil {
		return fmt.Errorf("browser.min_driver_version: %w", err)
	}
	got, ok := DriverVersion(s.wd.Capabilities())
	if !ok {
		s.log.Warn("Remote end did not report a chromedriver version")
		return nil
	}
	if got.LT(want) {
		return fmt.Errorf("chromedriver %s is older than the required %s", got, want)
	}
	return nil
}

// Close ends the browser session and stops the services Launch started.
func (s *Session) Close() error {
	var errs []error
	if err := s.wd.Quit(); err != nil {
		errs = append(errs, fmt.Errorf("quitting browser: %w", err))
	}
	if s.service != nil {
		if err := s.service.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping chromedriver: %w", err))
		}
	}
	if s.driverLog != nil {
		s.driverLog.Close()
	}
	return errors.Join(errs...)
}

// Driver exposes the underlying WebDriver.
func (s *Session) Driver() webdriver.WebDriver {
	return s.wd
}

func (s *Session) Config() *config.Config {
	return s.cfg
}

func (s *Session) Log() logrus.FieldLogger {
	return s.log
}

// RunID identifies this session's suite run.
func (s *Session) RunID() string {
	return s.runID
}
