package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vtmqa/vtmsmoke/internal/locator"
	"github.com/vtmqa/vtmsmoke/webdriver"
)

// LoadState is a page load milestone.
type LoadState string

const (
	DOMContentLoaded LoadState = "domcontentloaded"
	Load             LoadState = "load"
	// NetworkIdle is reached when the document is complete and no new
	// resources were requested for timeouts.network_idle.
	NetworkIdle LoadState = "networkidle"
)

const (
	readyStateScript     = `return document.readyState;`
	resourceStateScript  = `return [document.readyState, performance.getEntriesByType('resource').length];`
	setMarkerScript      = `window.__vtmsmokeNav = arguments[0];`
	checkMarkerScript    = `return window.__vtmsmokeNav === arguments[0];`
	scrollIntoViewScript = `arguments[0].scrollIntoView({block: 'center', inline: 'nearest'});`
)

// poll evaluates cond until it holds, ctx ends or timeout passes.
func (s *Session) poll(ctx context.Context, timeout time.Duration, cond func() (bool, error)) error {
	return s.wd.WaitWithTimeoutAndInterval(func(webdriver.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return cond()
	}, timeout, s.cfg.Timeouts.Poll)
}

// Navigate loads url and returns once the browser reports the load finished.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.WithField("url", url).Debug("Navigating")
	if err := s.wd.Get(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// DismissConsent clicks the cookie-consent button when the page shows one.
// A button that never becomes visible is left alone.
func (s *Session) DismissConsent(ctx context.Context) error {
	sel := locator.HasText("button", s.cfg.Site.ConsentLabel)
	elems, err := s.wd.FindElements(sel.By, sel.Value)
	if err != nil {
		return fmt.Errorf("looking up consent button: %w", err)
	}
	if len(elems) == 0 {
		return nil
	}

	button := elems[0]
	err = s.poll(ctx, s.cfg.Timeouts.Candidate, func() (bool, error) {
		return button.IsDisplayed()
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.log.WithError(err).Debug("Consent button stayed hidden")
		return nil
	}
	if err := button.Click(); err != nil {
		return fmt.Errorf("clicking consent button: %w", err)
	}
	s.log.Debug("Consent dialog dismissed")
	return nil
}

// WaitForLoad blocks until the current document reaches state.
func (s *Session) WaitForLoad(ctx context.Context, state LoadState) error {
	var cond func() (bool, error)
	switch state {
	case DOMContentLoaded, Load:
		cond = func() (bool, error) {
			v, err := s.wd.ExecuteScript(readyStateScript, nil)
			if err != nil {
				return false, tolerateScriptError(err)
			}
			ready, _ := v.(string)
			if state == Load {
				return ready == "complete", nil
			}
			return ready == "interactive" || ready == "complete", nil
		}
	case NetworkIdle:
		var (
			last  = -1
			since time.Time
		)
		cond = func() (bool, error) {
			v, err := s.wd.ExecuteScript(resourceStateScript, nil)
			if err != nil {
				return false, tolerateScriptError(err)
			}
			pair, ok := v.([]interface{})
			if !ok || len(pair) != 2 {
				return false, fmt.Errorf("unexpected resource state %v", v)
			}
			ready, _ := pair[0].(string)
			count, _ := pair[1].(float64)
			if ready != "complete" {
				last = -1
				return false, nil
			}
			if int(count) != last {
				last, since = int(count), time.Now()
				return false, nil
			}
			return time.Since(since) >= s.cfg.Timeouts.NetworkIdle, nil
		}
	default:
		return fmt.Errorf("unknown load state %q", state)
	}

	if err := s.poll(ctx, s.cfg.Timeouts.Action, cond); err != nil {
		return fmt.Errorf("waiting for %s: %w", state, err)
	}
	return nil
}

// tolerateScriptError swallows script failures while a document is being
// replaced; transport failures still abort the wait.
func tolerateScriptError(err error) error {
	var wdErr *webdriver.Error
	if errors.As(err, &wdErr) {
		return nil
	}
	return err
}

// ExpectNavigation runs action and waits until it replaced the current
// document, which also covers navigations back to the same URL.
func (s *Session) ExpectNavigation(ctx context.Context, action func() error) error {
	token := uuid.NewString()
	if _, err := s.wd.ExecuteScript(setMarkerScript, []interface{}{token}); err != nil {
		return fmt.Errorf("marking current document: %w", err)
	}
	if err := action(); err != nil {
		return err
	}
	err := s.poll(ctx, s.cfg.Timeouts.Action, func() (bool, error) {
		v, err := s.wd.ExecuteScript(checkMarkerScript, []interface{}{token})
		if err != nil {
			return false, tolerateScriptError(err)
		}
		same, _ := v.(bool)
		return !same, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for navigation: %w", err)
	}
	return nil
}

// Hover moves the pointer over the first visible match of sel.
func (s *Session) Hover(ctx context.Context, sel locator.Selector) error {
	elem, err := s.WaitVisible(ctx, sel)
	if err != nil {
		return err
	}
	if err := s.wd.MoveTo(elem); err != nil {
		return fmt.Errorf("hovering %s: %w", sel, err)
	}
	return nil
}

// ScrollIntoView centers elem in the viewport.
func (s *Session) ScrollIntoView(elem webdriver.WebElement) error {
	if _, err := s.wd.ExecuteScript(scrollIntoViewScript, []interface{}{elem}); err != nil {
		return fmt.Errorf("scrolling element into view: %w", err)
	}
	return nil
}

// Find runs the Resilient Locator over candidates with the configured poll
// interval.
func (s *Session) Find(ctx context.Context, candidates []locator.Selector, perMatch time.Duration) (locator.Match, bool, error) {
	m, found, err := locator.FindVisible(ctx, s.wd, candidates, perMatch, locator.WithInterval(s.cfg.Timeouts.Poll))
	if found {
		s.log.WithField("selector", m.Selector.String()).Debug("Located element")
	}
	return m, found, err
}

// WaitVisible waits up to timeouts.action for a visible match of sel.
func (s *Session) WaitVisible(ctx context.Context, sel locator.Selector) (webdriver.WebElement, error) {
	return locator.WaitVisible(ctx, s.wd, sel, s.cfg.Timeouts.Action, locator.WithInterval(s.cfg.Timeouts.Poll))
}

// Title returns the document title.
func (s *Session) Title() (string, error) {
	return s.wd.Title()
}

// CurrentURL returns the URL of the current document.
func (s *Session) CurrentURL() (string, error) {
	return s.wd.CurrentURL()
}
