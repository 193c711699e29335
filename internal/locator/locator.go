// Package locator finds visible elements among ordered candidate selectors.
package locator

import (
	"context"
	"fmt"
	"time"

	"github.com/vtmqa/vtmsmoke/webdriver"
)

// Match is the element FindVisible settled on.
type Match struct {
	Element  webdriver.WebElement
	Selector Selector
	// Index is the position of Element among the selector's matches.
	Index int
}

type options struct {
	interval time.Duration
}

// Option configures FindVisible.
type Option func(*options)

// WithInterval sets how often visibility is polled.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// FindVisible walks candidates in order, and the matches of each candidate in
// document order, waiting up to perMatch for each match to become displayed.
// The first displayed match wins.
//
// found is false when every match stayed hidden; that is a normal result.
// err is reserved for faults: a selector the remote end rejects, a broken
// session, or ctx ending.
func FindVisible(ctx context.Context, wd webdriver.WebDriver, candidates []Selector, perMatch time.Duration, opts ...Option) (m Match, found bool, err error) {
	o := &options{interval: webdriver.DefaultWaitInterval}
	for _, opt := range opts {
		opt(o)
	}

	for _, sel := range candidates {
		if err := ctx.Err(); err != nil {
			return Match{}, false, err
		}
		elems, err := wd.FindElements(sel.By, sel.Value)
		if err != nil {
			return Match{}, false, fmt.Errorf("finding %s: %w", sel, err)
		}
		for i, elem := range elems {
			if visible(ctx, wd, elem, perMatch, o.interval) {
				return Match{Element: elem, Selector: sel, Index: i}, true, nil
			}
			if err := ctx.Err(); err != nil {
				return Match{}, false, err
			}
		}
	}
	return Match{}, false, nil
}

// visible waits for elem to be displayed. Wait timeouts and failed
// visibility checks, such as a stale element, count as not visible.
func visible(ctx context.Context, wd webdriver.WebDriver, elem webdriver.WebElement, timeout, interval time.Duration) bool {
	err := wd.WaitWithTimeoutAndInterval(func(webdriver.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return elem.IsDisplayed()
	}, timeout, interval)
	return err == nil
}

// WaitVisible polls sel until one of its matches is displayed, which also
// covers elements that are not in the document yet. It returns a timeout
// error when nothing shows up in time.
func WaitVisible(ctx context.Context, wd webdriver.WebDriver, sel Selector, timeout time.Duration, opts ...Option) (webdriver.WebElement, error) {
	o := &options{interval: webdriver.DefaultWaitInterval}
	for _, opt := range opts {
		opt(o)
	}

	var found webdriver.WebElement
	err := wd.WaitWithTimeoutAndInterval(func(wd webdriver.WebDriver) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		elems, err := wd.FindElements(sel.By, sel.Value)
		if err != nil {
			return false, err
		}
		for _, elem := range elems {
			ok, err := elem.IsDisplayed()
			if err != nil {
				if webdriver.HasCode(err, webdriver.ErrStaleElement) {
					continue
				}
				return false, err
			}
			if ok {
				found = elem
				return true, nil
			}
		}
		return false, nil
	}, timeout, o.interval)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s to be visible: %w", sel, err)
	}
	return found, nil
}
