// Package webdrivertest provides an in-memory webdriver.WebDriver that serves
// scripted pages, so harness code can be exercised without a browser.
package webdrivertest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vtmqa/vtmsmoke/webdriver"
	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

// Key identifies a selector in Page.Elements.
func Key(by, value string) string {
	return by + "|" + value
}

// Page is what the Driver shows at one URL.
type Page struct {
	Title    string
	Elements map[string][]*Element
	// FindErr makes lookups of a selector fail.
	FindErr map[string]error
}

// Add registers elements returned for the selector, in document order.
func (p *Page) Add(by, value string, elems ...*Element) *Page {
	if p.Elements == nil {
		p.Elements = make(map[string][]*Element)
	}
	p.Elements[Key(by, value)] = append(p.Elements[Key(by, value)], elems...)
	return p
}

// Fail makes lookups of the selector return err.
func (p *Page) Fail(by, value string, err error) *Page {
	if p.FindErr == nil {
		p.FindErr = make(map[string]error)
	}
	p.FindErr[Key(by, value)] = err
	return p
}

// Element is a scripted element. The exported fields describe its behavior;
// the counters record how it was used.
type Element struct {
	Visible bool
	// ShowAfter makes a hidden element visible on that IsDisplayed poll.
	ShowAfter int
	// DisplayErr is returned by every IsDisplayed call.
	DisplayErr error
	// ClickErr is returned by Click.
	ClickErr error
	// Href, when set, is loaded on Click.
	Href string
	// OnClick runs on Click, before Href is followed.
	OnClick func(d *Driver) error
	// OnEnter runs when an Enter key is sent.
	OnEnter func(d *Driver) error
	Tag     string
	Label   string
	Attrs   map[string]string

	Clicks int
	Polls  int
	Hovers int
	Typed  string

	id     string
	parent *Driver
}

// Driver implements webdriver.WebDriver over a map of pages.
type Driver struct {
	Pages map[string]*Page
	// GetErr makes navigation to a URL fail.
	GetErr map[string]error
	// ReadyState is reported by document.readyState, "complete" by default.
	ReadyState string
	// Resources is the number of resource timing entries of the document.
	Resources int
	// Script, when set, answers scripts first; handled=false falls back to the
	// built-in behavior.
	Script func(script string, args []interface{}) (result interface{}, handled bool, err error)
	Caps   webdriver.Capabilities
	Logs   []log.Message
	PNG    []byte

	URL     string
	Visits  []string
	Scripts []string
	Quits   int
	Timeout webdriver.Timeouts
	Window  [2]int

	marker interface{}
	nextID int
}

var _ webdriver.WebDriver = (*Driver)(nil)
var _ webdriver.WebElement = (*Element)(nil)

// New returns a Driver with no pages.
func New() *Driver {
	return &Driver{
		Pages:      make(map[string]*Page),
		GetErr:     make(map[string]error),
		ReadyState: "complete",
		Caps:       webdriver.Capabilities{"browserName": "chrome"},
		PNG:        []byte("\x89PNG\r\n\x1a\n"),
	}
}

// AddPage registers a page at url.
func (d *Driver) AddPage(url, title string) *Page {
	p := &Page{Title: title}
	d.Pages[url] = p
	return p
}

// Page returns the page shown at the current URL, or an empty page.
func (d *Driver) Page() *Page {
	if p, ok := d.Pages[d.URL]; ok {
		return p
	}
	return &Page{}
}

// Navigate loads url the way a followed link would.
func (d *Driver) Navigate(url string) {
	d.URL = url
	d.Visits = append(d.Visits, url)
	d.marker = nil
}

func noSuchElement(by, value string) error {
	return &webdriver.Error{Err: webdriver.ErrNoSuchElement, Message: fmt.Sprintf("no element for %s=%s", by, value)}
}

func (d *Driver) Status() (*webdriver.Status, error) {
	return &webdriver.Status{Ready: true}, nil
}

func (d *Driver) NewSession() (string, error) { return "fake-session", nil }
func (d *Driver) SessionID() string            { return "fake-session" }

func (d *Driver) Capabilities() webdriver.Capabilities { return d.Caps }

func (d *Driver) SetTimeouts(t webdriver.Timeouts) error {
	d.Timeout = t
	return nil
}

func (d *Driver) Quit() error {
	d.Quits++
	return nil
}

func (d *Driver) Get(url string) error {
	if err := d.GetErr[url]; err != nil {
		return err
	}
	d.Navigate(url)
	return nil
}

func (d *Driver) CurrentURL() (string, error) { return d.URL, nil }
func (d *Driver) Title() (string, error)      { return d.Page().Title, nil }

func (d *Driver) Refresh() error {
	d.Navigate(d.URL)
	return nil
}

func (d *Driver) ResizeWindow(width, height int) error {
	d.Window = [2]int{width, height}
	return nil
}

func (d *Driver) FindElement(by, value string) (webdriver.WebElement, error) {
	elems, err := d.FindElements(by, value)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, noSuchElement(by, value)
	}
	return elems[0], nil
}

func (d *Driver) FindElements(by, value string) ([]webdriver.WebElement, error) {
	p := d.Page()
	if err := p.FindErr[Key(by, value)]; err != nil {
		return nil, err
	}
	var elems []webdriver.WebElement
	for _, e := range p.Elements[Key(by, value)] {
		if e.id == "" {
			d.nextID++
			e.id = fmt.Sprintf("e%d", d.nextID)
			e.parent = d
		}
		elems = append(elems, e)
	}
	return elems, nil
}

func (d *Driver) MoveTo(elem webdriver.WebElement) error {
	e, ok := elem.(*Element)
	if !ok {
		return errors.New("webdrivertest: foreign element")
	}
	e.Hovers++
	return nil
}

// ExecuteScript understands the scripts the harness sends: document
// readiness, resource counts, the navigation marker and scrolling.
func (d *Driver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	d.Scripts = append(d.Scripts, script)
	if d.Script != nil {
		if v, handled, err := d.Script(script, args); handled {
			return v, err
		}
	}
	switch {
	case strings.Contains(script, "getEntriesByType"):
		return []interface{}{d.ReadyState, float64(d.Resources)}, nil
	case strings.Contains(script, "document.readyState"):
		return d.ReadyState, nil
	case strings.Contains(script, "=== arguments[0]"):
		return len(args) > 0 && d.marker == args[0], nil
	case strings.Contains(script, "= arguments[0]"):
		if len(args) > 0 {
			d.marker = args[0]
		}
		return nil, nil
	case strings.Contains(script, "scrollIntoView"):
		return nil, nil
	}
	return nil, &webdriver.Error{Err: "javascript error", Message: "unsupported script: " + script}
}

func (d *Driver) Screenshot() ([]byte, error) { return d.PNG, nil }

func (d *Driver) Log(typ log.Type) ([]log.Message, error) {
	if typ != log.Browser {
		return nil, nil
	}
	return d.Logs, nil
}

func (d *Driver) WaitWithTimeoutAndInterval(condition webdriver.Condition, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := condition(d)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", webdriver.ErrWaitTimeout, timeout)
		}
		time.Sleep(interval)
	}
}

func (d *Driver) WaitWithTimeout(condition webdriver.Condition, timeout time.Duration) error {
	return d.WaitWithTimeoutAndInterval(condition, timeout, time.Millisecond)
}

func (d *Driver) Wait(condition webdriver.Condition) error {
	return d.WaitWithTimeoutAndInterval(condition, webdriver.DefaultWaitTimeout, time.Millisecond)
}

func (e *Element) ID() string { return e.id }

func (e *Element) Click() error {
	if e.ClickErr != nil {
		return e.ClickErr
	}
	if !e.Visible {
		return &webdriver.Error{Err: webdriver.ErrElementNotInteract, Message: "element not interactable"}
	}
	e.Clicks++
	if e.OnClick != nil {
		if err := e.OnClick(e.parent); err != nil {
			return err
		}
	}
	if e.Href != "" {
		e.parent.Navigate(e.Href)
	}
	return nil
}

func (e *Element) SendKeys(keys string) error {
	if !e.Visible {
		return &webdriver.Error{Err: webdriver.ErrElementNotInteract, Message: "element not interactable"}
	}
	text, enter := keys, false
	if i := strings.Index(keys, webdriver.EnterKey); i >= 0 {
		text, enter = keys[:i], true
	}
	e.Typed += text
	if enter && e.OnEnter != nil {
		return e.OnEnter(e.parent)
	}
	return nil
}

func (e *Element) Clear() error {
	e.Typed = ""
	return nil
}

func (e *Element) FindElements(by, value string) ([]webdriver.WebElement, error) {
	return nil, nil
}

func (e *Element) TagName() (string, error) { return e.Tag, nil }
func (e *Element) Text() (string, error)    { return e.Label, nil }

func (e *Element) IsDisplayed() (bool, error) {
	e.Polls++
	if e.DisplayErr != nil {
		return false, e.DisplayErr
	}
	if !e.Visible && e.ShowAfter > 0 && e.Polls >= e.ShowAfter {
		e.Visible = true
	}
	return e.Visible, nil
}

func (e *Element) IsEnabled() (bool, error) { return true, nil }

func (e *Element) GetAttribute(name string) (string, error) {
	if v, ok := e.Attrs[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("attribute %q not set", name)
}
