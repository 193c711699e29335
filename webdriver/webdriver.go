package webdriver

import (
	"time"

	"github.com/vtmqa/vtmsmoke/webdriver/chrome"
	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

// Methods by which to find elements.
const (
	ByCSSSelector     = "css selector"
	ByXPATH           = "xpath"
	ByLinkText        = "link text"
	ByPartialLinkText = "partial link text"
	ByTagName         = "tag name"
)

// Special keyboard keys, for SendKeys.
const (
	NullKey      = string('\ue000')
	BackspaceKey = string('\ue003')
	TabKey       = string('\ue004')
	ReturnKey    = string('\ue006')
	EnterKey     = string('\ue007')
	ShiftKey     = string('\ue008')
	ControlKey   = string('\ue009')
	EscapeKey    = string('\ue00c')
	EndKey       = string('\ue010')
	HomeKey      = string('\ue011')
)

// Capabilities configures both the WebDriver process and the target browsers,
// with standard and browser-specific options.
type Capabilities map[string]interface{}

// AddChrome adds Chrome-specific capabilities.
func (c Capabilities) AddChrome(f chrome.Capabilities) {
	c[chrome.CapabilitiesKey] = f
}

// AddLogging adds logging configuration to the capabilities.
func (c Capabilities) AddLogging(l log.Capabilities) {
	c[log.CapabilitiesKey] = l
}

// SetLogLevel sets the logging level of a component. It is a shortcut for
// passing a log.Capabilities instance to AddLogging.
func (c Capabilities) SetLogLevel(typ log.Type, level log.Level) {
	if _, ok := c[log.CapabilitiesKey]; !ok {
		c[log.CapabilitiesKey] = make(log.Capabilities)
	}
	m := c[log.CapabilitiesKey].(log.Capabilities)
	m[typ] = level
}

// Status contains information returned by the Status method.
type Status struct {
	Build struct {
		Version string `json:"version"`
	} `json:"build"`
	OS struct {
		Arch    string `json:"arch"`
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"os"`

	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// Timeouts are the session timeouts defined by the W3C specification. Zero
// values are left untouched by SetTimeouts.
type Timeouts struct {
	Script   time.Duration
	PageLoad time.Duration
	Implicit time.Duration
}

// Condition is an arbitrary function that checks whether the page has reached
// an expected state.
type Condition func(wd WebDriver) (bool, error)

// DefaultWaitInterval is the polling interval used by Wait and WaitWithTimeout.
const DefaultWaitInterval = 100 * time.Millisecond

// DefaultWaitTimeout is the timeout used by Wait.
const DefaultWaitTimeout = 60 * time.Second

// WebDriver defines methods supported by WebDriver drivers.
type WebDriver interface {
	// Status returns various pieces of information about the server environment.
	Status() (*Status, error)

	// NewSession starts a new session and returns the session ID.
	NewSession() (string, error)
	// SessionID returns the current session ID.
	SessionID() string
	// Capabilities returns the capabilities negotiated for the session.
	Capabilities() Capabilities
	// SetTimeouts configures the session timeouts.
	SetTimeouts(t Timeouts) error
	// Quit ends the current session. The browser instance will be closed.
	Quit() error

	// Get navigates the browser to the provided URL.
	Get(url string) error
	// CurrentURL returns the browser's current URL.
	CurrentURL() (string, error)
	// Title returns the current page's title.
	Title() (string, error)
	// Refresh refreshes the page.
	Refresh() error
	// ResizeWindow changes the dimensions of the current window.
	ResizeWindow(width, height int) error

	// FindElement finds exactly one element in the current page's DOM.
	FindElement(by, value string) (WebElement, error)
	// FindElements finds potentially many elements in the current page's DOM,
	// in document order.
	FindElements(by, value string) ([]WebElement, error)

	// MoveTo moves the pointer to the center of the element, which hovers it.
	MoveTo(elem WebElement) error

	// ExecuteScript executes a synchronous script. Elements passed in args are
	// available to the script as DOM nodes.
	ExecuteScript(script string, args []interface{}) (interface{}, error)

	// Screenshot takes a PNG screenshot of the current viewport.
	Screenshot() ([]byte, error)
	// Log fetches the logs. Log types must be previously configured in the
	// capabilities.
	Log(typ log.Type) ([]log.Message, error)

	// WaitWithTimeoutAndInterval waits for the condition to evaluate to true.
	WaitWithTimeoutAndInterval(condition Condition, timeout, interval time.Duration) error
	// WaitWithTimeout works like WaitWithTimeoutAndInterval, but with default polling interval.
	WaitWithTimeout(condition Condition, timeout time.Duration) error
	// Wait works like WaitWithTimeoutAndInterval, but using the default timeout and polling interval.
	Wait(condition Condition) error
}

// WebElement defines method supported by web elements.
type WebElement interface {
	// ID returns the web element reference assigned by the remote end.
	ID() string

	// Click clicks on the element.
	Click() error
	// SendKeys types into the element.
	SendKeys(keys string) error
	// Clear clears the element.
	Clear() error

	// FindElements finds child elements.
	FindElements(by, value string) ([]WebElement, error)

	// TagName returns the element's name.
	TagName() (string, error)
	// Text returns the rendered text of the element.
	Text() (string, error)
	// IsDisplayed returns true if the element is displayed.
	IsDisplayed() (bool, error)
	// IsEnabled returns true if the element is enabled.
	IsEnabled() (bool, error)
	// GetAttribute returns the named attribute of the element.
	GetAttribute(name string) (string, error)
}
