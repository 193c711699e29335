// Package chrome provides Chrome-specific options for WebDriver.
package chrome

import (
	"fmt"
)

// CapabilitiesKey is the key in the top-level Capabilities map under which
// ChromeDriver expects the Chrome-specific options to be set.
const CapabilitiesKey = "goog:chromeOptions"

// Capabilities defines the Chrome-specific desired capabilities when using
// ChromeDriver. An instance of this struct can be stored in the Capabilities
// map with a key of CapabilitiesKey ("goog:chromeOptions").  See
// https://chromedriver.chromium.org/capabilities
type Capabilities struct {
	// Path is the file path to the Chrome binary to use.
	Path string `json:"binary,omitempty"`
	// Args are the command-line arguments to pass to the Chrome binary, in
	// addition to the ChromeDriver-supplied ones.
	Args []string `json:"args,omitempty"`
	// ExcludeSwitches are the command line flags that should be removed from
	// the ChromeDriver-supplied default flags. The strings included here should
	// not include a preceding '--'.
	ExcludeSwitches []string `json:"excludeSwitches,omitempty"`
	// Prefs are the key/value pairs that are applied to the preferences of the
	// user profile in use.
	Prefs map[string]interface{} `json:"prefs,omitempty"`
	// Detach, if true, will cause the browser to not be killed when
	// ChromeDriver quits if the session was not terminated.
	Detach *bool `json:"detach,omitempty"`
	// MinidumpPath specifies the directory in which to store Chrome minidumps.
	// (This is only available on Linux).
	MinidumpPath string `json:"minidumpPath,omitempty"`
}

// Headless switches the browser to the new headless mode.
func (c *Capabilities) Headless() {
	c.Args = append(c.Args, "--headless=new")
}

// WindowSize sets the initial size of the browser window.
func (c *Capabilities) WindowSize(width, height int) {
	c.Args = append(c.Args, fmt.Sprintf("--window-size=%d,%d", width, height))
}

// Lang sets the browser UI and Accept-Language locale, e.g. "cs-CZ".
func (c *Capabilities) Lang(lang string) {
	c.Args = append(c.Args, "--lang="+lang)
	if c.Prefs == nil {
		c.Prefs = make(map[string]interface{})
	}
	c.Prefs["intl.accept_languages"] = lang
}
