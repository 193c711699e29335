/*
Package webdriver provides a client for the W3C WebDriver protocol together
with helpers to run a local ChromeDriver.

It implements only what a smoke-test harness needs: session lifecycle,
navigation, element lookup and interaction, script execution, screenshots and
browser logs.

Example usage:

	s, err := webdriver.NewChromeDriverService("vendor/chromedriver", 0)
	if err != nil {
		return err
	}
	defer s.Stop()

	caps := webdriver.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{Args: []string{"--headless=new"}})
	wd, err := webdriver.NewRemote(caps, s.Addr())
	if err != nil {
		return err
	}
	defer wd.Quit()

	if err := wd.Get("https://vtm.zive.cz/"); err != nil {
		return err
	}
	title, err := wd.Title()

Protocol traffic is logged through glog at verbosity 2 (run with -v=2).
*/
package webdriver
