// Remote WebDriver client implementation.
// See https://www.w3.org/TR/webdriver for the protocol.

package webdriver

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

// Errors returned by legacy (JSON wire protocol) remote ends, keyed by their
// numeric status. W3C remote ends report the string code directly.
var remoteErrors = map[int]string{
	7:  "no such element",
	8:  "no such frame",
	9:  "unknown command",
	10: "stale element reference",
	11: "element not visible",
	12: "invalid element state",
	13: "unknown error",
	17: "javascript error",
	21: "timeout",
	23: "no such window",
	26: "unexpected alert open",
	28: "script timeout",
	32: "invalid selector",
}

// W3C error codes that callers commonly branch on.
const (
	ErrNoSuchElement      = "no such element"
	ErrStaleElement       = "stale element reference"
	ErrTimeout            = "timeout"
	ErrScriptTimeout      = "script timeout"
	ErrInvalidSelector    = "invalid selector"
	ErrElementNotInteract = "element not interactable"
	ErrUnknownCommand     = "unknown command"
)

const (
	// DefaultExecutor is the default ChromeDriver URL.
	DefaultExecutor = "http://127.0.0.1:9515"
	// JSONType is JSON content type.
	JSONType = "application/json"
	// MaxRedirects is the maximum number of redirects to follow.
	MaxRedirects = 10

	// webElementKey identifies a web element reference in W3C payloads.
	webElementKey = "element-6066-11e4-a52e-4f735466cecf"
	// legacyElementKey is used by remote ends running in JSON wire mode.
	legacyElementKey = "ELEMENT"
)

// Error is an error reported by the remote end.
type Error struct {
	// Err is the W3C error code, e.g. "no such element".
	Err string `json:"error"`
	// Message is the human readable description of the error.
	Message string `json:"message"`
	// Stacktrace is the remote end stack trace, if any.
	Stacktrace string `json:"stacktrace"`
	// HTTPCode is the HTTP status code of the reply.
	HTTPCode int `json:"-"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

// IsTimeout reports whether err is a WebDriver timeout, either from the
// remote end or from one of the Wait functions.
func IsTimeout(err error) bool {
	var wdErr *Error
	if errors.As(err, &wdErr) {
		return wdErr.Err == ErrTimeout || wdErr.Err == ErrScriptTimeout
	}
	return errors.Is(err, ErrWaitTimeout)
}

// HasCode reports whether err is a remote end error with the given code.
func HasCode(err error, code string) bool {
	var wdErr *Error
	return errors.As(err, &wdErr) && wdErr.Err == code
}

// ErrWaitTimeout is returned by the Wait functions when the condition did not
// become true in time.
var ErrWaitTimeout = errors.New("timeout waiting for condition")

var httpClient *http.Client

// GetHTTPClient returns the HTTP client used to talk to remote ends.
func GetHTTPClient() *http.Client {
	return httpClient
}

type remoteWD struct {
	id, executor string
	capabilities Capabilities
	negotiated   Capabilities
}

func newRequest(method string, url string, data []byte) (*http.Request, error) {
	request, err := http.NewRequest(method, url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	request.Header.Add("Accept", JSONType)
	if data != nil {
		request.Header.Add("Content-Type", JSONType+";charset=utf-8")
	}
	return request, nil
}

func (wd *remoteWD) requestURL(template string, args ...interface{}) string {
	return wd.executor + fmt.Sprintf(template, args...)
}

type serverReply struct {
	SessionID *string // Only legacy remote ends set this.
	Status    int
	Value     json.RawMessage
}

func (wd *remoteWD) execute(method, url string, data []byte) ([]byte, error) {
	debugLog("-> %s %s\n%s", method, url, data)
	request, err := newRequest(method, url, data)
	if err != nil {
		return nil, err
	}

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	buf, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("reading reply to %s %s: %w", method, url, err)
	}
	debugLog("<- %s [%s]\n%s", response.Status, response.Header.Get("Content-Type"), buf)

	if response.StatusCode >= 400 {
		return nil, decodeError(response.StatusCode, response.Status, buf)
	}

	if len(buf) > 0 && strings.HasPrefix(response.Header.Get("Content-Type"), JSONType) {
		reply := new(serverReply)
		if err := json.Unmarshal(buf, reply); err != nil {
			return nil, err
		}
		if reply.Status != 0 {
			return nil, legacyError(reply.Status, reply.Value)
		}
	}
	return buf, nil
}

func decodeError(code int, status string, buf []byte) error {
	reply := new(struct {
		Status int
		Value  json.RawMessage
	})
	if err := json.Unmarshal(buf, reply); err != nil {
		return fmt.Errorf("bad server reply status: %s", status)
	}
	if reply.Status != 0 {
		return legacyError(reply.Status, reply.Value)
	}
	wdErr := &Error{HTTPCode: code}
	if err := json.Unmarshal(reply.Value, wdErr); err != nil || wdErr.Err == "" {
		return fmt.Errorf("bad server reply status: %s", status)
	}
	return wdErr
}

func legacyError(status int, value json.RawMessage) error {
	message, ok := remoteErrors[status]
	if !ok {
		message = fmt.Sprintf("unknown error - %d", status)
	}
	wdErr := &Error{Err: message}
	details := new(struct{ Message string })
	if err := json.Unmarshal(value, details); err == nil {
		wdErr.Message = details.Message
	}
	return wdErr
}

// NewRemote creates new remote client, this will also start a new session.
// capabilities are the desired capabilities, executor is the URL of the
// WebDriver server and must be prefixed with the protocol. An empty executor
// means DefaultExecutor.
func NewRemote(capabilities Capabilities, executor string) (WebDriver, error) {
	if len(executor) == 0 {
		executor = DefaultExecutor
	}

	wd := &remoteWD{executor: strings.TrimSuffix(executor, "/"), capabilities: capabilities}
	if _, err := wd.NewSession(); err != nil {
		return nil, err
	}
	return wd, nil
}

func (wd *remoteWD) valueCommand(method, urlTemplate string, params interface{}, value interface{}) error {
	var data []byte
	if params != nil {
		var err error
		data, err = json.Marshal(params)
		if err != nil {
			return err
		}
	} else if method == "POST" {
		data = []byte("{}")
	}
	response, err := wd.execute(method, wd.requestURL(urlTemplate, wd.id), data)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}
	reply := &struct{ Value interface{} }{Value: value}
	return json.Unmarshal(response, reply)
}

func (wd *remoteWD) stringCommand(urlTemplate string) (string, error) {
	var v *string
	if err := wd.valueCommand("GET", urlTemplate, nil, &v); err != nil {
		return "", err
	}
	if v == nil {
		return "", fmt.Errorf("nil return value")
	}
	return *v, nil
}

func (wd *remoteWD) voidCommand(urlTemplate string, params interface{}) error {
	return wd.valueCommand("POST", urlTemplate, params, nil)
}

func (wd *remoteWD) boolCommand(urlTemplate string) (bool, error) {
	var v bool
	err := wd.valueCommand("GET", urlTemplate, nil, &v)
	return v, err
}

func (wd *remoteWD) Status() (*Status, error) {
	reply, err := wd.execute("GET", wd.requestURL("/status"), nil)
	if err != nil {
		return nil, err
	}

	status := new(struct{ Value Status })
	if err := json.Unmarshal(reply, status); err != nil {
		return nil, err
	}
	return &status.Value, nil
}

func (wd *remoteWD) NewSession() (string, error) {
	caps := wd.capabilities
	if caps == nil {
		caps = Capabilities{}
	}
	message := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": caps,
		},
		"desiredCapabilities": caps,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return "", err
	}

	response, err := wd.execute("POST", wd.requestURL("/session"), data)
	if err != nil {
		return "", err
	}

	reply := new(struct {
		SessionID *string
		Value     struct {
			SessionID    string       `json:"sessionId"`
			Capabilities Capabilities `json:"capabilities"`
		}
	})
	if err := json.Unmarshal(response, reply); err != nil {
		return "", err
	}

	switch {
	case reply.Value.SessionID != "":
		wd.id = reply.Value.SessionID
		wd.negotiated = reply.Value.Capabilities
	case reply.SessionID != nil:
		wd.id = *reply.SessionID
	default:
		return "", errors.New("new session reply carries no session id")
	}
	return wd.id, nil
}

// SessionID returns the current session ID.
func (wd *remoteWD) SessionID() string {
	return wd.id
}

func (wd *remoteWD) Capabilities() Capabilities {
	return wd.negotiated
}

func (wd *remoteWD) SetTimeouts(t Timeouts) error {
	params := map[string]uint{}
	if t.Script > 0 {
		params["script"] = uint(t.Script / time.Millisecond)
	}
	if t.PageLoad > 0 {
		params["pageLoad"] = uint(t.PageLoad / time.Millisecond)
	}
	if t.Implicit > 0 {
		params["implicit"] = uint(t.Implicit / time.Millisecond)
	}
	if len(params) == 0 {
		return nil
	}
	return wd.voidCommand("/session/%s/timeouts", params)
}

func (wd *remoteWD) Quit() error {
	if wd.id == "" {
		return nil
	}
	_, err := wd.execute("DELETE", wd.requestURL("/session/%s", wd.id), nil)
	if err == nil {
		wd.id = ""
	}
	return err
}

func (wd *remoteWD) Get(url string) error {
	return wd.voidCommand("/session/%s/url", map[string]string{
		"url": url,
	})
}

func (wd *remoteWD) CurrentURL() (string, error) {
	return wd.stringCommand("/session/%s/url")
}

func (wd *remoteWD) Title() (string, error) {
	return wd.stringCommand("/session/%s/title")
}

func (wd *remoteWD) Refresh() error {
	return wd.voidCommand("/session/%s/refresh", nil)
}

func (wd *remoteWD) ResizeWindow(width, height int) error {
	return wd.voidCommand("/session/%s/window/rect", map[string]int{
		"width":  width,
		"height": height,
	})
}

func (wd *remoteWD) find(by, value, suffix, url string) ([]byte, error) {
	params := map[string]string{
		"using": by,
		"value": value,
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	if len(url) == 0 {
		url = "/session/%s/element"
	}

	return wd.execute("POST", wd.requestURL(url+suffix, wd.id), data)
}

// element is a web element reference as sent on the wire.
type element map[string]string

func (e element) id() string {
	if id, ok := e[webElementKey]; ok {
		return id
	}
	return e[legacyElementKey]
}

func (wd *remoteWD) decodeElement(data []byte) (WebElement, error) {
	reply := new(struct{ Value element })
	if err := json.Unmarshal(data, reply); err != nil {
		return nil, err
	}
	id := reply.Value.id()
	if id == "" {
		return nil, errors.New("reply carries no element reference")
	}
	return &remoteWE{wd, id}, nil
}

func (wd *remoteWD) decodeElements(data []byte) ([]WebElement, error) {
	reply := new(struct{ Value []element })
	if err := json.Unmarshal(data, reply); err != nil {
		return nil, err
	}

	elems := make([]WebElement, 0, len(reply.Value))
	for _, elem := range reply.Value {
		if id := elem.id(); id != "" {
			elems = append(elems, &remoteWE{wd, id})
		}
	}
	return elems, nil
}

func (wd *remoteWD) FindElement(by, value string) (WebElement, error) {
	response, err := wd.find(by, value, "", "")
	if err != nil {
		return nil, err
	}
	return wd.decodeElement(response)
}

func (wd *remoteWD) FindElements(by, value string) ([]WebElement, error) {
	response, err := wd.find(by, value, "s", "")
	if err != nil {
		return nil, err
	}
	return wd.decodeElements(response)
}

func (wd *remoteWD) MoveTo(elem WebElement) error {
	move := map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"type":       "pointer",
				"id":         "mouse",
				"parameters": map[string]string{"pointerType": "mouse"},
				"actions": []interface{}{
					map[string]interface{}{
						"type":     "pointerMove",
						"duration": 0,
						"x":        0,
						"y":        0,
						"origin":   element{webElementKey: elem.ID()},
					},
				},
			},
		},
	}
	if err := wd.voidCommand("/session/%s/actions", move); err != nil {
		return err
	}
	_, err := wd.execute("DELETE", wd.requestURL("/session/%s/actions", wd.id), nil)
	return err
}

func (wd *remoteWD) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	if args == nil {
		args = make([]interface{}, 0)
	}
	var value interface{}
	err := wd.valueCommand("POST", "/session/%s/execute/sync", map[string]interface{}{
		"script": script,
		"args":   args,
	}, &value)
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (wd *remoteWD) Screenshot() ([]byte, error) {
	data, err := wd.stringCommand("/session/%s/screenshot")
	if err != nil {
		return nil, err
	}

	// The remote end returns a base64 encoded PNG.
	decoder := base64.NewDecoder(base64.StdEncoding, strings.NewReader(data))
	return io.ReadAll(decoder)
}

func (wd *remoteWD) Log(typ log.Type) ([]log.Message, error) {
	var entries []struct {
		Timestamp int64
		Level     string
		Message   string
	}
	err := wd.valueCommand("POST", "/session/%s/se/log", map[string]log.Type{
		"type": typ,
	}, &entries)
	if err != nil {
		return nil, err
	}

	msgs := make([]log.Message, len(entries))
	for i, e := range entries {
		msgs[i] = log.Message{
			Timestamp: time.Unix(0, e.Timestamp*int64(time.Millisecond)),
			Level:     log.Level(e.Level),
			Message:   e.Message,
		}
	}
	return msgs, nil
}

func (wd *remoteWD) WaitWithTimeoutAndInterval(condition Condition, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := condition(wd)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrWaitTimeout, timeout)
		}
		time.Sleep(interval)
	}
}

func (wd *remoteWD) WaitWithTimeout(condition Condition, timeout time.Duration) error {
	return wd.WaitWithTimeoutAndInterval(condition, timeout, DefaultWaitInterval)
}

func (wd *remoteWD) Wait(condition Condition) error {
	return wd.WaitWithTimeoutAndInterval(condition, DefaultWaitTimeout, DefaultWaitInterval)
}

type remoteWE struct {
	parent *remoteWD
	id     string
}

func (elem *remoteWE) ID() string {
	return elem.id
}

func (elem *remoteWE) Click() error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/click", elem.id)
	return elem.parent.voidCommand(urlTemplate, nil)
}

func (elem *remoteWE) SendKeys(keys string) error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/value", elem.id)
	return elem.parent.voidCommand(urlTemplate, map[string]string{"text": keys})
}

func (elem *remoteWE) Clear() error {
	urlTemplate := fmt.Sprintf("/session/%%s/element/%s/clear", elem.id)
	return elem.parent.voidCommand(urlTemplate, nil)
}

func (elem *remoteWE) FindElements(by, value string) ([]WebElement, error) {
	url := fmt.Sprintf("/session/%%s/element/%s/element", elem.id)
	response, err := elem.parent.find(by, value, "s", url)
	if err != nil {
		return nil, err
	}
	return elem.parent.decodeElements(response)
}

func (elem *remoteWE) TagName() (string, error) {
	return elem.parent.stringCommand(fmt.Sprintf("/session/%%s/element/%s/name", elem.id))
}

func (elem *remoteWE) Text() (string, error) {
	return elem.parent.stringCommand(fmt.Sprintf("/session/%%s/element/%s/text", elem.id))
}

func (elem *remoteWE) boolQuery(urlTemplate string) (bool, error) {
	return elem.parent.boolCommand(fmt.Sprintf(urlTemplate, elem.id))
}

func (elem *remoteWE) IsDisplayed() (bool, error) {
	return elem.boolQuery("/session/%%s/element/%s/displayed")
}

func (elem *remoteWE) IsEnabled() (bool, error) {
	return elem.boolQuery("/session/%%s/element/%s/enabled")
}

// GetAttribute returns the named attribute. A missing attribute is reported
// as an error, like the remote end's null reply.
func (elem *remoteWE) GetAttribute(name string) (string, error) {
	return elem.parent.stringCommand(fmt.Sprintf("/session/%%s/element/%s/attribute/%s", elem.id, name))
}

func (elem *remoteWE) MarshalJSON() ([]byte, error) {
	return json.Marshal(element{
		legacyElementKey: elem.id,
		webElementKey:    elem.id,
	})
}

func init() {
	// http.Client doesn't copy request headers, and the remote end requires that
	httpClient = &http.Client{
		Timeout: 5 * time.Minute,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > MaxRedirects {
				return fmt.Errorf("too many redirects (%d)", len(via))
			}

			req.Header.Add("Accept", JSONType)
			return nil
		},
	}
}
