// Package log holds the logging preference and log entry types of the
// WebDriver client.
package log

import (
	"fmt"
	"time"
)

// Type names a log a session can be asked for.
type Type string

// Log types chromedriver serves.
const (
	Browser     Type = "browser"
	Driver      Type = "driver"
	Performance Type = "performance"
)

// Level is a java.util.logging level name as used by chromedriver.
type Level string

const (
	Off     Level = "OFF"
	Severe  Level = "SEVERE"
	Warning Level = "WARNING"
	Info    Level = "INFO"
	Debug   Level = "DEBUG"
	All     Level = "ALL"
)

var severity = map[Level]int{
	All:     0,
	Debug:   1,
	Info:    2,
	Warning: 3,
	Severe:  4,
	Off:     5,
}

// AtLeast reports whether l is as severe as min. Unknown levels rank below
// every known one.
func (l Level) AtLeast(min Level) bool {
	s, ok := severity[l]
	if !ok {
		s = -1
	}
	return s >= severity[min]
}

// CapabilitiesKey is the capability holding logging preferences. Chrome 75
// and later only accept the vendor prefixed name.
const CapabilitiesKey = "goog:loggingPrefs"

// Capabilities maps each log type to the lowest level it records.
type Capabilities map[Type]Level

// Message is one entry returned by the Log command.
type Message struct {
	Timestamp time.Time
	Level     Level
	Message   string
}

func (m Message) String() string {
	return fmt.Sprintf("%s %s %s", m.Timestamp.Format("15:04:05.000"), m.Level, m.Message)
}

// Filter returns the messages at min or above.
func Filter(msgs []Message, min Level) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Level.AtLeast(min) {
			out = append(out, m)
		}
	}
	return out
}
