// Package resultlog records check outcomes. The CSV Logger is the durable
// log every run appends to; other sinks plug in through Recorder.
package resultlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome is the result of one check.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Error
)

// String returns the token written to the log file.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "Úspěšný"
	case Failure:
		return "Neúspěšný"
	case Error:
		return "Chyba"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Label is the ASCII name used for metrics labels and history rows.
func (o Outcome) Label() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Error:
		return "error"
	}
	return "unknown"
}

// ParseLabel is the inverse of Label.
func ParseLabel(s string) (Outcome, error) {
	for _, o := range []Outcome{Success, Failure, Error} {
		if o.Label() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown outcome %q", s)
}

const (
	// TimeLayout formats the time column, e.g. 24-03-2025 14:05:09.
	TimeLayout = "02-01-2006 15:04:05"
)

// Header is the first row of every log file.
var Header = []string{"čas", "test", "výsledek"}

// Record is one concluded check.
type Record struct {
	Time    time.Time
	Test    string
	Outcome Outcome

	// RunID groups the records of one suite run. Not written to the CSV log.
	RunID string
	// Detail explains a Failure or Error. Not written to the CSV log.
	Detail string
}

// Recorder persists records. Implementations never fail the caller: sink
// errors are reported on the console and dropped.
type Recorder interface {
	Record(r Record)
}

// Multi fans a record out to every recorder in order.
type Multi []Recorder

func (m Multi) Record(r Record) {
	for _, rec := range m {
		rec.Record(r)
	}
}

// Logger appends records to a CSV file. The file is opened and closed for
// every record so concurrent readers always see complete rows.
type Logger struct {
	path string
	log  logrus.FieldLogger
}

// NewLogger returns a Logger writing to path.
func NewLogger(path string, log logrus.FieldLogger) *Logger {
	return &Logger{
		path: path,
		log:  log.WithField("component", "resultlog"),
	}
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Record appends r, writing the header first when the file is new or empty.
func (l *Logger) Record(r Record) {
	if err := l.append(r); err != nil {
		l.log.WithError(err).WithField("test", r.Test).Error("Could not append to the result log")
	}
}

func (l *Logger) append(r Record) (err error) {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", l.path, closeErr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	w.UseCRLF = true
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	if err := w.Write([]string{r.Time.Format(TimeLayout), r.Test, r.Outcome.String()}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
