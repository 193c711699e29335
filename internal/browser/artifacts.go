package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/vtmqa/vtmsmoke/webdriver/log"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug turns a check name into a file name fragment:
// "Test odkazu: Počítače" becomes "test-odkazu-pocitace".
func Slug(name string) string {
	ascii, _, err := transform.String(stripMarks, name)
	if err != nil {
		ascii = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(ascii) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// CaptureFailure saves a screenshot and the severe browser console lines for
// the named check and returns the files written. Problems are only logged.
func (s *Session) CaptureFailure(check string) []string {
	if !s.cfg.Artifacts.Screenshots {
		return nil
	}
	logger := s.log.WithField("check", check)
	if err := os.MkdirAll(s.cfg.Artifacts.Dir, 0o755); err != nil {
		logger.WithError(err).Warn("Could not create artifacts directory")
		return nil
	}

	base := filepath.Join(s.cfg.Artifacts.Dir, fmt.Sprintf("%s-%s", s.runID[:8], Slug(check)))
	var written []string

	if png, err := s.wd.Screenshot(); err != nil {
		logger.WithError(err).Warn("Could not take screenshot")
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		logger.WithError(err).Warn("Could not save screenshot")
	} else {
		written = append(written, base+".png")
	}

	msgs, err := s.wd.Log(log.Browser)
	if err != nil {
		logger.WithError(err).Debug("Browser log unavailable")
		return written
	}
	var lines []string
	for _, m := range log.Filter(msgs, log.Severe) {
		lines = append(lines, m.String())
	}
	if len(lines) == 0 {
		return written
	}
	if err := os.WriteFile(base+".log", []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		logger.WithError(err).Warn("Could not save browser log")
		return written
	}
	return append(written, base+".log")
}
