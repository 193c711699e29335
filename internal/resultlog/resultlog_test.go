package resultlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestOutcomeTokens(t *testing.T) {
	tests := []struct {
		outcome Outcome
		token   string
		label   string
	}{
		{Success, "Úspěšný", "success"},
		{Failure, "Neúspěšný", "failure"},
		{Error, "Chyba", "error"},
	}
	for _, test := range tests {
		assert.Equal(t, test.token, test.outcome.String())
		assert.Equal(t, test.label, test.outcome.Label())
		parsed, err := ParseLabel(test.label)
		require.NoError(t, err)
		assert.Equal(t, test.outcome, parsed)
	}
	_, err := ParseLabel("skipped")
	assert.Error(t, err)
}

func TestLoggerCreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	log, _ := test.NewNullLogger()
	l := NewLogger(path, log)

	at := time.Date(2025, time.March, 4, 9, 5, 7, 0, time.Local)
	l.Record(Record{Time: at, Test: "Ověření názvu stránky", Outcome: Success})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "čas,test,výsledek\r\n04-03-2025 09:05:07,Ověření názvu stránky,Úspěšný\r\n", string(data))
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	log, _ := test.NewNullLogger()
	l := NewLogger(path, log)

	names := []string{"Test odkazu: Počítače", "Test odkazu: Mobily", "Test odkazu: Hry"}
	for i, name := range names {
		l.Record(Record{Time: time.Now(), Test: name, Outcome: Outcome(i)})
		rows := readRows(t, path)
		require.Len(t, rows, i+2)
		assert.Equal(t, Header, rows[0])
	}

	stamp := regexp.MustCompile(`^\d{2}-\d{2}-\d{4} \d{2}:\d{2}:\d{2}$`)
	rows := readRows(t, path)
	for i, row := range rows[1:] {
		assert.Regexp(t, stamp, row[0])
		assert.Equal(t, names[i], row[1])
		assert.Contains(t, []string{"Úspěšný", "Neúspěšný", "Chyba"}, row[2])
	}
}

func TestLoggerEmptyFileGetsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	log, _ := test.NewNullLogger()

	NewLogger(path, log).Record(Record{Time: time.Now(), Test: "Vyhledávání", Outcome: Failure})

	rows := readRows(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
}

func TestLoggerExistingFileKeepsHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	existing := "čas,test,výsledek\r\n01-01-2025 00:00:00,Ověření loga,Chyba\r\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))
	log, _ := test.NewNullLogger()

	NewLogger(path, log).Record(Record{Time: time.Now(), Test: "Ověření loga", Outcome: Success})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), existing))
	assert.Equal(t, 1, strings.Count(string(data), "čas,test,výsledek"))
	assert.Len(t, readRows(t, path), 3)
}

func TestLoggerSwallowsIOErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "log.csv")
	log, hook := test.NewNullLogger()
	l := NewLogger(path, log)

	assert.NotPanics(t, func() {
		l.Record(Record{Time: time.Now(), Test: "Otevření článku", Outcome: Success})
	})

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "Otevření článku", entry.Data["test"])
	assert.Error(t, entry.Data[logrus.ErrorKey].(error))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

type memoryRecorder struct {
	records []Record
}

func (m *memoryRecorder) Record(r Record) {
	m.records = append(m.records, r)
}

func TestMulti(t *testing.T) {
	a, b := new(memoryRecorder), new(memoryRecorder)
	r := Record{Test: "Vyhledávání", Outcome: Error, Detail: "timeout"}

	Multi{a, b}.Record(r)

	assert.Equal(t, []Record{r}, a.records)
	assert.Equal(t, []Record{r}, b.records)
}
