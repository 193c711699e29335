package log

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestAtLeast(t *testing.T) {
	tests := []struct {
		level, min Level
		want       bool
	}{
		{Severe, Severe, true},
		{Severe, Warning, true},
		{Warning, Severe, false},
		{Info, All, true},
		{Off, Severe, true},
		{"FINE", Debug, false},
		{"FINE", All, false},
	}
	for _, test := range tests {
		if got := test.level.AtLeast(test.min); got != test.want {
			t.Errorf("%s.AtLeast(%s) = %t, want %t", test.level, test.min, got, test.want)
		}
	}
}

func TestFilter(t *testing.T) {
	ts := time.Date(2025, 3, 24, 14, 5, 9, 120*int(time.Millisecond), time.UTC)
	msgs := []Message{
		{Timestamp: ts, Level: Info, Message: "navigated"},
		{Timestamp: ts, Level: Severe, Message: "Uncaught TypeError"},
		{Timestamp: ts, Level: Warning, Message: "deprecated"},
	}
	got := Filter(msgs, Warning)
	want := []Message{msgs[1], msgs[2]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Filter(Warning) returned diff (-want/+got):\n%s", diff)
	}
	if got := msgs[1].String(); got != "14:05:09.120 SEVERE Uncaught TypeError" {
		t.Errorf("String() = %q", got)
	}
}
