package chrome

import (
	"encoding/json"
	"testing"
)

func TestEmptyCapabilities(t *testing.T) {
	data, err := json.Marshal(Capabilities{})
	if err != nil {
		t.Fatalf("json.Marshal(Capabilities{}) return error: %v", err)
	}
	got, want := string(data), `{}`
	if got != want {
		t.Fatalf("json.Marshal(Capabilities{}) = %q, want %q", got, want)
	}
}

func TestHelpers(t *testing.T) {
	var c Capabilities
	c.Headless()
	c.WindowSize(1280, 720)
	c.Lang("cs-CZ")

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("json.Marshal(%+v) return error: %v", c, err)
	}
	got := string(data)
	want := `{"args":["--headless=new","--window-size=1280,720","--lang=cs-CZ"],"prefs":{"intl.accept_languages":"cs-CZ"}}`
	if got != want {
		t.Fatalf("json.Marshal(%+v) = %q, want %q", c, got, want)
	}
}
