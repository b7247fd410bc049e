package calendar

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"danceimport/internal/model"
)

func ptr(t time.Time) *time.Time { return &t }

func timedEvent() model.NormalizedEvent {
	return model.NormalizedEvent{
		ID:         "salsa-night",
		Title:      "Salsa & Bachata Night",
		Location:   "Seattle, WA",
		Start:      ptr(time.Date(2024, 8, 18, 2, 0, 0, 0, time.UTC)),
		End:        ptr(time.Date(2024, 8, 18, 6, 0, 0, 0, time.UTC)),
		SourceURL:  "https://www.danceplace.com/events/salsa-night",
		Categories: []string{"Bachata", "Salsa"},
	}
}

func allDayEvent(t *testing.T) model.NormalizedEvent {
	t.Helper()
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	return model.NormalizedEvent{
		ID:         "zouk-fest",
		Title:      "Zouk Festival",
		Location:   "Orlando, FL",
		Start:      ptr(time.Date(2024, 8, 15, 0, 0, 0, 0, la)),
		End:        ptr(time.Date(2024, 8, 18, 0, 0, 0, 0, la)),
		AllDay:     true,
		SourceURL:  "https://www.danceplace.com/events/zouk-fest",
		Categories: []string{"Zouk"},
	}
}

func TestLinkTimedEvent(t *testing.T) {
	l := NewLinker("", "")
	raw, ok := l.Link(timedEvent())
	if !ok {
		t.Fatal("expected a link")
	}
	if !strings.HasPrefix(raw, DefaultTemplateURL+"?") {
		t.Fatalf("unexpected prefix: %s", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("link is not a valid URL: %v", err)
	}
	q := u.Query()
	checks := map[string]string{
		"action":   "TEMPLATE",
		"text":     "Salsa & Bachata Night",
		"dates":    "20240818T020000Z/20240818T060000Z",
		"details":  "View event details at: https://www.danceplace.com/events/salsa-night",
		"location": "Seattle, WA",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if strings.Contains(u.RawQuery, " ") {
		t.Errorf("query is not percent-encoded: %s", u.RawQuery)
	}
}

func TestLinkAllDayEventHasExclusiveEnd(t *testing.T) {
	l := NewLinker("", "")
	raw, ok := l.Link(allDayEvent(t))
	if !ok {
		t.Fatal("expected a link")
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := u.Query().Get("dates"), "20240815/20240819"; got != want {
		t.Errorf("dates = %q, want %q", got, want)
	}
}

func TestLinkAbsentWithoutBothInstants(t *testing.T) {
	l := NewLinker("", "")

	noStart := timedEvent()
	noStart.Start = nil
	noEnd := timedEvent()
	noEnd.End = nil

	for name, ev := range map[string]model.NormalizedEvent{"no start": noStart, "no end": noEnd, "neither": {Title: "x"}} {
		if raw, ok := l.Link(ev); ok || raw != "" {
			t.Errorf("%s: got link %q, want none", name, raw)
		}
	}
}

func TestLinkCustomTemplate(t *testing.T) {
	l := NewLinker("https://calendar.example.com/add", "More: ")
	raw, ok := l.Link(timedEvent())
	if !ok {
		t.Fatal("expected a link")
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "calendar.example.com" || u.Path != "/add" {
		t.Errorf("unexpected endpoint: %s", raw)
	}
	if got := u.Query().Get("details"); got != "More: https://www.danceplace.com/events/salsa-night" {
		t.Errorf("details = %q", got)
	}
}
