package model

import "time"

// Uncategorized is the label given to events that match no style.
const Uncategorized = "Uncategorized"

// RawEvent is one listing as handed over by a retrieval collaborator. It is
// either a DayRangeRecord or a ScrapedRecord.
type RawEvent interface {
	rawEvent()
}

// DayRangeRecord is a listing returned as JSON, dated by calendar days.
type DayRangeRecord struct {
	Title    string   `json:"title"`
	Dates    []string `json:"dates"`
	Location string   `json:"location"`
	// Styles is nil when the payload carried no "styles" key at all.
	Styles []string `json:"styles"`
	URL    string   `json:"url"`
}

// ScrapedRecord is a listing extracted from an HTML page, dated by free text
// such as "Sat, Aug 17, 7:00 PM - 11:00 PM PDT".
type ScrapedRecord struct {
	ID       string
	Title    string
	Location string
	RawDate  string
	EventURL string
}

func (DayRangeRecord) rawEvent() {}
func (ScrapedRecord) rawEvent()  {}

// NormalizedEvent is the canonical form every downstream stage works on.
type NormalizedEvent struct {
	ID       string
	Title    string
	Location string

	// DateLabel is the human-readable date shown next to the event.
	DateLabel string

	// Start / End are nil when the date could not be interpreted.
	Start *time.Time
	End   *time.Time

	// AllDay marks events dated by calendar days. Start and End then sit at
	// local midnight of the first and last day.
	AllDay bool

	SourceURL string

	// CalendarLink is empty unless both Start and End are set.
	CalendarLink string

	// Categories is sorted and never empty.
	Categories []string
}

// HasInstants reports whether both Start and End are known.
func (e NormalizedEvent) HasInstants() bool {
	return e.Start != nil && e.End != nil
}

// IsPast reports whether the event ended before dayStart. Events without an
// end are treated as past.
func (e NormalizedEvent) IsPast(dayStart time.Time) bool {
	if e.End == nil {
		return true
	}
	return e.End.Before(dayStart)
}

// Result is the output of one pipeline run.
type Result struct {
	// Categorized maps a category label to its events in chronological order.
	Categorized map[string][]NormalizedEvent
	// Categories lists the keys of Categorized in lexicographic order.
	Categories []string

	// Upcoming holds every upcoming event once, in chronological order.
	Upcoming []NormalizedEvent

	UpcomingCount int
	PastCount     int
	DroppedCount  int
}
