package calendar

import (
	"net/url"

	"danceimport/internal/model"
)

const (
	DefaultTemplateURL   = "https://www.google.com/calendar/render"
	DefaultDetailsPrefix = "View event details at: "

	instantLayout = "20060102T150405Z"
	dayLayout     = "20060102"
)

// Linker builds pre-filled "add to calendar" URLs.
type Linker struct {
	templateURL   string
	detailsPrefix string
}

// NewLinker returns a Linker for the given calendar template endpoint.
// Empty arguments fall back to the defaults.
func NewLinker(templateURL, detailsPrefix string) *Linker {
	if templateURL == "" {
		templateURL = DefaultTemplateURL
	}
	if detailsPrefix == "" {
		detailsPrefix = DefaultDetailsPrefix
	}
	return &Linker{templateURL: templateURL, detailsPrefix: detailsPrefix}
}

// Link returns the calendar URL for ev, or false when either instant is
// missing.
//
// Timed events are encoded as UTC instants. All-day events are encoded as
// calendar days with the end pushed one day forward, since the calendar
// treats the end day as exclusive.
func (l *Linker) Link(ev model.NormalizedEvent) (string, bool) {
	if !ev.HasInstants() {
		return "", false
	}

	var dates string
	if ev.AllDay {
		dates = ev.Start.Format(dayLayout) + "/" + ev.End.AddDate(0, 0, 1).Format(dayLayout)
	} else {
		dates = ev.Start.UTC().Format(instantLayout) + "/" + ev.End.UTC().Format(instantLayout)
	}

	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", ev.Title)
	params.Set("dates", dates)
	params.Set("details", l.detailsPrefix+ev.SourceURL)
	params.Set("location", ev.Location)

	return l.templateURL + "?" + params.Encode(), true
}
