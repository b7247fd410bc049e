package pipeline

import (
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"danceimport/internal/calendar"
	"danceimport/internal/classify"
	"danceimport/internal/dates"
	appLog "danceimport/internal/log"
	"danceimport/internal/model"
)

// Normalizer turns one RawEvent into a NormalizedEvent. It holds only
// read-only tables and is safe for concurrent use.
type Normalizer struct {
	interp     *dates.Interpreter
	classifier *classify.Classifier
	linker     *calendar.Linker
	// loc is the wall-clock zone for calendar-day strings.
	loc *time.Location
}

func NewNormalizer(interp *dates.Interpreter, classifier *classify.Classifier, linker *calendar.Linker, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{interp: interp, classifier: classifier, linker: linker, loc: loc}
}

// Normalize returns false when the record lacks a required field and must
// be dropped. Unparseable dates are not a reason to drop: the event comes
// back without instants.
func (n *Normalizer) Normalize(raw model.RawEvent, referenceYear int) (model.NormalizedEvent, bool) {
	var ev model.NormalizedEvent
	var ok bool

	switch rec := raw.(type) {
	case model.DayRangeRecord:
		ev, ok = n.fromDayRange(rec)
	case *model.DayRangeRecord:
		if rec != nil {
			ev, ok = n.fromDayRange(*rec)
		}
	case model.ScrapedRecord:
		ev, ok = n.fromScraped(rec, referenceYear)
	case *model.ScrapedRecord:
		if rec != nil {
			ev, ok = n.fromScraped(*rec, referenceYear)
		}
	}
	if !ok {
		return model.NormalizedEvent{}, false
	}

	if link, has := n.linker.Link(ev); has {
		ev.CalendarLink = link
	}
	return ev, true
}

func (n *Normalizer) fromDayRange(rec model.DayRangeRecord) (model.NormalizedEvent, bool) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		appLog.Warn("dropping record without title", "url", rec.URL)
		return model.NormalizedEvent{}, false
	}

	ev := model.NormalizedEvent{
		ID:        idFromURL(rec.URL),
		Title:     title,
		Location:  strings.TrimSpace(rec.Location),
		DateLabel: dates.FormatRange(rec.Dates),
		AllDay:    true,
		SourceURL: rec.URL,
	}
	if ev.ID == "" {
		ev.ID = derivedID(title, strings.Join(rec.Dates, ","))
	}

	if len(rec.Dates) > 0 {
		first, okFirst := dates.ParseDay(rec.Dates[0], n.loc)
		last, okLast := dates.ParseDay(rec.Dates[len(rec.Dates)-1], n.loc)
		switch {
		case !okFirst || !okLast:
		case last.Before(first):
			appLog.Warn("calendar days out of order", "title", title, "dates", strings.Join(rec.Dates, ","))
		default:
			ev.Start, ev.End = &first, &last
		}
	}

	if rec.Styles == nil {
		ev.Categories = n.classifier.Classify(title)
	} else {
		ev.Categories = classify.FromStyles(rec.Styles)
	}
	return ev, true
}

func (n *Normalizer) fromScraped(rec model.ScrapedRecord, referenceYear int) (model.NormalizedEvent, bool) {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		appLog.Warn("dropping record without title", "url", rec.EventURL)
		return model.NormalizedEvent{}, false
	}
	// The ID can come from the record or from its URL; with neither the
	// event cannot be told apart from others.
	if rec.EventURL == "" && strings.TrimSpace(rec.ID) == "" {
		appLog.Warn("dropping record without event url or id", "title", title)
		return model.NormalizedEvent{}, false
	}

	ev := model.NormalizedEvent{
		ID:         strings.TrimSpace(rec.ID),
		Title:      title,
		Location:   strings.TrimSpace(rec.Location),
		DateLabel:  rec.RawDate,
		SourceURL:  rec.EventURL,
		Categories: n.classifier.Classify(title),
	}
	if ev.ID == "" {
		ev.ID = idFromURL(rec.EventURL)
	}
	if ev.ID == "" {
		ev.ID = derivedID(title, rec.RawDate)
	}

	if span, ok := n.interp.Interpret(rec.RawDate, referenceYear); ok {
		ev.Start, ev.End = &span.Start, &span.End
	}
	return ev, true
}

// idFromURL returns the last path segment of a detail-page URL.
func idFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// derivedID is used when a record has no URL to take an ID from.
func derivedID(parts ...string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "|"))).String()
}
