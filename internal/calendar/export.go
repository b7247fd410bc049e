package calendar

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"danceimport/internal/model"
)

const productID = "-//danceimport//dance events//EN"

// EventUID derives a stable iCalendar UID from the event ID.
func EventUID(ev model.NormalizedEvent) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ev.ID)).String() + "@danceimport"
}

// WriteICS writes events as a VCALENDAR. Events without both instants are
// skipped. stamp is used for DTSTAMP so output is reproducible. DESCRIPTION
// carries the same details text as the add-to-calendar link.
func (l *Linker) WriteICS(w io.Writer, events []model.NormalizedEvent, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("Dance events")

	for _, ev := range events {
		if !ev.HasInstants() {
			continue
		}
		ve := cal.AddEvent(EventUID(ev))
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.SourceURL != "" {
			ve.SetURL(ev.SourceURL)
			ve.SetDescription(l.detailsPrefix + ev.SourceURL)
		}
		if ev.AllDay {
			// DTEND is exclusive for DATE values.
			ve.SetAllDayStartAt(*ev.Start)
			ve.SetAllDayEndAt(ev.End.AddDate(0, 0, 1))
		} else {
			ve.SetStartAt(*ev.Start)
			ve.SetEndAt(*ev.End)
		}
		for _, c := range ev.Categories {
			ve.AddCategory(c)
		}
	}

	return cal.SerializeTo(w)
}
