package calendar

import (
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "danceimport/internal/log"
	"danceimport/internal/model"
)

// maxAgendaDaysPerEvent caps how many days a single all-day event may occupy
// in an agenda, so a bogus year-long range cannot flood the view.
const maxAgendaDaysPerEvent = 60

// AgendaEntry is one event on one day of the agenda.
type AgendaEntry struct {
	// Day is local midnight of the agenda day.
	Day   time.Time
	Event model.NormalizedEvent
	// DayIndex is 1-based within a multi-day event; DayCount is its length.
	DayIndex int
	DayCount int
}

// ExpandAgenda lays events out per day within [from, to]. Multi-day all-day
// events get one entry per day they cover; timed events get a single entry
// on the day they start. Events without instants are skipped.
func ExpandAgenda(events []model.NormalizedEvent, from, to time.Time, loc *time.Location) []AgendaEntry {
	if loc == nil {
		loc = time.Local
	}
	from = startOfDay(from.In(loc))
	to = to.In(loc)

	entries := make([]AgendaEntry, 0, len(events))
	for _, ev := range events {
		if !ev.HasInstants() {
			continue
		}
		if ev.AllDay {
			entries = append(entries, expandAllDay(ev, from, to, loc)...)
			continue
		}
		if ev.End.Before(from) || ev.Start.After(to) {
			continue
		}
		entries = append(entries, AgendaEntry{
			Day:      startOfDay(ev.Start.In(loc)),
			Event:    ev,
			DayIndex: 1,
			DayCount: 1,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Day.Equal(b.Day) {
			return a.Day.Before(b.Day)
		}
		if !a.Event.Start.Equal(*b.Event.Start) {
			return a.Event.Start.Before(*b.Event.Start)
		}
		return a.Event.Title < b.Event.Title
	})
	return entries
}

func expandAllDay(ev model.NormalizedEvent, from, to time.Time, loc *time.Location) []AgendaEntry {
	first := startOfDay(ev.Start.In(loc))
	last := startOfDay(ev.End.In(loc))

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
		Count:   maxAgendaDaysPerEvent,
	})
	if err != nil {
		appLog.Error("agenda: failed to build daily rule", err, "id", ev.ID)
		return nil
	}

	all := r.All()
	total := len(all)
	var out []AgendaEntry
	for i, day := range all {
		if day.Before(from) || day.After(to) {
			continue
		}
		out = append(out, AgendaEntry{
			Day:      day,
			Event:    ev,
			DayIndex: i + 1,
			DayCount: total,
		})
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
