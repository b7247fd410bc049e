package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// Embedded zone database so the abbreviation table resolves on hosts
	// without /usr/share/zoneinfo.
	_ "time/tzdata"

	appLog "danceimport/internal/log"
)

// ZoneTable maps a US timezone abbreviation to an IANA zone name.
type ZoneTable map[string]string

// DefaultZones returns a fresh copy of the built-in abbreviation table.
func DefaultZones() ZoneTable {
	return ZoneTable{
		"PDT": "America/Los_Angeles",
		"PST": "America/Los_Angeles",
		"EDT": "America/New_York",
		"EST": "America/New_York",
		"CDT": "America/Chicago",
		"CST": "America/Chicago",
		"MDT": "America/Denver",
		"MST": "America/Denver",
	}
}

// Span is an interpreted start/end pair in absolute time.
type Span struct {
	Start time.Time
	End   time.Time
}

// defaultDuration is used when a listing only gives a start time.
const defaultDuration = 2 * time.Hour

// dateTimePattern matches e.g.
//
//	Sat, Aug 17, 7:00 PM - 11:00 PM PDT
//	Aug 17 7:00 PM EST
//	Aug 17
//
// Groups: weekday, month, day, start time, end time, zone abbreviation.
var dateTimePattern = regexp.MustCompile(
	`\b(?:([A-Za-z]{3}),\s*)?([A-Za-z]{3})\s+(\d{1,2})\b` +
		`(?:,?\s*(\d{1,2}:\d{2}\s*[AaPp][Mm]))?` +
		`(?:\s*-\s*(\d{1,2}:\d{2}\s*[AaPp][Mm]))?` +
		`(?:\s+([A-Z]{3})\b)?`,
)

var (
	clockPattern    = regexp.MustCompile(`\d{1,2}:\d{2}\s*[AaPp][Mm]`)
	zoneWordPattern = regexp.MustCompile(`\b[A-Z]{3}\b`)
)

// Interpreter turns free-text listing dates into absolute instants.
// It is safe for concurrent use; its zone table is fixed at construction.
type Interpreter struct {
	zones map[string]*time.Location
}

// NewInterpreter resolves every zone in the table up front. A nil table
// means DefaultZones.
func NewInterpreter(table ZoneTable) (*Interpreter, error) {
	if table == nil {
		table = DefaultZones()
	}
	zones := make(map[string]*time.Location, len(table))
	for abbr, name := range table {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("timezone %s: %w", abbr, err)
		}
		zones[strings.ToUpper(strings.TrimSpace(abbr))] = loc
	}
	return &Interpreter{zones: zones}, nil
}

// Interpret parses text such as "Sat, Aug 17, 7:00 PM - 11:00 PM PDT" using
// referenceYear as the year. It never fails loudly: anything it cannot make
// sense of yields false and a warning in the log.
//
// The reference year is always used as-is. A December listing read in
// January for an event "Jan 5" lands in the wrong year; callers that need
// rollover must pass the right year themselves.
func (in *Interpreter) Interpret(text string, referenceYear int) (Span, bool) {
	span, err := in.interpret(text, referenceYear)
	if err != nil {
		appLog.Warn("date interpret failed", "raw", text, "year", referenceYear, "reason", err.Error())
		return Span{}, false
	}
	return span, true
}

// interpret uses the first candidate whose month and day form a real date,
// so words like "Gym 2" before the listing date are skipped. A time or zone
// left over after that candidate means the text was not understood.
func (in *Interpreter) interpret(text string, year int) (Span, error) {
	err := errors.New("no date token")
	for _, idx := range dateTimePattern.FindAllStringSubmatchIndex(text, -1) {
		g := groups(text, idx)
		month, day, dateErr := calendarDate(g[2], g[3], year)
		if dateErr != nil {
			err = dateErr
			continue
		}
		if rest := text[idx[1]:]; in.hasLooseTimeOrZone(rest) {
			return Span{}, fmt.Errorf("unconsumed time or zone in %q", rest)
		}
		return in.span(year, month, day, g[4], g[5], g[6])
	}
	return Span{}, err
}

// groups returns submatch strings for one FindAllStringSubmatchIndex entry.
func groups(text string, idx []int) []string {
	out := make([]string, len(idx)/2)
	for i := range out {
		if lo := idx[2*i]; lo >= 0 {
			out[i] = text[lo:idx[2*i+1]]
		}
	}
	return out
}

func calendarDate(monthTok, dayTok string, year int) (time.Month, int, error) {
	month, err := parseMonth(monthTok)
	if err != nil {
		return 0, 0, err
	}
	day, err := strconv.Atoi(dayTok)
	if err != nil {
		return 0, 0, err
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return 0, 0, fmt.Errorf("day %d out of range for %s %d", day, month, year)
	}
	return month, day, nil
}

func (in *Interpreter) hasLooseTimeOrZone(rest string) bool {
	if clockPattern.MatchString(rest) {
		return true
	}
	for _, w := range zoneWordPattern.FindAllString(rest, -1) {
		if _, ok := in.zones[w]; ok {
			return true
		}
	}
	return false
}

func (in *Interpreter) span(year int, month time.Month, day int, startTok, endTok, zoneTok string) (Span, error) {
	loc := in.zoneFor(zoneTok)

	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if startTok != "" {
		h, min, err := parseClock(startTok)
		if err != nil {
			return Span{}, err
		}
		start = time.Date(year, month, day, h, min, 0, 0, loc)
	}

	var end time.Time
	switch {
	case endTok != "":
		h, min, err := parseClock(endTok)
		if err != nil {
			return Span{}, err
		}
		end = time.Date(year, month, day, h, min, 0, 0, loc)
	case startTok != "":
		end = start.Add(defaultDuration)
	default:
		end = time.Date(year, month, day, 23, 59, 0, 0, loc)
	}

	if end.Before(start) {
		return Span{}, fmt.Errorf("end %s before start %s", endTok, startTok)
	}

	return Span{Start: start.UTC(), End: end.UTC()}, nil
}

// zoneFor falls back to UTC for unknown or missing abbreviations.
func (in *Interpreter) zoneFor(abbr string) *time.Location {
	if loc, ok := in.zones[abbr]; ok {
		return loc
	}
	return time.UTC
}

func parseMonth(tok string) (time.Month, error) {
	if len(tok) != 3 {
		return 0, fmt.Errorf("bad month %q", tok)
	}
	norm := strings.ToUpper(tok[:1]) + strings.ToLower(tok[1:])
	t, err := time.Parse("Jan", norm)
	if err != nil {
		return 0, fmt.Errorf("bad month %q", tok)
	}
	return t.Month(), nil
}

// parseClock reads "7:00 PM" / "7:00pm" into 24h hour and minute.
func parseClock(tok string) (int, int, error) {
	norm := strings.ToUpper(strings.Join(strings.Fields(tok), ""))
	t, err := time.Parse("3:04PM", norm)
	if err != nil {
		return 0, 0, fmt.Errorf("bad time %q", tok)
	}
	return t.Hour(), t.Minute(), nil
}
