package dates

import (
	"regexp"
	"strconv"
	"time"

	appLog "danceimport/internal/log"
)

const (
	DayLayout = "2006-01-02"

	NoDateLabel      = "Date not available"
	InvalidDateLabel = "Invalid date"
)

var dayPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ParseDay parses a strict "YYYY-MM-DD" string as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, bool) {
	if !dayPattern.MatchString(s) {
		appLog.Warn("invalid calendar day", "raw", s)
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DayLayout, s, loc)
	if err != nil {
		appLog.Warn("invalid calendar day", "raw", s, "reason", err.Error())
		return time.Time{}, false
	}
	return t, true
}

// FormatRange renders calendar days as a short label:
//
//	["2024-08-15"]               -> "Aug 15, 2024"
//	["2024-08-15", "2024-08-18"] -> "Aug 15 - 18, 2024"
//	["2024-12-28", "2025-01-02"] -> "Dec 28, 2024 - Jan 2, 2025"
//
// Days are parsed and printed in UTC, so the calendar day never shifts.
func FormatRange(days []string) string {
	if len(days) == 0 {
		return NoDateLabel
	}

	start, ok := ParseDay(days[0], time.UTC)
	if !ok {
		return InvalidDateLabel
	}
	end, ok := ParseDay(days[len(days)-1], time.UTC)
	if !ok || end.Equal(start) {
		return start.Format("Jan 2, 2006")
	}

	if start.Year() == end.Year() && start.Month() == end.Month() {
		return start.Format("Jan 2") + " - " + strconv.Itoa(end.Day()) + ", " + strconv.Itoa(end.Year())
	}

	startLabel := start.Format("Jan 2")
	if start.Year() != end.Year() {
		startLabel = start.Format("Jan 2, 2006")
	}
	return startLabel + " - " + end.Format("Jan 2, 2006")
}
