package pipeline

import (
	"reflect"
	"testing"
	"time"

	"danceimport/internal/model"
)

func laZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func newTestPipeline(t *testing.T, now time.Time, workers int) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Location: laZone(t),
		Now:      func() time.Time { return now },
		Workers:  workers,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func batch() []model.RawEvent {
	return []model.RawEvent{
		model.DayRangeRecord{
			Title:    "Salsa & Bachata Weekender",
			Dates:    []string{"2024-08-15", "2024-08-18"},
			Location: "Orlando, FL",
			URL:      "https://www.danceplace.com/events/sb-weekender",
		},
		model.DayRangeRecord{
			Title: "Zouk Congress",
			Dates: []string{"2024-08-10", "2024-08-12"},
			URL:   "https://www.danceplace.com/events/zouk-congress",
		},
		model.ScrapedRecord{
			Title:    "WCS Social",
			Location: "Seattle, WA",
			RawDate:  "Sat, Aug 17, 7:00 PM - 11:00 PM PDT",
			EventURL: "https://www.danceplace.com/events/wcs-social",
			ID:       "wcs-social",
		},
		model.DayRangeRecord{
			Title:  "Kizomba Night",
			Dates:  []string{"2024-08-16"},
			Styles: []string{"Kizomba", "Semba"},
			URL:    "https://www.danceplace.com/events/kizomba-night",
		},
		model.ScrapedRecord{
			Title:    "TBD Party",
			RawDate:  "TBD",
			EventURL: "https://www.danceplace.com/events/tbd-party",
		},
		model.ScrapedRecord{
			Title:    "",
			RawDate:  "Aug 20",
			EventURL: "https://www.danceplace.com/events/nameless",
		},
		model.DayRangeRecord{
			Title: "Fusion Blues",
			Dates: []string{"2024-09-01", "2024-08-30"},
		},
	}
}

func ids(events []model.NormalizedEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

func TestProcess(t *testing.T) {
	now := time.Date(2024, 8, 16, 12, 0, 0, 0, laZone(t))
	res := newTestPipeline(t, now, 0).Process(batch())

	if res.UpcomingCount != 3 || res.PastCount != 3 || res.DroppedCount != 1 {
		t.Fatalf("counts upcoming=%d past=%d dropped=%d, want 3/3/1",
			res.UpcomingCount, res.PastCount, res.DroppedCount)
	}

	wantOrder := []string{"sb-weekender", "kizomba-night", "wcs-social"}
	if got := ids(res.Upcoming); !reflect.DeepEqual(got, wantOrder) {
		t.Errorf("upcoming order = %v, want %v", got, wantOrder)
	}

	wantCategories := []string{"Bachata", "Kizomba", "Salsa", "Semba", "West Coast Swing"}
	if !reflect.DeepEqual(res.Categories, wantCategories) {
		t.Errorf("categories = %v, want %v", res.Categories, wantCategories)
	}
	wantBuckets := map[string][]string{
		"Bachata":          {"sb-weekender"},
		"Kizomba":          {"kizomba-night"},
		"Salsa":            {"sb-weekender"},
		"Semba":            {"kizomba-night"},
		"West Coast Swing": {"wcs-social"},
	}
	if len(res.Categorized) != len(wantBuckets) {
		t.Errorf("got %d buckets, want %d", len(res.Categorized), len(wantBuckets))
	}
	for c, want := range wantBuckets {
		if got := ids(res.Categorized[c]); !reflect.DeepEqual(got, want) {
			t.Errorf("bucket %s = %v, want %v", c, got, want)
		}
	}

	wcs := res.Categorized["West Coast Swing"][0]
	la := laZone(t)
	if !wcs.Start.Equal(time.Date(2024, 8, 17, 19, 0, 0, 0, la)) || !wcs.End.Equal(time.Date(2024, 8, 17, 23, 0, 0, 0, la)) {
		t.Errorf("wcs instants = %s - %s", wcs.Start, wcs.End)
	}
	if wcs.DateLabel != "Sat, Aug 17, 7:00 PM - 11:00 PM PDT" {
		t.Errorf("wcs label = %q", wcs.DateLabel)
	}

	weekender := res.Categorized["Salsa"][0]
	if weekender.DateLabel != "Aug 15 - 18, 2024" {
		t.Errorf("weekender label = %q", weekender.DateLabel)
	}
	if !weekender.AllDay || weekender.CalendarLink == "" {
		t.Errorf("weekender should be an all-day event with a link: %+v", weekender)
	}
}

func TestProcessEventEndingTodayIsUpcoming(t *testing.T) {
	la := laZone(t)
	// Late evening: the one-day event is still "today" locally even though
	// it is already tomorrow in UTC.
	now := time.Date(2024, 8, 16, 23, 30, 0, 0, la)
	res := newTestPipeline(t, now, 1).Process([]model.RawEvent{
		model.DayRangeRecord{Title: "Today", Dates: []string{"2024-08-16"}, Styles: []string{}},
		model.DayRangeRecord{Title: "Yesterday", Dates: []string{"2024-08-15"}},
	})
	if res.UpcomingCount != 1 || res.PastCount != 1 {
		t.Fatalf("upcoming=%d past=%d, want 1/1", res.UpcomingCount, res.PastCount)
	}
	if got := res.Upcoming[0].Categories; !reflect.DeepEqual(got, []string{model.Uncategorized}) {
		t.Errorf("empty supplied styles should yield Uncategorized, got %v", got)
	}
}

func TestProcessEmptyBatch(t *testing.T) {
	res := newTestPipeline(t, time.Now(), 0).Process(nil)
	if res.Categorized == nil || len(res.Categorized) != 0 {
		t.Errorf("categorized = %#v, want empty map", res.Categorized)
	}
	if res.UpcomingCount != 0 || res.PastCount != 0 || res.DroppedCount != 0 {
		t.Errorf("counts = %d/%d/%d, want zeros", res.UpcomingCount, res.PastCount, res.DroppedCount)
	}
	if len(res.Categories) != 0 {
		t.Errorf("categories = %v", res.Categories)
	}
}

func TestProcessUnparseableDateCountsAsPast(t *testing.T) {
	res := newTestPipeline(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 0).Process([]model.RawEvent{
		model.ScrapedRecord{Title: "Mystery", RawDate: "TBD", EventURL: "https://www.danceplace.com/events/mystery"},
	})
	if res.PastCount != 1 || res.UpcomingCount != 0 {
		t.Errorf("past=%d upcoming=%d, want 1/0", res.PastCount, res.UpcomingCount)
	}
}

func TestProcessIsIndependentOfWorkerCount(t *testing.T) {
	loc := laZone(t)
	now := time.Date(2024, 8, 1, 9, 0, 0, 0, loc)
	var records []model.RawEvent
	for i := 0; i < 50; i++ {
		records = append(records, batch()...)
	}

	build := func(workers int) *Pipeline {
		p, err := New(Options{Location: loc, Now: func() time.Time { return now }, Workers: workers})
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	serial := build(1).Process(records)
	parallel := build(8).Process(records)
	if !reflect.DeepEqual(serial, parallel) {
		t.Fatal("parallel normalization changed the result")
	}
}

func TestProcessMakesIDsUnique(t *testing.T) {
	now := time.Date(2024, 8, 1, 9, 0, 0, 0, laZone(t))
	rec := model.DayRangeRecord{Title: "Salsa", Dates: []string{"2024-08-20"}, URL: "https://x.test/events/same"}
	res := newTestPipeline(t, now, 0).Process([]model.RawEvent{rec, rec, rec})

	want := []string{"same", "same-2", "same-3"}
	if got := ids(res.Upcoming); !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

func TestUniqueIDAvoidsExistingSuffix(t *testing.T) {
	seen := map[string]int{}
	got := []string{
		uniqueID(seen, "a"),
		uniqueID(seen, "a-2"),
		uniqueID(seen, "a"),
		uniqueID(seen, "a"),
	}
	want := []string{"a", "a-2", "a-3", "a-4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSortByStart(t *testing.T) {
	t1 := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	events := []model.NormalizedEvent{
		{ID: "none-1"},
		{ID: "late", Start: &t2},
		{ID: "none-2"},
		{ID: "early", Start: &t1},
		{ID: "early-tie", Start: &t1},
	}
	SortByStart(events)

	want := []string{"early", "early-tie", "late", "none-1", "none-2"}
	if got := ids(events); !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
