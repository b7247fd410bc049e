package pipeline

import (
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"danceimport/internal/calendar"
	"danceimport/internal/classify"
	"danceimport/internal/dates"
	appLog "danceimport/internal/log"
	"danceimport/internal/model"
)

// Options configures a Pipeline. Zero values pick the built-in defaults.
type Options struct {
	// Location decides what "today" means and where calendar days start.
	Location *time.Location

	Zones dates.ZoneTable
	Rules []classify.Rule

	TemplateURL   string
	DetailsPrefix string

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	// Workers bounds parallel normalization; defaults to GOMAXPROCS.
	Workers int
}

// Pipeline filters, sorts and groups one batch of raw events.
type Pipeline struct {
	norm    *Normalizer
	loc     *time.Location
	now     func() time.Time
	workers int
}

func New(opts Options) (*Pipeline, error) {
	interp, err := dates.NewInterpreter(opts.Zones)
	if err != nil {
		return nil, err
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Pipeline{
		norm: NewNormalizer(
			interp,
			classify.New(opts.Rules),
			calendar.NewLinker(opts.TemplateURL, opts.DetailsPrefix),
			loc,
		),
		loc:     loc,
		now:     now,
		workers: workers,
	}, nil
}

// Linker is the link builder configured for this pipeline; exports reuse it
// so links and ICS descriptions agree.
func (p *Pipeline) Linker() *calendar.Linker {
	return p.norm.linker
}

// Location is the zone the pipeline evaluates "today" in.
func (p *Pipeline) Location() *time.Location {
	return p.loc
}

// Process normalizes records, drops past events, sorts the rest by start
// and groups them by category. An event is past when it has no end or its
// end is before the start of today.
func (p *Pipeline) Process(records []model.RawEvent) model.Result {
	now := p.now().In(p.loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.loc)

	normalized, dropped := p.normalizeAll(records, now.Year())

	result := model.Result{
		Categorized:  map[string][]model.NormalizedEvent{},
		Categories:   []string{},
		Upcoming:     []model.NormalizedEvent{},
		DroppedCount: dropped,
	}

	for _, ev := range normalized {
		if ev.IsPast(dayStart) {
			result.PastCount++
			continue
		}
		result.Upcoming = append(result.Upcoming, ev)
	}
	result.UpcomingCount = len(result.Upcoming)

	SortByStart(result.Upcoming)

	for _, ev := range result.Upcoming {
		for _, c := range ev.Categories {
			result.Categorized[c] = append(result.Categorized[c], ev)
		}
	}
	for c := range result.Categorized {
		result.Categories = append(result.Categories, c)
	}
	sort.Strings(result.Categories)

	appLog.Info("pipeline processed batch",
		"records", len(records),
		"upcoming", result.UpcomingCount,
		"past", result.PastCount,
		"dropped", result.DroppedCount,
		"categories", len(result.Categories),
	)
	return result
}

// normalizeAll fans records out to workers and collects results by input
// index, so the output order never depends on completion order.
func (p *Pipeline) normalizeAll(records []model.RawEvent, year int) ([]model.NormalizedEvent, int) {
	type slot struct {
		ev model.NormalizedEvent
		ok bool
	}
	slots := make([]slot, len(records))

	workers := p.workers
	if workers > len(records) {
		workers = len(records)
	}

	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				ev, ok := p.norm.Normalize(records[i], year)
				slots[i] = slot{ev: ev, ok: ok}
			}
		}()
	}
	for i := range records {
		idx <- i
	}
	close(idx)
	wg.Wait()

	out := make([]model.NormalizedEvent, 0, len(records))
	seen := make(map[string]int, len(records))
	dropped := 0
	for _, s := range slots {
		if !s.ok {
			dropped++
			continue
		}
		s.ev.ID = uniqueID(seen, s.ev.ID)
		out = append(out, s.ev)
	}
	return out, dropped
}

// uniqueID suffixes repeated IDs with -2, -3, ... in first-seen order.
func uniqueID(seen map[string]int, id string) string {
	seen[id]++
	n := seen[id]
	if n == 1 {
		return id
	}
	candidate := id + "-" + strconv.Itoa(n)
	for seen[candidate] > 0 {
		n++
		candidate = id + "-" + strconv.Itoa(n)
	}
	seen[id] = n
	seen[candidate] = 1
	return candidate
}

// SortByStart orders events by start, earliest first. Events without a
// start go last and keep their relative order.
func SortByStart(events []model.NormalizedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i].Start, events[j].Start
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
}
