package refresh

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"danceimport/internal/calendar"
	appLog "danceimport/internal/log"
	"danceimport/internal/metrics"
	"danceimport/internal/model"
	"danceimport/internal/pipeline"
	"danceimport/internal/source"
)

// Format names how a retrieved payload is ingested.
type Format string

const (
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// Snapshot is the outcome of the latest successful run.
type Snapshot struct {
	Result      model.Result
	RefreshedAt time.Time
	Source      string
}

// Options wires a Runner. Source and Pipeline are required.
type Options struct {
	Source   source.Source
	Format   Format
	BaseURL  string
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics

	// ICSPath, when set, receives the upcoming events after every run.
	ICSPath string

	Now func() time.Time
}

// Runner executes refresh cycles and keeps the latest snapshot in memory.
// Runs are serialized; readers never block on a run in progress.
type Runner struct {
	src      source.Source
	format   Format
	baseURL  string
	pipe     *pipeline.Pipeline
	metrics  *metrics.Metrics
	icsPath  string
	now      func() time.Time
	runMu    sync.Mutex
	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewRunner(opts Options) (*Runner, error) {
	if opts.Source == nil {
		return nil, errors.New("refresh: source is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("refresh: pipeline is required")
	}
	switch opts.Format {
	case FormatJSON, FormatHTML:
	case "":
		opts.Format = FormatJSON
	default:
		return nil, fmt.Errorf("refresh: unknown format %q", opts.Format)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		src:     opts.Source,
		format:  opts.Format,
		baseURL: opts.BaseURL,
		pipe:    opts.Pipeline,
		metrics: opts.Metrics,
		icsPath: opts.ICSPath,
		now:     opts.Now,
	}, nil
}

// Metrics returns the collectors the runner records into.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Location is the zone the snapshot's "today" was evaluated in.
func (r *Runner) Location() *time.Location {
	return r.pipe.Location()
}

// Snapshot returns the latest successful result, if any.
func (r *Runner) Snapshot() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return Snapshot{}, false
	}
	return *r.snapshot, true
}

// Run retrieves, ingests and processes one batch. On failure the previous
// snapshot is kept.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	start := time.Now()
	appLog.Info("refresh start", "source", r.src.Describe(), "format", string(r.format))

	snap, err := r.run(ctx)
	took := time.Since(start)
	if err != nil {
		r.metrics.ObserveFailure(took)
		appLog.Error("refresh failed", err, "source", r.src.Describe(), "took", took.String())
		return Snapshot{}, err
	}

	r.mu.Lock()
	r.snapshot = &snap
	r.mu.Unlock()
	r.metrics.ObserveSuccess(snap.Result, took, snap.RefreshedAt)

	if r.icsPath != "" {
		if err := writeICSFile(r.icsPath, r.pipe.Linker(), snap); err != nil {
			appLog.Error("ics export failed", err, "path", r.icsPath)
		} else {
			appLog.Info("ics exported", "path", r.icsPath, "events", snap.Result.UpcomingCount)
		}
	}

	appLog.Info("refresh done",
		"upcoming", snap.Result.UpcomingCount,
		"past", snap.Result.PastCount,
		"dropped", snap.Result.DroppedCount,
		"took", took.String(),
	)
	return snap, nil
}

func (r *Runner) run(ctx context.Context) (Snapshot, error) {
	payload, err := r.src.Fetch(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("retrieve: %w", err)
	}
	records, err := Ingest(r.format, payload, r.baseURL)
	if err != nil {
		return Snapshot{}, fmt.Errorf("ingest: %w", err)
	}
	return Snapshot{
		Result:      r.pipe.Process(records),
		RefreshedAt: r.now(),
		Source:      r.src.Describe(),
	}, nil
}

// Ingest turns a retrieved payload into raw records. JSON payloads that
// cannot be decoded are an error; an HTML page without cards is an empty
// batch.
func Ingest(format Format, payload []byte, baseURL string) ([]model.RawEvent, error) {
	switch format {
	case FormatHTML:
		scraped := source.ExtractEvents(payload, baseURL)
		records := make([]model.RawEvent, 0, len(scraped))
		for _, rec := range scraped {
			records = append(records, rec)
		}
		return records, nil
	case FormatJSON, "":
		decoded, err := pipeline.DecodeDayRangeRecords(string(payload))
		if err != nil {
			return nil, err
		}
		records := make([]model.RawEvent, 0, len(decoded))
		for _, rec := range decoded {
			records = append(records, rec)
		}
		return records, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// writeICSFile replaces path atomically so readers never see a partial file.
func writeICSFile(path string, linker *calendar.Linker, snap Snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".danceimport-ics-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := linker.WriteICS(tmp, snap.Result.Upcoming, snap.RefreshedAt); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
