package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"danceimport/internal/config"
	appLog "danceimport/internal/log"
	"danceimport/internal/metrics"
	"danceimport/internal/pipeline"
	"danceimport/internal/refresh"
	"danceimport/internal/source"
	"danceimport/internal/web"
)

const version = "0.3.0"

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	input      string
	format     string
	icsPath    string
	once       bool
}

func main() {
	flags := parseFlags()
	if err := run(flags); err != nil {
		appLog.Error("danceimport failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	appLog.Info("danceimport starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	applyOverrides(conf, flags)
	if err := conf.Validate(); err != nil {
		return err
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Warn("unknown log level; keeping info", "log_level", conf.LogLevel)
		level = appLog.LevelInfo
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"source_kind", conf.Source.Kind,
		"source_format", conf.Source.Format,
		"ics_path", conf.Calendar.ICSPath,
		"categories", len(conf.Categories),
		"once", flags.once,
	)

	runner, err := buildRunner(conf)
	if err != nil {
		return err
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if flags.once {
		snap, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		printSummary(os.Stdout, snap, runner.Location())
		return nil
	}

	// A failed first refresh is not fatal: the API answers 503 until the
	// schedule or POST /api/refresh succeeds.
	if _, err := runner.Run(ctx); err != nil {
		appLog.Warn("initial refresh failed; waiting for schedule", "error", err.Error())
	}

	sched, err := refresh.NewScheduler(ctx, conf.RefreshCron, runner.Location(), runner)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	srv := web.NewServer(conf, runner, runner.Metrics().Handler())
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	appLog.Info("danceimport exiting")
	return nil
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./danceimport.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.input, "input", "", "Read the payload from this file instead of the configured source")
	flag.StringVar(&cfg.format, "format", "", "Payload format: json or html (overrides config if set)")
	flag.StringVar(&cfg.icsPath, "ics", "", "Write upcoming events as ICS to this path after each refresh")
	flag.BoolVar(&cfg.once, "once", false, "Run one refresh, print a summary and exit")

	flag.Parse()

	return cfg
}

func applyOverrides(conf *config.Config, flags flagConfig) {
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.input != "" {
		conf.Source.Kind = string(source.KindFile)
		conf.Source.Path = flags.input
	}
	if flags.format != "" {
		conf.Source.Format = flags.format
	}
	if flags.icsPath != "" {
		conf.Calendar.ICSPath = flags.icsPath
	}
	conf.Normalize()
}

func buildRunner(conf *config.Config) (*refresh.Runner, error) {
	loc, err := conf.Location()
	if err != nil {
		return nil, err
	}

	pipe, err := pipeline.New(pipeline.Options{
		Location:      loc,
		Zones:         conf.Timezones,
		Rules:         conf.Categories,
		TemplateURL:   conf.Calendar.TemplateURL,
		DetailsPrefix: conf.Calendar.DetailsPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	src, err := source.New(source.Options{
		Kind:         source.Kind(conf.Source.Kind),
		Path:         conf.Source.Path,
		URL:          conf.Source.URL,
		CacheDir:     conf.Source.CacheDir,
		WaitSelector: conf.Source.WaitSelector,
		Timeout:      conf.Source.Timeout(),
	})
	if err != nil {
		return nil, err
	}

	return refresh.NewRunner(refresh.Options{
		Source:   src,
		Format:   refresh.Format(conf.Source.Format),
		BaseURL:  conf.Source.BaseURL,
		Pipeline: pipe,
		Metrics:  metrics.New(),
		ICSPath:  conf.Calendar.ICSPath,
	})
}

// printSummary writes a plain-text overview of the snapshot, one block per
// category.
func printSummary(w io.Writer, snap refresh.Snapshot, loc *time.Location) {
	res := snap.Result
	fmt.Fprintf(w, "%d upcoming, %d past, %d dropped (refreshed %s)\n",
		res.UpcomingCount, res.PastCount, res.DroppedCount, snap.RefreshedAt.In(loc).Format(time.RFC1123))

	for _, label := range res.Categories {
		events := res.Categorized[label]
		fmt.Fprintf(w, "\n%s (%d)\n", label, len(events))
		for _, ev := range events {
			fmt.Fprintf(w, "  %-28s %s", ev.DateLabel, ev.Title)
			if ev.Location != "" {
				fmt.Fprintf(w, " @ %s", ev.Location)
			}
			fmt.Fprintln(w)
			if ev.CalendarLink != "" {
				fmt.Fprintf(w, "  %-28s %s\n", "", ev.CalendarLink)
			}
		}
	}
	if len(res.Categories) == 0 {
		fmt.Fprintln(w, "no upcoming events")
	}
}
