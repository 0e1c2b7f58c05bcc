// Command ingest fetches stadium articles by title and stores the derived records.
//
//	ingest [-file titles.json|titles.txt] [title ...]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stadiumhq/internal/app"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/ingest"
)

type options struct {
	configPath  string
	file        string
	workers     int
	progress    bool
	metricsAddr string
	titles      []string
}

func main() {
	var opts options
	initConfig := flag.Bool("init-config", false, "Generate default config file and exit")
	flag.StringVar(&opts.configPath, "config", app.DefaultConfigPath, "Path to the YAML config")
	flag.StringVar(&opts.file, "file", "", "JSON array or newline separated file of titles")
	flag.IntVar(&opts.workers, "workers", 0, "Concurrent titles (overrides ingest.workers)")
	flag.BoolVar(&opts.progress, "progress", false, "Show a progress bar on stderr")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	flag.Parse()
	opts.titles = flag.Args()

	if *initConfig {
		if err := config.GenerateDefault(opts.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", opts.configPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

// collectTitles merges the titles file and the positional arguments.
func collectTitles(opts options) ([]string, error) {
	var titles []string
	if opts.file != "" {
		fromFile, err := ingest.ReadTitles(opts.file)
		if err != nil {
			return nil, err
		}
		titles = append(titles, fromFile...)
	}
	titles = ingest.Dedupe(append(titles, opts.titles...))
	if len(titles) == 0 {
		return nil, ingest.ErrNoTitles
	}
	return titles, nil
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	titles, err := collectTitles(opts)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.workers > 0 {
		cfg.Ingest.Workers = opts.workers
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.StartMetrics(ctx, opts.metricsAddr)

	slog.Info("Ingesting titles", "count", len(titles), "workers", cfg.Ingest.Workers)
	bar := app.NewProgress(opts.progress, stderr, len(titles), "ingest")

	outcomes := a.Ingest.IngestTitles(ctx, titles, func(o ingest.Outcome) {
		fmt.Fprintln(stdout, outcomeLine(o))
		if bar != nil {
			_ = bar.Add(1)
		}
	})

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	slog.Info("Ingestion finished", "titles", len(outcomes), "ok", len(outcomes)-failed, "failed", failed)
	a.Tracker.LogSummary()

	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return nil
}

func outcomeLine(o ingest.Outcome) string {
	if o.OK() {
		return fmt.Sprintf("OK %s %s", o.Stadium.Name, o.Stadium.ID)
	}
	reason := o.Err
	var te *ingest.TitleError
	if errors.As(o.Err, &te) {
		reason = te.Err
	}
	return fmt.Sprintf("FAIL %s %v", o.Title, reason)
}
