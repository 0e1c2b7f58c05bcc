// Command backfill fills missing history or location fields on stored stadiums.
//
//	backfill [flags] history|location [flags]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"stadiumhq/internal/app"
	"stadiumhq/pkg/backfill"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/model"
)

type options struct {
	configPath  string
	job         string
	batch       int
	fresh       bool
	progress    bool
	metricsAddr string
}

func main() {
	var opts options
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fs.StringVar(&opts.configPath, "config", app.DefaultConfigPath, "Path to the YAML config")
	fs.StringVar(&opts.job, "job", "", "Field to fill: history or location")
	fs.IntVar(&opts.batch, "batch", 0, "Records per page (overrides backfill.*_batch)")
	fs.BoolVar(&opts.fresh, "fresh", false, "Ignore a saved cursor and start from the first record")
	fs.BoolVar(&opts.progress, "progress", false, "Show a progress spinner on stderr")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	if err := parseArgs(fs, os.Args[1:], &opts); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "backfill: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs accepts the job name as -job or as the first positional argument,
// with flags on either side of it.
func parseArgs(fs *flag.FlagSet, args []string, opts *options) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		if opts.job == "" {
			opts.job = rest[0]
		}
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		if len(fs.Args()) > 0 {
			return fmt.Errorf("unexpected arguments %v", fs.Args())
		}
	}
	switch opts.job {
	case string(model.MissingHistory), string(model.MissingLocation):
		return nil
	case "":
		return fmt.Errorf("missing job: history or location")
	default:
		return fmt.Errorf("unknown job %q: must be history or location", opts.job)
	}
}

func run(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.StartMetrics(ctx, opts.metricsAddr)

	var job backfill.Job
	batch := opts.batch
	switch opts.job {
	case string(model.MissingHistory):
		job = backfill.NewHistoryJob(a.Ingest, a.Store)
		if batch <= 0 {
			batch = cfg.Backfill.HistoryBatch
		}
	default:
		job = backfill.NewLocationJob(a.Ingest, a.Store)
		if batch <= 0 {
			batch = cfg.Backfill.LocationBatch
		}
	}

	bar := app.NewProgress(opts.progress, stderr, -1, "backfill "+job.Name())
	runner := backfill.NewRunner(a.Store, job, a.Tracker, backfill.Options{
		Resume:        cfg.Backfill.Resume && !opts.fresh,
		RecordTimeout: cfg.Ingest.TitleTimeout.Std(),
		OnOutcome: func(o backfill.Outcome) {
			fmt.Fprintln(stdout, outcomeLine(o))
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})

	_, err = runner.Run(ctx, batch)
	if bar != nil {
		_ = bar.Finish()
	}
	a.Tracker.LogSummary()
	return err
}

func outcomeLine(o backfill.Outcome) string {
	name := o.Stadium.Name
	if name == "" {
		name = o.Stadium.DisplayTitle()
	}
	switch o.Status {
	case backfill.StatusOK:
		return fmt.Sprintf("OK %s", name)
	case backfill.StatusSkip:
		return fmt.Sprintf("SKIP %s %v", name, o.Err)
	default:
		return fmt.Sprintf("FAIL %s %v", name, o.Err)
	}
}
