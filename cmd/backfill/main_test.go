package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"stadiumhq/pkg/backfill"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantJob   string
		wantBatch int
		wantErr   bool
	}{
		{"Positional", []string{"history"}, "history", 0, false},
		{"Flags After Job", []string{"location", "-batch", "10"}, "location", 10, false},
		{"Flags Before Job", []string{"-batch", "5", "history"}, "history", 5, false},
		{"Job Flag", []string{"-job", "location"}, "location", 0, false},
		{"Missing Job", []string{}, "", 0, true},
		{"Unknown Job", []string{"images"}, "", 0, true},
		{"Extra Args", []string{"history", "now"}, "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts options
			fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			fs.StringVar(&opts.job, "job", "", "")
			fs.IntVar(&opts.batch, "batch", 0, "")

			err := parseArgs(fs, tt.args, &opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJob, opts.job)
			assert.Equal(t, tt.wantBatch, opts.batch)
		})
	}
}

func TestOutcomeLine(t *testing.T) {
	st := &model.Stadium{ID: "0190", Name: "Anfield"}
	tests := []struct {
		o    backfill.Outcome
		want string
	}{
		{backfill.Outcome{Stadium: st, Status: backfill.StatusOK}, "OK Anfield"},
		{backfill.Outcome{Stadium: st, Status: backfill.StatusSkip, Err: fmt.Errorf("%w: no history section", backfill.ErrSkip)}, "SKIP Anfield nothing found: no history section"},
		{backfill.Outcome{Stadium: st, Status: backfill.StatusFailed, Err: errors.New("boom")}, "FAIL Anfield boom"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcomeLine(tt.o))
	}
}

func TestRun_EmptyStore(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DB.Path = filepath.Join(dir, "stadiumhq.db")
	cfg.Cache.Backend = "none"
	cfg.Log.Server.Path = filepath.Join(dir, "logs", "stadiumhq.log")
	cfg.Log.Requests.Path = filepath.Join(dir, "logs", "requests.log")
	path := filepath.Join(dir, "stadiumhq.yaml")
	require.NoError(t, config.Save(path, cfg))

	for _, job := range []string{"history", "location"} {
		var stdout, stderr bytes.Buffer
		err := run(context.Background(), options{configPath: path, job: job}, &stdout, &stderr)
		require.NoError(t, err)
		assert.Empty(t, strings.TrimSpace(stdout.String()))
	}
}
