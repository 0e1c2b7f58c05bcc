package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"stadiumhq/pkg/ingest"
	"stadiumhq/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectTitles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "titles.json")
	require.NoError(t, os.WriteFile(file, []byte(`["Anfield", "Camp Nou"]`), 0o644))

	tests := []struct {
		name    string
		opts    options
		want    []string
		wantErr error
	}{
		{"Args Only", options{titles: []string{"Anfield", " Anfield "}}, []string{"Anfield"}, nil},
		{"File And Args", options{file: file, titles: []string{"Wembley Stadium", "Camp Nou"}}, []string{"Anfield", "Camp Nou", "Wembley Stadium"}, nil},
		{"Nothing", options{}, nil, ingest.ErrNoTitles},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectTitles(tt.opts)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_NoTitles(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), options{configPath: filepath.Join(t.TempDir(), "c.yaml")}, &stdout, &stderr)
	assert.ErrorIs(t, err, ingest.ErrNoTitles)
	assert.Empty(t, stdout.String())
}

func TestOutcomeLine(t *testing.T) {
	ok := ingest.Outcome{Title: "Anfield", Stadium: &model.Stadium{ID: "0190", Name: "Anfield"}}
	assert.Equal(t, "OK Anfield 0190", outcomeLine(ok))

	failed := ingest.Outcome{
		Title: "Broken Ground",
		Err:   &ingest.TitleError{Title: "Broken Ground", Err: errors.New("summary: 503 Service Unavailable")},
	}
	assert.Equal(t, "FAIL Broken Ground summary: 503 Service Unavailable", outcomeLine(failed))
}
