package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"stadiumhq/pkg/model"

	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one title in a batch.
type Outcome struct {
	Title   string
	Stadium *model.Stadium
	Err     error
}

// OK reports whether the title was stored.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Stadium != nil
}

// IngestTitles ingests every distinct title with at most cfg.Workers in flight.
// Outcomes are returned in input order; a failed title never stops the others.
// onDone, when non-nil, is called as each title finishes.
func (s *Service) IngestTitles(ctx context.Context, titles []string, onDone func(Outcome)) []Outcome {
	titles = Dedupe(titles)
	outcomes := make([]Outcome, len(titles))

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)

	for i, title := range titles {
		g.Go(func() error {
			o := Outcome{Title: title}
			if err := ctx.Err(); err != nil {
				o.Err = &TitleError{Title: title, Err: err}
			} else {
				o.Stadium, o.Err = s.IngestOne(ctx, title)
			}
			outcomes[i] = o

			if s.tracker != nil {
				if o.Err != nil {
					s.tracker.TrackItem("ingest", "failed")
				} else {
					s.tracker.TrackItem("ingest", "ok")
				}
			}
			if o.Err != nil {
				s.logger.Warn("Ingestion failed", "title", title, "error", o.Err)
			}
			if onDone != nil {
				onDone(o)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Dedupe trims titles and drops blanks and repeats, keeping first-seen order.
func Dedupe(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	out := make([]string, 0, len(titles))
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ReadTitles loads titles from a JSON array or a newline separated file.
func ReadTitles(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read titles file: %w", err)
	}
	return ParseTitles(data)
}

// ParseTitles accepts a JSON array or one title per line. Array items that are
// not strings are converted to text: numbers and booleans as written, nested
// values as their JSON, nulls dropped. Input that is not a JSON array is read
// line by line, even when it starts with "[".
func ParseTitles(data []byte) ([]string, error) {
	titles, ok := jsonTitles(data)
	if !ok {
		titles = strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	titles = Dedupe(titles)
	if len(titles) == 0 {
		return nil, ErrNoTitles
	}
	return titles, nil
}

func jsonTitles(data []byte) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil || items == nil {
		return nil, false
	}

	titles := make([]string, 0, len(items))
	for _, raw := range items {
		d := json.NewDecoder(bytes.NewReader(raw))
		d.UseNumber()
		var v any
		if err := d.Decode(&v); err != nil {
			return nil, false
		}
		switch x := v.(type) {
		case nil:
		case string:
			titles = append(titles, x)
		case json.Number:
			titles = append(titles, x.String())
		case bool:
			titles = append(titles, strconv.FormatBool(x))
		default:
			titles = append(titles, string(raw))
		}
	}
	return titles, true
}
