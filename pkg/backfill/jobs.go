package backfill

import (
	"context"
	"fmt"

	"stadiumhq/pkg/model"
	"stadiumhq/pkg/store"
)

// Pipeline is the slice of the ingestion service the jobs re-run.
type Pipeline interface {
	FetchHistory(ctx context.Context, title string) (*string, error)
	ResolveEntityID(ctx context.Context, title, embedded string) (string, error)
	Locate(ctx context.Context, qid string) (*model.LocationUpdate, error)
}

// HistoryJob fills history_html from the rendered article.
type HistoryJob struct {
	pipeline Pipeline
	store    store.StadiumStore
}

func NewHistoryJob(p Pipeline, s store.StadiumStore) *HistoryJob {
	return &HistoryJob{pipeline: p, store: s}
}

func (j *HistoryJob) Name() string              { return "history" }
func (j *HistoryJob) Field() model.MissingField { return model.MissingHistory }

func (j *HistoryJob) Process(ctx context.Context, st *model.Stadium) error {
	html, err := j.pipeline.FetchHistory(ctx, st.DisplayTitle())
	if err != nil {
		return err
	}
	if html == nil {
		return fmt.Errorf("%w: no history section", ErrSkip)
	}
	if err := j.store.UpdateHistory(ctx, st.ID, *html); err != nil {
		return err
	}
	st.HistoryHTML = html
	return nil
}

// LocationJob fills coordinates and place fields from the entity graph.
type LocationJob struct {
	pipeline Pipeline
	store    store.StadiumStore
}

func NewLocationJob(p Pipeline, s store.StadiumStore) *LocationJob {
	return &LocationJob{pipeline: p, store: s}
}

func (j *LocationJob) Name() string              { return "location" }
func (j *LocationJob) Field() model.MissingField { return model.MissingLocation }

func (j *LocationJob) Process(ctx context.Context, st *model.Stadium) error {
	qid, err := j.pipeline.ResolveEntityID(ctx, st.DisplayTitle(), model.Deref(st.WikidataID))
	if err != nil {
		return err
	}
	if qid == "" {
		return fmt.Errorf("%w: no wikidata id", ErrSkip)
	}

	u, err := j.pipeline.Locate(ctx, qid)
	if err != nil {
		return err
	}
	if len(u.AdminPath) == 0 && u.Location == nil {
		return fmt.Errorf("%w: no location for %s", ErrSkip, qid)
	}
	if err := j.store.UpdateLocation(ctx, st.ID, u); err != nil {
		return err
	}
	u.Apply(st)
	return nil
}
