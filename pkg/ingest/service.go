package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"stadiumhq/pkg/articleproc"
	"stadiumhq/pkg/config"
	"stadiumhq/pkg/model"
	"stadiumhq/pkg/place"
	"stadiumhq/pkg/request"
	"stadiumhq/pkg/store"
	"stadiumhq/pkg/tracker"
	"stadiumhq/pkg/wikidata"
	"stadiumhq/pkg/wikipedia"
)

const wikiBaseURL = "https://en.wikipedia.org/wiki/"

// Service turns article titles into stored stadium records.
type Service struct {
	cfg      config.IngestConfig
	articles ArticleSource
	entities wikidata.EntityFetcher
	resolver *wikidata.Resolver
	store    store.StadiumStore
	tracker  *tracker.Tracker
	logger   *slog.Logger

	locks keyedMutex
}

// NewService wires the pipeline. A nil tracker disables item counting.
func NewService(cfg config.IngestConfig, a ArticleSource, e wikidata.EntityFetcher, s store.StadiumStore, t *tracker.Tracker) *Service {
	if cfg.MaxDepth < 1 {
		cfg.MaxDepth = config.DefaultConfig().Ingest.MaxDepth
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Service{
		cfg:      cfg,
		articles: a,
		entities: e,
		resolver: wikidata.NewResolver(e, cfg.MaxDepth),
		store:    s,
		tracker:  t,
		logger:   slog.With("component", "ingest"),
		locks:    keyedMutex{held: make(map[string]*lockEntry)},
	}
}

// WithTimeout bounds ctx by the configured per-title timeout.
func (s *Service) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := s.cfg.TitleTimeout.Std(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// IngestOne fetches, derives and upserts the stadium behind title.
// Upstream responses are always fetched fresh; the cache is only refreshed.
// Failures are returned as *TitleError.
func (s *Service) IngestOne(ctx context.Context, title string) (*model.Stadium, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, &TitleError{Title: title, Err: ErrEmptyTitle}
	}

	ctx, cancel := s.WithTimeout(request.WithRefresh(ctx))
	defer cancel()

	st, err := s.ingest(ctx, title)
	if err != nil {
		return nil, &TitleError{Title: title, Err: err}
	}
	return st, nil
}

func (s *Service) ingest(ctx context.Context, title string) (*model.Stadium, error) {
	// 1. Summary, following redirects
	sum, err := s.articles.GetSummary(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	canonical := sum.Title

	// 2. Entity id
	qid, err := s.ResolveEntityID(ctx, canonical, sum.WikidataID)
	if err != nil {
		return nil, fmt.Errorf("entity id: %w", err)
	}

	// 3-4. History
	history, err := s.FetchHistory(ctx, canonical)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	// 5-7. Coordinates and place fields
	loc, err := s.Locate(ctx, qid)
	if err != nil {
		return nil, fmt.Errorf("location: %w", err)
	}

	st := &model.Stadium{
		Name:           canonical,
		WikiTitle:      canonical,
		WikiURL:        sum.PageURL,
		WikiImage:      model.Ptr(sum.ImageURL),
		Description:    model.Ptr(sum.Description),
		HistorySummary: model.Ptr(sum.Extract),
		HistoryHTML:    history,
	}
	if st.WikiURL == "" {
		st.WikiURL = wikiBaseURL + wikipedia.EncodeTitle(canonical)
	}
	if st.WikiImage == nil {
		st.WikiImage = s.pageImage(ctx, canonical)
	}
	loc.Apply(st)

	// 8. Upsert, one writer per canonical title
	unlock := s.locks.Lock(canonical)
	defer unlock()

	saved, err := s.store.UpsertStadium(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("upsert: %w", err)
	}
	s.logger.Debug("Ingested stadium", "title", canonical, "id", saved.ID, "qid", qid, "admin_path", saved.AdminPath)
	return saved, nil
}

// ResolveEntityID prefers the id embedded in the summary and falls back to the
// page properties lookup. An empty result means the page has no linked entity.
func (s *Service) ResolveEntityID(ctx context.Context, title, embedded string) (string, error) {
	if wikidata.ValidID(embedded) {
		return embedded, nil
	}
	qid, err := s.articles.GetWikibaseItem(ctx, title)
	if err != nil {
		return "", err
	}
	if !wikidata.ValidID(qid) {
		return "", nil
	}
	return qid, nil
}

// FetchHistory downloads the rendered article and extracts its history section.
// A nil result means the article has none.
func (s *Service) FetchHistory(ctx context.Context, title string) (*string, error) {
	body, err := s.articles.GetArticleHTML(ctx, title)
	if err != nil {
		return nil, err
	}
	return articleproc.PickHistoryHTML(bytes.NewReader(body))
}

// Locate reads the coordinates and administrative chain of qid and derives the
// place fields. An empty qid, or one that no longer exists, yields an update
// with every location field absent.
func (s *Service) Locate(ctx context.Context, qid string) (*model.LocationUpdate, error) {
	u := &model.LocationUpdate{WikidataID: model.Ptr(qid)}
	path := []string{}

	if qid != "" {
		m, err := s.entities.GetEntities(ctx, []string{qid})
		if err != nil {
			return nil, err
		}
		if e, ok := m[qid]; ok {
			if p, ok := e.Coordinate(); ok {
				u.Location = p
			}
			if path, err = s.resolver.Walk(ctx, e); err != nil {
				return nil, err
			}
		} else {
			s.logger.Warn("Entity not found", "qid", qid)
		}
	}

	loc := place.Build(path)
	u.Locality = loc.Locality
	u.Borough = loc.Borough
	u.City = loc.City
	u.MetroArea = loc.MetroArea
	u.Region = loc.Region
	u.Country = loc.Country
	u.CountryCode = loc.CountryCode
	u.AdminPath = loc.Path
	u.LocationTokens = loc.Tokens
	u.SearchLocationText = model.Ptr(loc.SearchText)
	return u, nil
}

// pageImage is best effort: a failed lookup leaves the image absent.
func (s *Service) pageImage(ctx context.Context, title string) *string {
	img, err := s.articles.GetPageImage(ctx, title)
	if err != nil {
		s.logger.Warn("Page image lookup failed", "title", title, "error", err)
		return nil
	}
	return model.Ptr(img)
}

// keyedMutex serialises work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.held[key]
	if !ok {
		e = &lockEntry{}
		k.held[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.held, key)
		}
		k.mu.Unlock()
	}
}
