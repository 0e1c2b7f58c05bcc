package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stadiumhq/pkg/db"
	"stadiumhq/pkg/model"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// SQLStore implements Store on pkg/db, for either SQLite or PostgreSQL.
type SQLStore struct {
	db *db.DB
}

// NewSQLStore creates a new store.
func NewSQLStore(d *db.DB) *SQLStore {
	return &SQLStore{db: d}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) list(v *[]string) stringList {
	return stringList{dialect: s.db.Dialect, v: v}
}

// --- Stadiums ---

const stadiumColumns = `id, name, wiki_title, wikidata_id, wiki_url, wiki_image, description,
	history_summary, history_html, lat, lon,
	locality, borough, city, metro_area, region, country, country_code,
	admin_path, location_tokens, search_location_text, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scanStadium(row rowScanner) (*model.Stadium, error) {
	var st model.Stadium
	var wikiURL sql.NullString
	var lat, lon sql.NullFloat64
	var wikidataID, wikiImage, description, summary, historyHTML sql.NullString
	var locality, borough, city, metro, region, country, countryCode, searchText sql.NullString

	err := row.Scan(
		&st.ID, &st.Name, &st.WikiTitle, &wikidataID, &wikiURL, &wikiImage, &description,
		&summary, &historyHTML, &lat, &lon,
		&locality, &borough, &city, &metro, &region, &country, &countryCode,
		s.list(&st.AdminPath), s.list(&st.LocationTokens), &searchText, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.WikiURL = wikiURL.String
	st.WikidataID = nullable(wikidataID)
	st.WikiImage = nullable(wikiImage)
	st.Description = nullable(description)
	st.HistorySummary = nullable(summary)
	st.HistoryHTML = nullable(historyHTML)
	if lat.Valid && lon.Valid {
		st.Location = &orb.Point{lon.Float64, lat.Float64}
	}
	st.Locality = nullable(locality)
	st.Borough = nullable(borough)
	st.City = nullable(city)
	st.MetroArea = nullable(metro)
	st.Region = nullable(region)
	st.Country = nullable(country)
	st.CountryCode = nullable(countryCode)
	st.SearchLocationText = nullable(searchText)
	return &st, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func coords(p *orb.Point) (lat, lon any) {
	if p == nil {
		return nil, nil
	}
	return p.Lat(), p.Lon()
}

func (s *SQLStore) GetStadium(ctx context.Context, id string) (*model.Stadium, error) {
	return s.getBy(ctx, "id", id)
}

func (s *SQLStore) GetStadiumByTitle(ctx context.Context, title string) (*model.Stadium, error) {
	return s.getBy(ctx, "wiki_title", title)
}

func (s *SQLStore) getBy(ctx context.Context, column, val string) (*model.Stadium, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+stadiumColumns+` FROM stadiums WHERE `+column+` = ?`), val)
	st, err := s.scanStadium(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, val)
	}
	return st, err
}

func (s *SQLStore) UpsertStadium(ctx context.Context, st *model.Stadium) (*model.Stadium, error) {
	if st.WikiTitle == "" {
		return nil, errors.New("stadium has no wiki title")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.findExisting(ctx, tx, st)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	lat, lon := coords(st.Location)

	if id == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate id: %w", err)
		}
		id = newID.String()
		name := st.Name
		if name == "" {
			name = st.WikiTitle
		}
		_, err = tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO stadiums (`+stadiumColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			id, name, st.WikiTitle, st.WikidataID, st.WikiURL, st.WikiImage, st.Description,
			st.HistorySummary, st.HistoryHTML, lat, lon,
			st.Locality, st.Borough, st.City, st.MetroArea, st.Region, st.Country, st.CountryCode,
			s.list(&st.AdminPath), s.list(&st.LocationTokens), st.SearchLocationText, s.db.TimeArg(now), s.db.TimeArg(now),
		)
		if err != nil {
			return nil, fmt.Errorf("insert stadium %q: %w", st.WikiTitle, err)
		}
	} else {
		_, err = tx.ExecContext(ctx, s.db.Rebind(`UPDATE stadiums SET
			wiki_title = ?, wikidata_id = ?, wiki_url = ?, wiki_image = ?, description = ?,
			history_summary = ?, history_html = ?, lat = ?, lon = ?,
			locality = ?, borough = ?, city = ?, metro_area = ?, region = ?, country = ?, country_code = ?,
			admin_path = ?, location_tokens = ?, search_location_text = ?, updated_at = ?
			WHERE id = ?`),
			st.WikiTitle, st.WikidataID, st.WikiURL, st.WikiImage, st.Description,
			st.HistorySummary, st.HistoryHTML, lat, lon,
			st.Locality, st.Borough, st.City, st.MetroArea, st.Region, st.Country, st.CountryCode,
			s.list(&st.AdminPath), s.list(&st.LocationTokens), st.SearchLocationText, s.db.TimeArg(now),
			id,
		)
		if err != nil {
			return nil, fmt.Errorf("update stadium %q: %w", st.WikiTitle, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetStadium(ctx, id)
}

// findExisting returns the id of the row st should update, or "".
func (s *SQLStore) findExisting(ctx context.Context, tx *sql.Tx, st *model.Stadium) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT id FROM stadiums WHERE wiki_title = ?`), st.WikiTitle).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if st.WikidataID == nil || *st.WikidataID == "" {
		return "", nil
	}

	err = tx.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id FROM stadiums WHERE wikidata_id = ? ORDER BY id LIMIT 1`), *st.WikidataID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (s *SQLStore) missingClause(field model.MissingField) (string, error) {
	switch field {
	case model.MissingHistory:
		return `(history_html IS NULL OR history_html = '')`, nil
	case model.MissingLocation:
		if s.db.Dialect == db.Postgres {
			return `(admin_path IS NULL OR cardinality(admin_path) = 0 OR search_location_text IS NULL)`, nil
		}
		return `(admin_path IS NULL OR admin_path = '[]' OR search_location_text IS NULL)`, nil
	}
	return "", fmt.Errorf("unknown missing field %q", field)
}

func (s *SQLStore) ListStadiumsMissing(ctx context.Context, field model.MissingField, afterID string, limit int) ([]*model.Stadium, error) {
	clause, err := s.missingClause(field)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + stadiumColumns + ` FROM stadiums WHERE ` + clause
	args := []any{}
	if afterID != "" {
		query += ` AND id > ?`
		args = append(args, afterID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.Stadium
	for rows.Next() {
		st, err := s.scanStadium(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, st)
	}
	return results, rows.Err()
}

func (s *SQLStore) UpdateHistory(ctx context.Context, id, historyHTML string) error {
	if strings.TrimSpace(historyHTML) == "" {
		return errors.New("refusing to store empty history")
	}
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE stadiums SET history_html = ?, updated_at = ? WHERE id = ?`),
		historyHTML, s.db.TimeArg(time.Now()), id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (s *SQLStore) UpdateLocation(ctx context.Context, id string, u *model.LocationUpdate) error {
	lat, lon := coords(u.Location)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE stadiums SET
		wikidata_id = COALESCE(?, wikidata_id), lat = COALESCE(?, lat), lon = COALESCE(?, lon),
		locality = ?, borough = ?, city = ?, metro_area = ?, region = ?, country = ?, country_code = ?,
		admin_path = ?, location_tokens = ?, search_location_text = ?, updated_at = ?
		WHERE id = ?`),
		u.WikidataID, lat, lon,
		u.Locality, u.Borough, u.City, u.MetroArea, u.Region, u.Country, u.CountryCode,
		s.list(&u.AdminPath), s.list(&u.LocationTokens), u.SearchLocationText, s.db.TimeArg(time.Now()),
		id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// --- State ---

func (s *SQLStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, s.db.Rebind("SELECT value FROM persistent_state WHERE key = ?"), key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLStore) SetState(ctx context.Context, key, val string) error {
	var query string
	if s.db.Dialect == db.Postgres {
		query = `INSERT INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at`
	} else {
		query = `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(query), key, val, s.db.TimeArg(time.Now()))
	return err
}

func (s *SQLStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM persistent_state WHERE key = ?"), key)
	return err
}
