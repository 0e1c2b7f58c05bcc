package store

import (
	"context"
	"errors"

	"stadiumhq/pkg/model"
)

// ErrNotFound is returned when a stadium lookup matches no row.
var ErrNotFound = errors.New("stadium not found")

// StadiumStore handles stadium persistence.
type StadiumStore interface {
	// UpsertStadium writes s keyed by its canonical title and returns the stored row.
	// When no row has the title but one has the same Wikidata id, that row is
	// updated and its title re-pointed. Name is only written on create.
	UpsertStadium(ctx context.Context, s *model.Stadium) (*model.Stadium, error)
	GetStadium(ctx context.Context, id string) (*model.Stadium, error)
	GetStadiumByTitle(ctx context.Context, title string) (*model.Stadium, error)
	// ListStadiumsMissing returns up to limit rows lacking field, ordered by id,
	// with id greater than afterID ("" starts from the beginning).
	ListStadiumsMissing(ctx context.Context, field model.MissingField, afterID string, limit int) ([]*model.Stadium, error)
	UpdateHistory(ctx context.Context, id string, historyHTML string) error
	UpdateLocation(ctx context.Context, id string, u *model.LocationUpdate) error
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Store defines the repository interface.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StadiumStore
	StateStore

	// Close closes the store connection.
	Close() error
}
