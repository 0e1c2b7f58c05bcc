package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTitles is returned when a run is started without any title.
	ErrNoTitles = errors.New("no titles to ingest")
	// ErrEmptyTitle is returned for a blank title.
	ErrEmptyTitle = errors.New("empty title")
)

// TitleError attaches the input title to a failed ingestion.
type TitleError struct {
	Title string
	Err   error
}

func (e *TitleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Title, e.Err)
}

func (e *TitleError) Unwrap() error {
	return e.Err
}
