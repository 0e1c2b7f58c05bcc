package wikidata

import "errors"

var (
	// ErrParse indicates a failure to parse the response.
	ErrParse = errors.New("wikidata parse error")
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("wikidata entity not found")
	// ErrInvalidID indicates a string that is not an item id (Q followed by digits).
	ErrInvalidID = errors.New("wikidata invalid item id")
)
