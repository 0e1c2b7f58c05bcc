package ingest

import (
	"context"

	"stadiumhq/pkg/wikipedia"
)

// ArticleSource is the part of the Wikipedia client the pipeline reads from.
type ArticleSource interface {
	GetSummary(ctx context.Context, title string) (*wikipedia.Summary, error)
	GetArticleHTML(ctx context.Context, title string) ([]byte, error)
	GetWikibaseItem(ctx context.Context, title string) (string, error)
	GetPageImage(ctx context.Context, title string) (string, error)
}
