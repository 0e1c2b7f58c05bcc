package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"stadiumhq/pkg/request"
)

const (
	restEndpoint    = "https://en.wikipedia.org/api/rest_v1"
	articleEndpoint = "https://api.wikimedia.org/core/v1/wikipedia/en"
	apiEndpoint     = "https://en.wikipedia.org/w/api.php"
)

// ErrNoSummary is returned when the summary endpoint answers without a title.
var ErrNoSummary = errors.New("wikipedia summary has no title")

// Client handles Wikipedia API interactions.
type Client struct {
	request *request.Client

	// Optional overrides for testing
	RESTEndpoint    string
	ArticleEndpoint string
	APIEndpoint     string
}

// NewClient creates a new Wikipedia client.
func NewClient(r *request.Client) *Client {
	return &Client{
		request:         r,
		RESTEndpoint:    restEndpoint,
		ArticleEndpoint: articleEndpoint,
		APIEndpoint:     apiEndpoint,
	}
}

// Summary is the lead section of an article after redirects were followed.
type Summary struct {
	Title        string // Canonical title
	DisplayTitle string // Title as typed on the page, plain text
	Extract      string
	Description  string
	PageURL      string
	ImageURL     string
	WikidataID   string // Empty when the page is not linked to an item
}

// EncodeTitle addresses a title in a URL path: spaces become underscores and the
// rest is percent-encoded.
func EncodeTitle(title string) string {
	return url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// GetSummary fetches the page summary, following redirects.
func (c *Client) GetSummary(ctx context.Context, title string) (*Summary, error) {
	u := fmt.Sprintf("%s/page/summary/%s?redirect=true", c.RESTEndpoint, EncodeTitle(title))
	body, err := c.request.Get(ctx, u, "wp_summary_"+EncodeTitle(title))
	if err != nil {
		return nil, err
	}

	var resp summaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode summary json: %w", err)
	}

	s := &Summary{
		Title:        resp.Titles.Canonical,
		DisplayTitle: resp.Title,
		Extract:      strings.TrimSpace(resp.Extract),
		Description:  strings.TrimSpace(resp.Description),
		PageURL:      resp.ContentURLs.Desktop.Page,
		ImageURL:     resp.OriginalImage.Source,
		WikidataID:   resp.WikibaseItem,
	}
	// The canonical form uses underscores.
	s.Title = strings.ReplaceAll(s.Title, "_", " ")
	if s.Title == "" {
		s.Title = resp.Title
	}
	if s.DisplayTitle == "" {
		s.DisplayTitle = s.Title
	}
	if s.Title == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSummary, title)
	}
	return s, nil
}

// GetArticleHTML fetches the full rendered article.
func (c *Client) GetArticleHTML(ctx context.Context, title string) ([]byte, error) {
	u := fmt.Sprintf("%s/page/%s/html", c.ArticleEndpoint, EncodeTitle(title))
	return c.request.Get(ctx, u, "wp_html_"+EncodeTitle(title))
}

// GetWikibaseItem looks up the Wikidata item linked to a page. It returns an
// empty string when the page has none.
func (c *Client) GetWikibaseItem(ctx context.Context, title string) (string, error) {
	u, err := url.Parse(c.APIEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("action", "query")
	q.Set("prop", "pageprops")
	q.Set("ppprop", "wikibase_item")
	q.Set("titles", title)
	q.Set("redirects", "1")
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "wp_pageprops_"+EncodeTitle(title))
	if err != nil {
		return "", err
	}

	var apiResp struct {
		Query struct {
			Pages map[string]struct {
				PageProps struct {
					WikibaseItem string `json:"wikibase_item"`
				} `json:"pageprops"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode json: %w", err)
	}

	for _, page := range apiResp.Query.Pages {
		if page.PageProps.WikibaseItem != "" {
			return page.PageProps.WikibaseItem, nil
		}
	}
	return "", nil
}

// GetPageImage returns the designated page image when the summary carries none.
// Logos, maps and vector graphics are rejected; an empty string means no image.
func (c *Client) GetPageImage(ctx context.Context, title string) (string, error) {
	u, err := url.Parse(c.APIEndpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("action", "query")
	q.Set("prop", "pageimages")
	q.Set("piprop", "original")
	q.Set("titles", title)
	q.Set("redirects", "1")
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	body, err := c.request.Get(ctx, u.String(), "wp_pageimage_"+EncodeTitle(title))
	if err != nil {
		return "", err
	}

	var apiResp struct {
		Query struct {
			Pages map[string]struct {
				Original struct {
					Source string `json:"source"`
				} `json:"original"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to decode json: %w", err)
	}

	for _, page := range apiResp.Query.Pages {
		if src := page.Original.Source; src != "" && !isUnwantedImage(src) {
			return src, nil
		}
	}
	return "", nil
}

type summaryResponse struct {
	Title  string `json:"title"`
	Titles struct {
		Canonical  string `json:"canonical"`
		Normalized string `json:"normalized"`
	} `json:"titles"`
	Extract      string `json:"extract"`
	Description  string `json:"description"`
	WikibaseItem string `json:"wikibase_item"`
	ContentURLs  struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
	OriginalImage struct {
		Source string `json:"source"`
	} `json:"originalimage"`
}

// isUnwantedImage checks if a filename or URL is a vector graphic, icon, map or similar.
func isUnwantedImage(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range []string{".svg", ".gif", ".tif", ".ogv", ".webm"} {
		if strings.Contains(lower, ext) {
			return true
		}
	}

	badKeywords := []string{
		"logo", "icon", "flag", "coat of arms", "coat_of_arms", "crest", "badge",
		"locator", "location map", "location_map", "diagram", "seating plan", "seating_plan",
		"placeholder", "signature",
	}
	for _, kw := range badKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
