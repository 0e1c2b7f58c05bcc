package wikidata

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"stadiumhq/pkg/request"
)

const apiEndpoint = "https://www.wikidata.org/w/api.php"

// Wikidata allows max 50 IDs per request
const batchSize = 50

// Client fetches entities from the Wikidata action API.
type Client struct {
	request     *request.Client
	APIEndpoint string
	Logger      *slog.Logger
}

// NewClient creates a new Wikidata client.
func NewClient(r *request.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		request:     r,
		APIEndpoint: apiEndpoint,
		Logger:      logger,
	}
}

// GetEntities fetches English labels and claims for ids. Entities that do not
// exist are absent from the result; it is not an error.
func (c *Client) GetEntities(ctx context.Context, ids []string) (map[string]Entity, error) {
	result := make(map[string]Entity)
	if len(ids) == 0 {
		return result, nil
	}

	// Sort and dedupe so cache keys are stable.
	seen := make(map[string]bool, len(ids))
	sortedIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if !ValidID(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
		if !seen[id] {
			seen[id] = true
			sortedIDs = append(sortedIDs, id)
		}
	}
	sort.Strings(sortedIDs)

	for i := 0; i < len(sortedIDs); i += batchSize {
		end := i + batchSize
		if end > len(sortedIDs) {
			end = len(sortedIDs)
		}
		idStr := strings.Join(sortedIDs[i:end], "|")

		hash := md5.Sum([]byte(idStr))
		cacheKey := fmt.Sprintf("wd_entities_%s", hex.EncodeToString(hash[:]))

		u, err := url.Parse(c.APIEndpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("action", "wbgetentities")
		q.Set("format", "json")
		q.Set("ids", idStr)
		q.Set("props", "claims|labels")
		q.Set("languages", "en")
		u.RawQuery = q.Encode()

		body, err := c.request.Get(ctx, u.String(), cacheKey)
		if err != nil {
			return nil, err
		}

		var resp wrapperEntityResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("wbgetentities %s: %s: %s", idStr, resp.Error.Code, resp.Error.Info)
		}
		resp.toEntities(result)
	}

	c.Logger.Debug("Fetched entities", "requested", len(sortedIDs), "found", len(result))
	return result, nil
}

// GetEntity fetches a single entity, returning ErrNotFound when it does not exist.
func (c *Client) GetEntity(ctx context.Context, id string) (Entity, error) {
	m, err := c.GetEntities(ctx, []string{id})
	if err != nil {
		return Entity{}, err
	}
	e, ok := m[id]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}
