package zuva

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/extracta/internal/models"
)

// catalogueCache holds the last fetched field catalogue. The slice is replaced
// wholesale under the write lock and never mutated in place.
type catalogueCache struct {
	mu        sync.RWMutex
	fields    []models.FieldDefinition
	fetchedAt time.Time
	ttl       time.Duration
}

func (c *catalogueCache) get(now time.Time) ([]models.FieldDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.fields == nil || now.Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return cloneFields(c.fields), true
}

func (c *catalogueCache) set(fields []models.FieldDefinition, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fields = fields
	c.fetchedAt = now
}

func cloneFields(fields []models.FieldDefinition) []models.FieldDefinition {
	out := make([]models.FieldDefinition, len(fields))
	copy(out, fields)
	return out
}

// FetchFieldCatalogue returns the provider's field definitions, served from cache
// while younger than the catalogue TTL unless forceRefresh is set.
// Concurrent refreshes are idempotent; the last one to finish wins.
func (c *Client) FetchFieldCatalogue(ctx context.Context, forceRefresh bool) ([]models.FieldDefinition, error) {
	if !forceRefresh {
		if fields, ok := c.catalogue.get(c.now()); ok {
			return fields, nil
		}
	}

	fields, err := c.fetchFields(ctx)
	if err != nil {
		return nil, err
	}

	c.catalogue.set(fields, c.now())

	c.logger.Info().
		Int("fields", len(fields)).
		Bool("forced", forceRefresh).
		Msg("Field catalogue refreshed")

	return cloneFields(fields), nil
}

func (c *Client) fetchFields(ctx context.Context) ([]models.FieldDefinition, error) {
	const op = "fields"

	resp, err := c.call(ctx, request{op: op, method: http.MethodGet, path: "/fields"})
	if err != nil {
		return nil, err
	}
	if err := checkAuth(op, resp); err != nil {
		return nil, err
	}
	if resp.status != http.StatusOK {
		return nil, apiError(op, "/fields", resp)
	}

	return decodeFields(resp.body)
}

// decodeFields accepts a bare array or an object with a fields array
func decodeFields(body []byte) ([]models.FieldDefinition, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []models.FieldDefinition{}, nil
	}

	fields := []models.FieldDefinition{}
	if body[0] == '[' {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode field catalogue: %w", err)
		}
		return fields, nil
	}

	var wrapped struct {
		Fields []models.FieldDefinition `json:"fields"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to decode field catalogue: %w", err)
	}
	if wrapped.Fields != nil {
		fields = wrapped.Fields
	}
	return fields, nil
}
