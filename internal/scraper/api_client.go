package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
	"golang.org/x/time/rate"
)

// APIClient fetches records from the portal's full-text search endpoint.
// This is the primary scraping path: paginated POSTs at a large page size
// until a short page signals the end of results.
type APIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger

	searchURL string
	pageSize  int
	maxPages  int
	userAgent string
}

// NewAPIClient creates a portal API client from portal configuration
func NewAPIClient(config *common.PortalConfig, logger arbor.ILogger) *APIClient {
	timeout := common.Duration(config.RequestTimeout, 30*time.Second)
	spacing := common.Duration(config.RateLimit, time.Second)

	pageSize := config.PageSize
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 1000
	}
	maxPages := config.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	return &APIClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(spacing), 1),
		logger:     logger,
		searchURL:  config.SearchURL,
		pageSize:   pageSize,
		maxPages:   maxPages,
		userAgent:  config.UserAgent,
	}
}

// FetchAll retrieves every page of results for a search term. A 401/403 on
// the first page surfaces as ErrTokenRejected so the caller can force a
// token refresh; mid-pagination rejections are transport errors since the
// partial result set is discarded anyway.
func (c *APIClient) FetchAll(ctx context.Context, searchTerm, token string) ([]models.PropertyRecord, error) {
	if token == "" {
		return nil, ErrNoToken
	}

	scrapedAt := time.Now()
	var records []models.PropertyRecord

	for page := 1; page <= c.maxPages; page++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Cause: err}
		}

		pageResults, err := c.fetchPage(ctx, searchTerm, token, page)
		if err != nil {
			if err == ErrTokenRejected && page > 1 {
				return nil, &TransportError{
					StatusCode: http.StatusUnauthorized,
					Cause:      fmt.Errorf("token rejected on page %d", page),
				}
			}
			return nil, err
		}

		for _, raw := range pageResults {
			records = append(records, mapAPIResult(raw, searchTerm, scrapedAt))
		}

		c.logger.Debug().
			Str("search_term", searchTerm).
			Int("page", page).
			Int("page_results", len(pageResults)).
			Int("total_results", len(records)).
			Msg("API page fetched")

		// A short page is the end of results
		if len(pageResults) < c.pageSize {
			return records, nil
		}
	}

	c.logger.Warn().
		Str("search_term", searchTerm).
		Int("max_pages", c.maxPages).
		Msg("API pagination hit safety cap")

	return records, nil
}

func (c *APIClient) fetchPage(ctx context.Context, searchTerm, token string, page int) ([]apiPropertyResult, error) {
	payload, err := json.Marshal(apiSearchRequest{
		Query:    searchTerm,
		Page:     page,
		PageSize: c.pageSize,
	})
	if err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("failed to encode search request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return nil, ErrTokenRejected
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected response: %s", string(body)),
		}
	}

	var parsed apiSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &TransportError{Cause: fmt.Errorf("malformed search response: %w", err)}
	}

	return parsed.Results, nil
}
