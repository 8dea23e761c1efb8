package scraper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
)

// Service is the dual-method scraping engine. It tries the direct API path
// first and falls back to browser automation when no usable credential
// exists. Callers cannot tell which path produced the records.
type Service struct {
	api     *APIClient
	browser *BrowserScraper
	tokens  interfaces.TokenSource
	retry   *RetryPolicy
	logger  arbor.ILogger

	apiScrapes     atomic.Int64
	browserScrapes atomic.Int64
	recordsScraped atomic.Int64
}

// NewService creates the scraping engine
func NewService(config *common.Config, tokens interfaces.TokenSource, logger arbor.ILogger) *Service {
	return &Service{
		api:     NewAPIClient(&config.Portal, logger),
		browser: NewBrowserScraper(&config.Portal, &config.Scraper, logger),
		tokens:  tokens,
		retry: NewRetryPolicy(
			config.Scraper.MaxRetries,
			common.Duration(config.Scraper.BackoffBase, 2*time.Second),
		),
		logger: logger,
	}
}

// Scrape fetches all records matching a search term, retrying with
// exponential backoff. Exhausting retries returns a terminal ScrapeError
// carrying the last cause. An empty result set is a success, never an
// error.
func (s *Service) Scrape(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error) {
	var records []models.PropertyRecord
	attempts := 0

	err := s.retry.ExecuteWithRetry(ctx, s.logger, func(attempt int) error {
		attempts = attempt
		var scrapeErr error
		records, scrapeErr = s.scrapeOnce(ctx, searchTerm)
		return scrapeErr
	})

	if err != nil {
		return nil, &ScrapeError{Term: searchTerm, Attempts: attempts, Cause: err}
	}

	s.recordsScraped.Add(int64(len(records)))
	return records, nil
}

// scrapeOnce runs a single attempt: API first, browser fallback on
// credential problems. Transport and extraction failures propagate to the
// retry loop unchanged.
func (s *Service) scrapeOnce(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error) {
	token, ok := s.tokens.Token()
	if !ok {
		s.logger.Debug().
			Str("search_term", searchTerm).
			Msg("No token available, using browser fallback")
		return s.scrapeViaBrowser(ctx, searchTerm)
	}

	records, err := s.api.FetchAll(ctx, searchTerm, token)
	if err == nil {
		s.apiScrapes.Add(1)
		return records, nil
	}

	if errors.Is(err, ErrTokenRejected) {
		// Stale-token signal: force one refresh and retry the API once
		// before giving up on the primary path
		s.logger.Info().
			Str("search_term", searchTerm).
			Msg("Token rejected upstream, forcing refresh")

		if refreshErr := s.tokens.ForceRefresh(ctx); refreshErr == nil {
			if freshToken, ok := s.tokens.Token(); ok && freshToken != token {
				records, err = s.api.FetchAll(ctx, searchTerm, freshToken)
				if err == nil {
					s.apiScrapes.Add(1)
					return records, nil
				}
			}
		}

		if IsCredentialError(err) {
			s.logger.Warn().
				Str("search_term", searchTerm).
				Msg("API path unusable after refresh, using browser fallback")
			return s.scrapeViaBrowser(ctx, searchTerm)
		}
	}

	return nil, err
}

func (s *Service) scrapeViaBrowser(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error) {
	records, err := s.browser.Scrape(ctx, searchTerm)
	if err != nil {
		return nil, err
	}
	s.browserScrapes.Add(1)
	return records, nil
}

// Stats reports per-path scrape counters for monitoring
func (s *Service) Stats() models.ScrapeStats {
	return models.ScrapeStats{
		APIScrapes:     s.apiScrapes.Load(),
		BrowserScrapes: s.browserScrapes.Load(),
		RecordsScraped: s.recordsScraped.Load(),
	}
}
