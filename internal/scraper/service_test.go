package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
)

// stubTokenSource hands out a scripted sequence of tokens
type stubTokenSource struct {
	token     string
	hasToken  bool
	refreshed int
	onRefresh func(*stubTokenSource)
}

func (s *stubTokenSource) Token() (string, bool) {
	return s.token, s.hasToken
}

func (s *stubTokenSource) ForceRefresh(ctx context.Context) error {
	s.refreshed++
	if s.onRefresh != nil {
		s.onRefresh(s)
	}
	return nil
}

func (s *stubTokenSource) Health() models.TokenHealth {
	return models.TokenHealth{HasToken: s.hasToken}
}

func newTestService(t *testing.T, handler http.HandlerFunc, tokens *stubTokenSource) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &common.PortalConfig{
		SearchURL:      srv.URL,
		PageSize:       100,
		MaxPages:       5,
		RequestTimeout: "5s",
		RateLimit:      "1ms",
	}
	logger := arbor.NewLogger()

	return &Service{
		api:    NewAPIClient(cfg, logger),
		tokens: tokens,
		retry:  NewRetryPolicy(3, time.Millisecond),
		logger: logger,
	}
}

func TestScrapeViaAPI(t *testing.T) {
	tokens := &stubTokenSource{token: "tok123", hasToken: true}
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiSearchResponse{Results: []apiPropertyResult{
			{PropertyID: "R1", OwnerName: "SMITH JOHN"},
		}})
	}, tokens)

	records, err := svc.Scrape(context.Background(), "Smith")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 1 || records[0].ParcelID != "R1" {
		t.Fatalf("Unexpected records: %+v", records)
	}

	stats := svc.Stats()
	if stats.APIScrapes != 1 || stats.BrowserScrapes != 0 {
		t.Errorf("Expected one API scrape, got %+v", stats)
	}
	if stats.RecordsScraped != 1 {
		t.Errorf("Expected 1 record counted, got %d", stats.RecordsScraped)
	}
}

func TestScrapeRefreshesRejectedToken(t *testing.T) {
	tokens := &stubTokenSource{token: "stale", hasToken: true}
	tokens.onRefresh = func(s *stubTokenSource) { s.token = "fresh" }

	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(apiSearchResponse{Results: []apiPropertyResult{
			{PropertyID: "R1"},
		}})
	}, tokens)

	records, err := svc.Scrape(context.Background(), "Smith")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record after refresh, got %d", len(records))
	}
	if tokens.refreshed != 1 {
		t.Errorf("Expected exactly one forced refresh, got %d", tokens.refreshed)
	}
}

func TestScrapeZeroResultsIsSuccess(t *testing.T) {
	tokens := &stubTokenSource{token: "tok123", hasToken: true}
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiSearchResponse{})
	}, tokens)

	records, err := svc.Scrape(context.Background(), "Zzyzx")
	if err != nil {
		t.Fatalf("Zero results must be a success: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestScrapeTerminalErrorAfterRetries(t *testing.T) {
	tokens := &stubTokenSource{token: "tok123", hasToken: true}
	calls := 0
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}, tokens)

	_, err := svc.Scrape(context.Background(), "Smith")
	if err == nil {
		t.Fatal("Expected terminal error")
	}

	var se *ScrapeError
	if !errors.As(err, &se) {
		t.Fatalf("Expected ScrapeError, got %T: %v", err, err)
	}
	if se.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", se.Attempts)
	}
	if calls != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", calls)
	}
}
