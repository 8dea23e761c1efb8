package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/interfaces"
	"github.com/ternarybob/praedium/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PropertyStorage implements the PropertyStorage interface for Badger
type PropertyStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPropertyStorage creates a new PropertyStorage instance
func NewPropertyStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PropertyStorage {
	return &PropertyStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertProperties stores records keyed on parcel ID. Re-scraping a parcel
// replaces the stored record, so only the most recent observation persists.
func (s *PropertyStorage) UpsertProperties(ctx context.Context, records []models.PropertyRecord) error {
	for i := range records {
		r := &records[i]
		if r.ParcelID == "" {
			return fmt.Errorf("property record missing parcel ID")
		}
		if err := s.db.Store().Upsert(r.ParcelID, r); err != nil {
			return fmt.Errorf("failed to upsert parcel %s: %w", r.ParcelID, err)
		}
	}

	s.logger.Debug().
		Int("count", len(records)).
		Msg("Property records upserted")

	return nil
}

func (s *PropertyStorage) GetProperty(ctx context.Context, parcelID string) (*models.PropertyRecord, error) {
	var record models.PropertyRecord
	if err := s.db.Store().Get(parcelID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("parcel not found: %s", parcelID)
		}
		return nil, fmt.Errorf("failed to get parcel: %w", err)
	}
	return &record, nil
}

// SearchProperties does a case-insensitive substring match over owner name,
// address, and city. The NL-to-query translation layer sits in front of this
// in the wider system; this is the raw stored-record read.
func (s *PropertyStorage) SearchProperties(ctx context.Context, query string, limit int) ([]models.PropertyRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	var records []models.PropertyRecord
	q := badgerhold.Where("ParcelID").Ne("").SortBy("ScrapedAt").Reverse()
	if err := s.db.Store().Find(&records, q); err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}

	if needle == "" {
		if len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	}

	matched := make([]models.PropertyRecord, 0, limit)
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.OwnerName), needle) ||
			strings.Contains(strings.ToLower(r.Address), needle) ||
			strings.Contains(strings.ToLower(r.City), needle) {
			matched = append(matched, r)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

func (s *PropertyStorage) CountProperties(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.PropertyRecord{}, nil)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// IsTermCompleted reports whether a term has already produced a non-zero
// result set. Reads here are eventually consistent with respect to workers
// marking terms completed; admission treats that as acceptable.
func (s *PropertyStorage) IsTermCompleted(ctx context.Context, searchTerm string) (bool, error) {
	var marker models.CompletedTerm
	err := s.db.Store().Get(termKey(searchTerm), &marker)
	if err == badgerhold.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check completed term: %w", err)
	}
	return marker.ResultCount > 0, nil
}

// MarkTermCompleted records that a term yielded resultCount parcels.
// Zero-result completions are recorded but do not saturate the term.
func (s *PropertyStorage) MarkTermCompleted(ctx context.Context, searchTerm string, resultCount int) error {
	marker := models.CompletedTerm{
		Term:        normalizeTerm(searchTerm),
		ResultCount: resultCount,
		CompletedAt: time.Now(),
	}
	if err := s.db.Store().Upsert(termKey(searchTerm), &marker); err != nil {
		return fmt.Errorf("failed to mark term completed: %w", err)
	}
	return nil
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

func termKey(term string) string {
	return "term:" + normalizeTerm(term)
}
