package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/praedium/internal/models"
)

// apiSearchRequest is the portal's full-text search payload
type apiSearchRequest struct {
	Query    string `json:"query"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

// apiSearchResponse is one page of portal search results
type apiSearchResponse struct {
	Results    []apiPropertyResult `json:"results"`
	TotalCount int                 `json:"totalCount"`
}

// apiPropertyResult is the portal's raw record shape
type apiPropertyResult struct {
	PropertyID       string   `json:"propertyId"`
	OwnerName        string   `json:"ownerName"`
	PropertyType     string   `json:"propType"`
	City             string   `json:"city"`
	SitusAddress     string   `json:"situsAddress"`
	AssessedValue    *float64 `json:"assessedValue"`
	AppraisedValue   float64  `json:"appraisedValue"`
	GeoID            string   `json:"geoId"`
	LegalDescription string   `json:"legalDescription"`
}

// mapAPIResult normalizes a raw API record into the shared PropertyRecord
// shape. The browser path maps into the identical shape so the two paths
// are indistinguishable to callers.
func mapAPIResult(raw apiPropertyResult, searchTerm string, scrapedAt time.Time) models.PropertyRecord {
	return models.PropertyRecord{
		ParcelID:         strings.TrimSpace(raw.PropertyID),
		OwnerName:        strings.TrimSpace(raw.OwnerName),
		PropertyType:     strings.TrimSpace(raw.PropertyType),
		City:             strings.TrimSpace(raw.City),
		Address:          strings.TrimSpace(raw.SitusAddress),
		AssessedValue:    raw.AssessedValue,
		AppraisedValue:   raw.AppraisedValue,
		GeoID:            strings.TrimSpace(raw.GeoID),
		LegalDescription: strings.TrimSpace(raw.LegalDescription),
		SearchTerm:       searchTerm,
		ScrapedAt:        scrapedAt,
	}
}

// gridRow is one extracted row from the fallback grid UI, in column order
type gridRow struct {
	ParcelID         string
	OwnerName        string
	PropertyType     string
	City             string
	Address          string
	AssessedValue    string
	AppraisedValue   string
	GeoID            string
	LegalDescription string
}

// mapGridRow normalizes a grid row into the shared PropertyRecord shape
func mapGridRow(row gridRow, searchTerm string, scrapedAt time.Time) models.PropertyRecord {
	return models.PropertyRecord{
		ParcelID:         strings.TrimSpace(row.ParcelID),
		OwnerName:        strings.TrimSpace(row.OwnerName),
		PropertyType:     strings.TrimSpace(row.PropertyType),
		City:             strings.TrimSpace(row.City),
		Address:          strings.TrimSpace(row.Address),
		AssessedValue:    parseCurrencyPtr(row.AssessedValue),
		AppraisedValue:   parseCurrency(row.AppraisedValue),
		GeoID:            strings.TrimSpace(row.GeoID),
		LegalDescription: strings.TrimSpace(row.LegalDescription),
		SearchTerm:       searchTerm,
		ScrapedAt:        scrapedAt,
	}
}

// parseCurrency converts grid cell text like "$1,234,567" or "1234567.50"
// into a numeric value; unparseable cells become 0
func parseCurrency(text string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, text)
	if cleaned == "" {
		return 0
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseCurrencyPtr is parseCurrency for nullable columns: blank or "N/A"
// cells stay nil rather than zero
func parseCurrencyPtr(text string) *float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.EqualFold(trimmed, "n/a") {
		return nil
	}
	v := parseCurrency(trimmed)
	return &v
}
