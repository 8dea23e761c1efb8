package models

import (
	"time"
)

// PropertyRecord is one scraped observation of a parcel.
//
// ParcelID is the portal's external identifier and the natural key for
// upserts: scraping the same parcel again updates the stored record, never
// duplicates it. Both scraping paths (direct API and browser grid) produce
// records of this exact shape so callers cannot tell them apart.
type PropertyRecord struct {
	ParcelID         string   `json:"parcelId" badgerhold:"key"`
	OwnerName        string   `json:"ownerName"`
	PropertyType     string   `json:"propertyType"`
	City             string   `json:"city"`
	Address          string   `json:"address"`
	AssessedValue    *float64 `json:"assessedValue,omitempty"`
	AppraisedValue   float64  `json:"appraisedValue"`
	GeoID            string   `json:"geoId,omitempty"`
	LegalDescription string   `json:"legalDescription,omitempty"`

	SearchTerm string    `json:"searchTerm"`
	ScrapedAt  time.Time `json:"scrapedAt"`
}

// CompletedTerm marks a search term that has already yielded a non-trivial
// result set. The deduplicator and admission controller consult these to
// avoid re-queueing known-saturated terms.
type CompletedTerm struct {
	Term        string    `json:"term" badgerhold:"key"`
	ResultCount int       `json:"resultCount"`
	CompletedAt time.Time `json:"completedAt"`
}
