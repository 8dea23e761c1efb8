package models

import "time"

// TokenHealth is the monitoring view of the token lifecycle manager
type TokenHealth struct {
	Healthy              bool          `json:"healthy"`
	HasToken             bool          `json:"hasToken"`
	TimeSinceLastRefresh time.Duration `json:"timeSinceLastRefresh"`
	RefreshCount         int64         `json:"refreshCount"`
	FailureCount         int64         `json:"failureCount"`
	FailureRate          float64       `json:"failureRate"`
	IsAutoRefreshRunning bool          `json:"isAutoRefreshRunning"`
}

// QueueHealth is the monitoring view of the scrape queue
type QueueHealth struct {
	WaitingCount int `json:"waitingCount"`
	DelayedCount int `json:"delayedCount"`
	ActiveCount  int `json:"activeCount"`
	FailedCount  int `json:"failedCount"`
}

// ScrapeStats counts completed scrapes per path for /api/status
type ScrapeStats struct {
	APIScrapes     int64 `json:"apiScrapes"`
	BrowserScrapes int64 `json:"browserScrapes"`
	RecordsScraped int64 `json:"recordsScraped"`
}
