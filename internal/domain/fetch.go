package domain

import "time"

// FetchStatus is the outcome of one background fetch attempt.
type FetchStatus string

const (
	FetchStatusOK     FetchStatus = "ok"
	FetchStatusFailed FetchStatus = "failed"
)

// FetchRecord is one row of the prefetch ledger.
type FetchRecord struct {
	ID          string      `gorm:"type:text;primaryKey" json:"id"`
	URL         string      `gorm:"type:text;not null;index:idx_fetch_records_url" json:"url"`
	Location    string      `gorm:"type:text" json:"location"`
	Status      FetchStatus `gorm:"type:text;index:idx_fetch_records_status" json:"status"`
	Size        int64       `json:"size"`
	ContentType string      `gorm:"type:text" json:"content_type,omitempty"`
	Width       int         `json:"width,omitempty"`
	Height      int         `json:"height,omitempty"`
	DurationMs  int64       `json:"duration_ms"`
	Error       string      `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time   `gorm:"index:idx_fetch_records_created" json:"created_at"`
}

// TableName returns the database table name for FetchRecord.
func (FetchRecord) TableName() string {
	return "fetch_records"
}
