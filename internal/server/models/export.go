package models

import "time"

// Export describes a CSV export uploaded to object storage. The object
// itself lives under StorageKey; this row is its metadata.
type Export struct {
	ID           string    `json:"id"`
	RequestedBy  string    `json:"requestedBy"`
	StorageKey   string    `json:"storageKey"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	UserFilter   string    `json:"userFilter,omitempty"`
	RowCount     int       `json:"rowCount"`
	UploadStatus string    `json:"uploadStatus"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	UploadPending   = "pending"
	UploadCompleted = "completed"
)
