package models

import "time"

// Delivery kinds
const (
	DeliveryFile = "file"
	DeliveryLink = "link"
)

// Delivery represents one completed request
type Delivery struct {
	ID            int64
	UserID        int64
	ResourceID    string
	Rendition     string
	Quality       string
	Kind          string
	Title         string
	FileSizeBytes int64
	ExecutedAt    time.Time
}
