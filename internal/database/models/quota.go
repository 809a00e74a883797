package models

import "time"

// QuotaRecord is the persisted usage state of one user.
type QuotaRecord struct {
	UserID              int64
	Plan                string
	DownloadsToday      int
	DownloadsTotal      int
	LastResetAt         time.Time
	AiAssistUsed        int
	AiAssistWindowStart time.Time
}
