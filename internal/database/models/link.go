package models

import "time"

// DirectLink is a minted, time-limited pointer to an upstream media URL.
type DirectLink struct {
	ID        string
	Token     string
	SourceURL string
	DirectURL string
	Title     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the link is past its expiry at now.
func (l *DirectLink) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}
