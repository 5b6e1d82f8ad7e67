// Package db persists transcripts in a local SQLite database.
package db

import "time"

// Transcript is a persisted speech-to-text result.
type Transcript struct {
	ID        string
	Text      string
	CreatedAt time.Time
}
