package domain

import "time"

// JournalEntry is a free-form note attached to a calendar date.
type JournalEntry struct {
	ID        string
	EntryDate time.Time
	Category  string
	Content   string
	Rating    *int
	Tags      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
