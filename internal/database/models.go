package database

import (
	"strings"
	"time"
)

// Category is one of the fixed labels a human assigns to an item.
type Category string

// Labeling categories.
const (
	CategoryReligion      Category = "religion"
	CategoryGender        Category = "gender"
	CategoryLanguageCaste Category = "language_caste"
	CategoryNormal        Category = "normal"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryReligion,
	CategoryGender,
	CategoryLanguageCaste,
	CategoryNormal,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Title returns the display form, e.g. "Language/Caste".
func (c Category) Title() string {
	parts := strings.Split(string(c), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "/")
}

// StatusPending is the workflow marker every submission starts with.
const StatusPending = "pending"

// DefaultPlatform is the provenance tag used when none is configured.
const DefaultPlatform = "Reddit"

// Progress is the singleton record tracking the labeling cursor.
type Progress struct {
	ID             int64     `json:"-"`
	CurrentRow     int       `json:"current_row"`
	TotalProcessed int       `json:"total_processed"`
	TotalSkipped   int       `json:"total_skipped"`
	PassID         string    `json:"pass_id"`
	LastUpdated    time.Time `json:"last_updated"`
}

// Submission is a finalized classification decision.
type Submission struct {
	ID        int64     `db:"id" json:"id"`
	Text      string    `db:"text" json:"text"`
	Category  Category  `db:"category" json:"category"`
	Platform  string    `db:"platform" json:"platform"`
	Status    string    `db:"status" json:"status"`
	Row       int       `db:"row_index" json:"row"` // -1 when unknown
	PassID    string    `db:"pass_id" json:"pass_id,omitempty"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}
