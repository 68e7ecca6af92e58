package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Result is the outcome of the most recent review of a vocabulary item.
type Result string

const (
	// ResultNone marks an item that has never been reviewed.
	ResultNone Result = ""
	ResultPass Result = "pass"
	ResultFail Result = "fail"
)

// IsOutcome reports whether r is a value a review may record.
func (r Result) IsOutcome() bool {
	return r == ResultPass || r == ResultFail
}

// ParseResult converts user input into a review outcome.
func ParseResult(s string) (Result, error) {
	r := Result(s)
	if !r.IsOutcome() {
		return ResultNone, fmt.Errorf("outcome %q: %w", s, ErrInvalidState)
	}
	return r, nil
}

// Session is one recorded conversation. EndedAt and Transcript are set once,
// when the session closes, and are immutable afterwards.
type Session struct {
	ID         string
	StartedAt  time.Time
	EndedAt    sql.NullTime
	Transcript string
	Metadata   map[string]string
}

// VocabItem is a stored vocabulary record. English and Chinese form the dedup
// key and are empty strings (never NULL) when unknown, so that partial items
// captured by the fallback extraction still dedup against each other.
type VocabItem struct {
	ID              int64
	CreatedAt       time.Time
	SourceSessionID string
	English         string
	Chinese         string
	Pinyin          string
	Example         string
	SeenCount       int
	LastSeenAt      sql.NullTime
	LastResult      Result
}

// Reviewable reports whether the item can be presented as quiz content.
// Partial items (missing either side of the pair) are excluded from review.
func (v VocabItem) Reviewable() bool {
	return v.English != "" && v.Chinese != ""
}
