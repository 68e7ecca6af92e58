// Package review decides which vocabulary items to present next. It only
// orders snapshots of the store; recording an outcome is the store's job.
package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jlin/tutorvocab/pkg/db"
)

// ItemSource supplies the current set of reviewable items. *db.Store
// satisfies it.
type ItemSource interface {
	ReviewCandidates() ([]db.VocabItem, error)
}

// Priority tiers, highest first:
//
//	1. recent failures: most recently seen first, so mistakes are reinforced
//	   while they are fresh
//	2. never reviewed: oldest captured first, backlog before repeats
//	3. everything else: least recently seen first
const (
	tierFailed = iota
	tierUnseen
	tierRotation
)

func tierOf(v db.VocabItem) int {
	if v.LastResult == db.ResultFail {
		return tierFailed
	}
	if !v.LastSeenAt.Valid {
		return tierUnseen
	}
	return tierRotation
}

// Rank returns the items eligible for review in presentation order. Partial
// items are excluded. The order is a stable total order: ties on the tier
// timestamp break by ascending item identifier.
func Rank(items []db.VocabItem) []db.VocabItem {
	ranked := make([]db.VocabItem, 0, len(items))
	for _, v := range items {
		if v.Reviewable() {
			ranked = append(ranked, v)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return less(ranked[i], ranked[j])
	})
	return ranked
}

func less(a, b db.VocabItem) bool {
	ta, tb := tierOf(a), tierOf(b)
	if ta != tb {
		return ta < tb
	}
	switch ta {
	case tierFailed:
		// Most recently seen first. A fail without a timestamp cannot
		// happen via RecordOutcome; sort such rows last in the tier.
		if !a.LastSeenAt.Time.Equal(b.LastSeenAt.Time) {
			return a.LastSeenAt.Time.After(b.LastSeenAt.Time)
		}
	case tierUnseen:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	default:
		if !a.LastSeenAt.Time.Equal(b.LastSeenAt.Time) {
			return a.LastSeenAt.Time.Before(b.LastSeenAt.Time)
		}
	}
	return a.ID < b.ID
}

// Next re-derives the ordering from the store and returns the highest-priority
// item not in skip. It returns nil when the queue is exhausted. Callers pass
// the identifiers already presented in the current sitting as skip, otherwise
// a freshly failed item would be re-presented immediately.
func Next(src ItemSource, skip map[int64]bool) (*db.VocabItem, error) {
	items, err := src.ReviewCandidates()
	if err != nil {
		return nil, err
	}
	for _, v := range Rank(items) {
		if skip[v.ID] {
			continue
		}
		item := v
		return &item, nil
	}
	return nil, nil
}

// FormatItem renders one vocabulary row for display. Missing fields are
// omitted rather than treated as an error, so malformed historical rows still
// render.
func FormatItem(v db.VocabItem) string {
	var parts []string
	if v.Chinese != "" {
		parts = append(parts, v.Chinese)
	}
	if v.Pinyin != "" {
		parts = append(parts, fmt.Sprintf("(%s)", v.Pinyin))
	}
	if v.English != "" {
		parts = append(parts, fmt.Sprintf("- %s", v.English))
	}
	if len(parts) == 0 {
		return "(blank)"
	}
	return strings.Join(parts, " ")
}
