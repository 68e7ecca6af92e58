// Package recorder orchestrates the end of a practice session: it closes the
// session record, parses the transcript and banks every extracted candidate.
package recorder

import (
	"fmt"
	"log"
	"time"

	"github.com/jlin/tutorvocab/pkg/extract"
)

// VocabStore is the slice of the store the recorder needs. *db.Store
// satisfies it; tests inject failing implementations.
type VocabStore interface {
	CreateSession(startedAt time.Time) (string, error)
	CloseSession(id string, endedAt time.Time, transcript string, metadata map[string]string) error
	UpsertVocab(sessionID, english, chinese, pinyin, example string) (int64, error)
}

// Recorder records finished sessions into the store.
type Recorder struct {
	Store VocabStore
	// Logger is used for informational messages. nil means no logging.
	Logger *log.Logger

	// Concurrency settings for directory backfills.
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// New creates a Recorder with default settings.
func New(store VocabStore) *Recorder {
	return &Recorder{
		Store:   store,
		Workers: 4,
	}
}

// CandidateError pairs a candidate with the store error it hit.
type CandidateError struct {
	Candidate extract.Candidate
	Err       error
}

func (e CandidateError) Error() string {
	return fmt.Sprintf("candidate (%q, %q): %v", e.Candidate.English, e.Candidate.Chinese, e.Err)
}

// Summary reports what one recorded session produced. A failed candidate
// never aborts the rest of the batch; its error is collected here instead.
type Summary struct {
	SessionID  string
	Candidates int
	Succeeded  int
	Failed     int
	Errors     []CandidateError
}

// Record closes the session, extracts vocabulary candidates from the
// transcript and upserts them in extraction order. Closing failures propagate;
// per-candidate upsert failures are collected into the summary.
func (r *Recorder) Record(sessionID string, endedAt time.Time, transcript string, metadata map[string]string) (*Summary, error) {
	if err := r.Store.CloseSession(sessionID, endedAt, transcript, metadata); err != nil {
		return nil, err
	}

	candidates := extract.Parse(transcript)
	sum := &Summary{SessionID: sessionID, Candidates: len(candidates)}
	for _, c := range candidates {
		if _, err := r.Store.UpsertVocab(sessionID, c.English, c.Chinese, c.Pinyin, c.Example); err != nil {
			sum.Failed++
			sum.Errors = append(sum.Errors, CandidateError{Candidate: c, Err: err})
			continue
		}
		sum.Succeeded++
	}

	if r.Logger != nil {
		r.Logger.Printf("session %s: %d candidates, %d banked, %d failed",
			sessionID, sum.Candidates, sum.Succeeded, sum.Failed)
	}
	return sum, nil
}
