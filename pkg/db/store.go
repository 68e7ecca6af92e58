package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns all mutation of session and vocabulary records. Every operation
// holds the store mutex for its whole read-modify-write sequence so that
// concurrent callers within the process cannot interleave and corrupt the
// dedup or statistics invariants. Concurrent writers from other processes are
// not supported.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// Now supplies the wall clock. Overridable for tests.
	Now func() time.Time
	// NewID generates session identifiers. Overridable for tests.
	NewID func() string
}

// New wraps an open database connection. The connection must already have the
// schema applied (see Open / InitDB).
func New(conn *sql.DB) *Store {
	return &Store{
		db:    conn,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// CreateSession allocates a new open session and returns its identifier.
// A zero startedAt means "now".
func (s *Store) CreateSession(startedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if startedAt.IsZero() {
		startedAt = s.Now()
	}
	id := s.NewID()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		id, startedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return id, nil
}

// CloseSession sets the end timestamp, transcript and metadata of an open
// session. Closing an unknown session returns ErrNotFound; closing a session
// twice returns ErrInvalidState.
func (s *Store) CloseSession(id string, endedAt time.Time, transcript string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ended sql.NullTime
	err := s.db.QueryRow(`SELECT ended_at FROM sessions WHERE id = ?`, id).Scan(&ended)
	if err == sql.ErrNoRows {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", id, err)
	}
	if ended.Valid {
		return fmt.Errorf("session %s already closed: %w", id, ErrInvalidState)
	}

	if endedAt.IsZero() {
		endedAt = s.Now()
	}
	var metaJSON interface{}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encode session metadata: %w", err)
		}
		metaJSON = string(b)
	}
	_, err = s.db.Exec(
		`UPDATE sessions SET ended_at = ?, transcript_text = ?, metadata_json = ? WHERE id = ?`,
		endedAt.UTC(), transcript, metaJSON, id,
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// GetSession returns one session by identifier.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, started_at, ended_at, transcript_text, metadata_json
		 FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

// UpsertVocab inserts a vocabulary candidate or, if an item with the same
// (english, chinese) pair already exists, refreshes its pinyin and example
// only where the stored value is still empty. Review statistics, the creation
// timestamp and the first originating session are never touched by a
// re-sighting. Returns the item identifier.
func (s *Store) UpsertVocab(sessionID, english, chinese, pinyin, example string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	english = strings.TrimSpace(english)
	chinese = strings.TrimSpace(chinese)
	pinyin = strings.TrimSpace(pinyin)
	example = strings.TrimSpace(example)
	if english == "" && chinese == "" {
		return 0, fmt.Errorf("candidate has neither english nor chinese: %w", ErrInvalidState)
	}

	var id int64
	query := `INSERT INTO vocab (created_at, source_session_id, english, chinese, pinyin, example)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT(english, chinese)
			  DO UPDATE SET
			    pinyin  = COALESCE(NULLIF(vocab.pinyin, ''), excluded.pinyin),
				example = COALESCE(NULLIF(vocab.example, ''), excluded.example)
			  RETURNING id`

	err := s.db.QueryRow(query,
		s.Now().UTC(), nullableString(sessionID),
		english, chinese, nullableString(pinyin), nullableString(example),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert vocab: %w", err)
	}
	return id, nil
}

// RecordOutcome applies a review outcome to an item: seen_count increments,
// last_seen_at becomes now and last_result becomes the outcome, atomically.
func (s *Store) RecordOutcome(id int64, outcome Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !outcome.IsOutcome() {
		return fmt.Errorf("outcome %q: %w", outcome, ErrInvalidState)
	}
	res, err := s.db.Exec(
		`UPDATE vocab
		 SET seen_count = seen_count + 1, last_seen_at = ?, last_result = ?
		 WHERE id = ?`,
		s.Now().UTC(), string(outcome), id,
	)
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("vocab item %d: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteVocab fills the still-empty chinese, pinyin and example fields of an
// item, typically a partial candidate captured by the fallback extraction.
// Fields that already hold a value are left alone. A completion that would
// collide with another item's (english, chinese) pair surfaces the constraint
// error from the driver.
func (s *Store) CompleteVocab(id int64, chinese, pinyin, example string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE vocab
		 SET chinese = CASE WHEN chinese = '' THEN ? ELSE chinese END,
		     pinyin  = COALESCE(NULLIF(pinyin, ''), NULLIF(?, '')),
		     example = COALESCE(NULLIF(example, ''), NULLIF(?, ''))
		 WHERE id = ?`,
		strings.TrimSpace(chinese), strings.TrimSpace(pinyin), strings.TrimSpace(example), id,
	)
	if err != nil {
		return fmt.Errorf("complete vocab item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete vocab item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("vocab item %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetVocab returns one vocabulary item by identifier.
func (s *Store) GetVocab(id int64) (*VocabItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(vocabSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load vocab item %d: %w", id, err)
	}
	items, err := scanVocabRows(rows)
	if err != nil {
		return nil, fmt.Errorf("load vocab item %d: %w", id, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("vocab item %d: %w", id, ErrNotFound)
	}
	return &items[0], nil
}

// ListVocab returns vocabulary items newest first. limit <= 0 means no limit.
func (s *Store) ListVocab(limit int) ([]VocabItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		vocabSelect+` ORDER BY created_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list vocab: %w", err)
	}
	items, err := scanVocabRows(rows)
	if err != nil {
		return nil, fmt.Errorf("list vocab: %w", err)
	}
	return items, nil
}

// ListSessions returns sessions newest first. limit <= 0 means no limit.
func (s *Store) ListSessions(limit int) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, transcript_text, metadata_json
		 FROM sessions ORDER BY started_at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// ReviewCandidates returns a snapshot of every item eligible for review:
// those with both a non-empty english and chinese field.
func (s *Store) ReviewCandidates() ([]VocabItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		vocabSelect + ` WHERE english <> '' AND chinese <> '' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("review candidates: %w", err)
	}
	items, err := scanVocabRows(rows)
	if err != nil {
		return nil, fmt.Errorf("review candidates: %w", err)
	}
	return items, nil
}

const vocabSelect = `SELECT id, created_at, source_session_id, english, chinese,
	pinyin, example, seen_count, last_seen_at, last_result FROM vocab`

func scanVocabRows(rows *sql.Rows) ([]VocabItem, error) {
	defer rows.Close()
	var out []VocabItem
	for rows.Next() {
		var v VocabItem
		var src, pinyin, example, lastResult sql.NullString
		if err := rows.Scan(
			&v.ID, &v.CreatedAt, &src, &v.English, &v.Chinese,
			&pinyin, &example, &v.SeenCount, &v.LastSeenAt, &lastResult,
		); err != nil {
			return nil, err
		}
		v.SourceSessionID = src.String
		v.Pinyin = pinyin.String
		v.Example = example.String
		v.LastResult = Result(lastResult.String)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var transcript, metaJSON sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartedAt, &sess.EndedAt, &transcript, &metaJSON); err != nil {
		return nil, err
	}
	sess.Transcript = transcript.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &sess.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

// nullableString returns nil for "" (meaning no value) else the value.
func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// sqlLimit maps "no limit" onto SQLite's LIMIT -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
