package db

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	s := New(conn)
	s.NewID = sequentialIDs()
	return s
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "session-" + string(rune('0'+n))
	}
}

func fixedClock(s *Store, at time.Time) {
	s.Now = func() time.Time { return at }
}

func TestSessionLifecycle(t *testing.T) {
	s := setupTestStore(t)
	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	id, err := s.CreateSession(started)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	ended := started.Add(20 * time.Minute)
	meta := map[string]string{"conversation_id": "conv-42"}
	if err := s.CloseSession(id, ended, "Agent: 你好", meta); err != nil {
		t.Fatalf("close session: %v", err)
	}

	sess, err := s.GetSession(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !sess.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", sess.StartedAt, started)
	}
	if !sess.EndedAt.Valid || !sess.EndedAt.Time.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", sess.EndedAt, ended)
	}
	if sess.Transcript != "Agent: 你好" {
		t.Errorf("transcript = %q", sess.Transcript)
	}
	if sess.Metadata["conversation_id"] != "conv-42" {
		t.Errorf("metadata = %v", sess.Metadata)
	}
}

func TestCloseSessionErrors(t *testing.T) {
	s := setupTestStore(t)

	err := s.CloseSession("missing", time.Now(), "", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("close unknown session: got %v, want ErrNotFound", err)
	}

	id, err := s.CreateSession(time.Now())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.CloseSession(id, time.Now(), "t", nil); err != nil {
		t.Fatalf("close session: %v", err)
	}
	err = s.CloseSession(id, time.Now(), "again", nil)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("double close: got %v, want ErrInvalidState", err)
	}
}

func TestUpsertVocabIdempotent(t *testing.T) {
	s := setupTestStore(t)

	id1, err := s.UpsertVocab("", "grocery store", "超市", "chāoshì", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	id2, err := s.UpsertVocab("", "grocery store", "超市", "", "我去超市。")
	if err != nil {
		t.Fatalf("re-sight: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}

	item, err := s.GetVocab(id1)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.SeenCount != 0 {
		t.Errorf("seen_count = %d after re-sighting, want 0", item.SeenCount)
	}
	items, err := s.ListVocab(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 stored item, got %d", len(items))
	}
}

func TestUpsertVocabKeepsExistingFields(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.UpsertVocab("", "bus", "公交车", "gōngjiāochē", "我坐公交车上班。")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	// Re-sighting with an empty pinyin and a different example must not
	// clobber what was recorded first.
	if _, err := s.UpsertVocab("", "bus", "公交车", "", "另一个例句。"); err != nil {
		t.Fatalf("re-sight: %v", err)
	}

	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.Pinyin != "gōngjiāochē" {
		t.Errorf("pinyin = %q, want gōngjiāochē", item.Pinyin)
	}
	if item.Example != "我坐公交车上班。" {
		t.Errorf("example = %q, want the original example", item.Example)
	}
}

func TestUpsertVocabFillsMissingFields(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.UpsertVocab("", "fruit", "水果", "", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertVocab("", "fruit", "水果", "shuǐguǒ", "我想买水果。"); err != nil {
		t.Fatalf("re-sight: %v", err)
	}

	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.Pinyin != "shuǐguǒ" {
		t.Errorf("pinyin = %q, want shuǐguǒ", item.Pinyin)
	}
	if item.Example != "我想买水果。" {
		t.Errorf("example = %q", item.Example)
	}
}

func TestUpsertVocabPartialItems(t *testing.T) {
	s := setupTestStore(t)

	id1, err := s.UpsertVocab("", "overslept", "", "", "今天早上 I overslept.")
	if err != nil {
		t.Fatalf("upsert partial: %v", err)
	}
	id2, err := s.UpsertVocab("", "overslept", "", "", "")
	if err != nil {
		t.Fatalf("re-sight partial: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("partial items with the same pair should dedup, got %d and %d", id1, id2)
	}

	if _, err := s.UpsertVocab("", "", "", "", "例句"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("both-empty candidate: got %v, want ErrInvalidState", err)
	}
}

func TestUpsertVocabKeepsFirstSession(t *testing.T) {
	s := setupTestStore(t)

	first, err := s.CreateSession(time.Now())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	second, err := s.CreateSession(time.Now())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	id, err := s.UpsertVocab(first, "fruit", "水果", "shuǐguǒ", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertVocab(second, "fruit", "水果", "", ""); err != nil {
		t.Fatalf("re-sight: %v", err)
	}

	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.SourceSessionID != first {
		t.Errorf("source_session_id = %q, want the first session %q", item.SourceSessionID, first)
	}
}

func TestRecordOutcome(t *testing.T) {
	s := setupTestStore(t)
	reviewedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	fixedClock(s, reviewedAt)

	id, err := s.UpsertVocab("", "fruit", "水果", "shuǐguǒ", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.RecordOutcome(id, ResultFail); err != nil {
		t.Fatalf("record fail: %v", err)
	}
	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.SeenCount != 1 {
		t.Errorf("seen_count = %d, want 1", item.SeenCount)
	}
	if item.LastResult != ResultFail {
		t.Errorf("last_result = %q, want fail", item.LastResult)
	}
	if !item.LastSeenAt.Valid || !item.LastSeenAt.Time.Equal(reviewedAt) {
		t.Errorf("last_seen_at = %v, want %v", item.LastSeenAt, reviewedAt)
	}

	if err := s.RecordOutcome(id, ResultPass); err != nil {
		t.Fatalf("record pass: %v", err)
	}
	item, err = s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.SeenCount != 2 {
		t.Errorf("seen_count = %d, want 2", item.SeenCount)
	}
	if item.LastResult != ResultPass {
		t.Errorf("last_result = %q, want pass", item.LastResult)
	}
}

func TestRecordOutcomeErrors(t *testing.T) {
	s := setupTestStore(t)

	if err := s.RecordOutcome(999, ResultPass); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown item: got %v, want ErrNotFound", err)
	}

	id, err := s.UpsertVocab("", "fruit", "水果", "", "")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.RecordOutcome(id, Result("maybe")); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("bad outcome: got %v, want ErrInvalidState", err)
	}
	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.SeenCount != 0 {
		t.Errorf("seen_count changed by rejected outcome: %d", item.SeenCount)
	}
}

func TestCompleteVocab(t *testing.T) {
	s := setupTestStore(t)

	id, err := s.UpsertVocab("", "grocery store", "", "", "我今天 I went to the grocery store.")
	if err != nil {
		t.Fatalf("upsert partial: %v", err)
	}
	if err := s.CompleteVocab(id, "超市", "chāoshì", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	item, err := s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.Chinese != "超市" || item.Pinyin != "chāoshì" {
		t.Errorf("completed item = %+v", item)
	}
	if item.Example != "我今天 I went to the grocery store." {
		t.Errorf("example overwritten: %q", item.Example)
	}

	// A second completion must not overwrite the now non-empty fields.
	if err := s.CompleteVocab(id, "别的", "biéde", "换个例句"); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	item, err = s.GetVocab(id)
	if err != nil {
		t.Fatalf("get vocab: %v", err)
	}
	if item.Chinese != "超市" || item.Pinyin != "chāoshì" {
		t.Errorf("non-empty fields overwritten: %+v", item)
	}

	if err := s.CompleteVocab(12345, "超市", "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown item: got %v, want ErrNotFound", err)
	}
}

func TestReviewCandidatesExcludesPartialItems(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.UpsertVocab("", "fruit", "水果", "shuǐguǒ", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := s.UpsertVocab("", "overslept", "", "", "今天早上 I overslept."); err != nil {
		t.Fatalf("upsert partial: %v", err)
	}

	items, err := s.ReviewCandidates()
	if err != nil {
		t.Fatalf("review candidates: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(items))
	}
	if items[0].English != "fruit" {
		t.Errorf("candidate = %+v", items[0])
	}
}

func TestListVocabNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	fixedClock(s, base)
	if _, err := s.UpsertVocab("", "fruit", "水果", "", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	fixedClock(s, base.Add(time.Hour))
	if _, err := s.UpsertVocab("", "bus", "公交车", "", ""); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	items, err := s.ListVocab(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].English != "bus" || items[1].English != "fruit" {
		t.Errorf("order = [%s, %s], want newest first", items[0].English, items[1].English)
	}

	limited, err := s.ListVocab(1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 item with limit, got %d", len(limited))
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	older, err := s.CreateSession(base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	newer, err := s.CreateSession(base.Add(time.Hour))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	sessions, err := s.ListSessions(10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != newer || sessions[1].ID != older {
		t.Errorf("order = [%s, %s], want newest first", sessions[0].ID, sessions[1].ID)
	}
}
