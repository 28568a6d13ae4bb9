package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Amaanudeen/ai-interview-bot/internal/interview"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string, endedAt time.Time) interview.Record {
	return interview.Record{
		SessionID:     id,
		Mode:          interview.ModeRole,
		Subject:       "Go Developer",
		QuestionCount: 2,
		Exchanges: []interview.Exchange{
			{Question: "q1", Answer: "a1", Feedback: "f1", Score: 0.8},
			{Question: "followup of q1", Answer: "a2", Feedback: "f2", Score: 0.6, IsFollowup: true},
			{Question: "q2", Answer: "a3", Feedback: "f3", Score: 0.9},
		},
		FinalFeedback: "solid candidate",
		StartedAt:     endedAt.Add(-30 * time.Minute),
		EndedAt:       endedAt,
	}
}

func TestArchiveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	endedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := s.Archive(ctx, sampleRecord("iv-1", endedAt)); err != nil {
		t.Fatalf("archive: %v", err)
	}

	iv, err := s.GetInterview("iv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if iv.ID != "iv-1" {
		t.Errorf("id = %q", iv.ID)
	}
	if iv.Mode != "role" {
		t.Errorf("mode = %q", iv.Mode)
	}
	if iv.QuestionCount != 2 {
		t.Errorf("question count = %d", iv.QuestionCount)
	}
	if iv.FinalFeedback != "solid candidate" {
		t.Errorf("final feedback = %q", iv.FinalFeedback)
	}
	if !iv.EndedAt.Equal(endedAt) {
		t.Errorf("ended_at = %v, want %v", iv.EndedAt, endedAt)
	}

	if len(iv.Exchanges) != 3 {
		t.Fatalf("exchanges = %d, want 3", len(iv.Exchanges))
	}
	if iv.Exchanges[0].Position != 0 || iv.Exchanges[0].Question != "q1" {
		t.Errorf("first exchange = %+v", iv.Exchanges[0])
	}
	if !iv.Exchanges[1].IsFollowup {
		t.Error("second exchange should be a follow-up")
	}
	if iv.Exchanges[2].Score != 0.9 {
		t.Errorf("third exchange score = %f", iv.Exchanges[2].Score)
	}
}

func TestArchiveReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	endedAt := time.Now().UTC().Truncate(time.Second)
	if err := s.Archive(ctx, sampleRecord("iv-1", endedAt)); err != nil {
		t.Fatalf("first archive: %v", err)
	}

	rec := sampleRecord("iv-1", endedAt)
	rec.FinalFeedback = "revised"
	rec.Exchanges = rec.Exchanges[:1]
	if err := s.Archive(ctx, rec); err != nil {
		t.Fatalf("second archive: %v", err)
	}

	iv, err := s.GetInterview("iv-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if iv.FinalFeedback != "revised" {
		t.Errorf("final feedback = %q", iv.FinalFeedback)
	}
	if len(iv.Exchanges) != 1 {
		t.Errorf("exchanges = %d, want 1 (old rows replaced)", len(iv.Exchanges))
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetInterview("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListInterviews(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"iv-a", "iv-b", "iv-c"} {
		rec := sampleRecord(id, base.Add(time.Duration(i)*time.Hour))
		if err := s.Archive(ctx, rec); err != nil {
			t.Fatalf("archive %s: %v", id, err)
		}
	}

	results, err := s.ListInterviews(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	// Most recently ended first.
	if results[0].ID != "iv-c" || results[1].ID != "iv-b" {
		t.Errorf("order = %s, %s", results[0].ID, results[1].ID)
	}
	if len(results[0].Exchanges) != 0 {
		t.Error("list should not load exchanges")
	}
}

func TestListEmpty(t *testing.T) {
	s := newTestStore(t)

	results, err := s.ListInterviews(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %d, want 0", len(results))
	}
}

func TestDeleteInterview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Archive(ctx, sampleRecord("iv-1", time.Now().UTC())); err != nil {
		t.Fatalf("archive: %v", err)
	}

	if err := s.DeleteInterview("iv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetInterview("iv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}

	if err := s.DeleteInterview("iv-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for absent id", err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)

	// Re-running against an already-migrated database is a no-op.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
