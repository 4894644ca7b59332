package profile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func TestDirectiveBoundaries(t *testing.T) {
	cases := []struct {
		score int
		want  Directive
	}{
		{-100, DirectiveHostile},
		{-6, DirectiveHostile},
		{-5, DirectiveNeutral},
		{0, DirectiveNeutral},
		{5, DirectiveNeutral},
		{6, DirectiveHelpful},
		{100, DirectiveHelpful},
	}
	for _, tc := range cases {
		if got := DirectiveFor(tc.score); got != tc.want {
			t.Fatalf("DirectiveFor(%d) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestGetUnknownUserReturnsDefault(t *testing.T) {
	s := NewInMemoryStore()
	p, err := s.Get(context.Background(), "u-new")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Score != 0 || p.Summary != "" || p.Username != DefaultUsername {
		t.Fatalf("default profile = %+v, want zero score, empty summary, username %q", p, DefaultUsername)
	}
	// The default must not be written back.
	s.mu.RLock()
	_, stored := s.profiles["u-new"]
	s.mu.RUnlock()
	if stored {
		t.Fatalf("Get persisted a default profile")
	}
}

func TestInMemoryConcurrentKarma(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateKarma(ctx, "u1", 1); err != nil {
				t.Errorf("UpdateKarma: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Score != 10 {
		t.Fatalf("score after 10 concurrent +1 deltas = %d, want 10", p.Score)
	}
}

func TestInMemorySummaryRoundTrip(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.UpdateSummary(ctx, "u1", "likes jazz and rainy days"); err != nil {
		t.Fatalf("UpdateSummary: %v", err)
	}
	p, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Summary != "likes jazz and rainy days" {
		t.Fatalf("summary = %q, want the stored text", p.Summary)
	}
	if p.LastInteraction.IsZero() {
		t.Fatalf("LastInteraction not stamped by UpdateSummary")
	}
}

func TestSQLiteRoundTripSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")

	s, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if _, err := s.UpdateKarma(ctx, "u1", 3); err != nil {
		t.Fatalf("UpdateKarma: %v", err)
	}
	if err := s.UpdateSummary(ctx, "u1", "prefers short answers"); err != nil {
		t.Fatalf("UpdateSummary: %v", err)
	}
	if err := s.SetUsername(ctx, "u1", "ada"); err != nil {
		t.Fatalf("SetUsername: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	p, err := s2.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if p.Score != 3 {
		t.Fatalf("score after reopen = %d, want 3", p.Score)
	}
	if p.Summary != "prefers short answers" {
		t.Fatalf("summary after reopen = %q", p.Summary)
	}
	if p.Username != "ada" {
		t.Fatalf("username after reopen = %q, want %q", p.Username, "ada")
	}
	if p.LastInteraction.IsZero() {
		t.Fatalf("LastInteraction lost across reopen")
	}
}

func TestSQLiteConcurrentKarma(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateKarma(ctx, "u1", 1); err != nil {
				t.Errorf("UpdateKarma: %v", err)
			}
		}()
	}
	wg.Wait()

	p, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.Score != 10 {
		t.Fatalf("score after 10 concurrent +1 deltas = %d, want 10", p.Score)
	}
}

func TestNewStorePicksBackend(t *testing.T) {
	ctx := context.Background()

	s, err := NewStore(ctx, "", "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore with no backends = %T, want *InMemoryStore", s)
	}

	s, err = NewStore(ctx, "", filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("NewStore sqlite: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore with sqlite path = %T, want *SQLiteStore", s)
	}
}
