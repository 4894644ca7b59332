package history

import (
	"fmt"
	"testing"
	"time"
)

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	s := NewStore(5, 2)
	for i := 0; i < 12; i++ {
		s.Append("u1", Turn{
			ID:        fmt.Sprintf("t%d", i),
			UserID:    "u1",
			Role:      RoleUser,
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: time.Now().UTC(),
		})
	}

	if got := s.Len("u1"); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}

	recent := s.Recent("u1", 10)
	if len(recent) != 5 {
		t.Fatalf("len(Recent) = %d, want 5", len(recent))
	}
	for i, turn := range recent {
		want := fmt.Sprintf("t%d", 7+i)
		if turn.ID != want {
			t.Fatalf("recent[%d].ID = %q, want %q", i, turn.ID, want)
		}
	}
}

func TestRecentReturnsChronologicalWindow(t *testing.T) {
	s := NewStore(10, 2)
	for i := 0; i < 4; i++ {
		s.Append("u1", Turn{ID: fmt.Sprintf("t%d", i), UserID: "u1"})
	}

	recent := s.Recent("u1", 2)
	if len(recent) != 2 {
		t.Fatalf("len(Recent) = %d, want 2", len(recent))
	}
	if recent[0].ID != "t2" || recent[1].ID != "t3" {
		t.Fatalf("Recent window = [%s %s], want [t2 t3]", recent[0].ID, recent[1].ID)
	}
}

func TestRecentImagesMostRecentFirst(t *testing.T) {
	s := NewStore(10, 2)
	s.Append("u1", Turn{ID: "a", Images: []string{"one.png"}})
	s.Append("u1", Turn{ID: "b", Images: []string{"two.png"}})
	s.Append("u1", Turn{ID: "c", Images: []string{"three.png"}})

	imgs := s.RecentImages("u1", 2)
	if len(imgs) != 2 {
		t.Fatalf("len(RecentImages) = %d, want 2", len(imgs))
	}
	if imgs[0] != "three.png" || imgs[1] != "two.png" {
		t.Fatalf("RecentImages = %v, want [three.png two.png]", imgs)
	}
}

func TestUnknownUserYieldsEmpty(t *testing.T) {
	s := NewStore(5, 2)
	if got := s.Recent("ghost", 3); len(got) != 0 {
		t.Fatalf("Recent for unknown user = %v, want empty", got)
	}
	if got := s.RecentImages("ghost", 3); len(got) != 0 {
		t.Fatalf("RecentImages for unknown user = %v, want empty", got)
	}
	if got := s.Len("ghost"); got != 0 {
		t.Fatalf("Len for unknown user = %d, want 0", got)
	}
}

func TestReturnedTurnsAreCopies(t *testing.T) {
	s := NewStore(5, 2)
	s.Append("u1", Turn{ID: "a", Images: []string{"one.png"}})

	got := s.Recent("u1", 1)
	got[0].Images[0] = "mutated.png"

	again := s.Recent("u1", 1)
	if again[0].Images[0] != "one.png" {
		t.Fatalf("stored turn mutated through returned slice: %v", again[0].Images)
	}
}
