package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/antoniostano/nerina/internal/brain"
	"github.com/antoniostano/nerina/internal/history"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
)

type countingEmbedder struct{ calls atomic.Int64 }

func (e *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls.Add(1)
	return []float32{1, 0, 0}, nil
}

// failingProfiles errors on every call, standing in for a dead database.
type failingProfiles struct{}

func (failingProfiles) Get(context.Context, string) (profile.Profile, error) {
	return profile.Profile{}, errors.New("profile backend down")
}
func (failingProfiles) UpdateKarma(context.Context, string, int) (int, error) {
	return 0, errors.New("profile backend down")
}
func (failingProfiles) UpdateSummary(context.Context, string, string) error {
	return errors.New("profile backend down")
}
func (failingProfiles) SetUsername(context.Context, string, string) error {
	return errors.New("profile backend down")
}
func (failingProfiles) Close() error { return nil }

func TestDirectiveFollowsKarmaBoundaries(t *testing.T) {
	const (
		hostileLine = "curt and distant"
		neutralLine = "Treat this user neutrally"
		helpfulLine = "warm, generous"
	)
	tests := []struct {
		score int
		want  string
	}{
		{-6, hostileLine},
		{-5, neutralLine},
		{0, neutralLine},
		{5, neutralLine},
		{6, helpfulLine},
	}

	for _, tt := range tests {
		profiles := profile.NewInMemoryStore()
		if _, err := profiles.UpdateKarma(context.Background(), "alice", tt.score); err != nil {
			t.Fatalf("UpdateKarma() error = %v", err)
		}
		a := NewAssembler("Nerina", profiles, nil, history.NewStore(20, 3), 5, nil)

		got := a.Assemble(context.Background(), "alice", "hi", nil)
		if !strings.Contains(got.System, tt.want) {
			t.Fatalf("score %d: system prompt missing %q:\n%s", tt.score, tt.want, got.System)
		}
		for _, other := range []string{hostileLine, neutralLine, helpfulLine} {
			if other != tt.want && strings.Contains(got.System, other) {
				t.Fatalf("score %d: system prompt carries conflicting directive %q", tt.score, other)
			}
		}
	}
}

func TestSummaryBlockAppearsOnlyWhenSet(t *testing.T) {
	ctx := context.Background()
	profiles := profile.NewInMemoryStore()
	a := NewAssembler("Nerina", profiles, nil, history.NewStore(20, 3), 5, nil)

	got := a.Assemble(ctx, "alice", "hi", nil)
	if strings.Contains(got.System, "knows about") {
		t.Fatalf("system prompt has a summary block with no summary set:\n%s", got.System)
	}

	if err := profiles.SetUsername(ctx, "alice", "Ada"); err != nil {
		t.Fatalf("SetUsername() error = %v", err)
	}
	if err := profiles.UpdateSummary(ctx, "alice", "Likes trains, dislikes small talk."); err != nil {
		t.Fatalf("UpdateSummary() error = %v", err)
	}

	got = a.Assemble(ctx, "alice", "hi", nil)
	want := "What Nerina knows about Ada:\nLikes trains, dislikes small talk."
	if !strings.Contains(got.System, want) {
		t.Fatalf("system prompt missing %q:\n%s", want, got.System)
	}
}

func TestRecalledFactsRenderAsKnowledgeSection(t *testing.T) {
	ctx := context.Background()
	emb := &countingEmbedder{}
	memory := semantic.NewMemory(emb, semantic.NewInMemoryStore(), 2, 2, 350*time.Millisecond)
	if err := memory.Remember(ctx, "alice", "Q: What does the user like? A: cats"); err != nil {
		t.Fatalf("Remember() error = %v", err)
	}

	a := NewAssembler("Nerina", profile.NewInMemoryStore(), memory, history.NewStore(20, 3), 5, nil)
	got := a.Assemble(ctx, "alice", "what do I like", nil)

	if len(got.Facts) != 1 {
		t.Fatalf("Facts = %d, want 1", len(got.Facts))
	}
	for _, want := range []string{
		"Nerina knows these things:",
		"Nerina remembers about you (recent first):",
		"Q: What does the user like? A: cats",
		"End of knowledge section",
	} {
		if !strings.Contains(got.System, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, got.System)
		}
	}
}

func TestKnowledgeSectionAbsentWithoutFacts(t *testing.T) {
	a := NewAssembler("Nerina", profile.NewInMemoryStore(), nil, history.NewStore(20, 3), 5, nil)
	got := a.Assemble(context.Background(), "alice", "hi", nil)
	if strings.Contains(got.System, "knows these things") {
		t.Fatalf("system prompt has a knowledge section with no memory wired:\n%s", got.System)
	}
}

func TestRecallSkippedForBlankText(t *testing.T) {
	emb := &countingEmbedder{}
	memory := semantic.NewMemory(emb, semantic.NewInMemoryStore(), 2, 2, 350*time.Millisecond)
	a := NewAssembler("Nerina", profile.NewInMemoryStore(), memory, history.NewStore(20, 3), 5, nil)

	got := a.Assemble(context.Background(), "alice", "   ", []string{"aGk="})
	if got.Facts != nil {
		t.Fatalf("Facts = %v, want none for an image-only turn", got.Facts)
	}
	if emb.calls.Load() != 0 {
		t.Fatalf("embedder calls = %d, want 0 for an image-only turn", emb.calls.Load())
	}
}

func TestHistoryWindowIsBounded(t *testing.T) {
	hist := history.NewStore(20, 3)
	for i, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		role := history.RoleUser
		if i%2 == 1 {
			role = history.RoleAssistant
		}
		hist.Append("alice", history.Turn{ID: text, UserID: "alice", Role: role, Content: text, CreatedAt: time.Now()})
	}

	a := NewAssembler("Nerina", profile.NewInMemoryStore(), nil, hist, 3, nil)
	got := a.Assemble(context.Background(), "alice", "current question", []string{"aGk="})

	if len(got.Messages) != 4 {
		t.Fatalf("Messages = %d, want 3 history turns plus the current one", len(got.Messages))
	}
	if got.Messages[0].Content != "m3" || got.Messages[0].Role != brain.RoleUser {
		t.Fatalf("Messages[0] = %+v, want the oldest windowed user turn m3", got.Messages[0])
	}
	if got.Messages[1].Content != "m4" || got.Messages[1].Role != brain.RoleAssistant {
		t.Fatalf("Messages[1] = %+v, want assistant turn m4", got.Messages[1])
	}

	last := got.Messages[len(got.Messages)-1]
	if last.Role != brain.RoleUser || last.Content != "current question" {
		t.Fatalf("last message = %+v, want the current turn", last)
	}
	if len(last.Images) != 1 || last.Images[0] != "aGk=" {
		t.Fatalf("last message images = %v, want the attachment", last.Images)
	}
}

func TestProfileReadFailureDegradesToDefault(t *testing.T) {
	a := NewAssembler("Nerina", failingProfiles{}, nil, history.NewStore(20, 3), 5, nil)
	got := a.Assemble(context.Background(), "alice", "hi", nil)

	if got.Profile.Username != profile.DefaultUsername || got.Profile.Score != 0 {
		t.Fatalf("Profile = %+v, want the default profile", got.Profile)
	}
	if !strings.Contains(got.System, "Treat this user neutrally") {
		t.Fatalf("system prompt not neutral after degraded read:\n%s", got.System)
	}
}
