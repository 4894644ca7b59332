package semantic

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vecs[text]
	if !ok {
		return nil, fmt.Errorf("no embedding for %q", text)
	}
	return v, nil
}

// blockingStore stalls queries until the caller's context expires.
type blockingStore struct{}

func (blockingStore) Add(context.Context, Fact, []float32) error { return nil }
func (blockingStore) Query(ctx context.Context, _ string, _ []float32, _ int) ([]Fact, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (blockingStore) Close() error { return nil }

func newTestMemory(store Store) (*Memory, *fakeEmbedder) {
	emb := &fakeEmbedder{vecs: map[string][]float32{
		"i like cats": {1, 0, 0},
		"cats":        {0.9, 0.1, 0},
		"weather":     {0, 1, 0},
	}}
	return NewMemory(emb, store, 0.7, 2, time.Second), emb
}

func TestRememberThenRecall(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(NewInMemoryStore())

	if err := mem.Remember(ctx, "u1", "i like cats"); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	facts := mem.Recall(ctx, "u1", "cats")
	if len(facts) != 1 {
		t.Fatalf("Recall(cats) = %d facts, want 1", len(facts))
	}
	if facts[0].Content != "i like cats" {
		t.Fatalf("recalled %q, want %q", facts[0].Content, "i like cats")
	}
	if facts[0].Distance >= 0.7 {
		t.Fatalf("distance %f not below threshold", facts[0].Distance)
	}

	// An orthogonal query sits at distance 1 and must not surface the fact.
	if facts := mem.Recall(ctx, "u1", "weather"); len(facts) != 0 {
		t.Fatalf("Recall(weather) = %d facts, want 0", len(facts))
	}
}

func TestRecallIsScopedPerUser(t *testing.T) {
	ctx := context.Background()
	mem, _ := newTestMemory(NewInMemoryStore())

	if err := mem.Remember(ctx, "u1", "i like cats"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if facts := mem.Recall(ctx, "u2", "cats"); len(facts) != 0 {
		t.Fatalf("user u2 recalled %d of u1's facts, want 0", len(facts))
	}
}

func TestDuplicateFactsCollapse(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	mem, _ := newTestMemory(store)

	for i := 0; i < 3; i++ {
		if err := mem.Remember(ctx, "u1", "i like cats"); err != nil {
			t.Fatalf("Remember: %v", err)
		}
	}
	store.mu.RLock()
	n := len(store.facts["u1"])
	store.mu.RUnlock()
	if n != 1 {
		t.Fatalf("stored %d facts for repeated content, want 1", n)
	}
}

func TestRecallFailsClosedOnEmbedderError(t *testing.T) {
	mem, emb := newTestMemory(NewInMemoryStore())
	emb.err = errors.New("embedding backend down")

	if facts := mem.Recall(context.Background(), "u1", "cats"); facts != nil {
		t.Fatalf("Recall with broken embedder = %v, want nil", facts)
	}
}

func TestRecallFailsClosedOnSlowStore(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{"cats": {1, 0, 0}}}
	mem := NewMemory(emb, blockingStore{}, 0.7, 2, 20*time.Millisecond)

	start := time.Now()
	facts := mem.Recall(context.Background(), "u1", "cats")
	if facts != nil {
		t.Fatalf("Recall against stalled store = %v, want nil", facts)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Recall took %v, want the internal timeout to cut it off", elapsed)
	}
}

func TestFilterByThreshold(t *testing.T) {
	facts := []Fact{
		{Content: "near", Distance: 0.1},
		{Content: "at threshold", Distance: 0.7},
		{Content: "far", Distance: 0.9},
	}
	got := FilterByThreshold(facts, 0.7)
	if len(got) != 1 || got[0].Content != "near" {
		t.Fatalf("FilterByThreshold = %v, want only the near fact", got)
	}
	if got := FilterByThreshold(nil, 0.7); len(got) != 0 {
		t.Fatalf("FilterByThreshold(nil) = %v, want empty", got)
	}
}

func TestFactIDStableAndUserScoped(t *testing.T) {
	a := FactID("u1", "i like cats")
	b := FactID("u1", "i like cats")
	c := FactID("u2", "i like cats")
	if a != b {
		t.Fatalf("FactID not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("FactID identical across users")
	}
}

func TestChromemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewChromemStore(filepath.Join(t.TempDir(), "mem"))
	if err != nil {
		t.Fatalf("NewChromemStore: %v", err)
	}
	defer store.Close()

	old := Fact{ID: FactID("u1", "likes tea"), UserID: "u1", Content: "likes tea", CreatedAt: time.Now().Add(-time.Hour)}
	if err := store.Add(ctx, old, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	other := Fact{ID: FactID("u1", "plays chess"), UserID: "u1", Content: "plays chess", CreatedAt: time.Now()}
	if err := store.Add(ctx, other, []float32{0, 1, 0}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	facts, err := store.Query(ctx, "u1", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Query = %d facts, want 2", len(facts))
	}
	if facts[0].Content != "likes tea" {
		t.Fatalf("nearest fact = %q, want %q", facts[0].Content, "likes tea")
	}
	if facts[0].Distance >= facts[1].Distance {
		t.Fatalf("results not ordered by distance: %f then %f", facts[0].Distance, facts[1].Distance)
	}
	if facts[0].CreatedAt.IsZero() {
		t.Fatalf("CreatedAt lost through chromem round trip")
	}

	// Empty collection for another user must yield nothing, not an error.
	facts, err = store.Query(ctx, "u2", []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query empty user: %v", err)
	}
	if len(facts) != 0 {
		t.Fatalf("Query empty user = %d facts, want 0", len(facts))
	}
}

func TestFormatRecall(t *testing.T) {
	if got := FormatRecall("Nerina", nil); got != "" {
		t.Fatalf("FormatRecall(empty) = %q, want empty", got)
	}

	day := 24 * time.Hour
	facts := []Fact{
		{Content: "likes tea", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{Content: "plays chess", CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(2 * day)},
	}
	got := FormatRecall("Nerina", facts)
	want := "Nerina remembers about you (recent first):\n- [2026-03-03] plays chess\n- [2026-03-01] likes tea"
	if got != want {
		t.Fatalf("FormatRecall =\n%q\nwant\n%q", got, want)
	}
	if strings.Count(got, "\n") != 2 {
		t.Fatalf("unexpected trailing newline in %q", got)
	}
}

func TestCosineSimilarityEdges(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); got != 0 {
		t.Fatalf("mismatched lengths = %f, want 0", got)
	}
	if got := cosineSimilarity([]float32{0, 0}, []float32{0, 0}); got != 0 {
		t.Fatalf("zero vectors = %f, want 0", got)
	}
	if got := cosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Fatalf("identical vectors = %f, want ~1", got)
	}
}
