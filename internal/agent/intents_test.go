package agent

import (
	"reflect"
	"strings"
	"testing"
)

func TestScanReply(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		visible string
		intents []Intent
	}{
		{
			name:    "plain text passes through",
			raw:     "Hello there!",
			visible: "Hello there!",
		},
		{
			name:    "generate tag with prompt",
			raw:     "Sure! {gen: a red fox in snow}",
			visible: "Sure!",
			intents: []Intent{{Kind: IntentGenerate, Prompt: "a red fox in snow"}},
		},
		{
			name:    "bare generate tag",
			raw:     "Here you go {gen}",
			visible: "Here you go",
			intents: []Intent{{Kind: IntentGenerate}},
		},
		{
			name:    "edit tag",
			raw:     "{edit: make the sky purple} done",
			visible: "done",
			intents: []Intent{{Kind: IntentEdit, Prompt: "make the sky purple"}},
		},
		{
			name:    "positive karma with sign",
			raw:     "{karma:+1} Thanks, that was kind.",
			visible: "Thanks, that was kind.",
			intents: []Intent{{Kind: IntentKarma, Delta: 1}},
		},
		{
			name:    "negative karma",
			raw:     "Fine. {karma:-2}",
			visible: "Fine.",
			intents: []Intent{{Kind: IntentKarma, Delta: -2}},
		},
		{
			name:    "multiple tags in one reply",
			raw:     "Here you go {gen: a cat}{karma:+1}",
			visible: "Here you go",
			intents: []Intent{{Kind: IntentGenerate, Prompt: "a cat"}, {Kind: IntentKarma, Delta: 1}},
		},
		{
			name:    "zero karma is dropped",
			raw:     "ok {karma:0}",
			visible: "ok",
		},
		{
			name:    "unparseable karma is dropped",
			raw:     "ok {karma:lots}",
			visible: "ok",
		},
		{
			name:    "unknown tag is stripped silently",
			raw:     "ok {selfdestruct} bye",
			visible: "ok  bye",
		},
		{
			name:    "json braces stay visible",
			raw:     `reply with {"name": "x"} exactly`,
			visible: `reply with {"name": "x"} exactly`,
		},
		{
			name:    "set notation stays visible",
			raw:     "the set {1, 2, 3} is small",
			visible: "the set {1, 2, 3} is small",
		},
		{
			name:    "unclosed brace is prose",
			raw:     "an unclosed { stays put",
			visible: "an unclosed { stays put",
		},
		{
			name:    "newline inside braces is prose",
			raw:     "{gen: a\nb}",
			visible: "{gen: a\nb}",
		},
		{
			name:    "uppercase name is prose",
			raw:     "press {Enter} now",
			visible: "press {Enter} now",
		},
		{
			name:    "tag after non-tag brace",
			raw:     "code {x=1} then {karma:+3}",
			visible: "code {x=1} then",
			intents: []Intent{{Kind: IntentKarma, Delta: 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visible, intents := ScanReply(tt.raw)
			if visible != tt.visible {
				t.Fatalf("visible = %q, want %q", visible, tt.visible)
			}
			if !reflect.DeepEqual(intents, tt.intents) {
				t.Fatalf("intents = %+v, want %+v", intents, tt.intents)
			}
		})
	}
}

func TestIntentKindString(t *testing.T) {
	pairs := map[IntentKind]string{
		IntentNone:     "none",
		IntentGenerate: "generate",
		IntentEdit:     "edit",
		IntentKarma:    "karma",
	}
	for kind, want := range pairs {
		if got := kind.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}

func collectFilter(t *testing.T, deltas ...string) []string {
	t.Helper()
	var out []string
	f := NewDeltaFilter(func(s string) error {
		out = append(out, s)
		return nil
	})
	for _, d := range deltas {
		if err := f.Write(d); err != nil {
			t.Fatalf("Write(%q) error = %v", d, err)
		}
	}
	if err := f.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return out
}

func TestDeltaFilterDropsTagSplitAcrossDeltas(t *testing.T) {
	out := collectFilter(t, "Sure {ka", "rma:+1}", " friend")
	got := strings.Join(out, "")
	if got != "Sure  friend" {
		t.Fatalf("emitted = %q, want %q", got, "Sure  friend")
	}
	for _, chunk := range out {
		if strings.Contains(chunk, "{") {
			t.Fatalf("emitted chunk %q leaks a brace", chunk)
		}
	}
}

func TestDeltaFilterReleasesNonTagBraces(t *testing.T) {
	out := collectFilter(t, "a {1,", "2} set")
	if got := strings.Join(out, ""); got != "a {1,2} set" {
		t.Fatalf("emitted = %q, want %q", got, "a {1,2} set")
	}
}

func TestDeltaFilterFlushReleasesUnclosedTag(t *testing.T) {
	out := collectFilter(t, "trailing {gen: unfinished")
	if got := strings.Join(out, ""); got != "trailing {gen: unfinished" {
		t.Fatalf("emitted = %q, want %q", got, "trailing {gen: unfinished")
	}
}

func TestDeltaFilterNewlineEndsTagCandidate(t *testing.T) {
	out := collectFilter(t, "{gen: a\nplain text")
	if got := strings.Join(out, ""); got != "{gen: a\nplain text" {
		t.Fatalf("emitted = %q, want %q", got, "{gen: a\nplain text")
	}
}

func TestDeltaFilterDoesNotHoldPlainProse(t *testing.T) {
	var out []string
	f := NewDeltaFilter(func(s string) error {
		out = append(out, s)
		return nil
	})
	if err := f.Write("no braces here"); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// Prose must be delivered immediately, before any Flush.
	if got := strings.Join(out, ""); got != "no braces here" {
		t.Fatalf("emitted before flush = %q, want %q", got, "no braces here")
	}
}
