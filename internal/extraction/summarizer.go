package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/nerina/internal/brain"
)

// Summary refresh guards. Inputs below MinSummaryInput never trigger a
// refresh, and model output at or below MinSummaryLength is discarded as
// degenerate.
const (
	MinSummaryInput  = 5
	MinSummaryLength = 5
)

// Summarizer maintains the persona summary of a user with a model call per
// qualifying exchange.
type Summarizer struct {
	client     brain.Client
	agentName  string
	wordBudget int
}

func NewSummarizer(client brain.Client, agentName string, wordBudget int) *Summarizer {
	if wordBudget <= 0 {
		wordBudget = 60
	}
	return &Summarizer{client: client, agentName: agentName, wordBudget: wordBudget}
}

// Refresh rewrites the user's summary in light of the latest exchange. It
// reports whether a new summary should be saved; trivial inputs, degenerate
// output and unchanged summaries all report false with no error.
func (s *Summarizer) Refresh(ctx context.Context, current, userText, reply string) (string, bool, error) {
	if len(userText) < MinSummaryInput {
		return "", false, nil
	}
	if strings.TrimSpace(current) == "" {
		current = "No summary yet."
	}

	prompt := fmt.Sprintf(summaryPrompt, current, userText, s.agentName, reply, s.wordBudget)
	out, err := s.client.StreamReply(ctx, brain.GenerateRequest{
		Messages: []brain.Message{{Role: brain.RoleUser, Content: prompt}},
	}, nil)
	if err != nil {
		return "", false, fmt.Errorf("refresh summary: %w", err)
	}

	next := TruncateWords(strings.TrimSpace(out.Text), s.wordBudget)
	if len(next) <= MinSummaryLength || next == current {
		return "", false, nil
	}
	return next, true, nil
}

// TruncateWords caps s at n whitespace-separated words. The model usually
// honors the budget; this is the hard stop when it does not.
func TruncateWords(s string, n int) string {
	if n <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
