package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/antoniostano/nerina/internal/brain"
)

// MinFactInput is the minimum trimmed user input length that triggers fact
// extraction. Anything shorter is not worth a model call.
const MinFactInput = 3

// Pair is one extracted question/answer fact.
type Pair struct {
	Question string
	Answer   string
}

// Content renders the canonical stored form of the fact.
func (p Pair) Content() string {
	return fmt.Sprintf("Q: %s A: %s", p.Question, p.Answer)
}

// Extractor distills a finished exchange into candidate facts with a model
// call.
type Extractor struct {
	client    brain.Client
	agentName string
}

func NewExtractor(client brain.Client, agentName string) *Extractor {
	return &Extractor{client: client, agentName: agentName}
}

// ExtractFacts asks the model for salient facts about the exchange. Inputs
// shorter than MinFactInput return no facts without calling the model.
func (e *Extractor) ExtractFacts(ctx context.Context, userID, userText, reply string) ([]Pair, error) {
	if len(strings.TrimSpace(userText)) < MinFactInput {
		return nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Participating User ID: %s\n", userID)
	fmt.Fprintf(&b, "USER: %s\n", userText)
	fmt.Fprintf(&b, "%s: %s\n", e.agentName, reply)
	b.WriteString(factPrompt)

	out, err := e.client.StreamReply(ctx, brain.GenerateRequest{
		Messages: []brain.Message{{Role: brain.RoleUser, Content: b.String()}},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("extract facts: %w", err)
	}
	return ParseFacts(out.Text), nil
}

// ParseFacts parses extraction output into question/answer pairs. Output
// containing the NO_MEMORY sentinel yields nothing. Items missing either
// side are dropped.
func ParseFacts(output string) []Pair {
	if output == "" || strings.Contains(output, NoMemorySentinel) {
		return nil
	}
	var pairs []Pair
	for _, part := range strings.Split(output, qaMarker) {
		q, a, ok := strings.Cut(part, answerMarker)
		if !ok {
			continue
		}
		q = strings.TrimSpace(q)
		a = strings.TrimSpace(a)
		if q == "" || a == "" {
			continue
		}
		pairs = append(pairs, Pair{Question: q, Answer: a})
	}
	return pairs
}
