package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/antoniostano/nerina/internal/brain"
	"github.com/antoniostano/nerina/internal/history"
	"github.com/antoniostano/nerina/internal/observability"
	"github.com/antoniostano/nerina/internal/profile"
	"github.com/antoniostano/nerina/internal/semantic"
)

// behaviorPrompt is the persona base. The karma directive and the per-user
// blocks are appended per turn.
const behaviorPrompt = `You are %[1]s, a calm and friendly companion. Keep replies short and natural, like a close friend texting. Do not use emojis. Answer in the language the user writes in. Never prefix your reply with your own name.

You may embed directives anywhere in your reply; they are removed before the user sees the text:
- {gen: description} to create an image for the user.
- {edit: instructions} to modify the user's image or one you made earlier.
- {karma:+1} or {karma:-1} (any small whole number) when the user is notably kind or notably hostile towards you.`

// Context is the fully assembled model input for one turn.
type Context struct {
	System   string
	Messages []brain.Message
	Facts    []semantic.Fact
	Profile  profile.Profile
}

// Assembler merges persona, profile state, recalled memory and the recent
// history window into the model input for one turn. Given the same store
// state it always produces the same Context.
type Assembler struct {
	agentName  string
	profiles   profile.Store
	memory     *semantic.Memory
	history    *history.Store
	textWindow int
	metrics    *observability.Metrics
}

func NewAssembler(agentName string, profiles profile.Store, memory *semantic.Memory, hist *history.Store, textWindow int, metrics *observability.Metrics) *Assembler {
	if textWindow <= 0 {
		textWindow = 5
	}
	return &Assembler{
		agentName:  agentName,
		profiles:   profiles,
		memory:     memory,
		history:    hist,
		textWindow: textWindow,
		metrics:    metrics,
	}
}

// Assemble builds the Context for one incoming turn. It performs no writes:
// a failing profile read degrades to the default profile, and recall is
// fail-closed, so a reply is always possible.
func (a *Assembler) Assemble(ctx context.Context, userID, text string, images []string) Context {
	prof, err := a.profiles.Get(ctx, userID)
	if err != nil {
		log.Printf("agent: load profile for %s: %v", userID, err)
		prof = profile.Profile{UserID: userID, Username: profile.DefaultUsername}
	}

	var facts []semantic.Fact
	if a.memory != nil && strings.TrimSpace(text) != "" {
		recallStart := time.Now()
		facts = a.memory.Recall(ctx, userID, text)
		a.metrics.ObserveRecallLatency(time.Since(recallStart))
		a.metrics.ObserveTurnStage("assemble_recall", time.Since(recallStart))
	}

	var sys strings.Builder
	fmt.Fprintf(&sys, behaviorPrompt, a.agentName)
	sys.WriteString("\n\n")
	sys.WriteString(directiveLine(profile.DirectiveFor(prof.Score)))

	if s := strings.TrimSpace(prof.Summary); s != "" {
		fmt.Fprintf(&sys, "\n\nWhat %s knows about %s:\n%s", a.agentName, prof.Username, s)
	}

	if recall := semantic.FormatRecall(a.agentName, facts); recall != "" {
		fmt.Fprintf(&sys, "\n\n%s knows these things:\n\n%s\n\nEnd of knowledge section", a.agentName, recall)
	}

	var msgs []brain.Message
	if a.history != nil {
		for _, turn := range a.history.Recent(userID, a.textWindow) {
			msgs = append(msgs, brain.Message{Role: roleFor(turn.Role), Content: turn.Content})
		}
	}
	msgs = append(msgs, brain.Message{Role: brain.RoleUser, Content: text, Images: images})

	return Context{
		System:   sys.String(),
		Messages: msgs,
		Facts:    facts,
		Profile:  prof,
	}
}

func directiveLine(d profile.Directive) string {
	switch d {
	case profile.DirectiveHostile:
		return "This user has treated you badly. Be curt and distant; answer but do not go out of your way to help."
	case profile.DirectiveHelpful:
		return "This user has been kind to you. Be warm, generous and extra helpful."
	default:
		return "Treat this user neutrally and stay even-toned."
	}
}

func roleFor(role string) string {
	if role == history.RoleAssistant {
		return brain.RoleAssistant
	}
	return brain.RoleUser
}
