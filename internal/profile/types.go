package profile

import (
	"context"
	"time"
)

// Profile is the durable per-user record: reputation score, persona summary,
// and the last username the user was seen with.
type Profile struct {
	UserID          string    `json:"user_id"`
	Username        string    `json:"username"`
	Score           int       `json:"score"`
	Summary         string    `json:"summary"`
	LastInteraction time.Time `json:"last_interaction"`
	UpdatedAt       time.Time `json:"updated_at"`
}

const DefaultUsername = "Unknown"

// Store persists profiles. Every mutation is durably flushed before the call
// returns; a mutation error means the caller must not assume the new state.
type Store interface {
	// Get returns the stored profile, or a default (score 0, empty summary)
	// for users never seen before. The default is not written back.
	Get(ctx context.Context, userID string) (Profile, error)
	// UpdateKarma atomically applies delta and returns the new score.
	UpdateKarma(ctx context.Context, userID string, delta int) (int, error)
	// UpdateSummary replaces the persona summary and stamps LastInteraction.
	UpdateSummary(ctx context.Context, userID, summary string) error
	// SetUsername records the user's current display name, creating the
	// profile if needed.
	SetUsername(ctx context.Context, userID, username string) error
	Close() error
}

func defaultProfile(userID string) Profile {
	return Profile{
		UserID:   userID,
		Username: DefaultUsername,
	}
}

// Directive is the behavior mode the assembler derives from karma.
type Directive string

const (
	DirectiveHostile Directive = "hostile"
	DirectiveNeutral Directive = "neutral"
	DirectiveHelpful Directive = "helpful"
)

// DirectiveFor maps a karma score to a behavior directive. Boundaries are
// inclusive at -5 and 5: both map to neutral.
func DirectiveFor(score int) Directive {
	switch {
	case score < -5:
		return DirectiveHostile
	case score > 5:
		return DirectiveHelpful
	default:
		return DirectiveNeutral
	}
}
