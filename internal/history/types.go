package history

import "time"

// Turn is one exchange unit in a user's short-term history. Turns are
// immutable once appended; callers receive copies, never internal slices.
type Turn struct {
	ID        string
	UserID    string
	Username  string
	Role      string
	Content   string
	Images    []string
	CreatedAt time.Time
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

func cloneTurn(t Turn) Turn {
	out := t
	if len(t.Images) > 0 {
		out.Images = append([]string(nil), t.Images...)
	}
	return out
}
