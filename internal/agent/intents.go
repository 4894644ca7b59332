package agent

import (
	"strconv"
	"strings"
)

// IntentKind discriminates directives the model can embed in a reply.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentGenerate
	IntentEdit
	IntentKarma
)

func (k IntentKind) String() string {
	switch k {
	case IntentGenerate:
		return "generate"
	case IntentEdit:
		return "edit"
	case IntentKarma:
		return "karma"
	default:
		return "none"
	}
}

// Intent is one parsed reply directive.
type Intent struct {
	Kind   IntentKind
	Prompt string // payload for Generate and Edit
	Delta  int    // payload for Karma
}

// ScanReply splits a raw model reply into visible text and the typed intents
// embedded in it. A tag is "{name}" or "{name: arg}" with a lowercase name
// and no brace or newline inside; braced text of any other shape is ordinary
// prose and stays visible. Known tags become intents, unknown and malformed
// ones are dropped silently, and every tag is removed from the visible text.
func ScanReply(raw string) (string, []Intent) {
	var (
		visible strings.Builder
		intents []Intent
	)

	for i := 0; i < len(raw); {
		open := strings.IndexByte(raw[i:], '{')
		if open < 0 {
			visible.WriteString(raw[i:])
			break
		}
		open += i
		visible.WriteString(raw[i:open])

		end := strings.IndexByte(raw[open:], '}')
		if end < 0 {
			// Unclosed brace: prose to the end.
			visible.WriteString(raw[open:])
			break
		}
		end += open

		body := raw[open+1 : end]
		if !validTagBody(body) {
			visible.WriteByte('{')
			i = open + 1
			continue
		}
		if intent, ok := parseTag(body); ok {
			intents = append(intents, intent)
		}
		i = end + 1
	}

	return strings.TrimSpace(visible.String()), intents
}

// validTagBody reports whether the text between braces has tag shape:
// a lowercase name, optionally followed by a colon and an argument.
func validTagBody(body string) bool {
	if strings.ContainsAny(body, "{\n") {
		return false
	}
	name := body
	if c := strings.IndexByte(body, ':'); c >= 0 {
		name = body[:c]
	}
	return isLowerAlpha(name)
}

func isLowerAlpha(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// parseTag maps a validated tag body to an intent. Unknown names and bad
// payloads report false; the tag is stripped either way.
func parseTag(body string) (Intent, bool) {
	name, arg, _ := strings.Cut(body, ":")
	arg = strings.TrimSpace(arg)

	switch name {
	case "gen":
		return Intent{Kind: IntentGenerate, Prompt: arg}, true
	case "edit":
		return Intent{Kind: IntentEdit, Prompt: arg}, true
	case "karma":
		delta, err := strconv.Atoi(arg)
		if err != nil || delta == 0 {
			return Intent{}, false
		}
		return Intent{Kind: IntentKarma, Delta: delta}, true
	default:
		return Intent{}, false
	}
}
