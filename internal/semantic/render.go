package semantic

import (
	"fmt"
	"sort"
	"strings"
)

// FormatRecall renders recalled facts as a prompt section, newest first.
// Returns "" when there is nothing to recall.
func FormatRecall(agentName string, facts []Fact) string {
	if len(facts) == 0 {
		return ""
	}
	sorted := make([]Fact, len(facts))
	copy(sorted, facts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "%s remembers about you (recent first):\n", agentName)
	for _, f := range sorted {
		fmt.Fprintf(&b, "- [%s] %s\n", f.CreatedAt.Format("2006-01-02"), f.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
