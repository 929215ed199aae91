package script

import (
	"fmt"
	"strings"
)

// DefaultContextWindow is the number of preceding lines shown to the learner
// before each of their turns.
const DefaultContextWindow = 2

// SelectTurns returns the ordered subsequence of lines the learner must
// perform: dialogue lines whose speaker equals character, compared
// case-insensitively and without fuzzy matching. Each returned line is marked
// IsUserLine.
//
// The turn list for a (scene, character) pair is deterministic; callers may
// recompute it from the same lines at any time and get an identical result.
//
// Returns an empty slice when no line matches; the caller decides whether that
// is an error (session start treats it as a hard precondition failure).
func SelectTurns(lines []Line, character string) []Line {
	var turns []Line
	for _, l := range lines {
		if l.Kind != KindDialogue {
			continue
		}
		if !strings.EqualFold(l.Speaker, character) {
			continue
		}
		l.IsUserLine = true
		turns = append(turns, l)
	}
	return turns
}

// ContextBefore returns up to window dialogue and action lines strictly before
// targetPos, formatted for display: dialogue as "speaker: text", action as its
// bare text, joined by newlines in transcript order. When fewer qualifying
// lines exist, all of them are returned; no padding, no error.
func ContextBefore(lines []Line, targetPos, window int) string {
	if window <= 0 {
		return ""
	}

	var picked []Line
	for i := len(lines) - 1; i >= 0 && len(picked) < window; i-- {
		l := lines[i]
		if l.Position >= targetPos {
			continue
		}
		if l.Kind != KindDialogue && l.Kind != KindAction {
			continue
		}
		picked = append(picked, l)
	}

	parts := make([]string, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		l := picked[i]
		if l.Kind == KindDialogue {
			parts = append(parts, fmt.Sprintf("%s: %s", l.Speaker, l.Text))
		} else {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(parts, "\n")
}
