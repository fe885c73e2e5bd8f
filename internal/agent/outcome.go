package agent

import (
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

// MaxInlineOutcome caps the outcome text stored on a task, in runes.
const MaxInlineOutcome = 8000

// minOutcomeLength is the shortest reply worth keeping as a task outcome.
const minOutcomeLength = 40

const (
	completedFallback = "Task marked complete. The agent did not return a detailed report."
	failedFallback    = "Task marked failed. The agent did not return a detailed report."
)

// boilerplatePhrases are generic acknowledgements, compared after trimming
// trailing punctuation and lowercasing.
var boilerplatePhrases = map[string]bool{
	"done":                                  true,
	"ok":                                    true,
	"okay":                                  true,
	"all done":                              true,
	"finished":                              true,
	"completed":                             true,
	"task completed":                        true,
	"task complete":                         true,
	"working on it":                         true,
	"on it":                                 true,
	"got it":                                true,
	"will do":                               true,
	"i've updated your workspace":           true,
	"i've completed the task":               true,
	"i have completed the task":             true,
	"i've completed the task you asked for": true,
	"the task has been marked as complete":  true,
	"the task has been marked as completed": true,
	"i've marked the task as complete":      true,
	"i've marked the task as completed":     true,
	"i've updated the task status for you":  true,
	"the task status has been updated":      true,
}

// isBoilerplateOutcome reports whether text is too generic to serve as a
// permanent task outcome.
func isBoilerplateOutcome(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < minOutcomeLength {
		return true
	}
	normalized := strings.ToLower(strings.TrimRight(t, ".! "))
	return boilerplatePhrases[normalized]
}

// selectOutcome picks the text stored as a terminal task outcome: the
// assistant reply, then the action's own summary, then a fixed note.
func selectOutcome(reply, summary string, status models.TaskStatus) string {
	if !isBoilerplateOutcome(reply) {
		return strings.TrimSpace(reply)
	}
	if !isBoilerplateOutcome(summary) {
		return strings.TrimSpace(summary)
	}
	if status == models.TaskFailed {
		return failedFallback
	}
	return completedFallback
}

// overflows reports whether text exceeds the inline outcome cap.
func overflows(text string) bool {
	return utf8.RuneCountInString(text) > MaxInlineOutcome
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
