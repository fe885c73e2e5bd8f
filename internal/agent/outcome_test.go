package agent

import (
	"strings"
	"testing"

	"github.com/haasonsaas/agentdesk/pkg/models"
)

func TestIsBoilerplateOutcome(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Done.", true},
		{"", true},
		{"   ok   ", true},
		{"I've completed the task you asked for!", true},
		{"The task has been marked as complete.", true},
		{"I've updated the task status for you.", true},
		{"Investigated the outage, root cause was a stale cache key; fixed and redeployed.", false},
		{strings.Repeat("x", 39), true},
		{strings.Repeat("x", 40), false},
	}
	for _, tt := range tests {
		if got := isBoilerplateOutcome(tt.text); got != tt.want {
			t.Errorf("isBoilerplateOutcome(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSelectOutcome(t *testing.T) {
	detailed := "Migrated the billing cron to the new scheduler and verified two runs."
	tests := []struct {
		name    string
		reply   string
		summary string
		status  models.TaskStatus
		want    string
	}{
		{"reply", "  " + detailed + "  ", "short", models.TaskCompleted, detailed},
		{"summary", "Done.", detailed, models.TaskCompleted, detailed},
		{"completed fallback", "Done.", "ok", models.TaskCompleted, completedFallback},
		{"failed fallback", "", "", models.TaskFailed, failedFallback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := selectOutcome(tt.reply, tt.summary, tt.status); got != tt.want {
				t.Fatalf("selectOutcome() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 2); got != "hé" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("abc", 10); got != "abc" {
		t.Errorf("truncateRunes = %q", got)
	}
	if !overflows(strings.Repeat("é", MaxInlineOutcome+1)) || overflows(strings.Repeat("é", MaxInlineOutcome)) {
		t.Error("overflows should count runes")
	}
}
