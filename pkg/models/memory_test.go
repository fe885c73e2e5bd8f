package models

import "testing"

func TestMemoryTypeRole(t *testing.T) {
	if got := MemoryUserMessage.Role(); got != RoleUser {
		t.Errorf("user memory role = %q", got)
	}
	if got := MemoryAssistantMessage.Role(); got != RoleAssistant {
		t.Errorf("assistant memory role = %q", got)
	}
}
