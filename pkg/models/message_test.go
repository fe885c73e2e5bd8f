package models

import "testing"

func TestChannelIsExternal(t *testing.T) {
	tests := []struct {
		channel Channel
		want    bool
	}{
		{ChannelAPI, true},
		{ChannelEmail, true},
		{ChannelPhone, true},
		{ChannelMCP, true},
		{ChannelDashboard, true},
		{ChannelA2A, false},
		{Channel("sms"), false},
		{Channel(""), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.channel), func(t *testing.T) {
			if got := tt.channel.IsExternal(); got != tt.want {
				t.Errorf("IsExternal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskCompleted.Terminal() || !TaskFailed.Terminal() {
		t.Error("completed and failed should be terminal")
	}
	if TaskPending.Terminal() || TaskInProgress.Terminal() {
		t.Error("pending and in_progress should not be terminal")
	}
}
