package worker

import (
	"testing"

	"tradingagent/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"created to starting", models.AgentStatusCreated, models.AgentStatusStarting, true},
		{"created to running skips starting", models.AgentStatusCreated, models.AgentStatusRunning, false},
		{"starting to running", models.AgentStatusStarting, models.AgentStatusRunning, true},
		{"starting to stopped", models.AgentStatusStarting, models.AgentStatusStopped, true},
		{"running to stopping", models.AgentStatusRunning, models.AgentStatusStopping, true},
		{"stopping to stopped", models.AgentStatusStopping, models.AgentStatusStopped, true},
		{"stopped to starting restarts", models.AgentStatusStopped, models.AgentStatusStarting, true},
		{"stopped to running direct not allowed", models.AgentStatusStopped, models.AgentStatusRunning, false},
		{"error to starting restarts", models.AgentStatusError, models.AgentStatusStarting, true},
		{"error to running not allowed", models.AgentStatusError, models.AgentStatusRunning, false},
		{"running to error", models.AgentStatusRunning, models.AgentStatusError, true},
		{"starting to error", models.AgentStatusStarting, models.AgentStatusError, true},
		{"stopped to error not allowed, already terminal", models.AgentStatusStopped, models.AgentStatusError, false},
		{"error to error not allowed, already terminal", models.AgentStatusError, models.AgentStatusError, false},
		{"unknown source status", "bogus", models.AgentStatusStarting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{models.AgentStatusCreated, false},
		{models.AgentStatusStarting, false},
		{models.AgentStatusRunning, false},
		{models.AgentStatusStopping, false},
		{models.AgentStatusStopped, true},
		{models.AgentStatusError, true},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
