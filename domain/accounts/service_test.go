package accounts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentNamePattern(t *testing.T) {
	tests := []struct {
		name  string
		agent string
		match bool
	}{
		{"simple name", "alice", true},
		{"spaces and brackets", "team [blue] (v2)", true},
		{"underscores and dashes", "bot_one-two", true},
		{"slash rejected", "a/b", false},
		{"hash rejected", "a#1", false},
		{"empty rejected", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, AgentNamePattern.MatchString(tt.agent))
		})
	}
}
