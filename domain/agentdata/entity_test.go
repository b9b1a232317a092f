package agentdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAggregate_SeedsFromInitialRating(t *testing.T) {
	agg := NewAggregate("nim-classic", "alice", 0.5)

	assert.Equal(t, int64(0), agg.TotalRuns)
	assert.False(t, agg.FullyEvaluated)
	assert.Equal(t, 0.5, agg.CurrentRating)
	assert.Equal(t, 0.5, agg.BestRating)
	assert.Empty(t, agg.RecentResults)
	assert.Empty(t, agg.RecentlyFinishedRuns)
}

func TestAggregate_DueForCleanup(t *testing.T) {
	tests := []struct {
		name      string
		totalRuns int64
		want      bool
	}{
		{"zero is a multiple", 0, true},
		{"not a multiple", 1, false},
		{"exact modulus", cleanupTriggerModulus, true},
		{"double modulus", cleanupTriggerModulus * 2, true},
		{"one past modulus", cleanupTriggerModulus + 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := &Aggregate{TotalRuns: tt.totalRuns}
			assert.Equal(t, tt.want, agg.DueForCleanup())
		})
	}
}

func TestAppendBounded(t *testing.T) {
	t.Run("below limit keeps everything", func(t *testing.T) {
		got := appendBounded([]int64{1, 2}, int64(3), 5)
		assert.Equal(t, []int64{1, 2, 3}, got)
	})

	t.Run("truncates to the tail at the limit", func(t *testing.T) {
		got := appendBounded([]int64{1, 2, 3}, int64(4), 3)
		assert.Equal(t, []int64{2, 3, 4}, got)
	})

	t.Run("limit of zero yields empty", func(t *testing.T) {
		got := appendBounded([]int64{}, int64(1), 0)
		assert.Empty(t, got)
	})
}
