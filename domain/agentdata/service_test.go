package agentdata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arenaeval/server/domain/environments"
)

func TestComputeRating_Average(t *testing.T) {
	tests := []struct {
		name    string
		results []float64
		want    float64
	}{
		{"single value", []float64{1}, 1},
		{"simple mean", []float64{0, 1}, 0.5},
		{"empty returns zero", []float64{}, 0},
		{"all wins", []float64{1, 1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := computeRating(tt.results, environments.RatingStrategyAverage)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestExtremum(t *testing.T) {
	tests := []struct {
		name      string
		old, new_ float64
		objective environments.RatingObjective
		want      float64
	}{
		{"max keeps larger", 1, 2, environments.RatingObjectiveMax, 2},
		{"max keeps old when new is smaller", 2, 1, environments.RatingObjectiveMax, 2},
		{"min keeps smaller", 2, 1, environments.RatingObjectiveMin, 1},
		{"min keeps old when new is larger", 1, 2, environments.RatingObjectiveMin, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extremum(tt.old, tt.new_, tt.objective)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecentRunsKey(t *testing.T) {
	assert.Equal(t, "nim-classic#recentruns", RecentRunsKey("nim-classic"))
}
