package runs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arenaeval/server/domain/environments"
)

func TestRun_ActNo(t *testing.T) {
	run := &Run{History: HistoryList{
		{Action: environments.RawJSON(`1`)},
		{Action: environments.RawJSON(`2`)},
	}}
	assert.Equal(t, 2, run.ActNo())

	empty := &Run{}
	assert.Equal(t, 0, empty.ActNo())
}

func TestRun_IsOwnedBy(t *testing.T) {
	run := &Run{AgentName: "alice"}
	assert.True(t, run.IsOwnedBy("alice"))
	assert.False(t, run.IsOwnedBy("bob"))
}

func TestRun_AppendHistory(t *testing.T) {
	run := &Run{State: environments.RawJSON(`{"x":1}`)}
	run.AppendHistory(environments.RawJSON(`2`), environments.RawJSON(`null`), environments.RawJSON(`{"x":2}`))

	assert.Equal(t, 1, run.ActNo())
	assert.Equal(t, environments.RawJSON(`{"x":2}`), run.State)
}

func TestRun_Finish(t *testing.T) {
	run := &Run{OutstandingAction: true}
	run.Finish(1.0)

	assert.True(t, run.Finished)
	assert.False(t, run.OutstandingAction)
	if assert.NotNil(t, run.Outcome) {
		assert.Equal(t, 1.0, *run.Outcome)
	}
}

func TestRun_ToRunData(t *testing.T) {
	run := &Run{
		ID:    42,
		State: environments.RawJSON(`{"s":1}`),
		History: HistoryList{
			{Action: environments.RawJSON(`1`)},
		},
	}

	data := run.ToRunData("alice")

	assert.Equal(t, int64(42), data.RunID)
	assert.Equal(t, "alice", data.AgentDisplayName)
	assert.Len(t, data.History, 1)

	// Mutating the returned history must not alias the run's own slice.
	data.History[0].Action = environments.RawJSON(`99`)
	assert.Equal(t, environments.RawJSON(`1`), run.History[0].Action)
}
