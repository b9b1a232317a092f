package nimlike

import (
	"encoding/json"
	"testing"

	"github.com/arenaeval/server/domain/environments"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCapability(t *testing.T, cfg string) environments.Capability {
	t.Helper()
	cap, err := New(environments.RawJSON(cfg))
	require.NoError(t, err)
	return cap
}

func TestNew_DefaultsToNonStrongFixedStart(t *testing.T) {
	cap := newCapability(t, `{}`)
	raw, err := cap.NewRun()
	require.NoError(t, err)

	var st state
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, 10, st.Remaining)
	assert.Equal(t, 10, st.Initial)
}

func TestNewRun_RandomStartWithinRange(t *testing.T) {
	cap := newCapability(t, `{"random_start": true}`)
	for i := 0; i < 20; i++ {
		raw, err := cap.NewRun()
		require.NoError(t, err)
		var st state
		require.NoError(t, json.Unmarshal(raw, &st))
		assert.GreaterOrEqual(t, st.Remaining, 9)
		assert.LessOrEqual(t, st.Remaining, 11)
		assert.Equal(t, st.Remaining, st.Initial)
	}
}

func TestSettings(t *testing.T) {
	cap := newCapability(t, `{}`)
	s := cap.Settings()
	assert.Equal(t, 10, s.MinRunsForFullyEvaluated)
	assert.True(t, s.CanAbandonRuns)
}

func runData(remaining, initial int) environments.RunData {
	raw, _ := json.Marshal(state{Remaining: remaining, Initial: initial})
	return environments.RunData{RunID: 1, State: raw}
}

func TestAct_RejectsOutOfRangeMove(t *testing.T) {
	cap := newCapability(t, `{}`)
	action, _ := json.Marshal(4)
	result, err := cap.Act(action, runData(10, 10))
	require.NoError(t, err)
	assert.Nil(t, result.NewState)
	assert.Equal(t, "You have to remove 1, 2, or 3 objects", result.Message)
}

func TestAct_RejectsMoveExceedingRemaining(t *testing.T) {
	cap := newCapability(t, `{}`)
	action, _ := json.Marshal(3)
	result, err := cap.Act(action, runData(2, 10))
	require.NoError(t, err)
	assert.Nil(t, result.NewState)
	assert.Equal(t, "You tried to take 3 objects, but only 2 are remaining", result.Message)
}

func TestAct_RejectsNonNumericAction(t *testing.T) {
	cap := newCapability(t, `{}`)
	action, _ := json.Marshal("banana")
	result, err := cap.Act(action, runData(10, 10))
	require.NoError(t, err)
	assert.Nil(t, result.NewState)
	assert.Contains(t, result.Message, "Invalid action")
}

func TestAct_WinsOnExactMove(t *testing.T) {
	cap := newCapability(t, `{}`)
	action, _ := json.Marshal(2)
	result, err := cap.Act(action, runData(2, 10))
	require.NoError(t, err)
	require.NotNil(t, result.NewState)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, 1.0, *result.Outcome)
	assert.Equal(t, "Congratulations, you won!", result.Message)

	var st state
	require.NoError(t, json.Unmarshal(result.NewState, &st))
	assert.Equal(t, 0, st.Remaining)
}

func TestAct_StrongOpponentFallsBackToRandomOnMultipleOfFour(t *testing.T) {
	cap := newCapability(t, `{"strong": true}`)
	// Agent removes 1 from 9, leaving 8 (a multiple of 4): strong opponent
	// has no modulo-4 counter and must fall back to a random 1-3 move.
	action, _ := json.Marshal(1)
	result, err := cap.Act(action, runData(9, 10))
	require.NoError(t, err)
	require.NotNil(t, result.NewState)

	var st state
	require.NoError(t, json.Unmarshal(result.NewState, &st))
	assert.GreaterOrEqual(t, st.Remaining, 5)
	assert.LessOrEqual(t, st.Remaining, 7)
}

func TestAct_LossMessageWhenOpponentEmptiesPile(t *testing.T) {
	cap := newCapability(t, `{"strong": true}`)
	// Agent removes 1 from 2, leaving 1: the strong opponent's modulo-4
	// counter (1%4=1) exactly empties the pile.
	action, _ := json.Marshal(1)
	result, err := cap.Act(action, runData(2, 10))
	require.NoError(t, err)
	require.NotNil(t, result.NewState)

	var st state
	require.NoError(t, json.Unmarshal(result.NewState, &st))
	assert.Equal(t, 0, st.Remaining)
	require.NotNil(t, result.Outcome)
	assert.Equal(t, 0.0, *result.Outcome)
	assert.Contains(t, result.Message, "you lost")
}

func TestGetActionRequest_ReturnsRemainingCount(t *testing.T) {
	cap := newCapability(t, `{}`)
	raw, err := cap.GetActionRequest(runData(7, 10))
	require.NoError(t, err)
	assert.JSONEq(t, "7", string(raw))
}

func TestGetAbandonOutcome_AlwaysLoses(t *testing.T) {
	cap := newCapability(t, `{}`)
	outcome, err := cap.GetAbandonOutcome(runData(5, 10))
	require.NoError(t, err)
	assert.Equal(t, 0.0, outcome)
}

func TestRegister_InstallsFactory(t *testing.T) {
	registry := environments.NewRegistry()
	Register(registry)
	assert.True(t, registry.Has(EnvClass))
}
