package act

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/accounts"
	"github.com/arenaeval/server/domain/agentdata"
	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/domain/environments/plugins/nimlike"
	"github.com/arenaeval/server/domain/runs"
	"github.com/arenaeval/server/pkg/apperror"
)

// fakeTx satisfies dispatchTx without a database. The embedded nil bun.IDB
// is never touched: the fake stores below ignore their db argument.
type fakeTx struct{ bun.IDB }

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

// fakeRunStore keeps runs in memory, handing out copies so mutations only
// become visible through Save, like a real transaction.
type fakeRunStore struct {
	nextID int64
	runs   map[int64]*runs.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{nextID: 1, runs: map[int64]*runs.Run{}}
}

func (s *fakeRunStore) seed(r runs.Run) *runs.Run {
	r.ID = s.nextID
	s.nextID++
	stored := r
	s.runs[stored.ID] = &stored
	return &stored
}

func (s *fakeRunStore) GetForUpdate(_ context.Context, _ bun.IDB, id int64) (*runs.Run, error) {
	r, ok := s.runs[id]
	if !ok {
		return nil, apperror.New(400, "invalid_run", "Invalid run id")
	}
	cp := *r
	cp.History = append(runs.HistoryList{}, r.History...)
	return &cp, nil
}

func (s *fakeRunStore) Save(_ context.Context, _ bun.IDB, run *runs.Run) error {
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) Create(_ context.Context, _ bun.IDB, envSlug, agentName string, initialState environments.RawJSON) (*runs.Run, error) {
	r := &runs.Run{
		ID:        s.nextID,
		EnvSlug:   envSlug,
		AgentName: agentName,
		State:     initialState,
		History:   runs.HistoryList{},
	}
	s.nextID++
	cp := *r
	s.runs[r.ID] = &cp
	return r, nil
}

func (s *fakeRunStore) ListUnfinishedByAgent(_ context.Context, _ bun.IDB, envSlug, agentName string) ([]runs.Run, error) {
	var out []runs.Run
	for _, r := range s.runs {
		if !r.Finished && r.EnvSlug == envSlug && r.AgentName == agentName {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeRunStore) SetOutstandingAction(_ context.Context, _ bun.IDB, ids []int64, value bool) error {
	for _, id := range ids {
		if r, ok := s.runs[id]; ok {
			r.OutstandingAction = value
		}
	}
	return nil
}

type finishRecord struct {
	runID   int64
	outcome float64
}

// fakeAggStore records RecordFinish calls and can signal a due cleanup.
type fakeAggStore struct {
	finishes []finishRecord
	due      bool
	agg      *agentdata.Aggregate
}

func (s *fakeAggStore) RecordFinish(_ context.Context, _ bun.IDB, _, _ string, runID int64, outcome float64, _ environments.Settings) (bool, error) {
	s.finishes = append(s.finishes, finishRecord{runID: runID, outcome: outcome})
	return s.due, nil
}

func (s *fakeAggStore) Get(_ context.Context, _ bun.IDB, _, _ string) (*agentdata.Aggregate, error) {
	if s.agg == nil {
		return nil, apperror.ErrNotFound
	}
	return s.agg, nil
}

type fakeEnvs struct {
	env        *environments.Environment
	capability environments.Capability
}

func (f *fakeEnvs) Get(_ context.Context, slug string) (*environments.Environment, error) {
	if f.env == nil || f.env.Slug != slug {
		return nil, apperror.ErrNotFound.WithMessage("environment not found")
	}
	return f.env, nil
}

func (f *fakeEnvs) Capability(_ context.Context, _ *environments.Environment) (environments.Capability, error) {
	return f.capability, nil
}

type fakeAuth struct {
	account *accounts.Account
	err     error
}

func (f *fakeAuth) Authenticate(_ context.Context, _, _, _ string) (*accounts.Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.account, nil
}

// settingsCapability overrides a capability's declared settings, standing in
// for the defaulting decorator the environments service applies.
type settingsCapability struct {
	environments.Capability
	settings environments.Settings
}

func (c settingsCapability) Settings() environments.Settings { return c.settings }

type harness struct {
	dispatcher *Dispatcher
	runStore   *fakeRunStore
	aggStore   *fakeAggStore
	cleanups   []agentdata.CleanupPayload
}

func nimSettings() environments.Settings {
	s := environments.DefaultSettings()
	s.MinRunsForFullyEvaluated = 10
	s.CanAbandonRuns = true
	return s
}

// newHarness wires a dispatcher against in-memory fakes and a strong,
// fixed-start nimlike capability (pile of 10, optimal opponent).
func newHarness(t *testing.T, settings environments.Settings) *harness {
	t.Helper()

	capability, err := nimlike.New(environments.RawJSON(`{"strong": true, "random_start": false}`))
	require.NoError(t, err)

	h := &harness{
		runStore: newFakeRunStore(),
		aggStore: &fakeAggStore{},
	}
	h.dispatcher = &Dispatcher{
		db: nil,
		envs: &fakeEnvs{
			env:        &environments.Environment{Slug: "nim", EnvClass: nimlike.EnvClass, Status: environments.StatusActive},
			capability: settingsCapability{Capability: capability, settings: settings},
		},
		accts:    &fakeAuth{account: &accounts.Account{EnvSlug: "nim", AgentName: "a", Status: accounts.StatusActive}},
		runStore: h.runStore,
		aggStore: h.aggStore,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		beginTx: func(context.Context) (dispatchTx, error) {
			return fakeTx{}, nil
		},
		enqueueCleanup: func(_ context.Context, _ bun.IDB, envSlug, agentName string, keepIDs []int64) error {
			h.cleanups = append(h.cleanups, agentdata.CleanupPayload{EnvSlug: envSlug, AgentName: agentName, KeepIDs: keepIDs})
			return nil
		},
	}
	return h
}

func (h *harness) seedRun(t *testing.T, remaining int, outstanding bool) *runs.Run {
	t.Helper()
	state, err := json.Marshal(map[string]int{"remaining": remaining, "initial": 10})
	require.NoError(t, err)
	return h.runStore.seed(runs.Run{
		EnvSlug:           "nim",
		AgentName:         "a",
		State:             state,
		History:           runs.HistoryList{},
		OutstandingAction: outstanding,
	})
}

func actionJSON(n int) environments.RawJSON {
	raw, _ := json.Marshal(n)
	return raw
}

func TestProcess_EmptyBatchMintsFullRequestBatch(t *testing.T) {
	h := newHarness(t, nimSettings())

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ActionRequests, 5)
	seen := map[int64]bool{}
	for _, ar := range resp.ActionRequests {
		assert.Equal(t, 0, ar.ActNo)
		assert.JSONEq(t, "10", string(ar.Percept))
		assert.False(t, seen[ar.Run], "run ids must be distinct")
		seen[ar.Run] = true
		assert.True(t, h.runStore.runs[ar.Run].OutstandingAction)
	}
	assert.Len(t, resp.ActiveRuns, 5)
	assert.Empty(t, resp.Messages)
	assert.Empty(t, resp.FinishedRuns)
}

func TestProcess_SingleRequestModeMintsOneRun(t *testing.T) {
	h := newHarness(t, nimSettings())

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
	})
	require.NoError(t, err)

	assert.Len(t, resp.ActionRequests, 1)
	assert.Len(t, resp.ActiveRuns, 1)
}

func TestProcess_ActAdvancesHistoryAndClearsOutstanding(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 10, true)

	// Taking 1 from 10 leaves 9; the strong opponent answers 9 mod 4 = 1.
	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{{Run: run.ID, ActNo: 0, Action: actionJSON(1)}},
	})
	require.NoError(t, err)

	stored := h.runStore.runs[run.ID]
	assert.Equal(t, 1, stored.ActNo())
	assert.False(t, stored.Finished)
	assert.JSONEq(t, `{"remaining": 8, "initial": 10}`, string(stored.State))

	require.Len(t, resp.ActionRequests, 1)
	assert.Equal(t, run.ID, resp.ActionRequests[0].Run)
	assert.Equal(t, 1, resp.ActionRequests[0].ActNo)
	assert.JSONEq(t, "8", string(resp.ActionRequests[0].Percept))

	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MessageInfo, resp.Messages[0].Type)
	assert.Contains(t, resp.Messages[0].Content, "Opponent removed 1")
}

func TestProcess_WinningMoveFinishesRun(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 2, true)

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{{Run: run.ID, ActNo: 0, Action: actionJSON(2)}},
	})
	require.NoError(t, err)

	stored := h.runStore.runs[run.ID]
	assert.True(t, stored.Finished)
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, 1.0, *stored.Outcome)
	assert.False(t, stored.OutstandingAction)

	assert.Equal(t, map[int64]float64{run.ID: 1}, resp.FinishedRuns)
	require.Len(t, h.aggStore.finishes, 1)
	assert.Equal(t, finishRecord{runID: run.ID, outcome: 1}, h.aggStore.finishes[0])

	// The finished run is replaced by a fresh one in the next batch.
	require.Len(t, resp.ActionRequests, 1)
	assert.NotEqual(t, run.ID, resp.ActionRequests[0].Run)
}

func TestProcess_WrongActionNumberLeavesRunUntouched(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 10, true)

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{{Run: run.ID, ActNo: 5, Action: actionJSON(1)}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MessageError, resp.Messages[0].Type)
	assert.Contains(t, resp.Messages[0].Content, "Wrong action number")

	stored := h.runStore.runs[run.ID]
	assert.Equal(t, 0, stored.ActNo())
	assert.True(t, stored.OutstandingAction)
}

func TestProcess_RejectedActionReoffersSameRequest(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 10, true)

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{{Run: run.ID, ActNo: 0, Action: actionJSON(7)}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MessageError, resp.Messages[0].Type)
	assert.Contains(t, resp.Messages[0].Content, "1, 2, or 3")

	stored := h.runStore.runs[run.ID]
	assert.Equal(t, 0, stored.ActNo())
	assert.True(t, stored.OutstandingAction)

	// The same request comes back with the unchanged act_no.
	require.Len(t, resp.ActionRequests, 1)
	assert.Equal(t, run.ID, resp.ActionRequests[0].Run)
	assert.Equal(t, 0, resp.ActionRequests[0].ActNo)
}

func TestProcess_PerActionErrors(t *testing.T) {
	h := newHarness(t, nimSettings())
	mine := h.seedRun(t, 10, true)
	theirs := h.runStore.seed(runs.Run{EnvSlug: "nim", AgentName: "b", State: actionJSON(10), History: runs.HistoryList{}})
	finished := h.seedRun(t, 10, false)
	outcome := 1.0
	h.runStore.runs[finished.ID].Finished = true
	h.runStore.runs[finished.ID].Outcome = &outcome

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{
			{Run: 999, ActNo: 0, Action: actionJSON(1)},
			{Run: theirs.ID, ActNo: 0, Action: actionJSON(1)},
			{Run: finished.ID, ActNo: 0, Action: actionJSON(1)},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 3)
	assert.Contains(t, resp.Messages[0].Content, "Invalid run id")
	assert.Contains(t, resp.Messages[1].Content, "does not belong to your agent")
	assert.Contains(t, resp.Messages[2].Content, "Invalid run id")
	for _, m := range resp.Messages {
		assert.Equal(t, MessageError, m.Type)
	}

	// The batch continued past the errors and mine is still re-offered.
	assert.Equal(t, 0, h.runStore.runs[mine.ID].ActNo())
}

func TestProcess_AbandonFinishesWithAbandonOutcome(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 10, true)

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		ToAbandon: []int64{run.ID},
	})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MessageWarning, resp.Messages[0].Type)
	assert.Equal(t, "Run abandoned", resp.Messages[0].Content)

	stored := h.runStore.runs[run.ID]
	assert.True(t, stored.Finished)
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, 0.0, *stored.Outcome)

	assert.Equal(t, map[int64]float64{run.ID: 0}, resp.FinishedRuns)
	require.Len(t, h.aggStore.finishes, 1)
	assert.Equal(t, finishRecord{runID: run.ID, outcome: 0}, h.aggStore.finishes[0])
}

func TestProcess_AbandonRejectedWhenNotPermitted(t *testing.T) {
	settings := nimSettings()
	settings.CanAbandonRuns = false
	h := newHarness(t, settings)
	run := h.seedRun(t, 10, true)

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		ToAbandon: []int64{run.ID},
	})
	require.NoError(t, err)

	require.Len(t, resp.Messages, 1)
	assert.Equal(t, MessageError, resp.Messages[0].Type)
	assert.False(t, h.runStore.runs[run.ID].Finished)
	assert.Empty(t, h.aggStore.finishes)
}

func TestProcess_OutstandingRunBlocksNewRuns(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 10, true)
	before := h.runStore.nextID

	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: true,
	})
	require.NoError(t, err)

	require.Len(t, resp.ActionRequests, 1)
	assert.Equal(t, run.ID, resp.ActionRequests[0].Run)
	assert.Equal(t, before, h.runStore.nextID, "no new runs may be minted while one is outstanding")
}

func TestProcess_CleanupEnqueuedWhenDue(t *testing.T) {
	h := newHarness(t, nimSettings())
	run := h.seedRun(t, 2, true)
	h.aggStore.due = true
	h.aggStore.agg = &agentdata.Aggregate{
		EnvSlug:              "nim",
		AgentName:            "a",
		RecentlyFinishedRuns: []int64{run.ID},
	}

	_, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
		Actions: []ActionV1{{Run: run.ID, ActNo: 0, Action: actionJSON(2)}},
	})
	require.NoError(t, err)

	require.Len(t, h.cleanups, 1)
	assert.Equal(t, "nim", h.cleanups[0].EnvSlug)
	assert.Equal(t, "a", h.cleanups[0].AgentName)
	assert.Equal(t, []int64{run.ID}, h.cleanups[0].KeepIDs)
}

func TestProcess_UnknownEnvironmentIsUnauthorized(t *testing.T) {
	h := newHarness(t, nimSettings())

	_, err := h.dispatcher.Process(context.Background(), "no-such-env", RequestV1{Agent: "a", Pwd: "pw"})
	require.Error(t, err)
	appErr, ok := err.(*apperror.Error)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus)
}

func TestProcess_BadCredentialsAbortBatch(t *testing.T) {
	h := newHarness(t, nimSettings())
	h.dispatcher.accts = &fakeAuth{err: apperror.ErrUnauthorized.WithMessage("invalid agent credentials")}

	_, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{Agent: "a", Pwd: "wrong"})
	require.Error(t, err)
	appErr, ok := err.(*apperror.Error)
	require.True(t, ok)
	assert.Equal(t, 401, appErr.HTTPStatus)
}

func TestProcess_PlayedToCompletionAgainstStrongOpponent(t *testing.T) {
	h := newHarness(t, nimSettings())

	// Drive one run with the always-winning policy max(remaining mod 4, 1)
	// until the environment reports an outcome.
	resp, err := h.dispatcher.Process(context.Background(), "nim", RequestV1{
		Agent: "a", Pwd: "pw", ParallelRuns: false,
	})
	require.NoError(t, err)
	require.Len(t, resp.ActionRequests, 1)
	runID := resp.ActionRequests[0].Run

	for round := 0; round < 10; round++ {
		if len(resp.FinishedRuns) > 0 {
			break
		}
		require.Len(t, resp.ActionRequests, 1)
		ar := resp.ActionRequests[0]
		require.Equal(t, runID, ar.Run)

		var remaining int
		require.NoError(t, json.Unmarshal(ar.Percept, &remaining))
		move := remaining % 4
		if move == 0 {
			move = 1
		}

		resp, err = h.dispatcher.Process(context.Background(), "nim", RequestV1{
			Agent: "a", Pwd: "pw", ParallelRuns: false,
			Actions: []ActionV1{{Run: ar.Run, ActNo: ar.ActNo, Action: actionJSON(move)}},
		})
		require.NoError(t, err)
	}

	require.Contains(t, resp.FinishedRuns, runID)
	assert.Equal(t, 1.0, resp.FinishedRuns[runID])
	assert.True(t, h.runStore.runs[runID].Finished)
}
