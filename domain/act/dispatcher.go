package act

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/domain/accounts"
	"github.com/arenaeval/server/domain/agentdata"
	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/domain/runs"
	"github.com/arenaeval/server/internal/database"
	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// dispatchTx is the slice of database.SafeTx the dispatcher drives: a
// transaction-scoped bun.IDB plus commit/rollback.
type dispatchTx interface {
	bun.IDB
	Commit() error
	Rollback() error
}

// envResolver, agentAuthenticator, runStore and aggregateStore name exactly
// the operations the dispatcher needs from its collaborating domains, so
// the engine can be exercised against in-memory fakes.
type envResolver interface {
	Get(ctx context.Context, slug string) (*environments.Environment, error)
	Capability(ctx context.Context, env *environments.Environment) (environments.Capability, error)
}

type agentAuthenticator interface {
	Authenticate(ctx context.Context, envSlug, agentName, password string) (*accounts.Account, error)
}

type runStore interface {
	GetForUpdate(ctx context.Context, db bun.IDB, id int64) (*runs.Run, error)
	Save(ctx context.Context, db bun.IDB, run *runs.Run) error
	Create(ctx context.Context, db bun.IDB, envSlug, agentName string, initialState environments.RawJSON) (*runs.Run, error)
	ListUnfinishedByAgent(ctx context.Context, db bun.IDB, envSlug, agentName string) ([]runs.Run, error)
	SetOutstandingAction(ctx context.Context, db bun.IDB, ids []int64, value bool) error
}

type aggregateStore interface {
	RecordFinish(ctx context.Context, tx bun.IDB, envSlug, agentName string, runID int64, outcome float64, settings environments.Settings) (bool, error)
	Get(ctx context.Context, db bun.IDB, envSlug, agentName string) (*agentdata.Aggregate, error)
}

// Dispatcher is the action-dispatch engine: it authenticates a batch,
// applies each submitted action or abandon request in its own transaction,
// then computes the next action-request batch.
type Dispatcher struct {
	db       bun.IDB
	envs     envResolver
	accts    agentAuthenticator
	runStore runStore
	aggStore aggregateStore
	log      *slog.Logger

	beginTx        func(ctx context.Context) (dispatchTx, error)
	enqueueCleanup func(ctx context.Context, db bun.IDB, envSlug, agentName string, keepIDs []int64) error
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(
	db bun.IDB,
	envSvc *environments.Service,
	acctSvc *accounts.Service,
	runRepo *runs.Repository,
	aggSvc *agentdata.Service,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		db:       db,
		envs:     envSvc,
		accts:    acctSvc,
		runStore: runRepo,
		aggStore: aggSvc,
		log:      log.With(logger.Scope("act.dispatch")),
		beginTx: func(ctx context.Context) (dispatchTx, error) {
			return database.BeginSafeTx(ctx, db)
		},
		enqueueCleanup: agentdata.EnqueueCleanup,
	}
}

// Process runs the full batch pipeline for one normalized request and
// returns the normalized response.
func (d *Dispatcher) Process(ctx context.Context, envSlug string, req RequestV1) (*ResponseV1, error) {
	account, capability, err := d.authenticate(ctx, envSlug, req.Agent, req.Pwd)
	if err != nil {
		return nil, err
	}
	settings := capability.Settings()
	agentName := account.AgentName

	messages := make([]Message, 0, len(req.Actions)+len(req.ToAbandon))
	finishedRuns := make(map[int64]float64)
	var cleanupDue bool

	for _, a := range req.Actions {
		outcome := d.applyAction(ctx, envSlug, agentName, a, capability, settings)
		if outcome.msg != nil {
			messages = append(messages, *outcome.msg)
		}
		if outcome.finished {
			finishedRuns[outcome.runID] = outcome.outcome
		}
		cleanupDue = cleanupDue || outcome.cleanupDue
	}

	for _, runID := range req.ToAbandon {
		outcome := d.applyAbandon(ctx, envSlug, agentName, runID, capability, settings)
		if outcome.msg != nil {
			messages = append(messages, *outcome.msg)
		}
		if outcome.finished {
			finishedRuns[outcome.runID] = outcome.outcome
		}
		cleanupDue = cleanupDue || outcome.cleanupDue
	}

	if cleanupDue {
		d.scheduleCleanup(ctx, envSlug, agentName)
	}

	batch, activeRuns, err := d.buildBatch(ctx, envSlug, agentName, req.ParallelRuns, capability, settings)
	if err != nil {
		return nil, err
	}

	return &ResponseV1{
		ActionRequests: batch,
		ActiveRuns:     activeRuns,
		Messages:       messages,
		FinishedRuns:   finishedRuns,
	}, nil
}

// authenticate gates the whole batch: the environment must exist, the
// (agent, pwd) pair must verify and the account must be active. An unknown
// environment is folded into the same generic 401 as an unknown agent
// rather than a distinguishing 404, so a probing client cannot enumerate
// environment slugs via /act.
func (d *Dispatcher) authenticate(ctx context.Context, envSlug, agent, pwd string) (*accounts.Account, environments.Capability, error) {
	env, err := d.envs.Get(ctx, envSlug)
	if err != nil {
		return nil, nil, apperror.ErrUnauthorized.WithMessage("invalid agent credentials")
	}

	account, err := d.accts.Authenticate(ctx, envSlug, agent, pwd)
	if err != nil {
		return nil, nil, err
	}

	capability, err := d.envs.Capability(ctx, env)
	if err != nil {
		return nil, nil, err
	}

	return account, capability, nil
}

// actionOutcome is the per-action/per-abandon result threaded back into the
// batch response and the finished_runs map.
type actionOutcome struct {
	msg        *Message
	finished   bool
	runID      int64
	outcome    float64
	cleanupDue bool
}

// applyAction handles one normal Action: load, ownership and act_no
// checks, invoke the capability, commit the resulting
// history/state transition or leave outstanding_action set on rejection.
func (d *Dispatcher) applyAction(ctx context.Context, envSlug, agentName string, a ActionV1, capability environments.Capability, settings environments.Settings) actionOutcome {
	tx, err := d.beginTx(ctx)
	if err != nil {
		return actionOutcome{msg: errMsg(a.Run, "internal error starting transaction")}
	}
	defer tx.Rollback()

	run, err := d.runStore.GetForUpdate(ctx, tx, a.Run)
	if err != nil {
		return actionOutcome{msg: errMsgFrom(a.Run, err)}
	}
	if !run.IsOwnedBy(agentName) {
		return actionOutcome{msg: errMsg(a.Run, "This run does not belong to your agent")}
	}
	if run.Finished {
		return actionOutcome{msg: errMsg(a.Run, "Invalid run id")}
	}
	if a.ActNo != run.ActNo() {
		return actionOutcome{msg: errMsg(a.Run, "Wrong action number")}
	}

	data := run.ToRunData(agentName)
	var result environments.ActionResult
	capErr := timeCapability(envSlug, "act", func() error {
		var err error
		result, err = capability.Act(a.Action, data)
		return err
	})
	if capErr != nil {
		d.log.Error("capability act failed", logger.Error(capErr), slog.Int64("run_id", a.Run))
		return actionOutcome{msg: errMsg(a.Run, "internal error processing action")}
	}

	if result.NewState == nil {
		msg := result.Message
		if msg == "" {
			msg = "action rejected"
		}
		// outstanding_action is intentionally left set on a rejected
		// action: no write happens, the same request is re-offered.
		return actionOutcome{msg: errMsg(a.Run, msg)}
	}

	run.AppendHistory(a.Action, result.ExtraInfo, result.NewState)
	run.OutstandingAction = false
	if result.Outcome != nil {
		run.Finish(*result.Outcome)
	}

	if err := d.runStore.Save(ctx, tx, run); err != nil {
		return actionOutcome{msg: errMsg(a.Run, "internal error saving run")}
	}

	var cleanupDue bool
	if result.Outcome != nil {
		due, err := d.aggStore.RecordFinish(ctx, tx, envSlug, agentName, run.ID, *result.Outcome, settings)
		if err != nil {
			return actionOutcome{msg: errMsg(a.Run, "internal error updating rating")}
		}
		cleanupDue = due
	}

	if err := tx.Commit(); err != nil {
		return actionOutcome{msg: errMsg(a.Run, "internal error committing action")}
	}

	var msg *Message
	if result.Message != "" {
		msg = &Message{Type: MessageInfo, Run: &a.Run, Content: result.Message}
	}
	if result.Outcome != nil {
		return actionOutcome{msg: msg, finished: true, runID: run.ID, outcome: *result.Outcome, cleanupDue: cleanupDue}
	}
	return actionOutcome{msg: msg, cleanupDue: cleanupDue}
}

// applyAbandon handles one voluntary forfeit, only permitted
// when the capability declares CanAbandonRuns.
func (d *Dispatcher) applyAbandon(ctx context.Context, envSlug, agentName string, runID int64, capability environments.Capability, settings environments.Settings) actionOutcome {
	if !settings.CanAbandonRuns {
		return actionOutcome{msg: errMsg(runID, "abandoning runs is not permitted for this environment")}
	}

	tx, err := d.beginTx(ctx)
	if err != nil {
		return actionOutcome{msg: errMsg(runID, "internal error starting transaction")}
	}
	defer tx.Rollback()

	run, err := d.runStore.GetForUpdate(ctx, tx, runID)
	if err != nil {
		return actionOutcome{msg: errMsgFrom(runID, err)}
	}
	if !run.IsOwnedBy(agentName) {
		return actionOutcome{msg: errMsg(runID, "This run does not belong to your agent")}
	}
	if run.Finished {
		return actionOutcome{msg: errMsg(runID, "Invalid run id")}
	}

	data := run.ToRunData(agentName)
	var outcome float64
	capErr := timeCapability(envSlug, "get_abandon_outcome", func() error {
		var err error
		outcome, err = capability.GetAbandonOutcome(data)
		return err
	})
	if capErr != nil {
		d.log.Error("capability get_abandon_outcome failed", logger.Error(capErr), slog.Int64("run_id", runID))
		return actionOutcome{msg: errMsg(runID, "internal error abandoning run")}
	}

	run.Finish(outcome)
	if err := d.runStore.Save(ctx, tx, run); err != nil {
		return actionOutcome{msg: errMsg(runID, "internal error saving run")}
	}

	due, err := d.aggStore.RecordFinish(ctx, tx, envSlug, agentName, run.ID, outcome, settings)
	if err != nil {
		return actionOutcome{msg: errMsg(runID, "internal error updating rating")}
	}

	if err := tx.Commit(); err != nil {
		return actionOutcome{msg: errMsg(runID, "internal error committing abandon")}
	}

	return actionOutcome{
		msg:        &Message{Type: MessageWarning, Run: &runID, Content: "Run abandoned"},
		finished:   true,
		runID:      run.ID,
		outcome:    outcome,
		cleanupDue: due,
	}
}

// buildBatch constructs the outgoing response: re-offer any runs
// already awaiting an action, otherwise mint new ones up to max_requests,
// and report every unfinished run as active.
func (d *Dispatcher) buildBatch(ctx context.Context, envSlug, agentName string, parallelRuns bool, capability environments.Capability, settings environments.Settings) ([]ActionRequestV1, []int64, error) {
	maxRequests := 1
	if parallelRuns {
		maxRequests = settings.NumberOfActionRequests
	}

	unfinished, err := d.runStore.ListUnfinishedByAgent(ctx, d.db, envSlug, agentName)
	if err != nil {
		return nil, nil, err
	}

	var outstanding []runs.Run
	for _, r := range unfinished {
		if r.OutstandingAction {
			outstanding = append(outstanding, r)
		}
	}

	var batch []runs.Run
	if len(outstanding) > 0 {
		// Anti-cheat core: an agent with any outstanding run is
		// re-offered those runs, never handed a fresh one in the same
		// response.
		batch = outstanding
	} else {
		for len(unfinished) < maxRequests {
			newRun, err := d.createRun(ctx, envSlug, agentName, capability)
			if err != nil {
				return nil, nil, err
			}
			unfinished = append(unfinished, *newRun)
		}
		batch = unfinished
	}

	if len(batch) > maxRequests {
		batch = batch[:maxRequests]
	}

	ids := make([]int64, len(batch))
	for i, r := range batch {
		ids[i] = r.ID
	}
	if err := d.runStore.SetOutstandingAction(ctx, d.db, ids, true); err != nil {
		return nil, nil, err
	}

	actionRequests := make([]ActionRequestV1, len(batch))
	for i, r := range batch {
		data := r.ToRunData(agentName)
		var percept environments.RawJSON
		capErr := timeCapability(envSlug, "get_action_request", func() error {
			var err error
			percept, err = capability.GetActionRequest(data)
			return err
		})
		if capErr != nil {
			return nil, nil, apperror.ErrInternal.WithInternal(capErr)
		}
		actionRequests[i] = ActionRequestV1{Run: r.ID, ActNo: r.ActNo(), Percept: percept}
	}

	activeRuns := make([]int64, len(unfinished))
	for i, r := range unfinished {
		activeRuns[i] = r.ID
	}

	return actionRequests, activeRuns, nil
}

// createRun mints one fresh run in its own transaction, so a failure
// creating one run never poisons the rest of the batch.
func (d *Dispatcher) createRun(ctx context.Context, envSlug, agentName string, capability environments.Capability) (*runs.Run, error) {
	tx, err := d.beginTx(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	var state environments.RawJSON
	capErr := timeCapability(envSlug, "new_run", func() error {
		var err error
		state, err = capability.NewRun()
		return err
	})
	if capErr != nil {
		return nil, apperror.ErrInternal.WithInternal(capErr)
	}

	run, err := d.runStore.Create(ctx, tx, envSlug, agentName, state)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return run, nil
}

// scheduleCleanup enqueues the housekeeping sweep outside the
// triggering transaction, using the agent's current recently_finished_runs
// as the keep-set.
func (d *Dispatcher) scheduleCleanup(ctx context.Context, envSlug, agentName string) {
	agg, err := d.aggStore.Get(ctx, d.db, envSlug, agentName)
	if err != nil {
		d.log.Error("failed to load aggregate for cleanup enqueue", logger.Error(err), slog.String("agent_name", agentName))
		return
	}
	if err := d.enqueueCleanup(ctx, d.db, envSlug, agentName, agg.RecentlyFinishedRuns); err != nil {
		d.log.Error("failed to enqueue cleanup job", logger.Error(err), slog.String("agent_name", agentName))
	}
}

func errMsg(run int64, content string) *Message {
	return &Message{Type: MessageError, Run: &run, Content: content}
}

func errMsgFrom(run int64, err error) *Message {
	if ae, ok := err.(*apperror.Error); ok {
		return errMsg(run, ae.Message)
	}
	return errMsg(run, fmt.Sprintf("internal error: %v", err))
}
