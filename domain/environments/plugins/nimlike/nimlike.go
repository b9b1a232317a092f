// Package nimlike is a reference environment capability: a single-pile
// subtraction (Nim) game against a built-in opponent. It exists both as a
// real installable plugin and as the fixture used to exercise the dispatcher
// end to end.
package nimlike

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/arenaeval/server/domain/environments"
)

// EnvClass is the registry reference string this capability installs under.
const EnvClass = "nimlike"

// config is the environment's opaque, admin-supplied configuration.
type config struct {
	// Strong switches the opponent from picking a random move to playing the
	// modulo-4 optimal counter.
	Strong bool `json:"strong"`
	// RandomStart draws the starting pile between 9 and 11 objects instead
	// of a fixed 10.
	RandomStart bool `json:"random_start"`
}

// state is a run's opaque, JSON-encoded game state.
type state struct {
	Remaining int `json:"remaining"`
	Initial   int `json:"initial"`
}

type capability struct {
	cfg config
}

// New constructs the nimlike capability from an environment's config blob.
// An empty/absent blob is equivalent to {"strong": false, "random_start": false}.
func New(raw environments.RawJSON) (environments.Capability, error) {
	var cfg config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("nimlike: invalid config: %w", err)
		}
	}
	return capability{cfg: cfg}, nil
}

// Register installs the nimlike capability factory into registry under
// EnvClass.
func Register(registry *environments.Registry) {
	registry.Register(EnvClass, New)
}

func (c capability) Settings() environments.Settings {
	return environments.Settings{
		MinRunsForFullyEvaluated: 10,
		CanAbandonRuns:           true,
	}
}

func (c capability) NewRun() (environments.RawJSON, error) {
	n := 10
	if c.cfg.RandomStart {
		n = 9 + rand.Intn(3) // 9, 10 or 11
	}
	return json.Marshal(state{Remaining: n, Initial: n})
}

func (c capability) GetActionRequest(data environments.RunData) (environments.RawJSON, error) {
	var st state
	if err := json.Unmarshal(data.State, &st); err != nil {
		return nil, fmt.Errorf("nimlike: corrupt state: %w", err)
	}
	return json.Marshal(st.Remaining)
}

func (c capability) GetAbandonOutcome(data environments.RunData) (float64, error) {
	// Abandoning a run always counts as a loss.
	return 0, nil
}

// Act removes move objects from the pile on behalf of the agent, then has
// the opponent respond. A victory is reaching zero on the agent's own
// move; any other invalid input rejects the action without mutating state.
func (c capability) Act(action environments.RawJSON, data environments.RunData) (environments.ActionResult, error) {
	var st state
	if err := json.Unmarshal(data.State, &st); err != nil {
		return environments.ActionResult{}, fmt.Errorf("nimlike: corrupt state: %w", err)
	}

	move, ok, rejectMsg := parseMove(action)
	if !ok {
		return environments.ActionResult{Message: rejectMsg}, nil
	}
	if move < 1 || move > 3 {
		return environments.ActionResult{Message: "You have to remove 1, 2, or 3 objects"}, nil
	}
	if move > st.Remaining {
		return environments.ActionResult{Message: fmt.Sprintf(
			"You tried to take %d objects, but only %d are remaining", move, st.Remaining)}, nil
	}

	updated := st.Remaining - move
	if updated == 0 {
		outcome := 1.0
		newState, err := json.Marshal(state{Remaining: 0, Initial: st.Initial})
		if err != nil {
			return environments.ActionResult{}, err
		}
		return environments.ActionResult{
			NewState: newState,
			Message:  "Congratulations, you won!",
			Outcome:  &outcome,
		}, nil
	}

	counter := c.counterMove(updated)
	remaining := updated - counter
	message := fmt.Sprintf("Opponent removed %d", counter)
	var outcome *float64
	if remaining == 0 {
		message += " - you lost."
		lost := 0.0
		outcome = &lost
	}

	newState, err := json.Marshal(state{Remaining: remaining, Initial: st.Initial})
	if err != nil {
		return environments.ActionResult{}, err
	}
	return environments.ActionResult{
		NewState: newState,
		Message:  message,
		Outcome:  outcome,
	}, nil
}

// counterMove picks the opponent's response to a pile of size remaining.
// The strong opponent plays the Nim-optimal modulo-4 strategy, falling back
// to a random 1-3 move when already at a losing multiple of 4.
func (c capability) counterMove(remaining int) int {
	if c.cfg.Strong {
		if mv := remaining % 4; mv != 0 {
			return mv
		}
		return 1 + rand.Intn(3)
	}
	max := remaining
	if max > 3 {
		max = 3
	}
	return 1 + rand.Intn(max)
}

// parseMove accepts either a JSON number or a numeric JSON string for the
// submitted action; the two shapes reject with distinct messages.
func parseMove(action environments.RawJSON) (move int, ok bool, rejectMessage string) {
	var asNumber float64
	if err := json.Unmarshal(action, &asNumber); err == nil {
		return int(asNumber), true, ""
	}

	var asString string
	if err := json.Unmarshal(action, &asString); err == nil {
		var n int
		if _, err := fmt.Sscanf(asString, "%d", &n); err != nil {
			return 0, false, fmt.Sprintf("Invalid action: %q", asString)
		}
		return n, true, ""
	}

	return 0, false, fmt.Sprintf("Invalid action (expected a number, got %s)", string(action))
}
