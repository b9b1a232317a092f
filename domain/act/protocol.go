// Package act implements the action-dispatch and run-lifecycle engine: the
// wire-protocol adapter, authentication gate and dispatcher behind
// PUT /act/<env>.
package act

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arenaeval/server/domain/environments"
	"github.com/arenaeval/server/pkg/apperror"
)

// MessageType classifies one entry of the outgoing messages list.
type MessageType string

const (
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
	MessageInfo    MessageType = "info"
)

// Message is one V1 response message; Run is omitted when the message is
// not tied to a specific run.
type Message struct {
	Type    MessageType `json:"type"`
	Run     *int64      `json:"run,omitempty"`
	Content string      `json:"content"`
}

// ActionV1 is one submitted action in the normalized request shape.
type ActionV1 struct {
	Run    int64                `json:"run"`
	ActNo  int                  `json:"act_no"`
	Action environments.RawJSON `json:"action"`
}

// RequestV1 is the normalized (canonical) action-batch request the
// dispatcher operates on exclusively.
type RequestV1 struct {
	ProtocolVersion int        `json:"protocol_version"`
	Agent           string     `json:"agent"`
	Pwd             string     `json:"pwd"`
	Actions         []ActionV1 `json:"actions"`
	ToAbandon       []int64    `json:"to_abandon"`
	ParallelRuns    bool       `json:"parallel_runs"`
	Client          string     `json:"client,omitempty"`
}

// ActionRequestV1 is one outgoing percept offered to the agent.
type ActionRequestV1 struct {
	Run     int64                `json:"run"`
	ActNo   int                  `json:"act_no"`
	Percept environments.RawJSON `json:"percept"`
}

// ResponseV1 is the normalized action-batch response.
type ResponseV1 struct {
	ActionRequests []ActionRequestV1 `json:"action_requests"`
	ActiveRuns     []int64           `json:"active_runs"`
	Messages       []Message         `json:"messages"`
	FinishedRuns   map[int64]float64 `json:"finished_runs"`
}

// ActionV0 is one submitted action on the legacy wire, where a run is
// addressed by the combined "<rid>#<act_no>" string rather than separate
// fields.
type ActionV0 struct {
	Run    string               `json:"run"`
	Action environments.RawJSON `json:"action"`
}

// RequestV0 is the legacy request shape. SingleRequest is the inverse of
// V1's ParallelRuns; ToAbandon uses the same combined run-id string form.
type RequestV0 struct {
	ProtocolVersion int        `json:"protocol_version"`
	Agent           string     `json:"agent"`
	Pwd             string     `json:"pwd"`
	Actions         []ActionV0 `json:"actions"`
	ToAbandon       []string   `json:"to_abandon"`
	SingleRequest   bool       `json:"single_request"`
	Client          string     `json:"client,omitempty"`
}

// ActionRequestV0 is one outgoing percept on the legacy wire.
type ActionRequestV0 struct {
	Run     string               `json:"run"`
	Percept environments.RawJSON `json:"percept"`
}

// ResponseV0 is the legacy response shape: messages are pre-split into
// "messages" and "errors", and active_runs/finished_runs are dropped since
// V0 has no field to carry them.
type ResponseV0 struct {
	ActionRequests []ActionRequestV0 `json:"action-requests"`
	Messages       []string          `json:"messages"`
	Errors         []string          `json:"errors"`
}

// splitRunActNo splits a V0 "<rid>#<act_no>" run string into its parts.
func splitRunActNo(s string) (run int64, actNo int, err error) {
	rid, act, found := strings.Cut(s, "#")
	if !found {
		return 0, 0, fmt.Errorf("malformed run id %q: missing '#'", s)
	}
	run, err = strconv.ParseInt(rid, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed run id %q: %w", s, err)
	}
	actNo, err = strconv.Atoi(act)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed run id %q: %w", s, err)
	}
	return run, actNo, nil
}

// joinRunActNo re-joins a run id and act_no into the V0 "<rid>#<act_no>"
// string form.
func joinRunActNo(run int64, actNo int) string {
	return strconv.FormatInt(run, 10) + "#" + strconv.Itoa(actNo)
}

// ToV1 converts a legacy request to the canonical normalized shape.
// Malformed run strings fail the whole batch with 400, since a
// batch that cannot even be parsed has no well-defined per-action error.
func (r *RequestV0) ToV1() (*RequestV1, error) {
	actions := make([]ActionV1, len(r.Actions))
	for i, a := range r.Actions {
		run, actNo, err := splitRunActNo(a.Run)
		if err != nil {
			return nil, apperror.ErrBadRequest.WithMessage(err.Error())
		}
		actions[i] = ActionV1{Run: run, ActNo: actNo, Action: a.Action}
	}

	toAbandon := make([]int64, len(r.ToAbandon))
	for i, s := range r.ToAbandon {
		run, _, err := splitRunActNo(s)
		if err != nil {
			return nil, apperror.ErrBadRequest.WithMessage(err.Error())
		}
		toAbandon[i] = run
	}

	return &RequestV1{
		ProtocolVersion: 1,
		Agent:           r.Agent,
		Pwd:             r.Pwd,
		Actions:         actions,
		ToAbandon:       toAbandon,
		ParallelRuns:    !r.SingleRequest,
		Client:          r.Client,
	}, nil
}

// FromV1 projects a canonical response down to the legacy wire shape:
// messages are split by type into "messages"/"errors" and
// formatted as "<type>: Run <rid>: <content>"; active_runs and
// finished_runs have no V0 representation and are dropped.
func (resp *ResponseV1) FromV1() *ResponseV0 {
	out := &ResponseV0{
		ActionRequests: make([]ActionRequestV0, len(resp.ActionRequests)),
		Messages:       []string{},
		Errors:         []string{},
	}
	for i, ar := range resp.ActionRequests {
		out.ActionRequests[i] = ActionRequestV0{
			Run:     joinRunActNo(ar.Run, ar.ActNo),
			Percept: ar.Percept,
		}
	}
	for _, m := range resp.Messages {
		formatted := formatMessageV0(m)
		if m.Type == MessageError {
			out.Errors = append(out.Errors, formatted)
		} else {
			out.Messages = append(out.Messages, formatted)
		}
	}
	return out
}

// formatMessageV0 renders one message as "<type>: Run <rid>: <content>",
// or "<type>: <content>" when the message is not tied to a run.
func formatMessageV0(m Message) string {
	if m.Run != nil {
		return fmt.Sprintf("%s: Run %d: %s", m.Type, *m.Run, m.Content)
	}
	return fmt.Sprintf("%s: %s", m.Type, m.Content)
}

// ParseVersion returns the protocol_version declared by a raw request body's
// top-level field, defaulting to 0 when absent.
func ParseVersion(raw map[string]any) (int, error) {
	v, ok := raw["protocol_version"]
	if !ok || v == nil {
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, apperror.ErrBadRequest.WithMessage("protocol_version must be a number")
	}
	return int(f), nil
}
