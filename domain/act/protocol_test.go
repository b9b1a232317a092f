package act

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenaeval/server/domain/environments"
)

func TestSplitRunActNo(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		run     int64
		actNo   int
		wantErr bool
	}{
		{"simple", "42#3", 42, 3, false},
		{"zero act_no", "1#0", 1, 0, false},
		{"missing separator", "42", 0, 0, true},
		{"non-numeric run", "abc#3", 0, 0, true},
		{"non-numeric act_no", "42#x", 0, 0, true},
		{"empty", "", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, actNo, err := splitRunActNo(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.run, run)
			assert.Equal(t, tt.actNo, actNo)
		})
	}
}

func TestJoinRunActNo_InvertsSplit(t *testing.T) {
	for _, s := range []string{"1#0", "42#3", "9000#17"} {
		run, actNo, err := splitRunActNo(s)
		require.NoError(t, err)
		assert.Equal(t, s, joinRunActNo(run, actNo))
	}
}

func TestRequestV0ToV1(t *testing.T) {
	v0 := RequestV0{
		Agent: "a",
		Pwd:   "secret",
		Actions: []ActionV0{
			{Run: "7#0", Action: environments.RawJSON(`2`)},
			{Run: "8#3", Action: environments.RawJSON(`"left"`)},
		},
		ToAbandon:     []string{"9#1"},
		SingleRequest: true,
		Client:        "client/1.0",
	}

	v1, err := v0.ToV1()
	require.NoError(t, err)

	assert.Equal(t, 1, v1.ProtocolVersion)
	assert.Equal(t, "a", v1.Agent)
	assert.Equal(t, "secret", v1.Pwd)
	require.Len(t, v1.Actions, 2)
	assert.Equal(t, ActionV1{Run: 7, ActNo: 0, Action: environments.RawJSON(`2`)}, v1.Actions[0])
	assert.Equal(t, ActionV1{Run: 8, ActNo: 3, Action: environments.RawJSON(`"left"`)}, v1.Actions[1])
	assert.Equal(t, []int64{9}, v1.ToAbandon)
	assert.False(t, v1.ParallelRuns, "single_request=true maps to parallel_runs=false")
	assert.Equal(t, "client/1.0", v1.Client)
}

func TestRequestV0ToV1_ParallelMapping(t *testing.T) {
	v1, err := (&RequestV0{Agent: "a", SingleRequest: false}).ToV1()
	require.NoError(t, err)
	assert.True(t, v1.ParallelRuns)
}

func TestRequestV0ToV1_MalformedRunFailsBatch(t *testing.T) {
	_, err := (&RequestV0{Actions: []ActionV0{{Run: "nope", Action: environments.RawJSON(`1`)}}}).ToV1()
	require.Error(t, err)

	_, err = (&RequestV0{ToAbandon: []string{"5"}}).ToV1()
	require.Error(t, err)
}

// V0 -> V1 -> V0 must be the identity on the V0-expressible request fields.
func TestRequestRoundTripV0(t *testing.T) {
	for _, single := range []bool{true, false} {
		v0 := RequestV0{
			Agent:         "a",
			Pwd:           "pw",
			Actions:       []ActionV0{{Run: "3#2", Action: environments.RawJSON(`1`)}},
			ToAbandon:     []string{"4#0"},
			SingleRequest: single,
			Client:        "c",
		}

		v1, err := v0.ToV1()
		require.NoError(t, err)

		back := RequestV0{
			Agent:         v1.Agent,
			Pwd:           v1.Pwd,
			SingleRequest: !v1.ParallelRuns,
			Client:        v1.Client,
		}
		for _, a := range v1.Actions {
			back.Actions = append(back.Actions, ActionV0{
				Run:    joinRunActNo(a.Run, a.ActNo),
				Action: a.Action,
			})
		}
		for _, rid := range v1.ToAbandon {
			back.ToAbandon = append(back.ToAbandon, joinRunActNo(rid, 0))
		}

		assert.Equal(t, v0.Agent, back.Agent)
		assert.Equal(t, v0.Pwd, back.Pwd)
		assert.Equal(t, v0.Actions, back.Actions)
		assert.Equal(t, v0.ToAbandon, back.ToAbandon)
		assert.Equal(t, v0.SingleRequest, back.SingleRequest)
		assert.Equal(t, v0.Client, back.Client)
	}
}

func TestResponseFromV1(t *testing.T) {
	run7 := int64(7)
	run8 := int64(8)

	v1 := ResponseV1{
		ActionRequests: []ActionRequestV1{
			{Run: 7, ActNo: 2, Percept: environments.RawJSON(`10`)},
		},
		ActiveRuns: []int64{7, 8},
		Messages: []Message{
			{Type: MessageError, Run: &run7, Content: "Wrong action number"},
			{Type: MessageWarning, Run: &run8, Content: "Run abandoned"},
			{Type: MessageInfo, Content: "server notice"},
		},
		FinishedRuns: map[int64]float64{8: 0},
	}

	v0 := v1.FromV1()

	require.Len(t, v0.ActionRequests, 1)
	assert.Equal(t, "7#2", v0.ActionRequests[0].Run)
	assert.Equal(t, environments.RawJSON(`10`), v0.ActionRequests[0].Percept)

	assert.Equal(t, []string{"error: Run 7: Wrong action number"}, v0.Errors)
	assert.Equal(t, []string{
		"warning: Run 8: Run abandoned",
		"info: server notice",
	}, v0.Messages)
}

func TestResponseFromV1_EmptyListsNotNil(t *testing.T) {
	v0 := (&ResponseV1{}).FromV1()
	assert.NotNil(t, v0.ActionRequests)
	assert.NotNil(t, v0.Messages)
	assert.NotNil(t, v0.Errors)
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    int
		wantErr bool
	}{
		{"absent defaults to 0", map[string]any{"agent": "a"}, 0, false},
		{"explicit 0", map[string]any{"protocol_version": float64(0)}, 0, false},
		{"explicit 1", map[string]any{"protocol_version": float64(1)}, 1, false},
		{"unknown version parses, handler rejects", map[string]any{"protocol_version": float64(9)}, 9, false},
		{"non-numeric", map[string]any{"protocol_version": "1"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
