package uiserver

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/broadcast"
	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
)

// answerStations wires a fake responder onto the bus that answers every
// broadcast command with the given status per hash id. Hash ids absent from
// statuses stay silent.
func answerStations(t *testing.T, bus *broadcast.Local, statuses map[string]string) {
	t.Helper()
	sub, err := bus.Subscribe(fleet.CommandChannel, func(data []byte) {
		var cmd fleet.Command
		if json.Unmarshal(data, &cmd) != nil {
			return
		}
		for _, hashID := range cmd.HashIDs {
			status, ok := statuses[hashID]
			if !ok {
				continue
			}
			resp := fleet.Response{ID: cmd.ID, HashID: hashID, Status: status}
			if status == fleet.StatusFailure {
				resp.ErrorMessage = "boom"
			}
			out, _ := json.Marshal(resp)
			_ = bus.Publish(fleet.ResponseChannel, out)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
}

func newTestAggregator(t *testing.T, bus *broadcast.Local, timeout time.Duration) *aggregator {
	t.Helper()
	agg := newAggregator(bus, timeout, zap.NewNop())
	require.NoError(t, agg.start())
	t.Cleanup(agg.stop)
	return agg
}

func TestAggregator_AllSucceed(t *testing.T) {
	bus := broadcast.NewLocal(zap.NewNop())
	defer bus.Close()
	answerStations(t, bus, map[string]string{
		"h1": fleet.StatusSuccess,
		"h2": fleet.StatusSuccess,
	})
	agg := newTestAggregator(t, bus, 5*time.Second)

	result, err := agg.broadcast(fleet.Command{
		ID:        "cmd-1",
		Procedure: fleet.ProcStopChargingStation,
		HashIDs:   []string{"h1", "h2"},
	})
	require.NoError(t, err)

	assert.Equal(t, fleet.StatusSuccess, result.Status)
	sort.Strings(result.HashIdsSucceeded)
	assert.Equal(t, []string{"h1", "h2"}, result.HashIdsSucceeded)
	assert.Empty(t, result.HashIdsFailed)
}

func TestAggregator_FailuresAndTimeouts(t *testing.T) {
	bus := broadcast.NewLocal(zap.NewNop())
	defer bus.Close()
	// h1 succeeds, h2 reports failure, h3 never answers.
	answerStations(t, bus, map[string]string{
		"h1": fleet.StatusSuccess,
		"h2": fleet.StatusFailure,
	})
	agg := newTestAggregator(t, bus, 300*time.Millisecond)

	result, err := agg.broadcast(fleet.Command{
		ID:        "cmd-1",
		Procedure: fleet.ProcStopChargingStation,
		HashIDs:   []string{"h1", "h2", "h3"},
	})
	require.NoError(t, err)

	assert.Equal(t, fleet.StatusFailure, result.Status)
	assert.Equal(t, []string{"h1"}, result.HashIdsSucceeded)
	sort.Strings(result.HashIdsFailed)
	assert.Equal(t, []string{"h2", "h3"}, result.HashIdsFailed)

	// Every addressed station is accounted for exactly once.
	assert.Len(t, append(result.HashIdsSucceeded, result.HashIdsFailed...), 3)

	timedOut := false
	for _, failure := range result.ResponsesFailed {
		if failure.HashID == "h3" {
			assert.Equal(t, "no response before timeout", failure.ErrorMessage)
			timedOut = true
		}
	}
	assert.True(t, timedOut, "silent station must be reported as timed out")
}

func TestAggregator_IgnoresUnaddressedResponses(t *testing.T) {
	bus := broadcast.NewLocal(zap.NewNop())
	defer bus.Close()
	answerStations(t, bus, map[string]string{
		"h1":       fleet.StatusSuccess,
		"intruder": fleet.StatusSuccess,
	})
	// The fake responder answers for "intruder" too even though the command
	// never addressed it.
	sub, err := bus.Subscribe(fleet.CommandChannel, func(data []byte) {
		var cmd fleet.Command
		if json.Unmarshal(data, &cmd) != nil {
			return
		}
		out, _ := json.Marshal(fleet.Response{ID: cmd.ID, HashID: "intruder", Status: fleet.StatusSuccess})
		_ = bus.Publish(fleet.ResponseChannel, out)
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	agg := newTestAggregator(t, bus, 2*time.Second)

	result, err := agg.broadcast(fleet.Command{
		ID:        "cmd-1",
		Procedure: fleet.ProcCloseConnection,
		HashIDs:   []string{"h1"},
	})
	require.NoError(t, err)

	assert.Equal(t, fleet.StatusSuccess, result.Status)
	assert.Equal(t, []string{"h1"}, result.HashIdsSucceeded)
}
