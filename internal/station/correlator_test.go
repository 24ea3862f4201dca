package station

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
)

// frameSink captures outbound frames and exposes the decoded Calls.
type frameSink struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *frameSink) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *frameSink) calls(t *testing.T) []*wire.Call {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*wire.Call, 0, len(s.frames))
	for _, f := range s.frames {
		msg, err := wire.Decode(f)
		require.NoError(t, err)
		out = append(out, msg.(*wire.Call))
	}
	return out
}

func (s *frameSink) waitForCalls(t *testing.T, n int) []*wire.Call {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		have := len(s.frames)
		s.mu.Unlock()
		if have >= n {
			return s.calls(t)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d outbound calls, got %d", n, len(s.calls(t)))
	return nil
}

func TestCorrelator_ResolvesByMessageID(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	type result struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan result, 1)
	go func() {
		payload, err := c.Request(context.Background(), "Heartbeat", "", map[string]string{}, time.Second)
		done <- result{payload, err}
	}()

	calls := sink.waitForCalls(t, 1)
	c.OnCallResult(&wire.CallResult{ID: calls[0].ID, Payload: json.RawMessage(`{"currentTime":"2024-01-01T00:00:00Z"}`)})

	res := <-done
	require.NoError(t, res.err)
	assert.JSONEq(t, `{"currentTime":"2024-01-01T00:00:00Z"}`, string(res.payload))
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelator_CallErrorRejects(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	done := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "Authorize", "", map[string]string{"idTag": "tag"}, time.Second)
		done <- err
	}()

	calls := sink.waitForCalls(t, 1)
	c.OnCallError(&wire.CallError{ID: calls[0].ID, Code: wire.CodeInternalError, Description: "boom"})

	err := <-done
	var ce *CallErrorReceived
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, wire.CodeInternalError, ce.Code)
}

func TestCorrelator_Timeout(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	_, err := c.Request(context.Background(), "Heartbeat", "", nil, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelator_SerialQueueing(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	first := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "StatusNotification", "StatusNotification/1", map[string]int{"connectorId": 1}, time.Second)
		first <- err
	}()
	sink.waitForCalls(t, 1)

	second := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "StatusNotification", "StatusNotification/1", map[string]int{"connectorId": 1}, time.Second)
		second <- err
	}()

	// The second request must stay queued while the first is in flight.
	time.Sleep(50 * time.Millisecond)
	calls := sink.calls(t)
	require.Len(t, calls, 1)

	c.OnCallResult(&wire.CallResult{ID: calls[0].ID, Payload: json.RawMessage(`{}`)})
	require.NoError(t, <-first)

	calls = sink.waitForCalls(t, 2)
	c.OnCallResult(&wire.CallResult{ID: calls[1].ID, Payload: json.RawMessage(`{}`)})
	require.NoError(t, <-second)
}

func TestCorrelator_DistinctSerialKeysRunConcurrently(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	for i := 1; i <= 2; i++ {
		connector := i
		go func() {
			c.Request(context.Background(), "StatusNotification",
				"StatusNotification/"+string(rune('0'+connector)),
				map[string]int{"connectorId": connector}, time.Second)
		}()
	}

	sink.waitForCalls(t, 2)
}

func TestCorrelator_FailAll(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	sentinel := errors.New("connection lost")
	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := c.Request(context.Background(), "Heartbeat", "", nil, time.Minute)
			results <- err
		}()
	}
	sink.waitForCalls(t, 3)

	c.FailAll(sentinel)
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-results, sentinel)
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelator_FailAllRejectsQueued(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	sentinel := errors.New("connection lost")
	results := make(chan error, 2)
	go func() {
		_, err := c.Request(context.Background(), "StatusNotification", "StatusNotification/1", nil, time.Minute)
		results <- err
	}()
	sink.waitForCalls(t, 1)
	go func() {
		_, err := c.Request(context.Background(), "StatusNotification", "StatusNotification/1", nil, time.Minute)
		results <- err
	}()
	time.Sleep(50 * time.Millisecond)

	c.FailAll(sentinel)
	assert.ErrorIs(t, <-results, sentinel)
	assert.ErrorIs(t, <-results, sentinel)
}

func TestCorrelator_UnknownIDDropped(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	// Must not panic or affect later traffic.
	c.OnCallResult(&wire.CallResult{ID: "never-sent", Payload: json.RawMessage(`{}`)})
	c.OnCallError(&wire.CallError{ID: "never-sent", Code: wire.CodeGenericError})
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelator_ContextCancellation(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, "Heartbeat", "", nil, time.Minute)
		done <- err
	}()
	sink.waitForCalls(t, 1)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, c.PendingCount())
}

func TestCorrelator_SendFailure(t *testing.T) {
	sink := &frameSink{err: errors.New("socket closed")}
	c := NewCorrelator(sink.send, zap.NewNop())

	_, err := c.Request(context.Background(), "Heartbeat", "", nil, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "socket closed")
}

func TestCorrelator_QueuedCancellationFreesSerialKey(t *testing.T) {
	sink := &frameSink{}
	c := NewCorrelator(sink.send, zap.NewNop())

	first := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "BootNotification", "boot", nil, time.Minute)
		first <- err
	}()
	sink.waitForCalls(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan error, 1)
	go func() {
		_, err := c.Request(ctx, "BootNotification", "boot", nil, time.Minute)
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-second, context.Canceled)

	// Completing the first must not dispatch the abandoned queued entry.
	calls := sink.calls(t)
	require.Len(t, calls, 1)
	c.OnCallResult(&wire.CallResult{ID: calls[0].ID, Payload: json.RawMessage(`{}`)})
	require.NoError(t, <-first)

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, sink.calls(t), 1)
	assert.Equal(t, 0, c.PendingCount())

	// The serial key is free again for the next request.
	third := make(chan error, 1)
	go func() {
		_, err := c.Request(context.Background(), "BootNotification", "boot", nil, time.Minute)
		third <- err
	}()
	calls = sink.waitForCalls(t, 2)
	c.OnCallResult(&wire.CallResult{ID: calls[1].ID, Payload: json.RawMessage(`{}`)})
	require.NoError(t, <-third)
}
