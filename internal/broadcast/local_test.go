package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collector struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (c *collector) handler(data []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, append([]byte(nil), data...))
	c.mu.Unlock()
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) waitFor(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d messages, got %d", n, c.count())
}

func TestLocal_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewLocal(zap.NewNop())
	defer bus.Close()

	var a, b collector
	_, err := bus.Subscribe("commands", a.handler)
	require.NoError(t, err)
	_, err = bus.Subscribe("commands", b.handler)
	require.NoError(t, err)

	require.NoError(t, bus.Publish("commands", []byte(`{"id":"1"}`)))

	a.waitFor(t, 1)
	b.waitFor(t, 1)
	assert.Equal(t, `{"id":"1"}`, string(a.msgs[0]))
}

func TestLocal_ChannelsIsolated(t *testing.T) {
	bus := NewLocal(zap.NewNop())
	defer bus.Close()

	var cmd, resp collector
	_, err := bus.Subscribe("commands", cmd.handler)
	require.NoError(t, err)
	_, err = bus.Subscribe("responses", resp.handler)
	require.NoError(t, err)

	require.NoError(t, bus.Publish("commands", []byte("x")))
	cmd.waitFor(t, 1)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, resp.count())
}

func TestLocal_Unsubscribe(t *testing.T) {
	bus := NewLocal(zap.NewNop())
	defer bus.Close()

	var c collector
	sub, err := bus.Subscribe("commands", c.handler)
	require.NoError(t, err)

	require.NoError(t, bus.Publish("commands", []byte("first")))
	c.waitFor(t, 1)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, bus.Publish("commands", []byte("second")))

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, c.count())
}

func TestLocal_PublishWithoutSubscribers(t *testing.T) {
	bus := NewLocal(zap.NewNop())
	defer bus.Close()
	assert.NoError(t, bus.Publish("nobody-home", []byte("x")))
}

func TestLocal_Ordering(t *testing.T) {
	bus := NewLocal(zap.NewNop())
	defer bus.Close()

	var c collector
	_, err := bus.Subscribe("commands", c.handler)
	require.NoError(t, err)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish("commands", []byte(msg)))
	}
	c.waitFor(t, 3)

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, "a", string(c.msgs[0]))
	assert.Equal(t, "b", string(c.msgs[1]))
	assert.Equal(t, "c", string(c.msgs[2]))
}
