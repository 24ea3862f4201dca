package uiserver

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
	"github.com/seu-repo/sigec-fleetsim/internal/observability/telemetry"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// AggregateResult is the collected outcome of one broadcast command.
type AggregateResult struct {
	Status           string           `json:"status"`
	HashIdsSucceeded []string         `json:"hashIdsSucceeded"`
	HashIdsFailed    []string         `json:"hashIdsFailed,omitempty"`
	ResponsesFailed  []fleet.Response `json:"responsesFailed,omitempty"`
}

type pendingBroadcast struct {
	expected  map[string]bool
	succeeded []string
	failed    []string
	failures  []fleet.Response
	received  int
	done      chan struct{}
}

// aggregator fans commands out on the broadcast bus and collects one
// response per addressed station until complete or timed out. Late responses
// are discarded.
type aggregator struct {
	bus     ports.Broadcaster
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingBroadcast
	sub     ports.Subscription
}

func newAggregator(bus ports.Broadcaster, timeout time.Duration, log *zap.Logger) *aggregator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &aggregator{
		bus:     bus,
		timeout: timeout,
		log:     log,
		pending: make(map[string]*pendingBroadcast),
	}
}

func (a *aggregator) start() error {
	sub, err := a.bus.Subscribe(fleet.ResponseChannel, a.onResponse)
	if err != nil {
		return err
	}
	a.sub = sub
	return nil
}

func (a *aggregator) stop() {
	if a.sub != nil {
		_ = a.sub.Unsubscribe()
	}
}

func (a *aggregator) onResponse(data []byte) {
	var resp fleet.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		a.log.Warn("undecodable broadcast response dropped", zap.Error(err))
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.pending[resp.ID]
	if !ok || !p.expected[resp.HashID] {
		return
	}
	delete(p.expected, resp.HashID)
	p.received++
	if resp.Status == fleet.StatusSuccess {
		p.succeeded = append(p.succeeded, resp.HashID)
	} else {
		p.failed = append(p.failed, resp.HashID)
		p.failures = append(p.failures, resp)
	}
	if len(p.expected) == 0 {
		close(p.done)
	}
}

// broadcast publishes cmd and blocks until every addressed station answered
// or the timeout elapsed. Unanswered stations count as failed.
func (a *aggregator) broadcast(cmd fleet.Command) (AggregateResult, error) {
	p := &pendingBroadcast{
		expected: make(map[string]bool, len(cmd.HashIDs)),
		done:     make(chan struct{}),
	}
	for _, id := range cmd.HashIDs {
		p.expected[id] = true
	}

	a.mu.Lock()
	a.pending[cmd.ID] = p
	a.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		a.mu.Lock()
		delete(a.pending, cmd.ID)
		a.mu.Unlock()
		return AggregateResult{}, err
	}
	if err := a.bus.Publish(fleet.CommandChannel, data); err != nil {
		a.mu.Lock()
		delete(a.pending, cmd.ID)
		a.mu.Unlock()
		return AggregateResult{}, err
	}

	started := time.Now()
	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	}
	telemetry.BroadcastLatency.Observe(time.Since(started).Seconds())

	a.mu.Lock()
	delete(a.pending, cmd.ID)
	for id := range p.expected {
		p.failed = append(p.failed, id)
		p.failures = append(p.failures, fleet.Response{
			ID:           cmd.ID,
			HashID:       id,
			Status:       fleet.StatusFailure,
			ErrorMessage: "no response before timeout",
		})
	}
	result := AggregateResult{
		Status:           fleet.StatusSuccess,
		HashIdsSucceeded: append([]string(nil), p.succeeded...),
		HashIdsFailed:    append([]string(nil), p.failed...),
		ResponsesFailed:  append([]fleet.Response(nil), p.failures...),
	}
	a.mu.Unlock()

	if len(result.HashIdsFailed) > 0 {
		result.Status = fleet.StatusFailure
	}
	if result.HashIdsSucceeded == nil {
		result.HashIdsSucceeded = []string{}
	}
	return result, nil
}
