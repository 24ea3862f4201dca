package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
)

// ErrTimeout rejects a request whose deadline passed without a response.
var ErrTimeout = errors.New("request timed out")

// DefaultRequestTimeout applies when no per-action timeout is set.
const DefaultRequestTimeout = 30 * time.Second

// CallErrorReceived is the rejection carried by an inbound CallError.
type CallErrorReceived struct {
	Code        wire.ErrorCode
	Description string
	Details     json.RawMessage
}

func (e *CallErrorReceived) Error() string {
	return fmt.Sprintf("call error %s: %s", e.Code, e.Description)
}

type callOutcome struct {
	payload json.RawMessage
	err     error
}

type pendingCall struct {
	id      string
	action  string
	frame   []byte
	outcome chan callOutcome
	timer   *time.Timer
	serial  string // non-empty for serialized actions
}

// Correlator matches CallResults and CallErrors to outstanding Calls by
// message id and enforces per-request deadlines. Actions marked serial get
// at-most-one-in-flight; later requests queue until the prior completes.
type Correlator struct {
	log  *zap.Logger
	send func(data []byte) error

	mu       sync.Mutex
	pending  map[string]*pendingCall
	queues   map[string][]*pendingCall
	inFlight map[string]bool
}

// NewCorrelator wires the correlator to an outbound send function.
func NewCorrelator(send func([]byte) error, log *zap.Logger) *Correlator {
	return &Correlator{
		log:      log,
		send:     send,
		pending:  make(map[string]*pendingCall),
		queues:   make(map[string][]*pendingCall),
		inFlight: make(map[string]bool),
	}
}

// Request sends a Call and blocks until its terminal outcome: response,
// CallError, timeout, disconnect or ctx cancellation. serialKey may be empty
// for actions with no ordering constraint.
func (c *Correlator) Request(ctx context.Context, action, serialKey string, payload interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	call, err := wire.NewCall(uuid.NewString(), action, payload)
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(call)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", action, err)
	}

	p := &pendingCall{
		id:      call.ID,
		action:  action,
		frame:   frame,
		outcome: make(chan callOutcome, 1),
		serial:  serialKey,
	}

	c.mu.Lock()
	if serialKey != "" && c.inFlight[serialKey] {
		c.queues[serialKey] = append(c.queues[serialKey], p)
		c.mu.Unlock()
	} else {
		if err := c.dispatchLocked(p, timeout); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.mu.Unlock()
	}

	// Queued entries are dispatched by the completion path with the same
	// timeout discipline.
	p.setQueuedTimeout(c, timeout)

	select {
	case out := <-p.outcome:
		return out.payload, out.err
	case <-ctx.Done():
		c.remove(p)
		return nil, ctx.Err()
	}
}

// setQueuedTimeout arms the deadline for entries that were queued rather
// than dispatched immediately. Dispatched entries already carry a timer.
func (p *pendingCall) setQueuedTimeout(c *Correlator, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(p.id, p)
	})
}

// dispatchLocked sends the frame and registers the pending entry.
func (c *Correlator) dispatchLocked(p *pendingCall, timeout time.Duration) error {
	if err := c.send(p.frame); err != nil {
		return fmt.Errorf("send %s: %w", p.action, err)
	}
	c.pending[p.id] = p
	if p.serial != "" {
		c.inFlight[p.serial] = true
	}
	if p.timer == nil {
		p.timer = time.AfterFunc(timeout, func() {
			c.expire(p.id, p)
		})
	}
	return nil
}

// OnCallResult resolves the matching request. Unknown ids are logged and
// dropped per the protocol contract.
func (c *Correlator) OnCallResult(res *wire.CallResult) {
	p := c.take(res.ID)
	if p == nil {
		c.log.Warn("CallResult for unknown message id, dropping", zap.String("messageId", res.ID))
		return
	}
	p.outcome <- callOutcome{payload: res.Payload}
}

// OnCallError rejects the matching request.
func (c *Correlator) OnCallError(ce *wire.CallError) {
	p := c.take(ce.ID)
	if p == nil {
		c.log.Warn("CallError for unknown message id, dropping",
			zap.String("messageId", ce.ID),
			zap.String("code", string(ce.Code)),
		)
		return
	}
	p.outcome <- callOutcome{err: &CallErrorReceived{Code: ce.Code, Description: ce.Description, Details: ce.Details}}
}

// FailAll rejects every outstanding and queued request, typically with
// ErrDisconnected when the session drops.
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	queues := c.queues
	c.pending = make(map[string]*pendingCall)
	c.queues = make(map[string][]*pendingCall)
	c.inFlight = make(map[string]bool)
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.outcome <- callOutcome{err: err}
	}
	for _, q := range queues {
		for _, p := range q {
			if p.timer != nil {
				p.timer.Stop()
			}
			p.outcome <- callOutcome{err: err}
		}
	}
}

// PendingCount reports outstanding requests, for tests and introspection.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// take removes and returns a pending entry, advancing its serial queue.
func (c *Correlator) take(id string) *pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	p.timer.Stop()
	c.advanceSerialLocked(p.serial)
	return p
}

// remove drops an entry without resolving it (caller already has the
// error). The entry may be dispatched or still waiting in a serial queue;
// either way it must not block the serial key or get dispatched later for
// a waiter that already gave up.
func (c *Correlator) remove(p *pendingCall) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[p.id]; ok {
		delete(c.pending, p.id)
		if p.timer != nil {
			p.timer.Stop()
		}
		c.advanceSerialLocked(p.serial)
		return
	}
	if p.serial == "" {
		return
	}
	q := c.queues[p.serial]
	for i, e := range q {
		if e.id == p.id {
			c.queues[p.serial] = append(q[:i], q[i+1:]...)
			if p.timer != nil {
				p.timer.Stop()
			}
			return
		}
	}
}

// expire rejects an entry whose deadline passed, whether dispatched or
// still queued.
func (c *Correlator) expire(id string, p *pendingCall) {
	c.mu.Lock()
	if _, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.advanceSerialLocked(p.serial)
		c.mu.Unlock()
		p.outcome <- callOutcome{err: ErrTimeout}
		return
	}
	// Still queued: remove from its serial queue.
	if p.serial != "" {
		q := c.queues[p.serial]
		for i, e := range q {
			if e.id == id {
				c.queues[p.serial] = append(q[:i], q[i+1:]...)
				c.mu.Unlock()
				p.outcome <- callOutcome{err: ErrTimeout}
				return
			}
		}
	}
	c.mu.Unlock()
}

// advanceSerialLocked dispatches the next queued request for a serial key.
func (c *Correlator) advanceSerialLocked(serial string) {
	if serial == "" {
		return
	}
	q := c.queues[serial]
	if len(q) == 0 {
		delete(c.inFlight, serial)
		return
	}
	next := q[0]
	c.queues[serial] = q[1:]
	if err := c.send(next.frame); err != nil {
		delete(c.inFlight, serial)
		if next.timer != nil {
			next.timer.Stop()
		}
		next.outcome <- callOutcome{err: fmt.Errorf("send %s: %w", next.action, err)}
		return
	}
	c.pending[next.id] = next
	c.inFlight[serial] = true
}
