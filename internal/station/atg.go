package station

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

// ATG drives random transactions on every connector: sleep, maybe start,
// sleep, stop, until the configured horizon or an external stop.
type ATG struct {
	station *Station
	opts    domain.ATGOptions
	log     *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewATG builds a generator bound to one station.
func NewATG(station *Station, opts domain.ATGOptions, log *zap.Logger) *ATG {
	return &ATG{station: station, opts: opts, log: log}
}

// Start launches one loop per connector. Idempotent while running.
func (a *ATG) Start() {
	a.mu.Lock()
	if a.cancel != nil {
		a.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.mu.Unlock()

	for _, id := range a.station.ConnectorIDs() {
		a.wg.Add(1)
		go a.connectorLoop(ctx, id)
	}
	a.log.Info("Transaction generator started",
		zap.Float64("probabilityOfStart", a.opts.ProbabilityOfStart))
}

// Stop terminates all loops cooperatively and waits for them. A loop holding
// a live transaction finishes the stop step before exiting.
func (a *ATG) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	a.log.Info("Transaction generator stopped")
}

func (a *ATG) randomBetween(min, max float64) time.Duration {
	if max <= min {
		return time.Duration(min * float64(time.Second))
	}
	return time.Duration((min + rand.Float64()*(max-min)) * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (a *ATG) pickIdTag() string {
	tags := a.station.idTags
	if len(tags) == 0 {
		return "ATG00000"
	}
	return tags[rand.Intn(len(tags))]
}

func (a *ATG) connectorLoop(ctx context.Context, connectorID int) {
	defer a.wg.Done()

	deadline := time.Time{}
	if a.opts.StopAfterHours > 0 {
		deadline = time.Now().Add(time.Duration(a.opts.StopAfterHours * float64(time.Hour)))
	}

	for {
		if !deadline.IsZero() && time.Now().After(deadline) {
			a.log.Debug("generator horizon reached", zap.Int("connectorId", connectorID))
			return
		}

		delay := a.randomBetween(a.opts.MinDelayBetweenTwoTransactions, a.opts.MaxDelayBetweenTwoTransactions)
		if !sleepCtx(ctx, delay) {
			return
		}

		if rand.Float64() > a.opts.ProbabilityOfStart {
			continue
		}

		startCtx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		txID, err := a.station.startTransaction(startCtx, connectorID, a.pickIdTag(), false, a.opts.Authorizes())
		cancel()
		if err != nil {
			a.log.Debug("generator start skipped",
				zap.Int("connectorId", connectorID), zap.Error(err))
			continue
		}

		duration := a.randomBetween(a.opts.MinDuration, a.opts.MaxDuration)
		sleepCtx(ctx, duration)

		// The stop step runs to termination even when ctx was cancelled
		// mid-transaction, so no orphaned state survives the generator.
		stopCtx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		if err := a.station.StopTransaction(stopCtx, connectorID, "Local", false); err != nil {
			a.log.Warn("generator stop failed",
				zap.Int("connectorId", connectorID),
				zap.String("transactionId", txID),
				zap.Error(err))
		}
		cancel()

		if ctx.Err() != nil {
			return
		}
	}
}
