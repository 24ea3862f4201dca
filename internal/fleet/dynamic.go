package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

// DynamicPool grows as the pending queue deepens and retires empty workers
// that have been idle longer than IdleTTL. At least one worker survives.
type DynamicPool struct {
	basePool
	opts    Options
	pending chan *station.Station

	mu      sync.Mutex
	workers map[int]*workerUnit
	nextID  int
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type workerUnit struct {
	worker *Worker
	cancel context.CancelFunc
}

func (p *DynamicPool) Add(ctx context.Context, tpl *domain.Template, index int) (*station.Station, error) {
	st, err := p.build(tpl, index)
	if err != nil {
		return nil, err
	}

	select {
	case p.pending <- st:
	case <-ctx.Done():
		p.registry.Remove(st.HashID())
		return nil, ctx.Err()
	}

	p.mu.Lock()
	if p.started && len(p.pending) > p.opts.QueueThreshold && len(p.workers) < p.opts.MaxWorkers {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return st, nil
}

func (p *DynamicPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true
	runCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.workers = make(map[int]*workerUnit)
	p.spawnLocked()

	p.wg.Add(1)
	go p.janitor(runCtx)
	return nil
}

func (p *DynamicPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.cancel()
	units := make([]*workerUnit, 0, len(p.workers))
	for _, u := range p.workers {
		u.cancel()
		units = append(units, u)
	}
	p.workers = nil
	p.mu.Unlock()

	p.wg.Wait()
	var wg sync.WaitGroup
	for _, u := range units {
		wg.Add(1)
		go func(u *workerUnit) {
			defer wg.Done()
			_ = u.worker.Stop(ctx)
		}(u)
	}
	wg.Wait()
	return nil
}

// spawnLocked starts one worker and its drain loop. Caller holds p.mu.
func (p *DynamicPool) spawnLocked() {
	id := p.nextID
	p.nextID++
	w := newWorker(id, p.log)
	ctx, cancel := context.WithCancel(context.Background())
	p.workers[id] = &workerUnit{worker: w, cancel: cancel}
	_ = w.Start(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case st := <-p.pending:
				if err := w.Add(ctx, st); err != nil {
					p.log.Error("station failed to start",
						zap.String("station", st.Name()), zap.Error(err))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	p.log.Info("dynamic pool spawned worker",
		zap.Int("worker", id), zap.Int("workers", len(p.workers)))
}

// janitor retires workers that hold no stations and have been idle past
// IdleTTL.
func (p *DynamicPool) janitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.IdleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			for id, u := range p.workers {
				if len(p.workers) == 1 {
					break
				}
				if u.worker.Len() == 0 && time.Since(u.worker.idleSince()) > p.opts.IdleTTL {
					u.cancel()
					delete(p.workers, id)
					p.log.Info("dynamic pool retired idle worker", zap.Int("worker", id))
				}
			}
			p.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}
