package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

// CommandChannel is the broadcast channel carrying UI commands to stations.
const CommandChannel = "fleet.commands"

// Pool model names accepted in configuration.
const (
	ModelFixed   = "fixed"
	ModelDynamic = "dynamic"
	ModelSet     = "set"
)

// StationFactory builds a station from a template and index. It is injected
// so pools stay independent of how stations are wired (cache, journal, TLS).
type StationFactory func(tpl *domain.Template, index int) (*station.Station, error)

// Pool is the common contract of the three worker-pool models.
type Pool interface {
	Add(ctx context.Context, tpl *domain.Template, index int) (*station.Station, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Broadcast(msg []byte) error
	OnMessage(handler func(data []byte)) (ports.Subscription, error)
}

// Options selects and sizes a pool model.
type Options struct {
	Model             string
	PoolSize          int           // fixed: number of workers
	MaxWorkers        int           // dynamic: upper bound
	QueueThreshold    int           // dynamic: queue depth that triggers a spawn
	IdleTTL           time.Duration // dynamic: empty-worker retirement age
	StationsPerWorker int           // set: capacity per worker
}

// DefaultOptions returns a fixed pool of four workers.
func DefaultOptions() Options {
	return Options{
		Model:             ModelFixed,
		PoolSize:          4,
		MaxWorkers:        16,
		QueueThreshold:    8,
		IdleTTL:           time.Minute,
		StationsPerWorker: 50,
	}
}

// NewPool builds the pool model named in opts.
func NewPool(opts Options, factory StationFactory, registry *Registry, bus ports.Broadcaster, log *zap.Logger) (Pool, error) {
	base := basePool{factory: factory, registry: registry, bus: bus, log: log}
	switch opts.Model {
	case ModelFixed, "":
		n := opts.PoolSize
		if n <= 0 {
			n = DefaultOptions().PoolSize
		}
		p := &FixedPool{basePool: base, workers: make([]*Worker, n)}
		for i := range p.workers {
			p.workers[i] = newWorker(i, log)
		}
		return p, nil
	case ModelDynamic:
		if opts.MaxWorkers <= 0 {
			opts.MaxWorkers = DefaultOptions().MaxWorkers
		}
		if opts.QueueThreshold <= 0 {
			opts.QueueThreshold = DefaultOptions().QueueThreshold
		}
		if opts.IdleTTL <= 0 {
			opts.IdleTTL = DefaultOptions().IdleTTL
		}
		return &DynamicPool{
			basePool: base,
			opts:     opts,
			pending:  make(chan *station.Station, opts.MaxWorkers*opts.QueueThreshold),
		}, nil
	case ModelSet:
		if opts.StationsPerWorker <= 0 {
			opts.StationsPerWorker = DefaultOptions().StationsPerWorker
		}
		return &WorkerSet{basePool: base, capacity: opts.StationsPerWorker}, nil
	default:
		return nil, fmt.Errorf("unknown worker pool model %q", opts.Model)
	}
}

type basePool struct {
	factory  StationFactory
	registry *Registry
	bus      ports.Broadcaster
	log      *zap.Logger
}

func (b *basePool) Broadcast(msg []byte) error {
	return b.bus.Publish(CommandChannel, msg)
}

func (b *basePool) OnMessage(handler func(data []byte)) (ports.Subscription, error) {
	return b.bus.Subscribe(CommandChannel, handler)
}

func (b *basePool) build(tpl *domain.Template, index int) (*station.Station, error) {
	st, err := b.factory(tpl, index)
	if err != nil {
		return nil, fmt.Errorf("building station %s-%d: %w", tpl.BaseName, index, err)
	}
	b.registry.Add(st)
	return st, nil
}

// FixedPool hashes stations onto a fixed set of workers by index.
type FixedPool struct {
	basePool
	workers []*Worker
}

func (p *FixedPool) Add(ctx context.Context, tpl *domain.Template, index int) (*station.Station, error) {
	st, err := p.build(tpl, index)
	if err != nil {
		return nil, err
	}
	w := p.workers[index%len(p.workers)]
	if err := w.Add(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *FixedPool) Start(ctx context.Context) error {
	for _, w := range p.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *FixedPool) Stop(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, w := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			_ = w.Stop(ctx)
		}(w)
	}
	wg.Wait()
	return nil
}

// WorkerSet fills workers up to a per-worker capacity, spawning the next
// worker as each fills.
type WorkerSet struct {
	basePool
	capacity int

	mu      sync.Mutex
	workers []*Worker
	started bool
}

func (p *WorkerSet) Add(ctx context.Context, tpl *domain.Template, index int) (*station.Station, error) {
	st, err := p.build(tpl, index)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	var w *Worker
	if n := len(p.workers); n > 0 && p.workers[n-1].Len() < p.capacity {
		w = p.workers[n-1]
	} else {
		w = newWorker(len(p.workers), p.log)
		p.workers = append(p.workers, w)
		if p.started {
			_ = w.Start(ctx)
		}
	}
	p.mu.Unlock()

	if err := w.Add(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

func (p *WorkerSet) Start(ctx context.Context) error {
	p.mu.Lock()
	p.started = true
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()
	for _, w := range workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *WorkerSet) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.started = false
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			_ = w.Stop(ctx)
		}(w)
	}
	wg.Wait()
	return nil
}
