package fleet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

// Worker owns a disjoint set of stations. Stations are added before or
// after start; a started worker starts stations as they arrive.
type Worker struct {
	id  int
	log *zap.Logger

	mu       sync.Mutex
	stations map[string]*station.Station
	started  bool
	lastBusy time.Time
}

func newWorker(id int, log *zap.Logger) *Worker {
	return &Worker{
		id:       id,
		log:      log.With(zap.Int("worker", id)),
		stations: make(map[string]*station.Station),
		lastBusy: time.Now(),
	}
}

func (w *Worker) ID() int { return w.id }

func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stations)
}

// Add takes ownership of st. If the worker is already started the station
// is started immediately.
func (w *Worker) Add(ctx context.Context, st *station.Station) error {
	w.mu.Lock()
	w.stations[st.HashID()] = st
	w.lastBusy = time.Now()
	started := w.started
	w.mu.Unlock()

	if started {
		return st.Start(ctx)
	}
	return nil
}

// Start brings up every owned station. Individual station failures are
// logged and skipped so one bad template never takes the worker down.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	stations := make([]*station.Station, 0, len(w.stations))
	for _, st := range w.stations {
		stations = append(stations, st)
	}
	w.mu.Unlock()

	for _, st := range stations {
		if err := st.Start(ctx); err != nil {
			w.log.Error("station failed to start",
				zap.String("station", st.Name()), zap.Error(err))
		}
	}
	w.log.Info("worker started", zap.Int("stations", len(stations)))
	return nil
}

// Stop shuts down every owned station and waits for them.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	stations := make([]*station.Station, 0, len(w.stations))
	for _, st := range w.stations {
		stations = append(stations, st)
	}
	w.mu.Unlock()

	var wg sync.WaitGroup
	for _, st := range stations {
		wg.Add(1)
		go func(st *station.Station) {
			defer wg.Done()
			st.Stop(ctx)
		}(st)
	}
	wg.Wait()
	w.log.Info("worker stopped", zap.Int("stations", len(stations)))
	return nil
}

func (w *Worker) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastBusy
}
