// Package sim is the supervisor: it assembles the cache, journal, broadcast
// bus, worker pool and station registry from configuration and exposes the
// surface the UI control-plane drives.
package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/broadcast"
	"github.com/seu-repo/sigec-fleetsim/internal/cache"
	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
	"github.com/seu-repo/sigec-fleetsim/internal/station"
	"github.com/seu-repo/sigec-fleetsim/internal/storage"
	"github.com/seu-repo/sigec-fleetsim/pkg/config"
)

// Simulator owns the fleet for one host process.
type Simulator struct {
	cfg *config.Config
	log *zap.Logger

	registry  *fleet.Registry
	bus       ports.Broadcaster
	pool      fleet.Pool
	responder *fleet.Responder
	cache     ports.Cache
	journal   ports.TransactionJournal

	mu        sync.Mutex
	started   bool
	seeded    bool
	templates map[string]*domain.Template
	idTags    map[string][]string
	nextIndex map[string]int
}

// New assembles a simulator from configuration. Nothing runs until Start.
func New(cfg *config.Config, log *zap.Logger) (*Simulator, error) {
	var (
		sharedCache ports.Cache
		err         error
	)
	if cfg.Redis.URL != "" {
		sharedCache, err = cache.NewRedisCache(cfg.Redis.URL, log)
		if err != nil {
			return nil, err
		}
	} else {
		sharedCache = cache.NewLocalCache(time.Minute, log)
	}

	var bus ports.Broadcaster
	if cfg.NATS.URL != "" {
		bus, err = broadcast.NewNATS(cfg.NATS.URL, log)
		if err != nil {
			return nil, err
		}
	} else {
		bus = broadcast.NewLocal(log)
	}

	var journal ports.TransactionJournal
	if cfg.Database.URL != "" {
		journal, err = storage.NewPostgresJournal(cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
	} else {
		journal = storage.NewMemoryJournal()
	}

	s := &Simulator{
		cfg:       cfg,
		log:       log,
		registry:  fleet.NewRegistry(),
		bus:       bus,
		cache:     sharedCache,
		journal:   journal,
		templates: make(map[string]*domain.Template),
		idTags:    make(map[string][]string),
		nextIndex: make(map[string]int),
	}

	if err := s.loadTemplates(cfg.Fleet.TemplatesDir); err != nil {
		return nil, err
	}

	poolOpts := fleet.Options{
		Model:             cfg.Fleet.Pool.Model,
		PoolSize:          cfg.Fleet.Pool.PoolSize,
		MaxWorkers:        cfg.Fleet.Pool.MaxWorkers,
		QueueThreshold:    cfg.Fleet.Pool.QueueThreshold,
		IdleTTL:           cfg.Fleet.Pool.IdleTTL,
		StationsPerWorker: cfg.Fleet.Pool.StationsPerWorker,
	}
	s.pool, err = fleet.NewPool(poolOpts, s.buildStation, s.registry, bus, log)
	if err != nil {
		return nil, err
	}
	s.responder = fleet.NewResponder(s.registry, bus, log)
	return s, nil
}

func (s *Simulator) loadTemplates(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read templates dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		tpl, err := domain.LoadTemplate(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		s.templates[name] = tpl
		if tpl.IdTagsFile != "" {
			tagsPath := tpl.IdTagsFile
			if !filepath.IsAbs(tagsPath) {
				tagsPath = filepath.Join(dir, tagsPath)
			}
			tags, err := domain.LoadIdTags(tagsPath)
			if err != nil {
				return err
			}
			s.idTags[name] = tags
		}
	}
	if len(s.templates) == 0 {
		return fmt.Errorf("no station templates found in %s", dir)
	}
	s.log.Info("Templates loaded", zap.Int("count", len(s.templates)))
	return nil
}

// buildStation is the pool's station factory.
func (s *Simulator) buildStation(tpl *domain.Template, index int) (*station.Station, error) {
	var tags []string
	for name, t := range s.templates {
		if t == tpl {
			tags = s.idTags[name]
			break
		}
	}
	return station.New(station.Config{
		Template:    tpl,
		Index:       index,
		DataDir:     s.cfg.Fleet.DataDir,
		IdTags:      tags,
		SharedCache: s.cache,
		Journal:     s.journal,
	}, s.log)
}

// Registry exposes the station index.
func (s *Simulator) Registry() *fleet.Registry { return s.registry }

// Templates lists the loadable template names.
func (s *Simulator) Templates() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddStations instantiates count stations from the named template and hands
// them to the pool.
func (s *Simulator) AddStations(ctx context.Context, template string, count int) ([]string, error) {
	s.mu.Lock()
	tpl, ok := s.templates[template]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown template %q", template)
	}

	hashIds := make([]string, 0, count)
	for i := 0; i < count; i++ {
		s.mu.Lock()
		s.nextIndex[template]++
		index := s.nextIndex[template]
		s.mu.Unlock()

		st, err := s.pool.Add(ctx, tpl, index)
		if err != nil {
			return hashIds, err
		}
		hashIds = append(hashIds, st.HashID())
	}
	return hashIds, nil
}

// Start brings up the responder, the pool and, on the first call, the
// station groups named in configuration.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	seed := !s.seeded
	s.seeded = true
	s.mu.Unlock()

	if err := s.responder.Start(); err != nil {
		return err
	}
	if err := s.pool.Start(ctx); err != nil {
		return err
	}
	if seed {
		for _, group := range s.cfg.Fleet.Stations {
			if _, err := s.AddStations(ctx, group.Template, group.Count); err != nil {
				return err
			}
		}
	}
	s.log.Info("Simulator started", zap.Int("stations", s.registry.Len()))
	return nil
}

// Stop shuts the pool down. Stations stay registered for a later Start.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	if err := s.pool.Stop(ctx); err != nil {
		return err
	}
	if err := s.responder.Stop(); err != nil {
		s.log.Warn("responder stop", zap.Error(err))
	}
	s.log.Info("Simulator stopped")
	return nil
}

// Close releases the shared backends.
func (s *Simulator) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{s.bus, s.cache, s.journal} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Bus exposes the broadcast channel for the UI server.
func (s *Simulator) Bus() ports.Broadcaster { return s.bus }
