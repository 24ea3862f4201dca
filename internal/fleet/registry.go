// Package fleet hosts many simulated stations per process: a station
// registry, workers that own disjoint station sets, and three pool models
// sharing one contract.
package fleet

import (
	"sort"
	"sync"

	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

// Registry is the process-wide index of stations by hash id. Workers add
// stations as they are created; the UI server resolves hashIds through it.
type Registry struct {
	mu       sync.RWMutex
	stations map[string]*station.Station
}

func NewRegistry() *Registry {
	return &Registry{stations: make(map[string]*station.Station)}
}

func (r *Registry) Add(st *station.Station) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stations[st.HashID()] = st
}

func (r *Registry) Remove(hashID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stations, hashID)
}

func (r *Registry) Get(hashID string) (*station.Station, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[hashID]
	return st, ok
}

// List returns all stations ordered by hash id for stable output.
func (r *Registry) List() []*station.Station {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*station.Station, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HashID() < out[j].HashID() })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}
