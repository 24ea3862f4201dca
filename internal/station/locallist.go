package station

import (
	"errors"
	"sync"
	"time"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
)

// ErrVersionMismatch rejects a local list update whose version does not
// strictly increase.
var ErrVersionMismatch = errors.New("local list version must strictly increase")

// LocalListEntry is one authorized token in the station's local list.
type LocalListEntry struct {
	Status    domain.AuthorizationStatus
	ExpiresAt *time.Time
}

// LocalList is the versioned local authorization list.
type LocalList struct {
	mu      sync.RWMutex
	version int
	entries map[string]LocalListEntry
}

// NewLocalList starts at version 0 with no entries.
func NewLocalList() *LocalList {
	return &LocalList{entries: make(map[string]LocalListEntry)}
}

// Version returns the current list version.
func (l *LocalList) Version() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Len returns the number of entries.
func (l *LocalList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// ReplaceFull installs a complete list, discarding the previous one.
func (l *LocalList) ReplaceFull(version int, entries map[string]LocalListEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if version <= l.version {
		return ErrVersionMismatch
	}
	l.version = version
	l.entries = make(map[string]LocalListEntry, len(entries))
	for tag, e := range entries {
		l.entries[tag] = e
	}
	return nil
}

// ApplyDifferential applies deltas: entries with an empty status are removed,
// the rest upserted.
func (l *LocalList) ApplyDifferential(version int, entries map[string]LocalListEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if version <= l.version {
		return ErrVersionMismatch
	}
	l.version = version
	for tag, e := range entries {
		if e.Status == "" {
			delete(l.entries, tag)
			continue
		}
		l.entries[tag] = e
	}
	return nil
}

// Lookup returns the verdict for a tag. Entries past their expiry report
// Expired.
func (l *LocalList) Lookup(tag string) (domain.AuthorizationStatus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[tag]
	if !ok {
		return "", false
	}
	if e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
		return domain.AuthExpired, true
	}
	return e.Status, true
}
