package station

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Configuration store errors.
var (
	ErrReadOnly   = errors.New("configuration key is read-only")
	ErrUnknownKey = errors.New("unknown configuration key")
	ErrKeyExists  = errors.New("configuration key already exists")
)

// Well-known configuration keys the engine itself consumes.
const (
	KeyHeartbeatInterval        = "HeartbeatInterval"
	KeyWebSocketPingInterval    = "WebSocketPingInterval"
	KeyMeterValueSampleInterval = "MeterValueSampleInterval"
	KeyClockAlignedDataInterval = "ClockAlignedDataInterval"
	KeyAuthorizationCacheEnabled = "AuthorizationCacheEnabled"
	KeyAuthorizeRemoteTxRequests = "AuthorizeRemoteTxRequests"
	KeyLocalAuthListEnabled      = "LocalAuthListEnabled"
	KeyLocalPreAuthorize         = "LocalPreAuthorize"
)

// ConfigKey is one ordered, typed configuration entry.
type ConfigKey struct {
	Key            string `json:"key"`
	Value          string `json:"value"`
	Readonly       bool   `json:"readonly"`
	Visible        bool   `json:"visible"`
	RebootRequired bool   `json:"rebootRequired"`
}

// pathLocks serializes writers per canonical file path within the process.
var pathLocks sync.Map // string -> *sync.Mutex

func lockForPath(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	v, _ := pathLocks.LoadOrStore(abs, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// ConfigStore is the per-station ordered configuration key store. Keys are
// unique case-sensitively; lookups optionally match case-insensitively.
type ConfigStore struct {
	mu    sync.RWMutex
	keys  []ConfigKey
	index map[string]int
	path  string
	log   *zap.Logger
}

// NewConfigStore builds an empty store persisting to path ("" disables
// persistence).
func NewConfigStore(path string, log *zap.Logger) *ConfigStore {
	return &ConfigStore{
		index: make(map[string]int),
		path:  path,
		log:   log,
	}
}

// LoadConfigStore reads a previously persisted store. A missing file yields
// an empty store.
func LoadConfigStore(path string, log *zap.Logger) (*ConfigStore, error) {
	s := NewConfigStore(path, log)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}
	var doc struct {
		ConfigurationKey []ConfigKey `json:"configurationKey"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse configuration %s: %w", path, err)
	}
	for _, k := range doc.ConfigurationKey {
		s.index[k.Key] = len(s.keys)
		s.keys = append(s.keys, k)
	}
	return s, nil
}

// Get returns the key, matching case-insensitively when asked.
func (s *ConfigStore) Get(key string, caseInsensitive bool) (ConfigKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[key]; ok {
		return s.keys[i], true
	}
	if caseInsensitive {
		for _, k := range s.keys {
			if strings.EqualFold(k.Key, key) {
				return k, true
			}
		}
	}
	return ConfigKey{}, false
}

// Set updates an existing key's value. Read-only keys reject the write.
func (s *ConfigStore) Set(key, value string, save bool) error {
	s.mu.Lock()
	i, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownKey
	}
	if s.keys[i].Readonly {
		s.mu.Unlock()
		return ErrReadOnly
	}
	s.keys[i].Value = value
	s.mu.Unlock()

	if save {
		return s.Persist()
	}
	return nil
}

// Add appends a new key preserving insertion order.
func (s *ConfigStore) Add(k ConfigKey, save bool) error {
	s.mu.Lock()
	if _, ok := s.index[k.Key]; ok {
		s.mu.Unlock()
		return ErrKeyExists
	}
	s.index[k.Key] = len(s.keys)
	s.keys = append(s.keys, k)
	s.mu.Unlock()

	if save {
		return s.Persist()
	}
	return nil
}

// SetOrAdd is the seeding helper: update when present, append otherwise.
func (s *ConfigStore) SetOrAdd(k ConfigKey, save bool) error {
	s.mu.Lock()
	if i, ok := s.index[k.Key]; ok {
		s.keys[i] = k
	} else {
		s.index[k.Key] = len(s.keys)
		s.keys = append(s.keys, k)
	}
	s.mu.Unlock()

	if save {
		return s.Persist()
	}
	return nil
}

// Delete removes a key.
func (s *ConfigStore) Delete(key string, save bool) error {
	s.mu.Lock()
	i, ok := s.index[key]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownKey
	}
	s.keys = append(s.keys[:i], s.keys[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.keys); j++ {
		s.index[s.keys[j].Key] = j
	}
	s.mu.Unlock()

	if save {
		return s.Persist()
	}
	return nil
}

// Snapshot returns a copy of the ordered key list.
func (s *ConfigStore) Snapshot() []ConfigKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ConfigKey, len(s.keys))
	copy(out, s.keys)
	return out
}

// Persist writes the store atomically: temp file then rename, serialized on
// the in-process per-path lock.
func (s *ConfigStore) Persist() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	doc := struct {
		ConfigurationKey []ConfigKey `json:"configurationKey"`
	}{ConfigurationKey: append([]ConfigKey(nil), s.keys...)}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}

	lock := lockForPath(s.path)
	lock.Lock()
	defer lock.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create configuration dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp configuration: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write configuration: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close configuration: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename configuration: %w", err)
	}
	return nil
}

// IntValue reads a key as int with a fallback.
func (s *ConfigStore) IntValue(key string, fallback int) int {
	k, ok := s.Get(key, true)
	if !ok {
		return fallback
	}
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(k.Value), "%d", &v); err != nil {
		return fallback
	}
	return v
}

// BoolValue reads a key as bool with a fallback.
func (s *ConfigStore) BoolValue(key string, fallback bool) bool {
	k, ok := s.Get(key, true)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(k.Value)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return fallback
	}
}
