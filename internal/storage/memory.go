// Package storage provides the transaction journal backends: an in-memory
// journal for standalone runs and tests, and a PostgreSQL journal for runs
// whose results must outlive the process.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// MemoryJournal keeps transaction records in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	records map[string]domain.TransactionRecord
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]domain.TransactionRecord)}
}

func (j *MemoryJournal) Create(ctx context.Context, record domain.TransactionRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, exists := j.records[record.TransactionID]; exists {
		return fmt.Errorf("transaction %s already journaled", record.TransactionID)
	}
	now := time.Now()
	record.Status = "active"
	record.CreatedAt = now
	record.UpdatedAt = now
	j.records[record.TransactionID] = record
	return nil
}

func (j *MemoryJournal) Complete(ctx context.Context, transactionID, stationID string, meterStop int64, reason string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	record, ok := j.records[transactionID]
	if !ok || record.StationID != stationID {
		return fmt.Errorf("transaction %s not journaled for station %s", transactionID, stationID)
	}
	now := time.Now()
	record.StoppedAt = &now
	record.MeterStop = meterStop
	record.EnergyWh = meterStop - record.MeterStart
	record.StoppedReason = reason
	record.Status = "completed"
	record.UpdatedAt = now
	j.records[transactionID] = record
	return nil
}

func (j *MemoryJournal) ListByStation(ctx context.Context, stationID string) ([]domain.TransactionRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []domain.TransactionRecord
	for _, record := range j.records {
		if record.StationID == stationID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }

var _ ports.TransactionJournal = (*MemoryJournal)(nil)
