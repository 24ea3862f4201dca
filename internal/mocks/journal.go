package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// MockJournal records journal calls for assertions.
type MockJournal struct {
	mu        sync.Mutex
	Created   []domain.TransactionRecord
	Completed []string
}

func NewMockJournal() *MockJournal {
	return &MockJournal{}
}

func (m *MockJournal) Create(ctx context.Context, record domain.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, record)
	return nil
}

func (m *MockJournal) Complete(ctx context.Context, transactionID, stationID string, meterStop int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.Created {
		if rec.TransactionID == transactionID && rec.StationID == stationID {
			m.Completed = append(m.Completed, transactionID)
			return nil
		}
	}
	return fmt.Errorf("transaction %s not journaled", transactionID)
}

func (m *MockJournal) ListByStation(ctx context.Context, stationID string) ([]domain.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TransactionRecord
	for _, rec := range m.Created {
		if rec.StationID == stationID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// CreatedRecords returns a copy of the journaled records.
func (m *MockJournal) CreatedRecords() []domain.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.TransactionRecord(nil), m.Created...)
}

// CompletedIDs returns the completed transaction ids in order.
func (m *MockJournal) CompletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Completed...)
}

func (m *MockJournal) Close() error { return nil }

var _ ports.TransactionJournal = (*MockJournal)(nil)
