package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// PostgresJournal persists transaction records through GORM.
type PostgresJournal struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewPostgresJournal connects to url and migrates the transactions table.
func NewPostgresJournal(url string, log *zap.Logger) (*PostgresJournal, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := db.AutoMigrate(&domain.TransactionRecord{}); err != nil {
		return nil, fmt.Errorf("migrating transactions table: %w", err)
	}

	log.Info("transaction journal connected to PostgreSQL")
	return &PostgresJournal{db: db, log: log}, nil
}

func (j *PostgresJournal) Create(ctx context.Context, record domain.TransactionRecord) error {
	record.Status = "active"
	return j.db.WithContext(ctx).Create(&record).Error
}

func (j *PostgresJournal) Complete(ctx context.Context, transactionID, stationID string, meterStop int64, reason string) error {
	now := time.Now()
	result := j.db.WithContext(ctx).
		Model(&domain.TransactionRecord{}).
		Where("transaction_id = ? AND station_id = ?", transactionID, stationID).
		Updates(map[string]interface{}{
			"stopped_at":     now,
			"meter_stop":     meterStop,
			"energy_wh":      gorm.Expr("? - meter_start", meterStop),
			"stopped_reason": reason,
			"status":         "completed",
			"updated_at":     now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %s not journaled for station %s", transactionID, stationID)
	}
	return nil
}

func (j *PostgresJournal) ListByStation(ctx context.Context, stationID string) ([]domain.TransactionRecord, error) {
	var records []domain.TransactionRecord
	err := j.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("started_at asc").
		Find(&records).Error
	return records, err
}

func (j *PostgresJournal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ ports.TransactionJournal = (*PostgresJournal)(nil)
