package domain

import "time"

// TransactionRecord is the journal row for one charging transaction.
type TransactionRecord struct {
	TransactionID   string     `json:"transaction_id" gorm:"primaryKey;size:36"`
	StationID       string     `json:"station_id" gorm:"index;size:64"`
	ConnectorID     int        `json:"connector_id"`
	IdTag           string     `json:"id_tag" gorm:"size:36"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	MeterStart      int64      `json:"meter_start"` // Wh
	MeterStop       int64      `json:"meter_stop"`  // Wh
	EnergyWh        int64      `json:"energy_wh"`
	StoppedReason   string     `json:"stopped_reason,omitempty" gorm:"size:32"`
	ProtocolVersion string     `json:"protocol_version" gorm:"size:8"`
	Status          string     `json:"status" gorm:"size:16;index"` // active, completed
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName keeps the journal table name stable.
func (TransactionRecord) TableName() string { return "transactions" }
