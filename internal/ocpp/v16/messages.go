package v16

import (
	"fmt"
	"strings"
	"time"
)

// Version is the subprotocol string advertised during the websocket handshake.
const Version = "ocpp1.6"

// Actions initiated by the charge point.
const (
	ActionBootNotification   = "BootNotification"
	ActionHeartbeat          = "Heartbeat"
	ActionStatusNotification = "StatusNotification"
	ActionAuthorize          = "Authorize"
	ActionStartTransaction   = "StartTransaction"
	ActionStopTransaction    = "StopTransaction"
	ActionMeterValues        = "MeterValues"
	ActionDataTransfer       = "DataTransfer"
)

// Actions initiated by the central system.
const (
	ActionRemoteStartTransaction = "RemoteStartTransaction"
	ActionRemoteStopTransaction  = "RemoteStopTransaction"
	ActionReset                  = "Reset"
	ActionChangeAvailability     = "ChangeAvailability"
	ActionGetConfiguration       = "GetConfiguration"
	ActionChangeConfiguration    = "ChangeConfiguration"
	ActionClearCache             = "ClearCache"
	ActionSendLocalList          = "SendLocalList"
	ActionGetLocalListVersion    = "GetLocalListVersion"
	ActionTriggerMessage         = "TriggerMessage"
	ActionUnlockConnector        = "UnlockConnector"
)

// DateTime wraps time.Time to marshal as ISO-8601 UTC.
type DateTime struct {
	time.Time
}

func Now() DateTime {
	return DateTime{Time: time.Now().UTC()}
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.UTC().Format(time.RFC3339) + `"`), nil
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid DateTime %q: %w", s, err)
		}
	}
	d.Time = t
	return nil
}

// ChargePointStatus is the connector status reported in StatusNotification.
type ChargePointStatus string

const (
	StatusAvailable     ChargePointStatus = "Available"
	StatusPreparing     ChargePointStatus = "Preparing"
	StatusCharging      ChargePointStatus = "Charging"
	StatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	StatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	StatusFinishing     ChargePointStatus = "Finishing"
	StatusReserved      ChargePointStatus = "Reserved"
	StatusUnavailable   ChargePointStatus = "Unavailable"
	StatusFaulted       ChargePointStatus = "Faulted"
)

type ChargePointErrorCode string

const (
	ErrorNoError      ChargePointErrorCode = "NoError"
	ErrorInternal     ChargePointErrorCode = "InternalError"
	ErrorGroundFault  ChargePointErrorCode = "GroundFailure"
	ErrorOtherError   ChargePointErrorCode = "OtherError"
	ErrorPowerSwitch  ChargePointErrorCode = "PowerSwitchFailure"
	ErrorOverCurrent  ChargePointErrorCode = "OverCurrentFailure"
	ErrorWeakSignal   ChargePointErrorCode = "WeakSignal"
)

type RegistrationStatus string

const (
	RegistrationAccepted RegistrationStatus = "Accepted"
	RegistrationPending  RegistrationStatus = "Pending"
	RegistrationRejected RegistrationStatus = "Rejected"
)

type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

type AvailabilityType string

const (
	AvailabilityOperative   AvailabilityType = "Operative"
	AvailabilityInoperative AvailabilityType = "Inoperative"
)

type AvailabilityStatus string

const (
	AvailabilityAccepted  AvailabilityStatus = "Accepted"
	AvailabilityRejected  AvailabilityStatus = "Rejected"
	AvailabilityScheduled AvailabilityStatus = "Scheduled"
)

// Reason a transaction stopped.
type Reason string

const (
	ReasonDeAuthorized   Reason = "DeAuthorized"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset      Reason = "HardReset"
	ReasonLocal          Reason = "Local"
	ReasonOther          Reason = "Other"
	ReasonPowerLoss      Reason = "PowerLoss"
	ReasonReboot         Reason = "Reboot"
	ReasonRemote         Reason = "Remote"
	ReasonSoftReset      Reason = "SoftReset"
)

type ResetType string

const (
	ResetHard ResetType = "Hard"
	ResetSoft ResetType = "Soft"
)

type ConfigurationStatus string

const (
	ConfigurationAccepted       ConfigurationStatus = "Accepted"
	ConfigurationRejected       ConfigurationStatus = "Rejected"
	ConfigurationRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationNotSupported   ConfigurationStatus = "NotSupported"
)

// IdTagInfo carries the authorization verdict for an idTag.
type IdTagInfo struct {
	Status      AuthorizationStatus `json:"status"`
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag string              `json:"parentIdTag,omitempty"`
}

type BootNotificationRequest struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status"`
	CurrentTime DateTime           `json:"currentTime"`
	Interval    int                `json:"interval"`
}

type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime"`
}

type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId"`
	ErrorCode       ChargePointErrorCode `json:"errorCode"`
	Status          ChargePointStatus    `json:"status"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	Info            string               `json:"info,omitempty"`
	VendorId        string               `json:"vendorId,omitempty"`
	VendorErrorCode string               `json:"vendorErrorCode,omitempty"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId"`
	IdTag         string   `json:"idTag"`
	MeterStart    int      `json:"meterStart"`
	Timestamp     DateTime `json:"timestamp"`
	ReservationId *int     `json:"reservationId,omitempty"`
}

type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
	TransactionId int       `json:"transactionId"`
}

type StopTransactionRequest struct {
	IdTag           string       `json:"idTag,omitempty"`
	MeterStop       int          `json:"meterStop"`
	Timestamp       DateTime     `json:"timestamp"`
	TransactionId   int          `json:"transactionId"`
	Reason          Reason       `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty"`
}

type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// MeterValue is one timestamped set of sampled values.
// Values are stringified decimals on the 1.6 wire.
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

const (
	MeasurandEnergyActiveImportRegister = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          = "Power.Active.Import"
	MeasurandCurrentImport              = "Current.Import"
	MeasurandVoltage                    = "Voltage"
	MeasurandSoC                        = "SoC"

	ReadingContextSamplePeriodic = "Sample.Periodic"
	ReadingContextSampleClock    = "Sample.Clock"
	ReadingContextTrigger        = "Trigger"
	ReadingContextTransactionBegin = "Transaction.Begin"
	ReadingContextTransactionEnd = "Transaction.End"

	UnitWh = "Wh"
	UnitW  = "W"
	UnitA  = "A"
	UnitV  = "V"
)

type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct{}

type RemoteStartTransactionRequest struct {
	ConnectorId     *int             `json:"connectorId,omitempty"`
	IdTag           string           `json:"idTag"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RemoteStartTransactionResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

type RemoteStopTransactionResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

type ResetRequest struct {
	Type ResetType `json:"type"`
}

type ResetResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId"`
	Type        AvailabilityType `json:"type"`
}

type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status"`
}

type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty"`
}

type ConfigurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationResponse struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

type ChangeConfigurationRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct {
	Status string `json:"status"` // Accepted, Rejected
}

type AuthorizationData struct {
	IdTag     string     `json:"idTag"`
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

type SendLocalListRequest struct {
	ListVersion            int                 `json:"listVersion"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty"`
	UpdateType             string              `json:"updateType"` // Full, Differential
}

type SendLocalListResponse struct {
	Status string `json:"status"` // Accepted, Failed, NotSupported, VersionMismatch
}

type GetLocalListVersionRequest struct{}

type GetLocalListVersionResponse struct {
	ListVersion int `json:"listVersion"`
}

type TriggerMessageRequest struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorId      *int   `json:"connectorId,omitempty"`
}

type TriggerMessageResponse struct {
	Status string `json:"status"` // Accepted, Rejected, NotImplemented
}

type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId"`
}

type UnlockConnectorResponse struct {
	Status string `json:"status"` // Unlocked, UnlockFailed, NotSupported
}

type ChargingProfile struct {
	ChargingProfileId      int              `json:"chargingProfileId"`
	TransactionId          *int             `json:"transactionId,omitempty"`
	StackLevel             int              `json:"stackLevel"`
	ChargingProfilePurpose string           `json:"chargingProfilePurpose"`
	ChargingProfileKind    string           `json:"chargingProfileKind"`
	RecurrencyKind         string           `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime        `json:"validFrom,omitempty"`
	ValidTo                *DateTime        `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule `json:"chargingSchedule"`
}

type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod"`
	Limit        float64 `json:"limit"`
	NumberPhases *int    `json:"numberPhases,omitempty"`
}

type DataTransferRequest struct {
	VendorId  string      `json:"vendorId"`
	MessageId string      `json:"messageId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status string      `json:"status"` // Accepted, Rejected, UnknownMessageId, UnknownVendorId
	Data   interface{} `json:"data,omitempty"`
}
