package v201

import (
	"fmt"
	"strings"
	"time"
)

// Version is the subprotocol string advertised during the websocket handshake.
const Version = "ocpp2.0.1"

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
		// Some backends emit fractional seconds
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid DateTime %q: %w", s, err)
		}
	}
	d.Time = t
	return nil
}

// RegistrationStatusType is the CSMS verdict on a BootNotification.
type RegistrationStatusType string

const (
	RegistrationAccepted RegistrationStatusType = "Accepted"
	RegistrationPending  RegistrationStatusType = "Pending"
	RegistrationRejected RegistrationStatusType = "Rejected"
)

// BootReasonType is the reason carried in a BootNotification.
type BootReasonType string

const (
	BootReasonPowerUp        BootReasonType = "PowerUp"
	BootReasonFirmwareUpdate BootReasonType = "FirmwareUpdate"
	BootReasonRemoteReset    BootReasonType = "RemoteReset"
	BootReasonScheduledReset BootReasonType = "ScheduledReset"
	BootReasonTriggered      BootReasonType = "Triggered"
	BootReasonUnknown        BootReasonType = "Unknown"
)

// ConnectorStatusType is the reported status of a connector.
type ConnectorStatusType string

const (
	ConnectorAvailable   ConnectorStatusType = "Available"
	ConnectorOccupied    ConnectorStatusType = "Occupied"
	ConnectorReserved    ConnectorStatusType = "Reserved"
	ConnectorUnavailable ConnectorStatusType = "Unavailable"
	ConnectorFaulted     ConnectorStatusType = "Faulted"
)

// OperationalStatusType is the requested availability of an EVSE.
type OperationalStatusType string

const (
	OperationalInoperative OperationalStatusType = "Inoperative"
	OperationalOperative   OperationalStatusType = "Operative"
)

// TransactionEventType distinguishes the three phases of a transaction.
type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

// TriggerReasonType is why a TransactionEvent was emitted.
type TriggerReasonType string

const (
	TriggerReasonAuthorized     TriggerReasonType = "Authorized"
	TriggerReasonCablePluggedIn TriggerReasonType = "CablePluggedIn"
	TriggerReasonChargingStateChanged TriggerReasonType = "ChargingStateChanged"
	TriggerReasonDeauthorized   TriggerReasonType = "Deauthorized"
	TriggerReasonEVCommunicationLost TriggerReasonType = "EVCommunicationLost"
	TriggerReasonEVDeparted     TriggerReasonType = "EVDeparted"
	TriggerReasonMeterValuePeriodic TriggerReasonType = "MeterValuePeriodic"
	TriggerReasonRemoteStart    TriggerReasonType = "RemoteStart"
	TriggerReasonRemoteStop     TriggerReasonType = "RemoteStop"
	TriggerReasonStopAuthorized TriggerReasonType = "StopAuthorized"
	TriggerReasonTrigger        TriggerReasonType = "Trigger"
)

// ReasonType is the stoppedReason on a transaction end.
type ReasonType string

const (
	ReasonDeAuthorized   ReasonType = "DeAuthorized"
	ReasonEVDisconnected ReasonType = "EVDisconnected"
	ReasonImmediateReset ReasonType = "ImmediateReset"
	ReasonLocal          ReasonType = "Local"
	ReasonOther          ReasonType = "Other"
	ReasonPowerLoss      ReasonType = "PowerLoss"
	ReasonReboot         ReasonType = "Reboot"
	ReasonRemote         ReasonType = "Remote"
	ReasonStoppedByEV    ReasonType = "StoppedByEV"
)

// ChargingStateType mirrors the EVSE charging state in TransactionEvent.
type ChargingStateType string

const (
	ChargingStateCharging      ChargingStateType = "Charging"
	ChargingStateEVConnected   ChargingStateType = "EVConnected"
	ChargingStateSuspendedEV   ChargingStateType = "SuspendedEV"
	ChargingStateSuspendedEVSE ChargingStateType = "SuspendedEVSE"
	ChargingStateIdle          ChargingStateType = "Idle"
)

// IdTokenType enumerates the 2.0.1 token kinds.
type IdTokenType string

const (
	IdTokenCentral         IdTokenType = "Central"
	IdTokenEMAID           IdTokenType = "eMAID"
	IdTokenISO14443        IdTokenType = "ISO14443"
	IdTokenISO15693        IdTokenType = "ISO15693"
	IdTokenKeyCode         IdTokenType = "KeyCode"
	IdTokenLocal           IdTokenType = "Local"
	IdTokenMacAddress      IdTokenType = "MacAddress"
	IdTokenNoAuthorization IdTokenType = "NoAuthorization"
)

// AuthorizationStatusType is the verdict on an IdToken.
type AuthorizationStatusType string

const (
	AuthorizationAccepted            AuthorizationStatusType = "Accepted"
	AuthorizationBlocked             AuthorizationStatusType = "Blocked"
	AuthorizationConcurrentTx        AuthorizationStatusType = "ConcurrentTx"
	AuthorizationExpired             AuthorizationStatusType = "Expired"
	AuthorizationInvalid             AuthorizationStatusType = "Invalid"
	AuthorizationNoCredit            AuthorizationStatusType = "NoCredit"
	AuthorizationNotAllowedTypeEVSE  AuthorizationStatusType = "NotAllowedTypeEVSE"
	AuthorizationNotAtThisLocation   AuthorizationStatusType = "NotAtThisLocation"
	AuthorizationNotAtThisTime       AuthorizationStatusType = "NotAtThisTime"
	AuthorizationUnknown             AuthorizationStatusType = "Unknown"
)

// ResetType and ResetStatusType per the Reset operation.
type ResetType string

const (
	ResetImmediate ResetType = "Immediate"
	ResetOnIdle    ResetType = "OnIdle"
)

type ResetStatusType string

const (
	ResetStatusAccepted  ResetStatusType = "Accepted"
	ResetStatusRejected  ResetStatusType = "Rejected"
	ResetStatusScheduled ResetStatusType = "Scheduled"
)

// AttributeStatusType is the per-item result of Get/SetVariables.
type AttributeStatusType string

const (
	AttributeAccepted                  AttributeStatusType = "Accepted"
	AttributeRejected                  AttributeStatusType = "Rejected"
	AttributeInvalidValue              AttributeStatusType = "InvalidValue"
	AttributeUnknownComponent          AttributeStatusType = "UnknownComponent"
	AttributeUnknownVariable           AttributeStatusType = "UnknownVariable"
	AttributeNotSupportedAttributeType AttributeStatusType = "NotSupportedAttributeType"
	AttributeRebootRequired            AttributeStatusType = "RebootRequired"
)

// ReportBaseType selects what GetBaseReport emits.
type ReportBaseType string

const (
	ReportConfigurationInventory ReportBaseType = "ConfigurationInventory"
	ReportFullInventory          ReportBaseType = "FullInventory"
	ReportSummaryInventory       ReportBaseType = "SummaryInventory"
)

// GenericDeviceModelStatusType is the GetBaseReport verdict.
type GenericDeviceModelStatusType string

const (
	DeviceModelAccepted       GenericDeviceModelStatusType = "Accepted"
	DeviceModelRejected       GenericDeviceModelStatusType = "Rejected"
	DeviceModelNotSupported   GenericDeviceModelStatusType = "NotSupported"
	DeviceModelEmptyResultSet GenericDeviceModelStatusType = "EmptyResultSet"
)

// CertificateUseType keys the certificate store directories.
type CertificateUseType string

const (
	CSMSRootCertificate         CertificateUseType = "CSMSRootCertificate"
	V2GRootCertificate          CertificateUseType = "V2GRootCertificate"
	ManufacturerRootCertificate CertificateUseType = "ManufacturerRootCertificate"
	MORootCertificate           CertificateUseType = "MORootCertificate"
)

// HashAlgorithmType for certificate hash data.
type HashAlgorithmType string

const (
	HashSHA256 HashAlgorithmType = "SHA256"
	HashSHA384 HashAlgorithmType = "SHA384"
	HashSHA512 HashAlgorithmType = "SHA512"
)

type DataTransferStatusType string

const (
	DataTransferAccepted        DataTransferStatusType = "Accepted"
	DataTransferRejected        DataTransferStatusType = "Rejected"
	DataTransferUnknownVendorId DataTransferStatusType = "UnknownVendorId"
)

type UpdateType string

const (
	UpdateDifferential UpdateType = "Differential"
	UpdateFull         UpdateType = "Full"
)

type UpdateStatusType string

const (
	UpdateStatusAccepted        UpdateStatusType = "Accepted"
	UpdateStatusFailed          UpdateStatusType = "Failed"
	UpdateStatusVersionMismatch UpdateStatusType = "VersionMismatch"
)

type MessageTriggerType string

const (
	TriggerBootNotification               MessageTriggerType = "BootNotification"
	TriggerHeartbeat                      MessageTriggerType = "Heartbeat"
	TriggerMeterValues                    MessageTriggerType = "MeterValues"
	TriggerStatusNotification             MessageTriggerType = "StatusNotification"
	TriggerTransactionEvent               MessageTriggerType = "TransactionEvent"
	TriggerFirmwareStatusNotification     MessageTriggerType = "FirmwareStatusNotification"
	TriggerLogStatusNotification          MessageTriggerType = "LogStatusNotification"
	TriggerSignChargingStationCertificate MessageTriggerType = "SignChargingStationCertificate"
)

type TriggerMessageStatusType string

const (
	TriggerStatusAccepted       TriggerMessageStatusType = "Accepted"
	TriggerStatusRejected       TriggerMessageStatusType = "Rejected"
	TriggerStatusNotImplemented TriggerMessageStatusType = "NotImplemented"
)

// IdToken identifies the party starting or stopping a transaction.
type IdToken struct {
	IdToken        string           `json:"idToken"`
	Type           IdTokenType      `json:"type"`
	AdditionalInfo []AdditionalInfo `json:"additionalInfo,omitempty"`
}

type AdditionalInfo struct {
	AdditionalIdToken string `json:"additionalIdToken"`
	Type              string `json:"type"`
}

// IdTokenInfo carries the authorization verdict for an IdToken.
type IdTokenInfo struct {
	Status              AuthorizationStatusType `json:"status"`
	CacheExpiryDateTime *DateTime               `json:"cacheExpiryDateTime,omitempty"`
	ChargingPriority    *int                    `json:"chargingPriority,omitempty"`
	GroupIdToken        *IdToken                `json:"groupIdToken,omitempty"`
	PersonalMessage     *MessageContent         `json:"personalMessage,omitempty"`
}

type MessageContent struct {
	Format   string `json:"format"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

type StatusInfo struct {
	ReasonCode     string `json:"reasonCode"`
	AdditionalInfo string `json:"additionalInfo,omitempty"`
}

// ChargingStation describes the station in a BootNotification.
type ChargingStation struct {
	Model           string `json:"model"`
	VendorName      string `json:"vendorName"`
	SerialNumber    string `json:"serialNumber,omitempty"`
	FirmwareVersion string `json:"firmwareVersion,omitempty"`
	Modem           *Modem `json:"modem,omitempty"`
}

type Modem struct {
	Iccid string `json:"iccid,omitempty"`
	Imsi  string `json:"imsi,omitempty"`
}

// EVSE identifies an EVSE, optionally down to the connector.
type EVSE struct {
	Id          int  `json:"id"`
	ConnectorId *int `json:"connectorId,omitempty"`
}

// Transaction is the transactionInfo of a TransactionEvent.
type Transaction struct {
	TransactionId     string             `json:"transactionId"`
	ChargingState     *ChargingStateType `json:"chargingState,omitempty"`
	TimeSpentCharging *int               `json:"timeSpentCharging,omitempty"`
	StoppedReason     *ReasonType        `json:"stoppedReason,omitempty"`
	RemoteStartId     *int               `json:"remoteStartId,omitempty"`
}

// MeterValue is one timestamped set of sampled values.
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type SampledValue struct {
	Value         float64            `json:"value"`
	Context       string             `json:"context,omitempty"`
	Measurand     string             `json:"measurand,omitempty"`
	Phase         string             `json:"phase,omitempty"`
	Location      string             `json:"location,omitempty"`
	SignedMeterValue *SignedMeterValue `json:"signedMeterValue,omitempty"`
	UnitOfMeasure *UnitOfMeasure     `json:"unitOfMeasure,omitempty"`
}

type SignedMeterValue struct {
	SignedMeterData string `json:"signedMeterData"`
	SigningMethod   string `json:"signingMethod"`
	EncodingMethod  string `json:"encodingMethod"`
	PublicKey       string `json:"publicKey"`
}

type UnitOfMeasure struct {
	Unit       string `json:"unit,omitempty"`
	Multiplier *int   `json:"multiplier,omitempty"`
}

// Component/Variable pair addressing in the device model.
type Component struct {
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
	EVSE     *EVSE  `json:"evse,omitempty"`
}

type Variable struct {
	Name     string `json:"name"`
	Instance string `json:"instance,omitempty"`
}

type GetVariableData struct {
	Component     Component `json:"component"`
	Variable      Variable  `json:"variable"`
	AttributeType string    `json:"attributeType,omitempty"`
}

type GetVariableResult struct {
	AttributeStatus AttributeStatusType `json:"attributeStatus"`
	Component       Component           `json:"component"`
	Variable        Variable            `json:"variable"`
	AttributeType   string              `json:"attributeType,omitempty"`
	AttributeValue  string              `json:"attributeValue,omitempty"`
	StatusInfo      *StatusInfo         `json:"attributeStatusInfo,omitempty"`
}

type SetVariableData struct {
	AttributeValue string    `json:"attributeValue"`
	Component      Component `json:"component"`
	Variable       Variable  `json:"variable"`
	AttributeType  string    `json:"attributeType,omitempty"`
}

type SetVariableResult struct {
	AttributeStatus AttributeStatusType `json:"attributeStatus"`
	Component       Component           `json:"component"`
	Variable        Variable            `json:"variable"`
	AttributeType   string              `json:"attributeType,omitempty"`
	StatusInfo      *StatusInfo         `json:"attributeStatusInfo,omitempty"`
}

// ReportData is one row of a NotifyReport.
type ReportData struct {
	Component               Component                 `json:"component"`
	Variable                Variable                  `json:"variable"`
	VariableAttribute       []VariableAttribute       `json:"variableAttribute"`
	VariableCharacteristics *VariableCharacteristics  `json:"variableCharacteristics,omitempty"`
}

type VariableAttribute struct {
	Type       string `json:"type,omitempty"`
	Value      string `json:"value,omitempty"`
	Mutability string `json:"mutability,omitempty"`
	Persistent *bool  `json:"persistent,omitempty"`
	Constant   *bool  `json:"constant,omitempty"`
}

type VariableCharacteristics struct {
	DataType           string `json:"dataType"`
	SupportsMonitoring bool   `json:"supportsMonitoring"`
	Unit               string `json:"unit,omitempty"`
	MaxLimit           *float64 `json:"maxLimit,omitempty"`
}

// CertificateHashData fingerprints an installed certificate.
type CertificateHashData struct {
	HashAlgorithm  HashAlgorithmType `json:"hashAlgorithm"`
	IssuerNameHash string            `json:"issuerNameHash"`
	IssuerKeyHash  string            `json:"issuerKeyHash"`
	SerialNumber   string            `json:"serialNumber"`
}

type CertificateHashDataChain struct {
	CertificateHashData      CertificateHashData   `json:"certificateHashData"`
	CertificateType          CertificateUseType    `json:"certificateType"`
	ChildCertificateHashData []CertificateHashData `json:"childCertificateHashData,omitempty"`
}

type AuthorizationData struct {
	IdToken     IdToken      `json:"idToken"`
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}
