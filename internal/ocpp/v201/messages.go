package v201

// Actions initiated by the charging station.
const (
	ActionBootNotification           = "BootNotification"
	ActionHeartbeat                  = "Heartbeat"
	ActionStatusNotification         = "StatusNotification"
	ActionAuthorize                  = "Authorize"
	ActionTransactionEvent           = "TransactionEvent"
	ActionMeterValues                = "MeterValues"
	ActionNotifyReport               = "NotifyReport"
	ActionFirmwareStatusNotification = "FirmwareStatusNotification"
	ActionGet15118EVCertificate      = "Get15118EVCertificate"
	ActionGetCertificateStatus       = "GetCertificateStatus"
	ActionDataTransfer               = "DataTransfer"
)

// Actions initiated by the CSMS.
const (
	ActionReset                      = "Reset"
	ActionChangeAvailability         = "ChangeAvailability"
	ActionGetVariables               = "GetVariables"
	ActionSetVariables               = "SetVariables"
	ActionGetBaseReport              = "GetBaseReport"
	ActionRequestStartTransaction    = "RequestStartTransaction"
	ActionRequestStopTransaction     = "RequestStopTransaction"
	ActionClearCache                 = "ClearCache"
	ActionSendLocalList              = "SendLocalList"
	ActionGetLocalListVersion        = "GetLocalListVersion"
	ActionTriggerMessage             = "TriggerMessage"
	ActionUnlockConnector            = "UnlockConnector"
	ActionSetChargingProfile         = "SetChargingProfile"
	ActionClearChargingProfile       = "ClearChargingProfile"
	ActionInstallCertificate         = "InstallCertificate"
	ActionDeleteCertificate          = "DeleteCertificate"
	ActionGetInstalledCertificateIds = "GetInstalledCertificateIds"
	ActionUpdateFirmware             = "UpdateFirmware"
)

// BootNotificationRequest (CS -> CSMS).
type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation"`
	Reason          BootReasonType  `json:"reason"`
}

type BootNotificationResponse struct {
	CurrentTime DateTime               `json:"currentTime"`
	Interval    int                    `json:"interval"`
	Status      RegistrationStatusType `json:"status"`
	StatusInfo  *StatusInfo            `json:"statusInfo,omitempty"`
}

// HeartbeatRequest has an empty payload by design; it must serialize to {}.
type HeartbeatRequest struct{}

type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime"`
}

type StatusNotificationRequest struct {
	Timestamp       DateTime            `json:"timestamp"`
	ConnectorStatus ConnectorStatusType `json:"connectorStatus"`
	EvseId          int                 `json:"evseId"`
	ConnectorId     int                 `json:"connectorId"`
}

type StatusNotificationResponse struct{}

type AuthorizeRequest struct {
	IdToken                     IdToken           `json:"idToken"`
	Certificate                 string            `json:"certificate,omitempty"`
	Iso15118CertificateHashData []OCSPRequestData `json:"iso15118CertificateHashData,omitempty"`
}

type OCSPRequestData struct {
	HashAlgorithm  HashAlgorithmType `json:"hashAlgorithm"`
	IssuerNameHash string            `json:"issuerNameHash"`
	IssuerKeyHash  string            `json:"issuerKeyHash"`
	SerialNumber   string            `json:"serialNumber"`
	ResponderURL   string            `json:"responderURL"`
}

type AuthorizeResponse struct {
	IdTokenInfo       IdTokenInfo `json:"idTokenInfo"`
	CertificateStatus *string     `json:"certificateStatus,omitempty"`
}

type TransactionEventRequest struct {
	EventType          TransactionEventType `json:"eventType"`
	Timestamp          DateTime             `json:"timestamp"`
	TriggerReason      TriggerReasonType    `json:"triggerReason"`
	SeqNo              int                  `json:"seqNo"`
	TransactionInfo    Transaction          `json:"transactionInfo"`
	Offline            *bool                `json:"offline,omitempty"`
	NumberOfPhasesUsed *int                 `json:"numberOfPhasesUsed,omitempty"`
	CableMaxCurrent    *float64             `json:"cableMaxCurrent,omitempty"`
	ReservationId      *int                 `json:"reservationId,omitempty"`
	Evse               *EVSE                `json:"evse,omitempty"`
	IdToken            *IdToken             `json:"idToken,omitempty"`
	MeterValue         []MeterValue         `json:"meterValue,omitempty"`
}

type TransactionEventResponse struct {
	TotalCost              *float64        `json:"totalCost,omitempty"`
	ChargingPriority       *int            `json:"chargingPriority,omitempty"`
	IdTokenInfo            *IdTokenInfo    `json:"idTokenInfo,omitempty"`
	UpdatedPersonalMessage *MessageContent `json:"updatedPersonalMessage,omitempty"`
}

type MeterValuesRequest struct {
	EvseId     int          `json:"evseId"`
	MeterValue []MeterValue `json:"meterValue"`
}

type MeterValuesResponse struct{}

type NotifyReportRequest struct {
	RequestId   int          `json:"requestId"`
	GeneratedAt DateTime     `json:"generatedAt"`
	SeqNo       int          `json:"seqNo"`
	Tbc         bool         `json:"tbc,omitempty"`
	ReportData  []ReportData `json:"reportData,omitempty"`
}

type NotifyReportResponse struct{}

type FirmwareStatusNotificationRequest struct {
	Status    string `json:"status"`
	RequestId *int   `json:"requestId,omitempty"`
}

type FirmwareStatusNotificationResponse struct{}

type Get15118EVCertificateRequest struct {
	Iso15118SchemaVersion string `json:"iso15118SchemaVersion"`
	Action                string `json:"action"` // Install, Update
	ExiRequest            string `json:"exiRequest"`
}

type Get15118EVCertificateResponse struct {
	Status      string      `json:"status"` // Accepted, Failed
	ExiResponse string      `json:"exiResponse"`
	StatusInfo  *StatusInfo `json:"statusInfo,omitempty"`
}

type GetCertificateStatusRequest struct {
	OcspRequestData OCSPRequestData `json:"ocspRequestData"`
}

type GetCertificateStatusResponse struct {
	Status     string      `json:"status"` // Accepted, Failed
	OcspResult string      `json:"ocspResult,omitempty"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type DataTransferRequest struct {
	VendorId  string      `json:"vendorId"`
	MessageId string      `json:"messageId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type DataTransferResponse struct {
	Status     DataTransferStatusType `json:"status"`
	Data       interface{}            `json:"data,omitempty"`
	StatusInfo *StatusInfo            `json:"statusInfo,omitempty"`
}

type ResetRequest struct {
	Type   ResetType `json:"type"`
	EvseId *int      `json:"evseId,omitempty"`
}

type ResetResponse struct {
	Status     ResetStatusType `json:"status"`
	StatusInfo *StatusInfo     `json:"statusInfo,omitempty"`
}

type ChangeAvailabilityRequest struct {
	OperationalStatus OperationalStatusType `json:"operationalStatus"`
	Evse              *EVSE                 `json:"evse,omitempty"`
}

type ChangeAvailabilityResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected, Scheduled
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData"`
}

type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult"`
}

type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData"`
}

type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult"`
}

type GetBaseReportRequest struct {
	RequestId  int            `json:"requestId"`
	ReportBase ReportBaseType `json:"reportBase"`
}

type GetBaseReportResponse struct {
	Status     GenericDeviceModelStatusType `json:"status"`
	StatusInfo *StatusInfo                  `json:"statusInfo,omitempty"`
}

type RequestStartTransactionRequest struct {
	IdToken         IdToken          `json:"idToken"`
	RemoteStartId   int              `json:"remoteStartId"`
	EvseId          *int             `json:"evseId,omitempty"`
	GroupIdToken    *IdToken         `json:"groupIdToken,omitempty"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

type RequestStartTransactionResponse struct {
	Status        string      `json:"status"` // Accepted, Rejected
	TransactionId string      `json:"transactionId,omitempty"`
	StatusInfo    *StatusInfo `json:"statusInfo,omitempty"`
}

type RequestStopTransactionRequest struct {
	TransactionId string `json:"transactionId"`
}

type RequestStopTransactionResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type ClearCacheRequest struct{}

type ClearCacheResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type SendLocalListRequest struct {
	VersionNumber          int                 `json:"versionNumber"`
	UpdateType             UpdateType          `json:"updateType"`
	LocalAuthorizationList []AuthorizationData `json:"localAuthorizationList,omitempty"`
}

type SendLocalListResponse struct {
	Status     UpdateStatusType `json:"status"`
	StatusInfo *StatusInfo      `json:"statusInfo,omitempty"`
}

type GetLocalListVersionRequest struct{}

type GetLocalListVersionResponse struct {
	VersionNumber int `json:"versionNumber"`
}

type TriggerMessageRequest struct {
	RequestedMessage MessageTriggerType `json:"requestedMessage"`
	Evse             *EVSE              `json:"evse,omitempty"`
}

type TriggerMessageResponse struct {
	Status     TriggerMessageStatusType `json:"status"`
	StatusInfo *StatusInfo              `json:"statusInfo,omitempty"`
}

type UnlockConnectorRequest struct {
	EvseId      int `json:"evseId"`
	ConnectorId int `json:"connectorId"`
}

type UnlockConnectorResponse struct {
	Status     string      `json:"status"` // Unlocked, UnlockFailed, OngoingAuthorizedTransaction, UnknownConnector
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

// ChargingProfile and its schedule types.
type ChargingProfile struct {
	Id                     int                `json:"id"`
	StackLevel             int                `json:"stackLevel"`
	ChargingProfilePurpose string             `json:"chargingProfilePurpose"`
	ChargingProfileKind    string             `json:"chargingProfileKind"`
	RecurrencyKind         string             `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime          `json:"validFrom,omitempty"`
	ValidTo                *DateTime          `json:"validTo,omitempty"`
	ChargingSchedule       []ChargingSchedule `json:"chargingSchedule"`
	TransactionId          string             `json:"transactionId,omitempty"`
}

type ChargingSchedule struct {
	Id                     int                      `json:"id"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	Duration               *int                     `json:"duration,omitempty"`
	ChargingRateUnit       string                   `json:"chargingRateUnit"` // W, A
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod"`
}

type ChargingSchedulePeriod struct {
	StartPeriod  int      `json:"startPeriod"`
	Limit        float64  `json:"limit"`
	NumberPhases *int     `json:"numberPhases,omitempty"`
	PhaseToUse   *int     `json:"phaseToUse,omitempty"`
}

type SetChargingProfileRequest struct {
	EvseId          int             `json:"evseId"`
	ChargingProfile ChargingProfile `json:"chargingProfile"`
}

type SetChargingProfileResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type ClearChargingProfileRequest struct {
	ChargingProfileId       *int                            `json:"chargingProfileId,omitempty"`
	ChargingProfileCriteria *ClearChargingProfileCriteria   `json:"chargingProfileCriteria,omitempty"`
}

type ClearChargingProfileCriteria struct {
	EvseId                 *int   `json:"evseId,omitempty"`
	ChargingProfilePurpose string `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int   `json:"stackLevel,omitempty"`
}

type ClearChargingProfileResponse struct {
	Status     string      `json:"status"` // Accepted, Unknown
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type InstallCertificateRequest struct {
	CertificateType CertificateUseType `json:"certificateType"`
	Certificate     string             `json:"certificate"`
}

type InstallCertificateResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected, Failed
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type DeleteCertificateRequest struct {
	CertificateHashData CertificateHashData `json:"certificateHashData"`
}

type DeleteCertificateResponse struct {
	Status     string      `json:"status"` // Accepted, Failed, NotFound
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

type GetInstalledCertificateIdsRequest struct {
	CertificateType []CertificateUseType `json:"certificateType,omitempty"`
}

type GetInstalledCertificateIdsResponse struct {
	Status                   string                     `json:"status"` // Accepted, NotFound
	CertificateHashDataChain []CertificateHashDataChain `json:"certificateHashDataChain,omitempty"`
	StatusInfo               *StatusInfo                `json:"statusInfo,omitempty"`
}

type UpdateFirmwareRequest struct {
	RequestId     int      `json:"requestId"`
	Retries       *int     `json:"retries,omitempty"`
	RetryInterval *int     `json:"retryInterval,omitempty"`
	Firmware      Firmware `json:"firmware"`
}

type Firmware struct {
	Location           string    `json:"location"`
	RetrieveDateTime   DateTime  `json:"retrieveDateTime"`
	InstallDateTime    *DateTime `json:"installDateTime,omitempty"`
	SigningCertificate string    `json:"signingCertificate,omitempty"`
	Signature          string    `json:"signature,omitempty"`
}

type UpdateFirmwareResponse struct {
	Status     string      `json:"status"` // Accepted, Rejected, AcceptedCanceled, InvalidCertificate, RevokedCertificate
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}
