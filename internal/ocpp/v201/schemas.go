package v201

import (
	"fmt"

	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
)

// MaxTokenLength bounds every 2.0.1 idToken value.
const MaxTokenLength = 36

// RegisterSchemas installs the typed payload validators for every 2.0.1
// action the engine speaks, keyed exactly like the upstream schema files
// <version>/<action>(Request|Response).json.
func RegisterSchemas(r *wire.Registry) {
	reg := func(action string, req, resp wire.Validator) {
		r.Register(Version, action, wire.RoleRequest, req)
		r.Register(Version, action, wire.RoleResponse, resp)
	}

	reg(ActionBootNotification,
		wire.Typed(func(m *BootNotificationRequest) error {
			if err := wire.NonEmpty("chargingStation.model", m.ChargingStation.Model); err != nil {
				return err
			}
			if err := wire.NonEmpty("chargingStation.vendorName", m.ChargingStation.VendorName); err != nil {
				return err
			}
			return wire.NonEmpty("reason", string(m.Reason))
		}),
		wire.Typed(func(m *BootNotificationResponse) error {
			switch m.Status {
			case RegistrationAccepted, RegistrationPending, RegistrationRejected:
				return nil
			}
			return fmt.Errorf("invalid registration status %q", m.Status)
		}))

	reg(ActionHeartbeat,
		wire.Typed[HeartbeatRequest](nil),
		wire.Typed[HeartbeatResponse](nil))

	reg(ActionStatusNotification,
		wire.Typed(func(m *StatusNotificationRequest) error {
			if m.EvseId < 0 || m.ConnectorId < 0 {
				return fmt.Errorf("evseId and connectorId must be non-negative")
			}
			return wire.NonEmpty("connectorStatus", string(m.ConnectorStatus))
		}),
		wire.Typed[StatusNotificationResponse](nil))

	reg(ActionAuthorize,
		wire.Typed(func(m *AuthorizeRequest) error {
			if err := wire.NonEmpty("idToken.idToken", m.IdToken.IdToken); err != nil {
				return err
			}
			return wire.MaxLen("idToken.idToken", m.IdToken.IdToken, MaxTokenLength)
		}),
		wire.Typed(func(m *AuthorizeResponse) error {
			return wire.NonEmpty("idTokenInfo.status", string(m.IdTokenInfo.Status))
		}))

	reg(ActionTransactionEvent,
		wire.Typed(func(m *TransactionEventRequest) error {
			switch m.EventType {
			case TransactionEventStarted, TransactionEventUpdated, TransactionEventEnded:
			default:
				return fmt.Errorf("invalid eventType %q", m.EventType)
			}
			if m.SeqNo < 0 {
				return fmt.Errorf("seqNo must be non-negative")
			}
			if err := wire.NonEmpty("transactionInfo.transactionId", m.TransactionInfo.TransactionId); err != nil {
				return err
			}
			return wire.MaxLen("transactionInfo.transactionId", m.TransactionInfo.TransactionId, MaxTokenLength)
		}),
		wire.Typed[TransactionEventResponse](nil))

	reg(ActionMeterValues,
		wire.Typed(func(m *MeterValuesRequest) error {
			if len(m.MeterValue) == 0 {
				return fmt.Errorf("meterValue is required")
			}
			for _, mv := range m.MeterValue {
				if len(mv.SampledValue) == 0 {
					return fmt.Errorf("sampledValue is required")
				}
			}
			return nil
		}),
		wire.Typed[MeterValuesResponse](nil))

	reg(ActionNotifyReport,
		wire.Typed(func(m *NotifyReportRequest) error {
			if m.SeqNo < 0 {
				return fmt.Errorf("seqNo must be non-negative")
			}
			return nil
		}),
		wire.Typed[NotifyReportResponse](nil))

	reg(ActionFirmwareStatusNotification,
		wire.Typed(func(m *FirmwareStatusNotificationRequest) error {
			return wire.NonEmpty("status", m.Status)
		}),
		wire.Typed[FirmwareStatusNotificationResponse](nil))

	reg(ActionGet15118EVCertificate,
		wire.Typed(func(m *Get15118EVCertificateRequest) error {
			if err := wire.NonEmpty("iso15118SchemaVersion", m.Iso15118SchemaVersion); err != nil {
				return err
			}
			return wire.NonEmpty("exiRequest", m.ExiRequest)
		}),
		wire.Typed(func(m *Get15118EVCertificateResponse) error {
			return wire.NonEmpty("status", m.Status)
		}))

	reg(ActionGetCertificateStatus,
		wire.Typed(func(m *GetCertificateStatusRequest) error {
			return wire.NonEmpty("ocspRequestData.serialNumber", m.OcspRequestData.SerialNumber)
		}),
		wire.Typed(func(m *GetCertificateStatusResponse) error {
			return wire.NonEmpty("status", m.Status)
		}))

	reg(ActionDataTransfer,
		wire.Typed(func(m *DataTransferRequest) error {
			return wire.NonEmpty("vendorId", m.VendorId)
		}),
		wire.Typed[DataTransferResponse](nil))

	reg(ActionReset,
		wire.Typed(func(m *ResetRequest) error {
			switch m.Type {
			case ResetImmediate, ResetOnIdle:
				return nil
			}
			return fmt.Errorf("invalid reset type %q", m.Type)
		}),
		wire.Typed[ResetResponse](nil))

	reg(ActionChangeAvailability,
		wire.Typed(func(m *ChangeAvailabilityRequest) error {
			switch m.OperationalStatus {
			case OperationalOperative, OperationalInoperative:
				return nil
			}
			return fmt.Errorf("invalid operationalStatus %q", m.OperationalStatus)
		}),
		wire.Typed[ChangeAvailabilityResponse](nil))

	reg(ActionGetVariables,
		wire.Typed(func(m *GetVariablesRequest) error {
			if len(m.GetVariableData) == 0 {
				return fmt.Errorf("getVariableData is required")
			}
			return nil
		}),
		wire.Typed[GetVariablesResponse](nil))

	reg(ActionSetVariables,
		wire.Typed(func(m *SetVariablesRequest) error {
			if len(m.SetVariableData) == 0 {
				return fmt.Errorf("setVariableData is required")
			}
			return nil
		}),
		wire.Typed[SetVariablesResponse](nil))

	reg(ActionGetBaseReport,
		wire.Typed(func(m *GetBaseReportRequest) error {
			return wire.NonEmpty("reportBase", string(m.ReportBase))
		}),
		wire.Typed[GetBaseReportResponse](nil))

	reg(ActionRequestStartTransaction,
		wire.Typed(func(m *RequestStartTransactionRequest) error {
			if err := wire.NonEmpty("idToken.idToken", m.IdToken.IdToken); err != nil {
				return err
			}
			return wire.MaxLen("idToken.idToken", m.IdToken.IdToken, MaxTokenLength)
		}),
		wire.Typed[RequestStartTransactionResponse](nil))

	reg(ActionRequestStopTransaction,
		wire.Typed(func(m *RequestStopTransactionRequest) error {
			return wire.MaxLen("transactionId", m.TransactionId, MaxTokenLength)
		}),
		wire.Typed[RequestStopTransactionResponse](nil))

	reg(ActionClearCache,
		wire.Typed[ClearCacheRequest](nil),
		wire.Typed[ClearCacheResponse](nil))

	reg(ActionSendLocalList,
		wire.Typed(func(m *SendLocalListRequest) error {
			switch m.UpdateType {
			case UpdateFull, UpdateDifferential:
				return nil
			}
			return fmt.Errorf("invalid updateType %q", m.UpdateType)
		}),
		wire.Typed[SendLocalListResponse](nil))

	reg(ActionGetLocalListVersion,
		wire.Typed[GetLocalListVersionRequest](nil),
		wire.Typed[GetLocalListVersionResponse](nil))

	reg(ActionTriggerMessage,
		wire.Typed(func(m *TriggerMessageRequest) error {
			return wire.NonEmpty("requestedMessage", string(m.RequestedMessage))
		}),
		wire.Typed[TriggerMessageResponse](nil))

	reg(ActionUnlockConnector,
		wire.Typed[UnlockConnectorRequest](nil),
		wire.Typed[UnlockConnectorResponse](nil))

	reg(ActionSetChargingProfile,
		wire.Typed(func(m *SetChargingProfileRequest) error {
			if len(m.ChargingProfile.ChargingSchedule) == 0 {
				return fmt.Errorf("chargingSchedule is required")
			}
			return nil
		}),
		wire.Typed[SetChargingProfileResponse](nil))

	reg(ActionClearChargingProfile,
		wire.Typed[ClearChargingProfileRequest](nil),
		wire.Typed[ClearChargingProfileResponse](nil))

	reg(ActionInstallCertificate,
		wire.Typed(func(m *InstallCertificateRequest) error {
			if err := wire.NonEmpty("certificateType", string(m.CertificateType)); err != nil {
				return err
			}
			return wire.NonEmpty("certificate", m.Certificate)
		}),
		wire.Typed[InstallCertificateResponse](nil))

	reg(ActionDeleteCertificate,
		wire.Typed(func(m *DeleteCertificateRequest) error {
			return wire.NonEmpty("certificateHashData.serialNumber", m.CertificateHashData.SerialNumber)
		}),
		wire.Typed[DeleteCertificateResponse](nil))

	reg(ActionGetInstalledCertificateIds,
		wire.Typed[GetInstalledCertificateIdsRequest](nil),
		wire.Typed[GetInstalledCertificateIdsResponse](nil))

	reg(ActionUpdateFirmware,
		wire.Typed(func(m *UpdateFirmwareRequest) error {
			return wire.NonEmpty("firmware.location", m.Firmware.Location)
		}),
		wire.Typed[UpdateFirmwareResponse](nil))
}
