package v16

import (
	"fmt"

	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
)

// MaxIdTagLength bounds a 1.6 idTag.
const MaxIdTagLength = 20

// RegisterSchemas installs the typed payload validators for every 1.6 action
// the engine speaks.
func RegisterSchemas(r *wire.Registry) {
	reg := func(action string, req, resp wire.Validator) {
		r.Register(Version, action, wire.RoleRequest, req)
		r.Register(Version, action, wire.RoleResponse, resp)
	}

	reg(ActionBootNotification,
		wire.Typed(func(m *BootNotificationRequest) error {
			if err := wire.NonEmpty("chargePointVendor", m.ChargePointVendor); err != nil {
				return err
			}
			return wire.NonEmpty("chargePointModel", m.ChargePointModel)
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
			if m.ConnectorId < 0 {
				return fmt.Errorf("connectorId must be non-negative")
			}
			if err := wire.NonEmpty("status", string(m.Status)); err != nil {
				return err
			}
			return wire.NonEmpty("errorCode", string(m.ErrorCode))
		}),
		wire.Typed[StatusNotificationResponse](nil))

	reg(ActionAuthorize,
		wire.Typed(func(m *AuthorizeRequest) error {
			if err := wire.NonEmpty("idTag", m.IdTag); err != nil {
				return err
			}
			return wire.MaxLen("idTag", m.IdTag, MaxIdTagLength)
		}),
		wire.Typed(func(m *AuthorizeResponse) error {
			return wire.NonEmpty("idTagInfo.status", string(m.IdTagInfo.Status))
		}))

	reg(ActionStartTransaction,
		wire.Typed(func(m *StartTransactionRequest) error {
			if m.ConnectorId < 1 {
				return fmt.Errorf("connectorId must be at least 1")
			}
			if err := wire.NonEmpty("idTag", m.IdTag); err != nil {
				return err
			}
			return wire.MaxLen("idTag", m.IdTag, MaxIdTagLength)
		}),
		wire.Typed(func(m *StartTransactionResponse) error {
			return wire.NonEmpty("idTagInfo.status", string(m.IdTagInfo.Status))
		}))

	reg(ActionStopTransaction,
		wire.Typed(func(m *StopTransactionRequest) error {
			return wire.MaxLen("idTag", m.IdTag, MaxIdTagLength)
		}),
		wire.Typed[StopTransactionResponse](nil))

	reg(ActionMeterValues,
		wire.Typed(func(m *MeterValuesRequest) error {
			if m.ConnectorId < 0 {
				return fmt.Errorf("connectorId must be non-negative")
			}
			if len(m.MeterValue) == 0 {
				return fmt.Errorf("meterValue is required")
			}
			return nil
		}),
		wire.Typed[MeterValuesResponse](nil))

	reg(ActionDataTransfer,
		wire.Typed(func(m *DataTransferRequest) error {
			return wire.NonEmpty("vendorId", m.VendorId)
		}),
		wire.Typed[DataTransferResponse](nil))

	reg(ActionRemoteStartTransaction,
		wire.Typed(func(m *RemoteStartTransactionRequest) error {
			if err := wire.NonEmpty("idTag", m.IdTag); err != nil {
				return err
			}
			return wire.MaxLen("idTag", m.IdTag, MaxIdTagLength)
		}),
		wire.Typed[RemoteStartTransactionResponse](nil))

	reg(ActionRemoteStopTransaction,
		wire.Typed(func(m *RemoteStopTransactionRequest) error {
			if m.TransactionId <= 0 {
				return fmt.Errorf("transactionId must be positive")
			}
			return nil
		}),
		wire.Typed[RemoteStopTransactionResponse](nil))

	reg(ActionReset,
		wire.Typed(func(m *ResetRequest) error {
			switch m.Type {
			case ResetHard, ResetSoft:
				return nil
			}
			return fmt.Errorf("invalid reset type %q", m.Type)
		}),
		wire.Typed[ResetResponse](nil))

	reg(ActionChangeAvailability,
		wire.Typed(func(m *ChangeAvailabilityRequest) error {
			switch m.Type {
			case AvailabilityOperative, AvailabilityInoperative:
				return nil
			}
			return fmt.Errorf("invalid availability type %q", m.Type)
		}),
		wire.Typed[ChangeAvailabilityResponse](nil))

	reg(ActionGetConfiguration,
		wire.Typed[GetConfigurationRequest](nil),
		wire.Typed[GetConfigurationResponse](nil))

	reg(ActionChangeConfiguration,
		wire.Typed(func(m *ChangeConfigurationRequest) error {
			return wire.NonEmpty("key", m.Key)
		}),
		wire.Typed[ChangeConfigurationResponse](nil))

	reg(ActionClearCache,
		wire.Typed[ClearCacheRequest](nil),
		wire.Typed[ClearCacheResponse](nil))

	reg(ActionSendLocalList,
		wire.Typed(func(m *SendLocalListRequest) error {
			switch m.UpdateType {
			case "Full", "Differential":
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
			return wire.NonEmpty("requestedMessage", m.RequestedMessage)
		}),
		wire.Typed[TriggerMessageResponse](nil))

	reg(ActionUnlockConnector,
		wire.Typed(func(m *UnlockConnectorRequest) error {
			if m.ConnectorId < 1 {
				return fmt.Errorf("connectorId must be at least 1")
			}
			return nil
		}),
		wire.Typed[UnlockConnectorResponse](nil))
}
