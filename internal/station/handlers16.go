package station

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v16"
)

func (s *Station) handlers16() map[string]handlerFunc {
	return map[string]handlerFunc{
		v16.ActionRemoteStartTransaction: s.onRemoteStart16,
		v16.ActionRemoteStopTransaction:  s.onRemoteStop16,
		v16.ActionReset:                  s.onReset16,
		v16.ActionChangeAvailability:     s.onChangeAvailability16,
		v16.ActionGetConfiguration:       s.onGetConfiguration16,
		v16.ActionChangeConfiguration:    s.onChangeConfiguration16,
		v16.ActionClearCache:             s.onClearCache16,
		v16.ActionSendLocalList:          s.onSendLocalList16,
		v16.ActionGetLocalListVersion:    s.onGetLocalListVersion16,
		v16.ActionTriggerMessage:         s.onTriggerMessage16,
		v16.ActionUnlockConnector:        s.onUnlockConnector16,
		v16.ActionDataTransfer:           s.onDataTransfer16,
	}
}

func (s *Station) onRemoteStart16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.RemoteStartTransactionRequest](payload)
	if err != nil {
		return nil, err
	}

	connectorID := 0
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}
	if connectorID == 0 {
		for _, id := range s.ConnectorIDs() {
			conn := s.Connector(id)
			if !conn.HasTransaction() && conn.Availability() == Operative && conn.Status() == StatusAvailable {
				connectorID = id
				break
			}
		}
	}
	conn := s.Connector(connectorID)
	if conn == nil || conn.HasTransaction() || conn.Availability() == Inoperative {
		return v16.RemoteStartTransactionResponse{Status: "Rejected"}, nil
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()
		if _, err := s.StartTransaction(bg, connectorID, req.IdTag, true); err != nil {
			s.log.Warn("remote start failed",
				zap.Int("connectorId", connectorID), zap.Error(err))
		}
	}()
	return v16.RemoteStartTransactionResponse{Status: "Accepted"}, nil
}

func (s *Station) onRemoteStop16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.RemoteStopTransactionRequest](payload)
	if err != nil {
		return nil, err
	}

	connectorID, tx := s.FindTransaction(strconv.Itoa(req.TransactionId))
	if tx == nil {
		return v16.RemoteStopTransactionResponse{Status: "Rejected"}, nil
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()
		if err := s.StopTransaction(bg, connectorID, string(v16.ReasonRemote), true); err != nil {
			s.log.Warn("remote stop failed",
				zap.Int("transactionId", req.TransactionId), zap.Error(err))
		}
	}()
	return v16.RemoteStopTransactionResponse{Status: "Accepted"}, nil
}

func (s *Station) onReset16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.ResetRequest](payload)
	if err != nil {
		return nil, err
	}

	reason := v16.ReasonSoftReset
	if req.Type == v16.ResetHard {
		reason = v16.ReasonHardReset
	}
	go func() {
		bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()
		s.endAllTransactions(bg, string(reason))
		s.session.Kick()
	}()
	return v16.ResetResponse{Status: "Accepted"}, nil
}

func (s *Station) onChangeAvailability16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.ChangeAvailabilityRequest](payload)
	if err != nil {
		return nil, err
	}

	target := Operative
	if req.Type == v16.AvailabilityInoperative {
		target = Inoperative
	}

	ids := s.ConnectorIDs()
	if req.ConnectorId != 0 {
		if s.Connector(req.ConnectorId) == nil {
			return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityRejected}, nil
		}
		ids = []int{req.ConnectorId}
	}

	scheduled := false
	for _, id := range ids {
		if s.Connector(id).SetAvailability(target) == AvailabilityScheduled {
			scheduled = true
		}
	}
	if scheduled {
		return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityScheduled}, nil
	}
	return v16.ChangeAvailabilityResponse{Status: v16.AvailabilityAccepted}, nil
}

func (s *Station) onGetConfiguration16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.GetConfigurationRequest](payload)
	if err != nil {
		return nil, err
	}

	var resp v16.GetConfigurationResponse
	if len(req.Key) == 0 {
		for _, key := range s.config.Snapshot() {
			if !key.Visible {
				continue
			}
			value := key.Value
			resp.ConfigurationKey = append(resp.ConfigurationKey, v16.ConfigurationKey{
				Key:      key.Key,
				Readonly: key.Readonly,
				Value:    &value,
			})
		}
		return resp, nil
	}

	for _, name := range req.Key {
		key, ok := s.config.Get(name, true)
		if !ok || !key.Visible {
			resp.UnknownKey = append(resp.UnknownKey, name)
			continue
		}
		value := key.Value
		resp.ConfigurationKey = append(resp.ConfigurationKey, v16.ConfigurationKey{
			Key:      key.Key,
			Readonly: key.Readonly,
			Value:    &value,
		})
	}
	return resp, nil
}

func (s *Station) onChangeConfiguration16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.ChangeConfigurationRequest](payload)
	if err != nil {
		return nil, err
	}

	key, ok := s.config.Get(req.Key, true)
	if !ok {
		return v16.ChangeConfigurationResponse{Status: v16.ConfigurationNotSupported}, nil
	}
	if key.Readonly {
		return v16.ChangeConfigurationResponse{Status: v16.ConfigurationRejected}, nil
	}
	if err := s.config.Set(key.Key, req.Value, true); err != nil {
		return v16.ChangeConfigurationResponse{Status: v16.ConfigurationRejected}, nil
	}

	// Engine-consumed keys apply on the fly.
	switch key.Key {
	case KeyHeartbeatInterval:
		if n, err := strconv.Atoi(req.Value); err == nil && n > 0 {
			s.mu.Lock()
			s.hbInterval = time.Duration(n) * time.Second
			s.mu.Unlock()
			s.stopHeartbeat()
			s.startHeartbeat()
		}
	}

	if key.RebootRequired {
		return v16.ChangeConfigurationResponse{Status: v16.ConfigurationRebootRequired}, nil
	}
	return v16.ChangeConfigurationResponse{Status: v16.ConfigurationAccepted}, nil
}

func (s *Station) onClearCache16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	if !s.auth.Options().CacheEnabled {
		return v16.ClearCacheResponse{Status: "Rejected"}, nil
	}
	s.cache.Clear(ctx)
	return v16.ClearCacheResponse{Status: "Accepted"}, nil
}

func (s *Station) onSendLocalList16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.SendLocalListRequest](payload)
	if err != nil {
		return nil, err
	}
	if !s.auth.Options().LocalAuthListEnabled {
		return v16.SendLocalListResponse{Status: "NotSupported"}, nil
	}

	entries := make(map[string]LocalListEntry, len(req.LocalAuthorizationList))
	for _, item := range req.LocalAuthorizationList {
		entry := LocalListEntry{}
		if item.IdTagInfo != nil {
			entry.Status = domain.AuthorizationStatus(item.IdTagInfo.Status)
			if exp := item.IdTagInfo.ExpiryDate; exp != nil {
				t := exp.Time
				entry.ExpiresAt = &t
			}
		}
		entries[item.IdTag] = entry
	}

	if req.UpdateType == "Full" {
		err = s.list.ReplaceFull(req.ListVersion, entries)
	} else {
		err = s.list.ApplyDifferential(req.ListVersion, entries)
	}
	if err != nil {
		return v16.SendLocalListResponse{Status: "VersionMismatch"}, nil
	}
	return v16.SendLocalListResponse{Status: "Accepted"}, nil
}

func (s *Station) onGetLocalListVersion16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return v16.GetLocalListVersionResponse{ListVersion: s.list.Version()}, nil
}

func (s *Station) onTriggerMessage16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.TriggerMessageRequest](payload)
	if err != nil {
		return nil, err
	}

	connectorID := 0
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}

	switch req.RequestedMessage {
	case "BootNotification":
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			if _, _, err := s.sendBootNotification(bg); err != nil {
				s.log.Warn("triggered BootNotification failed", zap.Error(err))
			}
		}()
	case "Heartbeat":
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			if err := s.sendHeartbeat(bg); err != nil {
				s.log.Warn("triggered Heartbeat failed", zap.Error(err))
			}
		}()
	case "StatusNotification":
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			ids := s.ConnectorIDs()
			if connectorID != 0 {
				ids = []int{connectorID}
			}
			for _, id := range ids {
				if conn := s.Connector(id); conn != nil {
					s.notifyStatus(bg, id, conn.Status())
				}
			}
		}()
	case "MeterValues":
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			interval := s.config.IntValue(KeyMeterValueSampleInterval, 60)
			for _, id := range s.ConnectorIDs() {
				if connectorID != 0 && id != connectorID {
					continue
				}
				conn := s.Connector(id)
				if conn != nil && conn.Status() == StatusCharging {
					s.sampleAndSend(bg, id, conn, interval, v16.ReadingContextTrigger)
				}
			}
		}()
	default:
		return v16.TriggerMessageResponse{Status: "NotImplemented"}, nil
	}
	return v16.TriggerMessageResponse{Status: "Accepted"}, nil
}

func (s *Station) onUnlockConnector16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v16.UnlockConnectorRequest](payload)
	if err != nil {
		return nil, err
	}
	conn := s.Connector(req.ConnectorId)
	if conn == nil {
		return v16.UnlockConnectorResponse{Status: "NotSupported"}, nil
	}
	if conn.HasTransaction() {
		// Per 1.6 an unlock during a transaction stops it first.
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			if err := s.StopTransaction(bg, req.ConnectorId, string(v16.ReasonEVDisconnected), false); err != nil {
				s.log.Warn("unlock stop failed",
					zap.Int("connectorId", req.ConnectorId), zap.Error(err))
			}
		}()
	}
	return v16.UnlockConnectorResponse{Status: "Unlocked"}, nil
}

func (s *Station) onDataTransfer16(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return v16.DataTransferResponse{Status: "UnknownVendorId"}, nil
}
