package station

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/cert"
	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v201"
)

// decode unmarshals a validated payload into its typed request.
func decode[T any](payload json.RawMessage) (*T, error) {
	var req T
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return &req, nil
}

func (s *Station) handlers201() map[string]handlerFunc {
	return map[string]handlerFunc{
		v201.ActionReset:                      s.onReset201,
		v201.ActionChangeAvailability:         s.onChangeAvailability201,
		v201.ActionGetVariables:               s.onGetVariables201,
		v201.ActionSetVariables:               s.onSetVariables201,
		v201.ActionGetBaseReport:              s.onGetBaseReport201,
		v201.ActionRequestStartTransaction:    s.onRequestStart201,
		v201.ActionRequestStopTransaction:     s.onRequestStop201,
		v201.ActionClearCache:                 s.onClearCache201,
		v201.ActionSendLocalList:              s.onSendLocalList201,
		v201.ActionGetLocalListVersion:        s.onGetLocalListVersion201,
		v201.ActionTriggerMessage:             s.onTriggerMessage201,
		v201.ActionUnlockConnector:            s.onUnlockConnector201,
		v201.ActionSetChargingProfile:         s.onSetChargingProfile201,
		v201.ActionClearChargingProfile:       s.onClearChargingProfile201,
		v201.ActionInstallCertificate:         s.onInstallCertificate201,
		v201.ActionDeleteCertificate:          s.onDeleteCertificate201,
		v201.ActionGetInstalledCertificateIds: s.onGetInstalledCertificateIds201,
		v201.ActionUpdateFirmware:             s.onUpdateFirmware201,
		v201.ActionDataTransfer:               s.onDataTransfer201,
	}
}

// activeTransactionCount counts connectors with a live transaction.
func (s *Station) activeTransactionCount() int {
	n := 0
	for _, id := range s.ConnectorIDs() {
		if s.Connector(id).HasTransaction() {
			n++
		}
	}
	return n
}

// endAllTransactions stops every live transaction with the given reason.
func (s *Station) endAllTransactions(ctx context.Context, reason string) {
	for _, id := range s.ConnectorIDs() {
		if s.Connector(id).HasTransaction() {
			if err := s.StopTransaction(ctx, id, reason, false); err != nil {
				s.log.Warn("transaction end failed",
					zap.Int("connectorId", id), zap.Error(err))
			}
		}
	}
}

// waitIdle blocks until no transaction remains or ctx expires.
func (s *Station) waitIdle(ctx context.Context) bool {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.activeTransactionCount() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (s *Station) onReset201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.ResetRequest](payload)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case v201.ResetImmediate:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			s.endAllTransactions(bg, string(v201.ReasonImmediateReset))
			s.session.Kick()
		}()
		return v201.ResetResponse{Status: v201.ResetStatusAccepted}, nil

	case v201.ResetOnIdle:
		status := v201.ResetStatusAccepted
		if s.activeTransactionCount() > 0 {
			status = v201.ResetStatusScheduled
		}
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), time.Hour)
			defer cancel()
			if s.waitIdle(bg) {
				s.session.Kick()
			}
		}()
		return v201.ResetResponse{Status: status}, nil
	}
	return v201.ResetResponse{Status: v201.ResetStatusRejected}, nil
}

func (s *Station) onChangeAvailability201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.ChangeAvailabilityRequest](payload)
	if err != nil {
		return nil, err
	}

	target := Operative
	if req.OperationalStatus == v201.OperationalInoperative {
		target = Inoperative
	}

	ids := s.ConnectorIDs()
	if req.Evse != nil && req.Evse.Id != 0 {
		if s.Connector(req.Evse.Id) == nil {
			return v201.ChangeAvailabilityResponse{
				Status:     "Rejected",
				StatusInfo: &v201.StatusInfo{ReasonCode: "UnknownEvse"},
			}, nil
		}
		ids = []int{req.Evse.Id}
	}

	scheduled := false
	for _, id := range ids {
		if s.Connector(id).SetAvailability(target) == AvailabilityScheduled {
			scheduled = true
		}
	}
	status := "Accepted"
	if scheduled {
		status = "Scheduled"
	}
	return v201.ChangeAvailabilityResponse{Status: status}, nil
}

func (s *Station) onGetVariables201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.GetVariablesRequest](payload)
	if err != nil {
		return nil, err
	}

	results := make([]v201.GetVariableResult, 0, len(req.GetVariableData))
	for _, item := range req.GetVariableData {
		res := v201.GetVariableResult{
			Component:     item.Component,
			Variable:      item.Variable,
			AttributeType: item.AttributeType,
		}
		switch {
		case item.AttributeType != "" && item.AttributeType != "Actual":
			res.AttributeStatus = v201.AttributeNotSupportedAttributeType
		default:
			if key, ok := s.config.Get(item.Variable.Name, true); ok {
				res.AttributeStatus = v201.AttributeAccepted
				res.AttributeValue = key.Value
			} else {
				res.AttributeStatus = v201.AttributeUnknownVariable
			}
		}
		results = append(results, res)
	}
	return v201.GetVariablesResponse{GetVariableResult: results}, nil
}

func (s *Station) onSetVariables201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.SetVariablesRequest](payload)
	if err != nil {
		return nil, err
	}

	results := make([]v201.SetVariableResult, 0, len(req.SetVariableData))
	for _, item := range req.SetVariableData {
		res := v201.SetVariableResult{
			Component:     item.Component,
			Variable:      item.Variable,
			AttributeType: item.AttributeType,
		}
		switch {
		case item.AttributeType != "" && item.AttributeType != "Actual":
			res.AttributeStatus = v201.AttributeNotSupportedAttributeType
		default:
			key, ok := s.config.Get(item.Variable.Name, true)
			switch {
			case !ok:
				res.AttributeStatus = v201.AttributeUnknownVariable
			case key.Readonly:
				res.AttributeStatus = v201.AttributeRejected
			default:
				if err := s.config.Set(key.Key, item.AttributeValue, true); err != nil {
					res.AttributeStatus = v201.AttributeRejected
				} else if key.RebootRequired {
					res.AttributeStatus = v201.AttributeRebootRequired
				} else {
					res.AttributeStatus = v201.AttributeAccepted
				}
			}
		}
		results = append(results, res)
	}
	return v201.SetVariablesResponse{SetVariableResult: results}, nil
}

// notifyReportPageSize bounds reportData entries per NotifyReport.
const notifyReportPageSize = 4

func (s *Station) onGetBaseReport201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.GetBaseReportRequest](payload)
	if err != nil {
		return nil, err
	}

	var rows []v201.ReportData
	switch req.ReportBase {
	case v201.ReportConfigurationInventory:
		rows = s.configReportData(false)
	case v201.ReportFullInventory:
		rows = s.identityReportData()
		rows = append(rows, s.configReportData(true)...)
		rows = append(rows, s.connectorReportData()...)
	case v201.ReportSummaryInventory:
		rows = append(s.identityReportData(), s.connectorReportData()...)
	default:
		return v201.GetBaseReportResponse{Status: v201.DeviceModelNotSupported}, nil
	}

	if len(rows) == 0 {
		return v201.GetBaseReportResponse{Status: v201.DeviceModelEmptyResultSet}, nil
	}

	go s.sendNotifyReportPages(req.RequestId, rows)
	return v201.GetBaseReportResponse{Status: v201.DeviceModelAccepted}, nil
}

// identityReportData reports the station's advertised identity as constant
// ChargingStation variables.
func (s *Station) identityReportData() []v201.ReportData {
	constant := true
	identity := []struct{ name, value string }{
		{"Model", s.tpl.ChargePointModel},
		{"VendorName", s.tpl.ChargePointVendor},
		{"FirmwareVersion", s.tpl.FirmwareVersion},
		{"SerialNumber", s.tpl.ChargePointSerialNumber},
	}
	var rows []v201.ReportData
	for _, item := range identity {
		if item.value == "" {
			continue
		}
		rows = append(rows, v201.ReportData{
			Component: v201.Component{Name: "ChargingStation"},
			Variable:  v201.Variable{Name: item.name},
			VariableAttribute: []v201.VariableAttribute{{
				Type:       "Actual",
				Value:      item.value,
				Mutability: "ReadOnly",
				Constant:   &constant,
			}},
		})
	}
	return rows
}

func (s *Station) configReportData(includeHidden bool) []v201.ReportData {
	var rows []v201.ReportData
	for _, key := range s.config.Snapshot() {
		if !key.Visible && !includeHidden {
			continue
		}
		mutability := "ReadWrite"
		if key.Readonly {
			mutability = "ReadOnly"
		}
		rows = append(rows, v201.ReportData{
			Component: v201.Component{Name: "ChargingStation"},
			Variable:  v201.Variable{Name: key.Key},
			VariableAttribute: []v201.VariableAttribute{{
				Type:       "Actual",
				Value:      key.Value,
				Mutability: mutability,
			}},
		})
	}
	return rows
}

func (s *Station) connectorReportData() []v201.ReportData {
	var rows []v201.ReportData
	for _, id := range s.ConnectorIDs() {
		conn := s.Connector(id)
		rows = append(rows, v201.ReportData{
			Component: v201.Component{Name: "EVSE", EVSE: &v201.EVSE{Id: id}},
			Variable:  v201.Variable{Name: "AvailabilityState"},
			VariableAttribute: []v201.VariableAttribute{{
				Type:       "Actual",
				Value:      string(conn.Status()),
				Mutability: "ReadOnly",
			}},
		})
	}
	return rows
}

func (s *Station) sendNotifyReportPages(requestID int, rows []v201.ReportData) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	seq := 0
	for offset := 0; offset < len(rows); offset += notifyReportPageSize {
		end := offset + notifyReportPageSize
		if end > len(rows) {
			end = len(rows)
		}
		req := v201.NotifyReportRequest{
			RequestId:   requestID,
			GeneratedAt: v201.Now(),
			SeqNo:       seq,
			Tbc:         end < len(rows),
			ReportData:  rows[offset:end],
		}
		if _, err := s.request(ctx, v201.ActionNotifyReport, v201.ActionNotifyReport, req); err != nil {
			s.log.Warn("NotifyReport page failed",
				zap.Int("requestId", requestID), zap.Int("seqNo", seq), zap.Error(err))
			return
		}
		seq++
	}
}

func (s *Station) onRequestStart201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.RequestStartTransactionRequest](payload)
	if err != nil {
		return nil, err
	}

	evseID := 0
	if req.EvseId != nil {
		evseID = *req.EvseId
	}
	if evseID == 0 {
		for _, id := range s.ConnectorIDs() {
			conn := s.Connector(id)
			if !conn.HasTransaction() && conn.Availability() == Operative && conn.Status() == StatusAvailable {
				evseID = id
				break
			}
		}
	}
	conn := s.Connector(evseID)
	if conn == nil {
		return v201.RequestStartTransactionResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "UnknownEvse"},
		}, nil
	}
	if conn.HasTransaction() || conn.Availability() == Inoperative {
		return v201.RequestStartTransactionResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "EvseOccupied"},
		}, nil
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()
		if _, err := s.StartTransaction(bg, evseID, req.IdToken.IdToken, true); err != nil {
			s.log.Warn("remote start failed",
				zap.Int("evseId", evseID), zap.Error(err))
		}
	}()
	return v201.RequestStartTransactionResponse{Status: "Accepted"}, nil
}

func (s *Station) onRequestStop201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.RequestStopTransactionRequest](payload)
	if err != nil {
		return nil, err
	}

	connectorID, tx := s.FindTransaction(req.TransactionId)
	if tx == nil {
		return v201.RequestStopTransactionResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "UnknownTransaction"},
		}, nil
	}

	go func() {
		bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()
		if err := s.StopTransaction(bg, connectorID, "Remote", true); err != nil {
			s.log.Warn("remote stop failed",
				zap.String("transactionId", req.TransactionId), zap.Error(err))
		}
	}()
	return v201.RequestStopTransactionResponse{Status: "Accepted"}, nil
}

func (s *Station) onClearCache201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	if !s.auth.Options().CacheEnabled {
		return v201.ClearCacheResponse{Status: "Rejected"}, nil
	}
	s.cache.Clear(ctx)
	return v201.ClearCacheResponse{Status: "Accepted"}, nil
}

func (s *Station) onSendLocalList201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.SendLocalListRequest](payload)
	if err != nil {
		return nil, err
	}
	if !s.auth.Options().LocalAuthListEnabled {
		return v201.SendLocalListResponse{Status: v201.UpdateStatusFailed}, nil
	}

	entries := make(map[string]LocalListEntry, len(req.LocalAuthorizationList))
	for _, item := range req.LocalAuthorizationList {
		entry := LocalListEntry{}
		if item.IdTokenInfo != nil {
			entry.Status = domain.AuthorizationStatus(item.IdTokenInfo.Status)
			if exp := item.IdTokenInfo.CacheExpiryDateTime; exp != nil {
				t := exp.Time
				entry.ExpiresAt = &t
			}
		}
		entries[item.IdToken.IdToken] = entry
	}

	if req.UpdateType == v201.UpdateFull {
		err = s.list.ReplaceFull(req.VersionNumber, entries)
	} else {
		err = s.list.ApplyDifferential(req.VersionNumber, entries)
	}
	if err != nil {
		return v201.SendLocalListResponse{Status: v201.UpdateStatusVersionMismatch}, nil
	}
	return v201.SendLocalListResponse{Status: v201.UpdateStatusAccepted}, nil
}

func (s *Station) onGetLocalListVersion201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return v201.GetLocalListVersionResponse{VersionNumber: s.list.Version()}, nil
}

func (s *Station) onTriggerMessage201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.TriggerMessageRequest](payload)
	if err != nil {
		return nil, err
	}

	evseID := 0
	if req.Evse != nil {
		evseID = req.Evse.Id
	}

	switch req.RequestedMessage {
	case v201.TriggerBootNotification:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			if _, _, err := s.sendBootNotification(bg); err != nil {
				s.log.Warn("triggered BootNotification failed", zap.Error(err))
			}
		}()
	case v201.TriggerHeartbeat:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			if err := s.sendHeartbeat(bg); err != nil {
				s.log.Warn("triggered Heartbeat failed", zap.Error(err))
			}
		}()
	case v201.TriggerStatusNotification:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			ids := s.ConnectorIDs()
			if evseID != 0 {
				ids = []int{evseID}
			}
			for _, id := range ids {
				if conn := s.Connector(id); conn != nil {
					s.notifyStatus(bg, id, conn.Status())
				}
			}
		}()
	case v201.TriggerMeterValues:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			interval := s.config.IntValue(KeyMeterValueSampleInterval, 60)
			for _, id := range s.ConnectorIDs() {
				if evseID != 0 && id != evseID {
					continue
				}
				conn := s.Connector(id)
				if conn != nil && conn.Status() == StatusCharging {
					s.sampleAndSend(bg, id, conn, interval, "Trigger")
				}
			}
		}()
	case v201.TriggerFirmwareStatusNotification:
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
			defer cancel()
			s.mu.Lock()
			reqID := s.firmwareReq
			s.mu.Unlock()
			status := "Idle"
			if reqID != nil {
				status = "Installing"
			}
			s.sendFirmwareStatus(bg, status, reqID)
		}()
	default:
		return v201.TriggerMessageResponse{Status: v201.TriggerStatusNotImplemented}, nil
	}
	return v201.TriggerMessageResponse{Status: v201.TriggerStatusAccepted}, nil
}

func (s *Station) onUnlockConnector201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.UnlockConnectorRequest](payload)
	if err != nil {
		return nil, err
	}
	conn := s.Connector(req.EvseId)
	if conn == nil {
		return v201.UnlockConnectorResponse{Status: "UnknownConnector"}, nil
	}
	if conn.HasTransaction() {
		return v201.UnlockConnectorResponse{Status: "OngoingAuthorizedTransaction"}, nil
	}
	return v201.UnlockConnectorResponse{Status: "Unlocked"}, nil
}

func (s *Station) onSetChargingProfile201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.SetChargingProfileRequest](payload)
	if err != nil {
		return nil, err
	}
	conn := s.Connector(req.EvseId)
	if conn == nil {
		return v201.SetChargingProfileResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "UnknownEvse"},
		}, nil
	}
	if len(req.ChargingProfile.ChargingSchedule) == 0 ||
		len(req.ChargingProfile.ChargingSchedule[0].ChargingSchedulePeriod) == 0 {
		return v201.SetChargingProfileResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "EmptySchedule"},
		}, nil
	}

	schedule := req.ChargingProfile.ChargingSchedule[0]
	limit := schedule.ChargingSchedulePeriod[0].Limit
	if schedule.ChargingRateUnit == "A" {
		voltage := s.tpl.VoltageOut
		if voltage <= 0 {
			voltage = 230
		}
		limit *= voltage
	}
	conn.SetProfile(ChargingProfile{
		ID:         req.ChargingProfile.Id,
		StackLevel: req.ChargingProfile.StackLevel,
		Purpose:    req.ChargingProfile.ChargingProfilePurpose,
		LimitW:     limit,
	})
	return v201.SetChargingProfileResponse{Status: "Accepted"}, nil
}

func (s *Station) onClearChargingProfile201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.ClearChargingProfileRequest](payload)
	if err != nil {
		return nil, err
	}

	id := 0
	if req.ChargingProfileId != nil {
		id = *req.ChargingProfileId
	}
	stackLevel := 0
	purpose := ""
	ids := s.ConnectorIDs()
	if c := req.ChargingProfileCriteria; c != nil {
		if c.StackLevel != nil {
			stackLevel = *c.StackLevel
		}
		purpose = c.ChargingProfilePurpose
		if c.EvseId != nil && *c.EvseId != 0 {
			ids = []int{*c.EvseId}
		}
	}

	removed := 0
	for _, cid := range ids {
		if conn := s.Connector(cid); conn != nil {
			removed += conn.ClearProfiles(id, stackLevel, purpose)
		}
	}
	if removed == 0 {
		return v201.ClearChargingProfileResponse{Status: "Unknown"}, nil
	}
	return v201.ClearChargingProfileResponse{Status: "Accepted"}, nil
}

func (s *Station) onInstallCertificate201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.InstallCertificateRequest](payload)
	if err != nil {
		return nil, err
	}
	status, _, err := s.certs.Store(s.hashID, cert.Use(req.CertificateType), req.Certificate)
	if err != nil {
		s.log.Warn("certificate install failed", zap.Error(err))
		return v201.InstallCertificateResponse{Status: "Failed"}, nil
	}
	switch status {
	case cert.StatusAccepted:
		return v201.InstallCertificateResponse{Status: "Accepted"}, nil
	case cert.StatusInvalid:
		return v201.InstallCertificateResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "InvalidCertificate"},
		}, nil
	default:
		return v201.InstallCertificateResponse{Status: "Failed"}, nil
	}
}

func (s *Station) onDeleteCertificate201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.DeleteCertificateRequest](payload)
	if err != nil {
		return nil, err
	}
	hd := domain.CertificateHashData{
		HashAlgorithm:  string(req.CertificateHashData.HashAlgorithm),
		IssuerNameHash: req.CertificateHashData.IssuerNameHash,
		IssuerKeyHash:  req.CertificateHashData.IssuerKeyHash,
		SerialNumber:   req.CertificateHashData.SerialNumber,
	}
	status, err := s.certs.Delete(s.hashID, hd)
	if err != nil {
		s.log.Warn("certificate delete failed", zap.Error(err))
		return v201.DeleteCertificateResponse{Status: "Failed"}, nil
	}
	return v201.DeleteCertificateResponse{Status: string(status)}, nil
}

func (s *Station) onGetInstalledCertificateIds201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.GetInstalledCertificateIdsRequest](payload)
	if err != nil {
		return nil, err
	}

	var uses []cert.Use
	for _, t := range req.CertificateType {
		uses = append(uses, cert.Use(t))
	}
	entries, err := s.certs.List(s.hashID, uses)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return v201.GetInstalledCertificateIdsResponse{Status: "NotFound"}, nil
	}

	chains := make([]v201.CertificateHashDataChain, 0, len(entries))
	for _, e := range entries {
		chains = append(chains, v201.CertificateHashDataChain{
			CertificateType: v201.CertificateUseType(e.Use),
			CertificateHashData: v201.CertificateHashData{
				HashAlgorithm:  v201.HashAlgorithmType(e.HashData.HashAlgorithm),
				IssuerNameHash: e.HashData.IssuerNameHash,
				IssuerKeyHash:  e.HashData.IssuerKeyHash,
				SerialNumber:   e.HashData.SerialNumber,
			},
		})
	}
	return v201.GetInstalledCertificateIdsResponse{
		Status:                   "Accepted",
		CertificateHashDataChain: chains,
	}, nil
}

func (s *Station) onUpdateFirmware201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	req, err := decode[v201.UpdateFirmwareRequest](payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.firmwareReq != nil {
		s.mu.Unlock()
		return v201.UpdateFirmwareResponse{
			Status:     "Rejected",
			StatusInfo: &v201.StatusInfo{ReasonCode: "UpdateInProgress"},
		}, nil
	}
	reqID := req.RequestId
	s.firmwareReq = &reqID
	s.mu.Unlock()

	go s.runFirmwareUpdate(reqID)
	return v201.UpdateFirmwareResponse{Status: "Accepted"}, nil
}

// runFirmwareUpdate walks the simulated progression, then reboots the
// transport so a fresh BootNotification follows.
func (s *Station) runFirmwareUpdate(requestID int) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, status := range []string{"Downloading", "Downloaded", "Installing"} {
		s.sendFirmwareStatus(ctx, status, &requestID)
		time.Sleep(time.Second)
	}
	s.endAllTransactions(ctx, string(v201.ReasonReboot))
	s.sendFirmwareStatus(ctx, "Installed", &requestID)

	s.mu.Lock()
	s.firmwareReq = nil
	s.mu.Unlock()
	s.session.Kick()
}

func (s *Station) onDataTransfer201(ctx context.Context, payload json.RawMessage) (interface{}, error) {
	return v201.DataTransferResponse{Status: v201.DataTransferUnknownVendorId}, nil
}
