package station

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/observability/telemetry"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v16"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v201"
)

// request validates the outbound payload, then round-trips it. An outbound
// payload failing its own schema is a programmer error; it surfaces as an
// error and is never retried.
func (s *Station) request(ctx context.Context, action, serialKey string, payload interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", action, err)
	}
	if err := s.registry.Validate(s.ver, action, "request", raw); err != nil {
		return nil, fmt.Errorf("outbound %s payload invalid: %w", action, err)
	}
	started := time.Now()
	resp, err := s.corr.Request(ctx, action, serialKey, payload, DefaultRequestTimeout)
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "out").Inc()
	if err == nil {
		telemetry.RequestLatency.Observe(time.Since(started).Seconds())
	}
	return resp, err
}

// sendBootNotification returns the registration status and the
// CSMS-returned interval in seconds.
func (s *Station) sendBootNotification(ctx context.Context) (string, int, error) {
	if s.ver == v201.Version {
		req := v201.BootNotificationRequest{
			ChargingStation: v201.ChargingStation{
				Model:           s.tpl.ChargePointModel,
				VendorName:      s.tpl.ChargePointVendor,
				SerialNumber:    s.tpl.ChargePointSerialNumber,
				FirmwareVersion: s.tpl.FirmwareVersion,
			},
			Reason: v201.BootReasonPowerUp,
		}
		raw, err := s.request(ctx, v201.ActionBootNotification, v201.ActionBootNotification, req)
		if err != nil {
			return "", 0, err
		}
		var resp v201.BootNotificationResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", 0, fmt.Errorf("decode BootNotification response: %w", err)
		}
		return string(resp.Status), resp.Interval, nil
	}

	req := v16.BootNotificationRequest{
		ChargePointVendor:       s.tpl.ChargePointVendor,
		ChargePointModel:        s.tpl.ChargePointModel,
		ChargePointSerialNumber: s.tpl.ChargePointSerialNumber,
		FirmwareVersion:         s.tpl.FirmwareVersion,
	}
	raw, err := s.request(ctx, v16.ActionBootNotification, v16.ActionBootNotification, req)
	if err != nil {
		return "", 0, err
	}
	var resp v16.BootNotificationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", 0, fmt.Errorf("decode BootNotification response: %w", err)
	}
	return string(resp.Status), resp.Interval, nil
}

// sendHeartbeat round-trips an empty Heartbeat payload.
func (s *Station) sendHeartbeat(ctx context.Context) error {
	var err error
	if s.ver == v201.Version {
		_, err = s.request(ctx, v201.ActionHeartbeat, "", v201.HeartbeatRequest{})
	} else {
		_, err = s.request(ctx, v16.ActionHeartbeat, "", v16.HeartbeatRequest{})
	}
	return err
}

func statusTo201(st ConnectorStatus) v201.ConnectorStatusType {
	switch st {
	case StatusAvailable:
		return v201.ConnectorAvailable
	case StatusReserved:
		return v201.ConnectorReserved
	case StatusUnavailable:
		return v201.ConnectorUnavailable
	case StatusFaulted:
		return v201.ConnectorFaulted
	default:
		return v201.ConnectorOccupied
	}
}

// notifyStatus sends a StatusNotification for one connector, serialized per
// connector so transitions arrive in order.
func (s *Station) notifyStatus(ctx context.Context, connectorID int, st ConnectorStatus) {
	serial := fmt.Sprintf("StatusNotification/%d", connectorID)
	var err error
	if s.ver == v201.Version {
		req := v201.StatusNotificationRequest{
			Timestamp:       v201.Now(),
			ConnectorStatus: statusTo201(st),
			EvseId:          connectorID,
			ConnectorId:     1,
		}
		_, err = s.request(ctx, v201.ActionStatusNotification, serial, req)
	} else {
		errorCode := v16.ErrorNoError
		if conn := s.Connector(connectorID); conn != nil && conn.FaultCode() != "" {
			errorCode = v16.ChargePointErrorCode(conn.FaultCode())
		}
		now := v16.Now()
		req := v16.StatusNotificationRequest{
			ConnectorId: connectorID,
			ErrorCode:   errorCode,
			Status:      v16.ChargePointStatus(st),
			Timestamp:   &now,
		}
		_, err = s.request(ctx, v16.ActionStatusNotification, serial, req)
	}
	if err != nil {
		s.log.Warn("StatusNotification failed",
			zap.Int("connectorId", connectorID),
			zap.String("status", string(st)),
			zap.Error(err),
		)
	}
}

// remoteAuthorize is the Remote strategy of the authentication pipeline.
func (s *Station) remoteAuthorize(ctx context.Context, id domain.Identifier) (domain.AuthorizationStatus, error) {
	if s.ver == v201.Version {
		tokenType := v201.IdTokenISO14443
		switch id.Type {
		case domain.IdentifierCentral:
			tokenType = v201.IdTokenCentral
		case domain.IdentifierEMAID:
			tokenType = v201.IdTokenEMAID
		case domain.IdentifierISO15693:
			tokenType = v201.IdTokenISO15693
		case domain.IdentifierKeyCode:
			tokenType = v201.IdTokenKeyCode
		case domain.IdentifierLocal:
			tokenType = v201.IdTokenLocal
		case domain.IdentifierMacAddress:
			tokenType = v201.IdTokenMacAddress
		case domain.IdentifierNoAuthorization:
			tokenType = v201.IdTokenNoAuthorization
		}
		req := v201.AuthorizeRequest{
			IdToken: v201.IdToken{IdToken: id.Value, Type: tokenType},
		}
		raw, err := s.request(ctx, v201.ActionAuthorize, "", req)
		if err != nil {
			return "", err
		}
		var resp v201.AuthorizeResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return "", fmt.Errorf("decode Authorize response: %w", err)
		}
		return domain.AuthorizationStatus(resp.IdTokenInfo.Status), nil
	}

	raw, err := s.request(ctx, v16.ActionAuthorize, "", v16.AuthorizeRequest{IdTag: id.Value})
	if err != nil {
		return "", err
	}
	var resp v16.AuthorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode Authorize response: %w", err)
	}
	return domain.AuthorizationStatus(resp.IdTagInfo.Status), nil
}

// Authorize runs the authentication pipeline with the station's identifier
// conventions.
func (s *Station) Authorize(ctx context.Context, idTag string, authCtx domain.AuthorizationContext) domain.AuthorizationResult {
	idType := domain.IdentifierISO14443
	if s.ver == v16.Version {
		idType = domain.IdentifierIdTag
	}
	return s.auth.Authorize(ctx, domain.Identifier{
		Type:        idType,
		Value:       idTag,
		OcppVersion: s.ver,
	}, authCtx)
}

// StartTransaction authorizes the tag, installs the transaction on the
// connector and announces it to the CSMS. It returns the transaction id.
func (s *Station) StartTransaction(ctx context.Context, connectorID int, idTag string, remote bool) (string, error) {
	return s.startTransaction(ctx, connectorID, idTag, remote, true)
}

// startTransaction lets internal callers skip the authorization pipeline;
// the generator does so when its template turns requireAuthorize off. The
// CSMS still passes its own verdict in the start response.
func (s *Station) startTransaction(ctx context.Context, connectorID int, idTag string, remote, authorize bool) (string, error) {
	conn := s.Connector(connectorID)
	if conn == nil {
		return "", fmt.Errorf("unknown connector %d", connectorID)
	}
	if conn.HasTransaction() {
		return "", ErrTransactionActive
	}

	if authorize {
		verdict := s.Authorize(ctx, idTag, domain.ContextTransactionStart)
		if verdict.Status != domain.AuthAccepted {
			return "", fmt.Errorf("authorization %s for tag %s", verdict.Status, idTag)
		}
	}

	if err := conn.Prepare(); err != nil {
		return "", err
	}

	txID, numericID := s.nextTransactionID()
	tx := &ActiveTransaction{
		ID:            txID,
		NumericID:     numericID,
		IdTag:         idTag,
		StartedAt:     time.Now().UTC(),
		MeterStartWh:  conn.MeterWh(),
		RemoteStarted: remote,
	}

	if s.ver == v201.Version {
		if err := s.sendTransactionStarted(ctx, connectorID, tx, remote); err != nil {
			conn.Settle()
			return "", err
		}
	} else {
		csmsID, err := s.sendStartTransaction(ctx, connectorID, tx)
		if err != nil {
			conn.Settle()
			return "", err
		}
		tx.NumericID = csmsID
		tx.ID = strconv.Itoa(csmsID)
	}

	if err := conn.Begin(tx); err != nil {
		return "", err
	}
	s.Counters.TransactionsStarted.Add(1)
	telemetry.ActiveTransactions.Inc()
	s.startMeterLoop(connectorID)

	if s.journal != nil {
		rec := domain.TransactionRecord{
			TransactionID:   tx.ID,
			StationID:       s.hashID,
			ConnectorID:     connectorID,
			IdTag:           idTag,
			StartedAt:       tx.StartedAt,
			MeterStart:      tx.MeterStartWh,
			ProtocolVersion: s.ver,
			Status:          "active",
		}
		if err := s.journal.Create(ctx, rec); err != nil {
			s.log.Warn("journal create failed", zap.String("transactionId", tx.ID), zap.Error(err))
		}
	}
	return tx.ID, nil
}

// StopTransaction ends the connector's transaction with the given reason and
// announces the end to the CSMS.
func (s *Station) StopTransaction(ctx context.Context, connectorID int, reason string, remote bool) error {
	conn := s.Connector(connectorID)
	if conn == nil {
		return fmt.Errorf("unknown connector %d", connectorID)
	}

	s.stopMeterLoop(connectorID)

	tx, err := conn.End()
	if err != nil {
		return err
	}
	defer conn.Settle()

	if remote {
		reason = "Remote"
	}
	meterStop := conn.MeterWh()

	if s.ver == v201.Version {
		err = s.sendTransactionEnded(ctx, connectorID, tx, reason, meterStop, remote)
	} else {
		err = s.sendStopTransaction(ctx, tx, reason, meterStop)
	}
	if err != nil {
		s.log.Warn("transaction stop notification failed",
			zap.String("transactionId", tx.ID), zap.Error(err))
	}
	s.Counters.TransactionsStopped.Add(1)
	telemetry.ActiveTransactions.Dec()

	if s.journal != nil {
		if jerr := s.journal.Complete(ctx, tx.ID, s.hashID, meterStop, reason); jerr != nil {
			s.log.Warn("journal complete failed", zap.String("transactionId", tx.ID), zap.Error(jerr))
		}
	}
	return err
}

// FindTransaction locates the connector holding the given transaction id.
func (s *Station) FindTransaction(txID string) (int, *ActiveTransaction) {
	for _, id := range s.ConnectorIDs() {
		conn := s.Connector(id)
		if tx := conn.Transaction(); tx != nil && tx.ID == txID {
			return id, tx
		}
	}
	return 0, nil
}

// --- 2.0.1 transaction events ---

func (s *Station) sendTransactionStarted(ctx context.Context, evseID int, tx *ActiveTransaction, remote bool) error {
	trigger := v201.TriggerReasonAuthorized
	if remote {
		trigger = v201.TriggerReasonRemoteStart
	}
	state := v201.ChargingStateCharging
	req := v201.TransactionEventRequest{
		EventType:     v201.TransactionEventStarted,
		Timestamp:     v201.DateTime{Time: tx.StartedAt},
		TriggerReason: trigger,
		SeqNo:         int(tx.NextSeqNo()),
		TransactionInfo: v201.Transaction{
			TransactionId: tx.ID,
			ChargingState: &state,
		},
		Evse:    &v201.EVSE{Id: evseID},
		IdToken: &v201.IdToken{IdToken: tx.IdTag, Type: v201.IdTokenISO14443},
	}
	_, err := s.request(ctx, v201.ActionTransactionEvent, "", req)
	return err
}

func (s *Station) sendTransactionUpdated(ctx context.Context, evseID int, tx *ActiveTransaction, meterValues []v201.MeterValue) error {
	state := v201.ChargingStateCharging
	req := v201.TransactionEventRequest{
		EventType:     v201.TransactionEventUpdated,
		Timestamp:     v201.Now(),
		TriggerReason: v201.TriggerReasonMeterValuePeriodic,
		SeqNo:         int(tx.NextSeqNo()),
		TransactionInfo: v201.Transaction{
			TransactionId: tx.ID,
			ChargingState: &state,
		},
		Evse:       &v201.EVSE{Id: evseID},
		MeterValue: meterValues,
	}
	_, err := s.request(ctx, v201.ActionTransactionEvent, "", req)
	return err
}

func (s *Station) sendTransactionEnded(ctx context.Context, evseID int, tx *ActiveTransaction, reason string, meterStop int64, remote bool) error {
	trigger := v201.TriggerReasonStopAuthorized
	if remote {
		trigger = v201.TriggerReasonRemoteStop
	}
	stopped := v201.ReasonType(reason)
	charging := int(time.Since(tx.StartedAt).Seconds())
	req := v201.TransactionEventRequest{
		EventType:     v201.TransactionEventEnded,
		Timestamp:     v201.Now(),
		TriggerReason: trigger,
		SeqNo:         int(tx.NextSeqNo()),
		TransactionInfo: v201.Transaction{
			TransactionId:     tx.ID,
			StoppedReason:     &stopped,
			TimeSpentCharging: &charging,
		},
		Evse: &v201.EVSE{Id: evseID},
		MeterValue: []v201.MeterValue{{
			Timestamp: v201.Now(),
			SampledValue: []v201.SampledValue{{
				Value:     float64(meterStop),
				Context:   "Transaction.End",
				Measurand: "Energy.Active.Import.Register",
				UnitOfMeasure: &v201.UnitOfMeasure{
					Unit: "Wh",
				},
			}},
		}},
	}
	_, err := s.request(ctx, v201.ActionTransactionEvent, "", req)
	return err
}

// --- 1.6 transactions ---

func (s *Station) sendStartTransaction(ctx context.Context, connectorID int, tx *ActiveTransaction) (int, error) {
	req := v16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       tx.IdTag,
		MeterStart:  int(tx.MeterStartWh),
		Timestamp:   v16.DateTime{Time: tx.StartedAt},
	}
	raw, err := s.request(ctx, v16.ActionStartTransaction, "", req)
	if err != nil {
		return 0, err
	}
	var resp v16.StartTransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return 0, fmt.Errorf("decode StartTransaction response: %w", err)
	}
	if resp.IdTagInfo.Status != v16.AuthorizationAccepted {
		return 0, fmt.Errorf("StartTransaction not accepted: %s", resp.IdTagInfo.Status)
	}
	return resp.TransactionId, nil
}

func (s *Station) sendStopTransaction(ctx context.Context, tx *ActiveTransaction, reason string, meterStop int64) error {
	req := v16.StopTransactionRequest{
		IdTag:         tx.IdTag,
		MeterStop:     int(meterStop),
		Timestamp:     v16.Now(),
		TransactionId: tx.NumericID,
		Reason:        v16.Reason(reason),
	}
	_, err := s.request(ctx, v16.ActionStopTransaction, "", req)
	return err
}

// --- meter sampling ---

// meterLoop tracks a connector's sampler goroutines so they can be
// cancelled and joined when the transaction ends.
type meterLoop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// connectorOptions returns the template overrides for a connector. The "0"
// entry acts as a catch-all default for connectors without a dedicated one.
func (s *Station) connectorOptions(connectorID int) (domain.ConnectorOptions, bool) {
	opts, ok := s.tpl.Connectors[strconv.Itoa(connectorID)]
	if !ok {
		opts, ok = s.tpl.Connectors["0"]
	}
	return opts, ok
}

// startMeterLoop samples while the connector charges. Energy advances from
// the template's power rating so the register is strictly increasing. One
// sampler follows MeterValueSampleInterval; when ClockAlignedDataInterval
// is set a second one fires on wall-clock multiples of that interval.
func (s *Station) startMeterLoop(connectorID int) {
	sampleSec := s.config.IntValue(KeyMeterValueSampleInterval, 60)
	if opts, ok := s.connectorOptions(connectorID); ok && opts.MeterValueSampleInterval > 0 {
		sampleSec = opts.MeterValueSampleInterval
	}
	alignedSec := s.config.IntValue(KeyClockAlignedDataInterval, 0)
	stopOnInoperative := true
	if s.tpl.StopMeterValuesOnInoperative != nil {
		stopOnInoperative = *s.tpl.StopMeterValuesOnInoperative
	}
	if sampleSec <= 0 && alignedSec <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var wg sync.WaitGroup
	if sampleSec > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.periodicSampleLoop(ctx, connectorID, sampleSec, stopOnInoperative)
		}()
	}
	if alignedSec > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.alignedSampleLoop(ctx, connectorID, alignedSec, stopOnInoperative)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.mu.Lock()
	prev := s.meterLoops[connectorID]
	s.meterLoops[connectorID] = &meterLoop{cancel: cancel, done: done}
	s.mu.Unlock()
	if prev != nil {
		prev.cancel()
		<-prev.done
	}
}

// stopMeterLoop cancels the connector's samplers and waits for them to
// drain, so no sample can trail the transaction end on the wire.
func (s *Station) stopMeterLoop(connectorID int) {
	s.mu.Lock()
	loop := s.meterLoops[connectorID]
	delete(s.meterLoops, connectorID)
	s.mu.Unlock()
	if loop != nil {
		loop.cancel()
		<-loop.done
	}
}

func (s *Station) periodicSampleLoop(ctx context.Context, connectorID, intervalSec int, stopOnInoperative bool) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			conn, proceed := s.sampleTarget(connectorID, stopOnInoperative)
			if conn == nil {
				return
			}
			if !proceed {
				continue
			}
			s.sampleAndSend(ctx, connectorID, conn, intervalSec, v16.ReadingContextSamplePeriodic)
		}
	}
}

// alignedSampleLoop fires at wall-clock multiples of the configured
// interval, the way ClockAlignedDataInterval prescribes.
func (s *Station) alignedSampleLoop(ctx context.Context, connectorID, intervalSec int, stopOnInoperative bool) {
	interval := time.Duration(intervalSec) * time.Second
	for {
		next := time.Now().Truncate(interval).Add(interval)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		conn, proceed := s.sampleTarget(connectorID, stopOnInoperative)
		if conn == nil {
			return
		}
		if !proceed {
			continue
		}
		s.sampleAndSend(ctx, connectorID, conn, intervalSec, v16.ReadingContextSampleClock)
	}
}

// sampleTarget decides whether a sampler tick produces a reading. A nil
// connector means the loop should end outright.
func (s *Station) sampleTarget(connectorID int, stopOnInoperative bool) (*Connector, bool) {
	conn := s.Connector(connectorID)
	if conn == nil || !conn.HasTransaction() {
		return nil, false
	}
	if conn.Status() != StatusCharging {
		if stopOnInoperative && conn.Availability() == Inoperative {
			return nil, false
		}
		return conn, false
	}
	return conn, true
}

// samplePower derives the per-connector draw in watts, honoring the lowest
// of the template rating, the operator's amperage limitation key, the
// connector's amperage ceiling and the active charging-profile limit.
func (s *Station) samplePower(connectorID int, conn *Connector) float64 {
	power := s.tpl.Power
	if s.tpl.PowerUnit == "kW" {
		power *= 1000
	}
	voltage := s.tpl.VoltageOut
	if voltage <= 0 {
		voltage = 230
	}
	if key := s.tpl.AmperageLimitationOcppKey; key != "" {
		if k, ok := s.config.Get(key, false); ok {
			if amps, err := strconv.ParseFloat(k.Value, 64); err == nil && amps > 0 {
				if w := amps / amperageDivider(s.tpl.AmperageLimitationUnit) * voltage; w < power {
					power = w
				}
			}
		}
	}
	if opts, ok := s.connectorOptions(connectorID); ok && opts.MaxAmperage > 0 {
		if w := opts.MaxAmperage * voltage; w < power {
			power = w
		}
	}
	if limit, ok := conn.EffectiveLimit(); ok && limit < power {
		power = limit
	}
	return power
}

// amperageDivider maps the template's amperage unit to the divisor that
// brings configured values back to amperes.
func amperageDivider(unit string) float64 {
	switch unit {
	case "dA":
		return 10
	case "cA":
		return 100
	case "mA":
		return 1000
	default:
		return 1
	}
}

// measurandValue resolves a template measurand to its current reading.
// Unknown measurands are skipped rather than fabricated.
func measurandValue(measurand string, registerWh int64, powerW, voltage float64) (float64, string, bool) {
	switch measurand {
	case v16.MeasurandEnergyActiveImportRegister:
		return float64(registerWh), v16.UnitWh, true
	case v16.MeasurandPowerActiveImport:
		return powerW, v16.UnitW, true
	case v16.MeasurandCurrentImport:
		return powerW / voltage, v16.UnitA, true
	case v16.MeasurandVoltage:
		return voltage, v16.UnitV, true
	default:
		return 0, "", false
	}
}

func formatSampleValue(measurand string, value float64) string {
	if measurand == v16.MeasurandEnergyActiveImportRegister {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', 2, 64)
}

func (s *Station) sampleAndSend(ctx context.Context, connectorID int, conn *Connector, intervalSec int, readingCtx string) {
	power := s.samplePower(connectorID, conn)
	conn.SetPower(power)
	wh := int64(power * float64(intervalSec) / 3600)
	if wh < 1 {
		wh = 1
	}
	register := conn.AddEnergy(wh)
	telemetry.EnergyDeliveredTotal.Add(float64(wh))

	voltage := s.tpl.VoltageOut
	if voltage <= 0 {
		voltage = 230
	}
	measurands := []string{v16.MeasurandEnergyActiveImportRegister, v16.MeasurandPowerActiveImport}
	if opts, ok := s.connectorOptions(connectorID); ok && len(opts.Measurands) > 0 {
		measurands = opts.Measurands
	}

	var err error
	if s.ver == v201.Version {
		sampled := make([]v201.SampledValue, 0, len(measurands))
		for _, m := range measurands {
			value, unit, ok := measurandValue(m, register, power, voltage)
			if !ok {
				continue
			}
			sampled = append(sampled, v201.SampledValue{
				Value:         value,
				Context:       readingCtx,
				Measurand:     m,
				UnitOfMeasure: &v201.UnitOfMeasure{Unit: unit},
			})
		}
		mv := []v201.MeterValue{{Timestamp: v201.Now(), SampledValue: sampled}}
		if tx := conn.Transaction(); tx != nil {
			err = s.sendTransactionUpdated(ctx, connectorID, tx, mv)
		}
	} else {
		sampled := make([]v16.SampledValue, 0, len(measurands))
		for _, m := range measurands {
			value, unit, ok := measurandValue(m, register, power, voltage)
			if !ok {
				continue
			}
			sampled = append(sampled, v16.SampledValue{
				Value:     formatSampleValue(m, value),
				Context:   readingCtx,
				Measurand: m,
				Unit:      unit,
			})
		}
		var txID *int
		if tx := conn.Transaction(); tx != nil {
			txID = &tx.NumericID
		}
		req := v16.MeterValuesRequest{
			ConnectorId:   connectorID,
			TransactionId: txID,
			MeterValue: []v16.MeterValue{{
				Timestamp:    v16.Now(),
				SampledValue: sampled,
			}},
		}
		_, err = s.request(ctx, v16.ActionMeterValues, "", req)
	}
	if err != nil {
		s.log.Warn("meter sample failed",
			zap.Int("connectorId", connectorID), zap.Error(err))
	}
}

// Get15118EVCertificate forwards an EXI certificate request to the CSMS and
// returns its response verbatim. The exiRequest bytes pass through untouched.
func (s *Station) Get15118EVCertificate(ctx context.Context, schemaVersion, action, exiRequest string) (*v201.Get15118EVCertificateResponse, error) {
	if s.ver != v201.Version {
		return nil, fmt.Errorf("Get15118EVCertificate requires %s", v201.Version)
	}
	req := v201.Get15118EVCertificateRequest{
		Iso15118SchemaVersion: schemaVersion,
		Action:                action,
		ExiRequest:            exiRequest,
	}
	raw, err := s.request(ctx, v201.ActionGet15118EVCertificate, "", req)
	if err != nil {
		return nil, err
	}
	var resp v201.Get15118EVCertificateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode Get15118EVCertificate response: %w", err)
	}
	return &resp, nil
}

// GetCertificateStatus asks the CSMS for an OCSP verdict. Without a live
// carrier the simulator answers with a stubbed Accepted result.
func (s *Station) GetCertificateStatus(ctx context.Context, ocsp v201.OCSPRequestData) (*v201.GetCertificateStatusResponse, error) {
	if s.ver != v201.Version {
		return nil, fmt.Errorf("GetCertificateStatus requires %s", v201.Version)
	}
	if !s.session.IsOpen() {
		return &v201.GetCertificateStatusResponse{Status: "Accepted", OcspResult: "c3R1Yi1vY3NwLXJlc3VsdA=="}, nil
	}
	raw, err := s.request(ctx, v201.ActionGetCertificateStatus, "", v201.GetCertificateStatusRequest{OcspRequestData: ocsp})
	if err != nil {
		return nil, err
	}
	var resp v201.GetCertificateStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode GetCertificateStatus response: %w", err)
	}
	return &resp, nil
}

// sendFirmwareStatus reports firmware update progression.
func (s *Station) sendFirmwareStatus(ctx context.Context, status string, requestID *int) {
	var err error
	if s.ver == v201.Version {
		req := v201.FirmwareStatusNotificationRequest{Status: status, RequestId: requestID}
		_, err = s.request(ctx, v201.ActionFirmwareStatusNotification, "", req)
	} else {
		// 1.6 carries firmware status over DataTransfer in this simulator
		// profile; the core 1.6 action set here does not include it.
		return
	}
	if err != nil {
		s.log.Warn("FirmwareStatusNotification failed", zap.String("status", status), zap.Error(err))
	}
}
