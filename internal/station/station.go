package station

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/cert"
	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/observability/telemetry"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/schemas"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v16"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/v201"
	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
	"github.com/seu-repo/sigec-fleetsim/internal/ports"
)

// State is the station lifecycle phase.
type State string

const (
	StateStopped      State = "Stopped"
	StateStarting     State = "Starting"
	StateRegistering  State = "Registering"
	StateRunning      State = "Running"
	StateReconnecting State = "Reconnecting"
	// StateDisconnected means the session was closed on purpose and will not
	// redial until OpenConnection.
	StateDisconnected State = "Disconnected"
	StateStopping     State = "Stopping"
)

// Counters are the per-station performance counters surfaced to the UI.
type Counters struct {
	MessagesSent        atomic.Int64
	MessagesReceived    atomic.Int64
	CallErrorsReceived  atomic.Int64
	CallErrorsSent      atomic.Int64
	TransactionsStarted atomic.Int64
	TransactionsStopped atomic.Int64
	Reconnects          atomic.Int64
}

// CountersSnapshot is the JSON-friendly view of the counters.
type CountersSnapshot struct {
	MessagesSent        int64 `json:"messagesSent"`
	MessagesReceived    int64 `json:"messagesReceived"`
	CallErrorsReceived  int64 `json:"callErrorsReceived"`
	CallErrorsSent      int64 `json:"callErrorsSent"`
	TransactionsStarted int64 `json:"transactionsStarted"`
	TransactionsStopped int64 `json:"transactionsStopped"`
	Reconnects          int64 `json:"reconnects"`
}

// Config assembles one station instance from a template plus an index.
type Config struct {
	Template *domain.Template
	Index    int
	// DataDir roots per-station state: configuration file, certificates.
	DataDir   string
	IdTags    []string
	TLSConfig *tls.Config
	// SharedCache optionally backs the authorization cache across workers.
	SharedCache ports.Cache
	// Journal optionally records transactions; nil disables journaling.
	Journal ports.TransactionJournal
}

// handlerFunc processes one inbound Call payload and returns the response
// payload.
type handlerFunc func(ctx context.Context, payload json.RawMessage) (interface{}, error)

// dispatchError carries an OCPP-J error code out of a handler.
type dispatchError struct {
	code wire.ErrorCode
	desc string
}

func (e *dispatchError) Error() string { return fmt.Sprintf("%s: %s", e.code, e.desc) }

// Station is one simulated charging station: transport session, request
// correlator, connector set, configuration store, authorization pipeline and
// the automatic transaction generator.
type Station struct {
	tpl    *domain.Template
	index  int
	name   string
	hashID string
	ver    string
	log    *zap.Logger

	session  *Session
	corr     *Correlator
	registry *wire.Registry
	config   *ConfigStore
	cache    *AuthCache
	list     *LocalList
	auth     *Authenticator
	certs    *cert.Manager
	journal  ports.TransactionJournal
	idTags   []string

	Counters Counters

	handlers map[string]handlerFunc

	mu         sync.Mutex
	state      State
	connectors map[int]*Connector
	hbInterval time.Duration
	hbCancel   context.CancelFunc
	meterLoops map[int]*meterLoop
	txCounter  int
	// firmware update requestId, pending until the simulated install ends
	firmwareReq *int
	// OnStateChange fires outside the lock on every FSM transition.
	OnStateChange func(s *Station, state State)

	runCtx    context.Context
	runCancel context.CancelFunc
	runDone   chan struct{}
	atg       *ATG
}

// New builds a station. It does not connect; call Start.
func New(cfg Config, log *zap.Logger) (*Station, error) {
	tpl := cfg.Template
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	name := tpl.StationName(cfg.Index)
	hashID := tpl.HashID(cfg.Index)
	log = log.With(zap.String("station", name), zap.String("hashId", hashID))

	ver := v16.Version
	if tpl.OcppVersion == "2.0.1" {
		ver = v201.Version
	}

	registry := wire.NewRegistry()
	v16.RegisterSchemas(registry)
	v201.RegisterSchemas(registry)
	for _, sv := range []string{v16.Version, v201.Version} {
		if err := registry.LoadSchemaFiles(schemas.Files, sv); err != nil {
			return nil, fmt.Errorf("load payload schemas: %w", err)
		}
	}

	cfgPath := ""
	certDir := filepath.Join("certificates")
	if cfg.DataDir != "" {
		cfgPath = filepath.Join(cfg.DataDir, name, "configuration.json")
		certDir = filepath.Join(cfg.DataDir, "certificates")
	}
	store, err := LoadConfigStore(cfgPath, log)
	if err != nil {
		return nil, err
	}
	seedConfiguration(store, tpl)

	s := &Station{
		tpl:        tpl,
		index:      cfg.Index,
		name:       name,
		hashID:     hashID,
		ver:        ver,
		log:        log,
		registry:   registry,
		config:     store,
		cache:      NewAuthCache(256, cfg.SharedCache, log),
		list:       NewLocalList(),
		certs:      cert.NewManager(certDir, cert.SHA256, log),
		journal:    cfg.Journal,
		idTags:     cfg.IdTags,
		state:      StateStopped,
		connectors: make(map[int]*Connector),
		meterLoops: make(map[int]*meterLoop),
		hbInterval: time.Duration(store.IntValue(KeyHeartbeatInterval, 300)) * time.Second,
	}

	n := tpl.NumberOfConnectors
	if tpl.RandomConnectors && n > 1 {
		n = 1 + rand.Intn(n)
	}
	for id := 1; id <= n; id++ {
		s.connectors[id] = NewConnector(id, s.onConnectorStatus)
	}

	s.session = NewSession(SessionConfig{
		URL:          tpl.SupervisionURL(cfg.Index, rand.Intn) + "/" + name,
		Subprotocol:  ver,
		PingInterval: time.Duration(store.IntValue(KeyWebSocketPingInterval, 60)) * time.Second,
		TLSConfig:    cfg.TLSConfig,
	}, log)
	s.corr = NewCorrelator(s.sendCounted, log)

	authOpts := AuthOptions{
		LocalAuthListEnabled: store.BoolValue(KeyLocalAuthListEnabled, true),
		LocalPreAuthorize:    store.BoolValue(KeyLocalPreAuthorize, true),
		CacheEnabled:         store.BoolValue(KeyAuthorizationCacheEnabled, true),
		CacheLifetime:        300 * time.Second,
		OfflineFallback:      true,
		Timeout:              10 * time.Second,
	}
	s.auth = NewAuthenticator(s.list, s.cache, s.remoteAuthorize, s.certs, authOpts, log)

	if ver == v201.Version {
		s.handlers = s.handlers201()
	} else {
		s.handlers = s.handlers16()
	}

	s.session.OnFrame = s.onFrame
	s.session.OnUp = s.onSessionUp
	s.session.OnDown = s.onSessionDown

	if atg := tpl.AutomaticTransactionGenerator; atg != nil && atg.Enable {
		s.atg = NewATG(s, *atg, log)
	}
	return s, nil
}

// seedConfiguration installs template-provided keys plus the defaults the
// engine relies on, without clobbering persisted values.
func seedConfiguration(store *ConfigStore, tpl *domain.Template) {
	defaults := []ConfigKey{
		{Key: KeyHeartbeatInterval, Value: "300", Visible: true},
		{Key: KeyWebSocketPingInterval, Value: "60", Visible: true},
		{Key: KeyMeterValueSampleInterval, Value: "60", Visible: true},
		{Key: KeyClockAlignedDataInterval, Value: "0", Visible: true},
		{Key: KeyAuthorizationCacheEnabled, Value: "true", Visible: true},
		{Key: KeyAuthorizeRemoteTxRequests, Value: "true", Visible: true},
		{Key: KeyLocalAuthListEnabled, Value: "true", Visible: true},
		{Key: KeyLocalPreAuthorize, Value: "true", Visible: true},
		{Key: "NumberOfConnectors", Value: strconv.Itoa(tpl.NumberOfConnectors), Readonly: true, Visible: true},
		{Key: "SupportedFeatureProfiles", Value: "Core,LocalAuthListManagement,SmartCharging,RemoteTrigger", Readonly: true, Visible: true},
	}
	for _, k := range defaults {
		if _, ok := store.Get(k.Key, false); !ok {
			store.Add(k, false)
		}
	}
	if tpl.Configuration != nil {
		for _, seed := range tpl.Configuration.ConfigurationKey {
			if _, ok := store.Get(seed.Key, false); ok {
				continue
			}
			visible := true
			if seed.Visible != nil {
				visible = *seed.Visible
			}
			store.Add(ConfigKey{
				Key:            seed.Key,
				Value:          seed.Value,
				Readonly:       seed.Readonly,
				Visible:        visible,
				RebootRequired: seed.RebootRequired,
			}, false)
		}
	}
}

// Name returns the human id.
func (s *Station) Name() string { return s.name }

// HashID returns the stable hash id.
func (s *Station) HashID() string { return s.hashID }

// Version returns the OCPP subprotocol.
func (s *Station) Version() string { return s.ver }

// State returns the lifecycle phase.
func (s *Station) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connector returns a connector by id, nil when unknown.
func (s *Station) Connector(id int) *Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectors[id]
}

// ConnectorIDs returns the ids in ascending order.
func (s *Station) ConnectorIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, 0, len(s.connectors))
	for id := range s.connectors {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// Snapshot returns the counters.
func (s *Station) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		MessagesSent:        s.Counters.MessagesSent.Load(),
		MessagesReceived:    s.Counters.MessagesReceived.Load(),
		CallErrorsReceived:  s.Counters.CallErrorsReceived.Load(),
		CallErrorsSent:      s.Counters.CallErrorsSent.Load(),
		TransactionsStarted: s.Counters.TransactionsStarted.Load(),
		TransactionsStopped: s.Counters.TransactionsStopped.Load(),
		Reconnects:          s.Counters.Reconnects.Load(),
	}
}

func (s *Station) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	if state == StateRunning {
		telemetry.StationsRunning.Inc()
	} else if s.state == StateRunning {
		telemetry.StationsRunning.Dec()
	}
	s.state = state
	cb := s.OnStateChange
	s.mu.Unlock()
	s.log.Info("Station state changed", zap.String("state", string(state)))
	if cb != nil {
		cb(s, state)
	}
}

// Start opens the session and drives the boot flow. It returns immediately;
// the station runs until Stop.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return fmt.Errorf("station %s already started", s.name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	s.state = StateStarting
	s.mu.Unlock()

	go func() {
		defer close(s.runDone)
		s.session.Run(runCtx)
	}()
	return nil
}

// Stop ends active transactions with reason Local, reports connectors
// unavailable best-effort and closes the session.
func (s *Station) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateStopped || s.state == StateStopping {
		s.mu.Unlock()
		return
	}
	if s.state == StateRunning {
		telemetry.StationsRunning.Dec()
	}
	s.state = StateStopping
	cancel := s.runCancel
	done := s.runDone
	s.mu.Unlock()

	if s.atg != nil {
		s.atg.Stop()
	}

	for _, id := range s.ConnectorIDs() {
		conn := s.Connector(id)
		if conn.HasTransaction() {
			if err := s.StopTransaction(ctx, id, "Local", false); err != nil {
				s.log.Warn("stop transaction on shutdown failed",
					zap.Int("connectorId", id), zap.Error(err))
			}
		}
		s.notifyStatus(ctx, id, StatusUnavailable)
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.corr.FailAll(ErrDisconnected)
	s.setState(StateStopped)
}

// OpenConnection redials the CSMS after a CloseConnection. It also starts a
// stopped station's session without the full Start semantics.
func (s *Station) OpenConnection(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateStopped && s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("station %s connection already open", s.name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.runCtx = runCtx
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	s.state = StateStarting
	s.mu.Unlock()

	go func() {
		defer close(s.runDone)
		s.session.Run(runCtx)
	}()
	return nil
}

// CloseConnection closes the CSMS session without stopping the station. The
// session stays down until OpenConnection.
func (s *Station) CloseConnection() {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateStopping, StateDisconnected:
		s.mu.Unlock()
		return
	}
	if s.state == StateRunning {
		telemetry.StationsRunning.Dec()
	}
	// Stopping suppresses the reconnect path in onSessionDown.
	s.state = StateStopping
	cancel, done := s.runCancel, s.runDone
	s.runCancel, s.runDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	s.corr.FailAll(ErrDisconnected)
	s.stopHeartbeat()
	s.setState(StateDisconnected)
}

// StartGenerator starts the automatic transaction generator, building one
// from the template options when the station was created without it.
func (s *Station) StartGenerator() error {
	s.mu.Lock()
	if s.atg == nil {
		if s.tpl.AutomaticTransactionGenerator == nil {
			s.mu.Unlock()
			return fmt.Errorf("station %s has no transaction generator configured", s.name)
		}
		s.atg = NewATG(s, *s.tpl.AutomaticTransactionGenerator, s.log)
	}
	atg := s.atg
	s.mu.Unlock()
	atg.Start()
	return nil
}

// StopGenerator stops the automatic transaction generator.
func (s *Station) StopGenerator() error {
	s.mu.Lock()
	atg := s.atg
	s.mu.Unlock()
	if atg == nil {
		return fmt.Errorf("station %s has no transaction generator configured", s.name)
	}
	atg.Stop()
	return nil
}

// SetSupervisionURL points the station at a new CSMS base URL and forces a
// redial of any live session.
func (s *Station) SetSupervisionURL(url string) {
	s.session.SetURL(url + "/" + s.name)
	s.session.Kick()
}

// --- session callbacks ---

func (s *Station) onSessionUp(sessionID string) {
	s.setState(StateRegistering)
	go s.bootLoop()
}

func (s *Station) onSessionDown(err error) {
	s.corr.FailAll(ErrDisconnected)
	s.stopHeartbeat()
	s.mu.Lock()
	stopping := s.state == StateStopping || s.state == StateStopped
	s.mu.Unlock()
	if stopping {
		return
	}
	s.Counters.Reconnects.Add(1)
	telemetry.ReconnectsTotal.Inc()
	s.setState(StateReconnecting)
}

func (s *Station) sendCounted(data []byte) error {
	if err := s.session.Send(data); err != nil {
		return err
	}
	s.Counters.MessagesSent.Add(1)
	return nil
}

// bootLoop sends BootNotification until Accepted. Pending and Rejected retry
// after the CSMS-returned interval; while unregistered no other traffic is
// sent. The retry backoff aborts as soon as the run context is cancelled so
// Stop never waits out a CSMS-imposed interval.
func (s *Station) bootLoop() {
	ctx := context.Background()
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}
	for {
		s.mu.Lock()
		registering := s.state == StateRegistering
		s.mu.Unlock()
		if !registering || !s.session.IsOpen() {
			return
		}

		status, interval, err := s.sendBootNotification(ctx)
		if err != nil {
			s.log.Warn("BootNotification failed", zap.Error(err))
			return
		}
		if interval <= 0 {
			interval = 60
		}

		switch status {
		case "Accepted":
			s.mu.Lock()
			s.hbInterval = time.Duration(interval) * time.Second
			s.mu.Unlock()
			s.setState(StateRunning)
			s.startHeartbeat()
			for _, id := range s.ConnectorIDs() {
				s.notifyStatus(ctx, id, s.Connector(id).Status())
			}
			if s.atg != nil {
				s.atg.Start()
			}
			return
		case "Pending", "Rejected":
			s.log.Info("BootNotification deferred",
				zap.String("status", status), zap.Int("interval", interval))
			timer := time.NewTimer(time.Duration(interval) * time.Second)
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		default:
			s.log.Warn("BootNotification returned unknown status", zap.String("status", status))
			return
		}
	}
}

func (s *Station) startHeartbeat() {
	s.mu.Lock()
	if s.hbCancel != nil {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.hbCancel = cancel
	interval := s.hbInterval
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sendHeartbeat(ctx); err != nil {
					s.log.Warn("Heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *Station) stopHeartbeat() {
	s.mu.Lock()
	if s.hbCancel != nil {
		s.hbCancel()
		s.hbCancel = nil
	}
	s.mu.Unlock()
}

// --- inbound dispatch ---

func (s *Station) onFrame(data []byte) {
	s.Counters.MessagesReceived.Add(1)

	msg, err := wire.Decode(data)
	if err != nil {
		s.log.Warn("undecodable frame dropped", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *wire.Call:
		s.handleCall(m)
	case *wire.CallResult:
		s.corr.OnCallResult(m)
	case *wire.CallError:
		s.Counters.CallErrorsReceived.Add(1)
		telemetry.CallErrorsTotal.WithLabelValues("in").Inc()
		s.corr.OnCallError(m)
	}
}

func (s *Station) handleCall(call *wire.Call) {
	telemetry.OCPPMessagesTotal.WithLabelValues(call.Action, "in").Inc()
	if !s.registry.Known(s.ver, call.Action) {
		s.replyError(call.ID, wire.CodeNotImplemented, fmt.Sprintf("action %s is not implemented", call.Action))
		return
	}
	if err := s.registry.Validate(s.ver, call.Action, wire.RoleRequest, call.Payload); err != nil {
		s.replyError(call.ID, wire.CodeFormationViolation, err.Error())
		return
	}
	if _, ok := s.handlers[call.Action]; !ok {
		s.replyError(call.ID, wire.CodeNotSupported, fmt.Sprintf("action %s is not supported by this station", call.Action))
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panicked",
					zap.String("action", call.Action), zap.Any("panic", r))
				s.replyError(call.ID, wire.CodeInternalError,
					fmt.Sprintf("handler %s failed: %v", call.Action, r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
		defer cancel()

		resp, err := s.handlers[call.Action](ctx, call.Payload)
		if err != nil {
			var de *dispatchError
			if errors.As(err, &de) {
				s.replyError(call.ID, de.code, de.desc)
			} else {
				s.replyError(call.ID, wire.CodeInternalError,
					fmt.Sprintf("handler %s failed: %v", call.Action, err))
			}
			return
		}

		result, err := wire.NewCallResult(call.ID, resp)
		if err != nil {
			s.replyError(call.ID, wire.CodeInternalError, err.Error())
			return
		}
		frame, err := json.Marshal(result)
		if err != nil {
			s.replyError(call.ID, wire.CodeInternalError, err.Error())
			return
		}
		if err := s.sendCounted(frame); err != nil {
			s.log.Warn("CallResult send failed",
				zap.String("action", call.Action), zap.Error(err))
		}
	}()
}

func (s *Station) replyError(id string, code wire.ErrorCode, desc string) {
	s.Counters.CallErrorsSent.Add(1)
	telemetry.CallErrorsTotal.WithLabelValues("out").Inc()
	ce := &wire.CallError{ID: id, Code: code, Description: desc}
	frame, err := json.Marshal(ce)
	if err != nil {
		s.log.Error("CallError encode failed", zap.Error(err))
		return
	}
	if err := s.sendCounted(frame); err != nil {
		s.log.Warn("CallError send failed", zap.Error(err))
	}
}

// onConnectorStatus pushes a StatusNotification for every distinct connector
// transition while registered.
func (s *Station) onConnectorStatus(id int, status ConnectorStatus) {
	s.mu.Lock()
	running := s.state == StateRunning
	s.mu.Unlock()
	if !running {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultRequestTimeout)
	defer cancel()
	s.notifyStatus(ctx, id, status)
}

// nextTransactionID allocates the version-appropriate transaction id for
// locally started transactions. The 1.6 id is provisional until the CSMS
// responds with its own.
func (s *Station) nextTransactionID() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCounter++
	return uuid.NewString(), s.txCounter
}
