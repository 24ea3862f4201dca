package fleet

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/ports"
	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

// ResponseChannel carries per-station command outcomes back to the UI server.
const ResponseChannel = "fleet.responses"

// Procedure names shared by the UI server and the responder.
const (
	ProcListChargingStations   = "ListChargingStations"
	ProcStartChargingStation   = "StartChargingStation"
	ProcStopChargingStation    = "StopChargingStation"
	ProcOpenConnection         = "OpenConnection"
	ProcCloseConnection        = "CloseConnection"
	ProcStartTransaction       = "StartTransaction"
	ProcStopTransaction        = "StopTransaction"
	ProcStartGenerator         = "StartAutomaticTransactionGenerator"
	ProcStopGenerator          = "StopAutomaticTransactionGenerator"
	ProcAddChargingStations    = "AddChargingStations"
	ProcDeleteChargingStations = "DeleteChargingStations"
	ProcSetSupervisionURL      = "SetSupervisionUrl"
	ProcListTemplates          = "ListTemplates"
	ProcStartSimulator         = "StartSimulator"
	ProcStopSimulator          = "StopSimulator"
)

// Command is the fan-out message published on CommandChannel.
type Command struct {
	ID        string          `json:"id"`
	Procedure string          `json:"procedure"`
	HashIDs   []string        `json:"hashIds,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is one station's outcome for a Command, published on
// ResponseChannel.
type Response struct {
	ID           string `json:"id"`
	HashID       string `json:"hashId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Command outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type commandPayload struct {
	ConnectorID int    `json:"connectorId,omitempty"`
	IdTag       string `json:"idTag,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Responder executes station-addressed commands for the stations this
// process hosts and publishes one response per addressed local station.
// Stations hosted elsewhere are left for their own responder.
type Responder struct {
	registry *Registry
	bus      ports.Broadcaster
	log      *zap.Logger

	timeout time.Duration
	sub     ports.Subscription
}

func NewResponder(registry *Registry, bus ports.Broadcaster, log *zap.Logger) *Responder {
	return &Responder{
		registry: registry,
		bus:      bus,
		log:      log,
		timeout:  30 * time.Second,
	}
}

// Start subscribes to the command channel.
func (r *Responder) Start() error {
	sub, err := r.bus.Subscribe(CommandChannel, r.handle)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

// Stop unsubscribes.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return r.sub.Unsubscribe()
}

func (r *Responder) handle(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		r.log.Warn("undecodable command dropped", zap.Error(err))
		return
	}

	var payload commandPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			r.log.Warn("undecodable command payload",
				zap.String("procedure", cmd.Procedure), zap.Error(err))
			return
		}
	}

	for _, hashID := range cmd.HashIDs {
		st, ok := r.registry.Get(hashID)
		if !ok {
			continue
		}
		resp := Response{ID: cmd.ID, HashID: hashID, Status: StatusSuccess}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.execute(ctx, cmd.Procedure, st, payload); err != nil {
			resp.Status = StatusFailure
			resp.ErrorMessage = err.Error()
		}
		cancel()

		out, err := json.Marshal(resp)
		if err != nil {
			r.log.Error("response encode failed", zap.Error(err))
			continue
		}
		if err := r.bus.Publish(ResponseChannel, out); err != nil {
			r.log.Warn("response publish failed", zap.Error(err))
		}
	}
}

func (r *Responder) execute(ctx context.Context, procedure string, st *station.Station, payload commandPayload) error {
	switch procedure {
	case ProcStartChargingStation:
		return st.Start(context.Background())
	case ProcStopChargingStation:
		st.Stop(ctx)
		return nil
	case ProcOpenConnection:
		return st.OpenConnection(context.Background())
	case ProcCloseConnection:
		st.CloseConnection()
		return nil
	case ProcStartTransaction:
		_, err := st.StartTransaction(ctx, payload.ConnectorID, payload.IdTag, false)
		return err
	case ProcStopTransaction:
		return st.StopTransaction(ctx, payload.ConnectorID, "Local", false)
	case ProcStartGenerator:
		return st.StartGenerator()
	case ProcStopGenerator:
		return st.StopGenerator()
	case ProcSetSupervisionURL:
		st.SetSupervisionURL(payload.URL)
		return nil
	case ProcDeleteChargingStations:
		st.Stop(ctx)
		r.registry.Remove(st.HashID())
		return nil
	default:
		r.log.Warn("unknown broadcast procedure", zap.String("procedure", procedure))
		return nil
	}
}
