package uiserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
	"github.com/seu-repo/sigec-fleetsim/internal/station"
)

type procedurePayload struct {
	HashIds          []string `json:"hashIds,omitempty"`
	ConnectorID      int      `json:"connectorId,omitempty"`
	IdTag            string   `json:"idTag,omitempty"`
	URL              string   `json:"url,omitempty"`
	Template         string   `json:"template,omitempty"`
	NumberOfStations int      `json:"numberOfStations,omitempty"`
}

// ConnectorView is the UI projection of one connector.
type ConnectorView struct {
	ID            int    `json:"id"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Availability  string `json:"availability"`
}

// StationView is the UI projection of one station.
type StationView struct {
	HashID      string                   `json:"hashId"`
	Name        string                   `json:"name"`
	OcppVersion string                   `json:"ocppVersion"`
	State       string                   `json:"state"`
	Connectors  []ConnectorView          `json:"connectors"`
	Counters    station.CountersSnapshot `json:"counters"`
}

func viewOf(st *station.Station) StationView {
	view := StationView{
		HashID:      st.HashID(),
		Name:        st.Name(),
		OcppVersion: st.Version(),
		State:       string(st.State()),
		Counters:    st.Snapshot(),
	}
	for _, id := range st.ConnectorIDs() {
		conn := st.Connector(id)
		cv := ConnectorView{
			ID:           id,
			Status:       string(conn.Status()),
			Availability: string(conn.Availability()),
		}
		if tx := conn.Transaction(); tx != nil {
			cv.TransactionID = tx.ID
		}
		view.Connectors = append(view.Connectors, cv)
	}
	return view
}

// broadcastProcedures are the station-addressed procedures that fan out to
// the fleet and aggregate responses.
var broadcastProcedures = map[string]bool{
	fleet.ProcStartChargingStation:   true,
	fleet.ProcStopChargingStation:    true,
	fleet.ProcOpenConnection:         true,
	fleet.ProcCloseConnection:        true,
	fleet.ProcStartTransaction:       true,
	fleet.ProcStopTransaction:        true,
	fleet.ProcStartGenerator:         true,
	fleet.ProcStopGenerator:          true,
	fleet.ProcSetSupervisionURL:      true,
	fleet.ProcDeleteChargingStations: true,
}

func (s *Server) dispatch(ctx context.Context, id, procedure string, raw json.RawMessage) (interface{}, error) {
	var payload procedurePayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}

	if broadcastProcedures[procedure] {
		return s.broadcast(id, procedure, payload, raw)
	}

	switch procedure {
	case fleet.ProcListChargingStations:
		stations := s.sim.Registry().List()
		views := make([]StationView, 0, len(stations))
		for _, st := range stations {
			views = append(views, viewOf(st))
		}
		return map[string]interface{}{
			"status":           fleet.StatusSuccess,
			"chargingStations": views,
		}, nil

	case fleet.ProcAddChargingStations:
		if payload.Template == "" {
			return nil, fmt.Errorf("template is required")
		}
		if payload.NumberOfStations < 1 {
			return nil, fmt.Errorf("numberOfStations must be at least 1")
		}
		if payload.NumberOfStations > s.opts.MaxAddStations {
			return nil, fmt.Errorf("numberOfStations exceeds the limit of %d", s.opts.MaxAddStations)
		}
		hashIds, err := s.sim.AddStations(ctx, payload.Template, payload.NumberOfStations)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"status":  fleet.StatusSuccess,
			"hashIds": hashIds,
		}, nil

	case fleet.ProcListTemplates:
		return map[string]interface{}{
			"status":    fleet.StatusSuccess,
			"templates": s.sim.Templates(),
		}, nil

	case fleet.ProcStartSimulator:
		if err := s.sim.Start(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": fleet.StatusSuccess}, nil

	case fleet.ProcStopSimulator:
		if err := s.sim.Stop(ctx); err != nil {
			return nil, err
		}
		return map[string]interface{}{"status": fleet.StatusSuccess}, nil

	default:
		return nil, fmt.Errorf("unknown procedure %q", procedure)
	}
}

// broadcast fans a station-addressed procedure out and waits for the
// aggregate. An empty hashIds list addresses every registered station.
func (s *Server) broadcast(id, procedure string, payload procedurePayload, raw json.RawMessage) (interface{}, error) {
	hashIds := payload.HashIds
	if len(hashIds) == 0 {
		for _, st := range s.sim.Registry().List() {
			hashIds = append(hashIds, st.HashID())
		}
	}
	if len(hashIds) == 0 {
		return AggregateResult{Status: fleet.StatusSuccess, HashIdsSucceeded: []string{}}, nil
	}

	return s.agg.broadcast(fleet.Command{
		ID:        id,
		Procedure: procedure,
		HashIDs:   hashIds,
		Payload:   raw,
	})
}
