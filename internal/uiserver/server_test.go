package uiserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/broadcast"
	"github.com/seu-repo/sigec-fleetsim/internal/fleet"
)

type fakeSimulator struct {
	registry  *fleet.Registry
	templates []string
	addErr    error
}

func (f *fakeSimulator) Registry() *fleet.Registry { return f.registry }

func (f *fakeSimulator) AddStations(ctx context.Context, template string, count int) ([]string, error) {
	if f.addErr != nil {
		return nil, f.addErr
	}
	out := make([]string, count)
	for i := range out {
		out[i] = fmt.Sprintf("%s-hash-%d", template, i+1)
	}
	return out, nil
}

func (f *fakeSimulator) Templates() []string           { return f.templates }
func (f *fakeSimulator) Start(ctx context.Context) error { return nil }
func (f *fakeSimulator) Stop(ctx context.Context) error  { return nil }

func newTestServer(t *testing.T, sim *fakeSimulator) (*Server, *broadcast.Local) {
	t.Helper()
	if sim.registry == nil {
		sim.registry = fleet.NewRegistry()
	}
	bus := broadcast.NewLocal(zap.NewNop())
	t.Cleanup(func() { _ = bus.Close() })

	opts := DefaultOptions()
	opts.BroadcastTimeout = 2 * time.Second
	srv := NewServer(opts, sim, bus, zap.NewNop())
	require.NoError(t, srv.agg.start())
	t.Cleanup(srv.agg.stop)
	return srv, bus
}

func postProcedure(t *testing.T, srv *Server, procedure, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest("POST", "/ui/"+procedure, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := srv.App().Test(req, 5000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	return resp.StatusCode, decoded
}

func TestServer_ListTemplates(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{templates: []string{"ocpp16.json", "ocpp201.json"}})

	status, body := postProcedure(t, srv, fleet.ProcListTemplates, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `"success"`, string(body["status"]))
	assert.JSONEq(t, `["ocpp16.json","ocpp201.json"]`, string(body["templates"]))
}

func TestServer_ListChargingStationsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{})

	status, body := postProcedure(t, srv, fleet.ProcListChargingStations, "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body["chargingStations"]))
}

func TestServer_AddChargingStations(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{templates: []string{"ocpp16.json"}})

	status, body := postProcedure(t, srv, fleet.ProcAddChargingStations,
		`{"template":"ocpp16.json","numberOfStations":2}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `"success"`, string(body["status"]))
	assert.JSONEq(t, `["ocpp16.json-hash-1","ocpp16.json-hash-2"]`, string(body["hashIds"]))
}

func TestServer_AddChargingStationsValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{})

	status, _ := postProcedure(t, srv, fleet.ProcAddChargingStations,
		`{"numberOfStations":2}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = postProcedure(t, srv, fleet.ProcAddChargingStations,
		`{"template":"ocpp16.json","numberOfStations":0}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = postProcedure(t, srv, fleet.ProcAddChargingStations,
		`{"template":"ocpp16.json","numberOfStations":101}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestServer_UnknownProcedure(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{})

	status, body := postProcedure(t, srv, "RebootTheMoon", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.JSONEq(t, `"failure"`, string(body["status"]))
}

func TestServer_BroadcastAggregatesResponses(t *testing.T) {
	srv, bus := newTestServer(t, &fakeSimulator{})
	answerStations(t, bus, map[string]string{
		"h1": fleet.StatusSuccess,
		"h2": fleet.StatusFailure,
	})

	status, body := postProcedure(t, srv, fleet.ProcStopChargingStation,
		`{"hashIds":["h1","h2"]}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `"failure"`, string(body["status"]))
	assert.JSONEq(t, `["h1"]`, string(body["hashIdsSucceeded"]))
	assert.JSONEq(t, `["h2"]`, string(body["hashIdsFailed"]))
}

func TestServer_BroadcastWithNoStations(t *testing.T) {
	srv, _ := newTestServer(t, &fakeSimulator{})

	// No hashIds and an empty registry: nothing to address, so the call
	// returns immediately instead of waiting out the timeout.
	started := time.Now()
	status, body := postProcedure(t, srv, fleet.ProcStopChargingStation, `{}`)
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `"success"`, string(body["status"]))
	assert.JSONEq(t, `[]`, string(body["hashIdsSucceeded"]))
}

func TestDecodeEnvelope(t *testing.T) {
	id, procedure, payload, err := decodeEnvelope(
		[]byte(`["req-1","ListTemplates",{"a":1}]`))
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)
	assert.Equal(t, "ListTemplates", procedure)
	assert.JSONEq(t, `{"a":1}`, string(payload))

	// Payload element is optional.
	_, _, payload, err = decodeEnvelope([]byte(`["req-2","ListTemplates"]`))
	require.NoError(t, err)
	assert.Nil(t, payload)

	_, _, _, err = decodeEnvelope([]byte(`["only-one"]`))
	assert.Error(t, err)

	_, _, _, err = decodeEnvelope([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}
