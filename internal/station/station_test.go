package station

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/mocks"
)

func testTemplate16(url string) *domain.Template {
	return &domain.Template{
		BaseName:           "TEST-CP",
		SupervisionUrls:    []string{url},
		OcppVersion:        "1.6",
		ChargePointVendor:  "SimVendor",
		ChargePointModel:   "SimModel",
		FirmwareVersion:    "1.0.0",
		NumberOfConnectors: 2,
		Power:              22000,
		PowerUnit:          "W",
		VoltageOut:         230,
	}
}

func startTestStation(t *testing.T, csms *mocks.MockCSMS, tpl *domain.Template) *Station {
	t.Helper()
	st, err := New(Config{
		Template: tpl,
		Index:    1,
		DataDir:  t.TempDir(),
		IdTags:   []string{"TAG1", "TAG2"},
	}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st.Stop(ctx)
	})
	waitForState(t, st, StateRunning)
	return st
}

func waitForState(t *testing.T, st *Station, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("station never reached state %s, stuck at %s", want, st.State())
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestStation_BootFlow(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate16(csms.URL()))
	assert.Equal(t, "TEST-CP-00001", st.Name())
	assert.Len(t, st.HashID(), 16)

	boots := csms.ReceivedByAction("BootNotification")
	require.NotEmpty(t, boots)
	var boot struct {
		ChargePointVendor string `json:"chargePointVendor"`
		ChargePointModel  string `json:"chargePointModel"`
		FirmwareVersion   string `json:"firmwareVersion"`
	}
	require.NoError(t, json.Unmarshal(boots[0].Payload, &boot))
	assert.Equal(t, "SimVendor", boot.ChargePointVendor)
	assert.Equal(t, "SimModel", boot.ChargePointModel)
	assert.Equal(t, "1.0.0", boot.FirmwareVersion)

	// Registration announces every connector.
	require.True(t, csms.WaitForAction("StatusNotification", 2, 3*time.Second))
}

func TestStation_HeartbeatPayloadIsEmpty(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	csms.OnAction("BootNotification", func(json.RawMessage) interface{} {
		return map[string]interface{}{
			"status":      "Accepted",
			"interval":    1,
			"currentTime": time.Now().UTC().Format(time.RFC3339),
		}
	})

	startTestStation(t, csms, testTemplate16(csms.URL()))

	require.True(t, csms.WaitForAction("Heartbeat", 1, 5*time.Second))
	hb := csms.ReceivedByAction("Heartbeat")[0]
	assert.JSONEq(t, `{}`, string(hb.Payload))
}

func TestStation_RemoteStartAndStop(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	payload, callErr, err := csms.Call("RemoteStartTransaction",
		map[string]interface{}{"connectorId": 1, "idTag": "TAG1"}, 5*time.Second)
	require.NoError(t, err)
	require.Nil(t, callErr)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	require.True(t, csms.WaitForAction("StartTransaction", 1, 5*time.Second))
	waitFor(t, "connector 1 charging", func() bool {
		return st.Connector(1).Status() == StatusCharging
	})

	tx := st.Connector(1).Transaction()
	require.NotNil(t, tx)
	assert.Equal(t, "TAG1", tx.IdTag)
	assert.True(t, tx.RemoteStarted)

	payload, callErr, err = csms.Call("RemoteStopTransaction",
		map[string]interface{}{"transactionId": tx.NumericID}, 5*time.Second)
	require.NoError(t, err)
	require.Nil(t, callErr)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	require.True(t, csms.WaitForAction("StopTransaction", 1, 5*time.Second))
	waitFor(t, "connector 1 idle", func() bool {
		return st.Connector(1).Status() == StatusAvailable
	})

	var stop struct {
		TransactionId int    `json:"transactionId"`
		Reason        string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(csms.ReceivedByAction("StopTransaction")[0].Payload, &stop))
	assert.Equal(t, tx.NumericID, stop.TransactionId)
	assert.Equal(t, "Remote", stop.Reason)

	snap := st.Snapshot()
	assert.Equal(t, int64(1), snap.TransactionsStarted)
	assert.Equal(t, int64(1), snap.TransactionsStopped)
}

func TestStation_RemoteStopUnknownTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))

	payload, callErr, err := csms.Call("RemoteStopTransaction",
		map[string]interface{}{"transactionId": 999999}, 5*time.Second)
	require.NoError(t, err)
	require.Nil(t, callErr)
	assert.JSONEq(t, `{"status":"Rejected"}`, string(payload))
}

func TestStation_GetAndChangeConfiguration(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))

	payload, callErr, err := csms.Call("GetConfiguration", map[string]interface{}{}, 5*time.Second)
	require.NoError(t, err)
	require.Nil(t, callErr)
	var resp struct {
		ConfigurationKey []struct {
			Key      string  `json:"key"`
			Readonly bool    `json:"readonly"`
			Value    *string `json:"value"`
		} `json:"configurationKey"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))
	keys := map[string]bool{}
	for _, k := range resp.ConfigurationKey {
		keys[k.Key] = true
	}
	assert.True(t, keys["HeartbeatInterval"])
	assert.True(t, keys["NumberOfConnectors"])

	payload, _, err = csms.Call("ChangeConfiguration",
		map[string]interface{}{"key": "HeartbeatInterval", "value": "120"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	payload, _, err = csms.Call("ChangeConfiguration",
		map[string]interface{}{"key": "SupportedFeatureProfiles", "value": "x"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Rejected"}`, string(payload))

	payload, _, err = csms.Call("ChangeConfiguration",
		map[string]interface{}{"key": "NoSuchKey", "value": "1"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"NotSupported"}`, string(payload))
}

func TestStation_UnknownActionGetsCallError(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))

	_, callErr, err := csms.Call("MadeUpAction", map[string]interface{}{}, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, callErr)
	assert.Equal(t, "NotImplemented", string(callErr.Code))
}

func TestStation_LocalListRoundTrip(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))

	payload, _, err := csms.Call("SendLocalList", map[string]interface{}{
		"listVersion": 1,
		"updateType":  "Full",
		"localAuthorizationList": []map[string]interface{}{
			{"idTag": "TAG1", "idTagInfo": map[string]string{"status": "Accepted"}},
		},
	}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	payload, _, err = csms.Call("GetLocalListVersion", map[string]interface{}{}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"listVersion":1}`, string(payload))

	// Stale version is reported, not applied.
	payload, _, err = csms.Call("SendLocalList", map[string]interface{}{
		"listVersion": 1,
		"updateType":  "Full",
	}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"VersionMismatch"}`, string(payload))
}

func TestStation_TriggerMessageStatusNotification(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))
	before := len(csms.ReceivedByAction("StatusNotification"))

	payload, _, err := csms.Call("TriggerMessage",
		map[string]interface{}{"requestedMessage": "StatusNotification"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	require.True(t, csms.WaitForAction("StatusNotification", before+2, 5*time.Second))
}

func TestStation_ChangeAvailabilityDuringTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	_, err := st.StartTransaction(context.Background(), 1, "TAG1", false)
	require.NoError(t, err)

	payload, _, err := csms.Call("ChangeAvailability",
		map[string]interface{}{"connectorId": 1, "type": "Inoperative"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Scheduled"}`, string(payload))

	require.NoError(t, st.StopTransaction(context.Background(), 1, "Local", false))
	waitFor(t, "connector 1 unavailable", func() bool {
		return st.Connector(1).Status() == StatusUnavailable
	})
}

func TestStation_StopEndsActiveTransactions(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	_, err := st.StartTransaction(context.Background(), 1, "TAG1", false)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st.Stop(ctx)

	assert.Equal(t, StateStopped, st.State())
	require.NotEmpty(t, csms.ReceivedByAction("StopTransaction"))
	var stop struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(csms.ReceivedByAction("StopTransaction")[0].Payload, &stop))
	assert.Equal(t, "Local", stop.Reason)
}

func TestStation_CloseAndReopenConnection(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate16(csms.URL()))

	st.CloseConnection()
	assert.Equal(t, StateDisconnected, st.State())

	require.NoError(t, st.OpenConnection(context.Background()))
	waitForState(t, st, StateRunning)
}

func TestStation_DataTransferUnknownVendor(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate16(csms.URL()))

	payload, _, err := csms.Call("DataTransfer",
		map[string]interface{}{"vendorId": "com.example"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"UnknownVendorId"}`, string(payload))
}

func TestStation_JournalRecordsTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	journal := mocks.NewMockJournal()
	tpl := testTemplate16(csms.URL())
	st, err := New(Config{
		Template: tpl,
		Index:    7,
		DataDir:  t.TempDir(),
		IdTags:   []string{"TAG1"},
		Journal:  journal,
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st.Stop(ctx)
	}()
	waitForState(t, st, StateRunning)

	txID, err := st.StartTransaction(context.Background(), 1, "TAG1", false)
	require.NoError(t, err)
	require.NoError(t, st.StopTransaction(context.Background(), 1, "Local", false))

	created := journal.CreatedRecords()
	require.Len(t, created, 1)
	assert.Equal(t, txID, created[0].TransactionID)
	assert.Equal(t, st.HashID(), created[0].StationID)
	assert.Equal(t, []string{txID}, journal.CompletedIDs())
}

func TestStation_StopDuringBootBackoff(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	csms.OnAction("BootNotification", func(json.RawMessage) interface{} {
		return map[string]interface{}{
			"status":      "Pending",
			"interval":    3600,
			"currentTime": time.Now().UTC().Format(time.RFC3339),
		}
	})

	st, err := New(Config{
		Template: testTemplate16(csms.URL()),
		Index:    1,
		DataDir:  t.TempDir(),
	}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, st.Start(context.Background()))

	require.True(t, csms.WaitForAction("BootNotification", 1, 5*time.Second))

	// Stop must not wait out the CSMS-imposed retry interval.
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st.Stop(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStopped, st.State())
}
