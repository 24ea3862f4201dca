package station

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seu-repo/sigec-fleetsim/internal/domain"
	"github.com/seu-repo/sigec-fleetsim/internal/mocks"
)

func testTemplate201(url string) *domain.Template {
	tpl := testTemplate16(url)
	tpl.OcppVersion = "2.0.1"
	tpl.ChargePointSerialNumber = "SN-0001"
	return tpl
}

func TestStation201_TransactionEventSequence(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate201(csms.URL()))

	txID, err := st.StartTransaction(context.Background(), 1, "TOKEN1", false)
	require.NoError(t, err)
	require.NoError(t, st.StopTransaction(context.Background(), 1, "Local", false))

	events := csms.ReceivedByAction("TransactionEvent")
	require.Len(t, events, 2)

	var started, ended struct {
		EventType       string `json:"eventType"`
		SeqNo           int    `json:"seqNo"`
		TransactionInfo struct {
			TransactionId string `json:"transactionId"`
		} `json:"transactionInfo"`
	}
	require.NoError(t, json.Unmarshal(events[0].Payload, &started))
	require.NoError(t, json.Unmarshal(events[1].Payload, &ended))

	assert.Equal(t, "Started", started.EventType)
	assert.Equal(t, 0, started.SeqNo)
	assert.Equal(t, txID, started.TransactionInfo.TransactionId)
	assert.Equal(t, "Ended", ended.EventType)
	assert.Equal(t, 1, ended.SeqNo)
	assert.Equal(t, txID, ended.TransactionInfo.TransactionId)
}

func TestStation201_RequestStartAndStop(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate201(csms.URL()))

	evseID := 1
	payload, callErr, err := csms.Call("RequestStartTransaction", map[string]interface{}{
		"idToken":       map[string]string{"idToken": "TOKEN1", "type": "ISO14443"},
		"remoteStartId": 1,
		"evseId":        evseID,
	}, 5*time.Second)
	require.NoError(t, err)
	require.Nil(t, callErr)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	require.True(t, csms.WaitForAction("TransactionEvent", 1, 5*time.Second))
	waitFor(t, "evse 1 charging", func() bool {
		return st.Connector(1).Status() == StatusCharging
	})
	tx := st.Connector(1).Transaction()
	require.NotNil(t, tx)

	// A second start on the busy EVSE is rejected with a reason.
	payload, _, err = csms.Call("RequestStartTransaction", map[string]interface{}{
		"idToken":       map[string]string{"idToken": "TOKEN2", "type": "ISO14443"},
		"remoteStartId": 2,
		"evseId":        evseID,
	}, 5*time.Second)
	require.NoError(t, err)
	var rejected struct {
		Status     string `json:"status"`
		StatusInfo struct {
			ReasonCode string `json:"reasonCode"`
		} `json:"statusInfo"`
	}
	require.NoError(t, json.Unmarshal(payload, &rejected))
	assert.Equal(t, "Rejected", rejected.Status)
	assert.Equal(t, "EvseOccupied", rejected.StatusInfo.ReasonCode)

	payload, _, err = csms.Call("RequestStopTransaction",
		map[string]interface{}{"transactionId": tx.ID}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	waitFor(t, "evse 1 idle", func() bool {
		return st.Connector(1).Status() == StatusAvailable
	})
}

func TestStation201_RequestStopUnknownTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate201(csms.URL()))

	payload, _, err := csms.Call("RequestStopTransaction",
		map[string]interface{}{"transactionId": "no-such-tx"}, 5*time.Second)
	require.NoError(t, err)
	var resp struct {
		Status     string `json:"status"`
		StatusInfo struct {
			ReasonCode string `json:"reasonCode"`
		} `json:"statusInfo"`
	}
	require.NoError(t, json.Unmarshal(payload, &resp))
	assert.Equal(t, "Rejected", resp.Status)
	assert.Equal(t, "UnknownTransaction", resp.StatusInfo.ReasonCode)
}

func TestStation201_GetBaseReport(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate201(csms.URL()))

	payload, _, err := csms.Call("GetBaseReport",
		map[string]interface{}{"requestId": 42, "reportBase": "FullInventory"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	require.True(t, csms.WaitForAction("NotifyReport", 1, 5*time.Second))
	waitFor(t, "final NotifyReport page", func() bool {
		pages := csms.ReceivedByAction("NotifyReport")
		if len(pages) == 0 {
			return false
		}
		var last struct {
			Tbc bool `json:"tbc"`
		}
		if err := json.Unmarshal(pages[len(pages)-1].Payload, &last); err != nil {
			return false
		}
		return !last.Tbc
	})

	pages := csms.ReceivedByAction("NotifyReport")
	names := map[string]string{}
	for i, page := range pages {
		var report struct {
			RequestId  int  `json:"requestId"`
			SeqNo      int  `json:"seqNo"`
			ReportData []struct {
				Variable struct {
					Name string `json:"name"`
				} `json:"variable"`
				VariableAttribute []struct {
					Value string `json:"value"`
				} `json:"variableAttribute"`
			} `json:"reportData"`
		}
		require.NoError(t, json.Unmarshal(page.Payload, &report))
		assert.Equal(t, 42, report.RequestId)
		assert.Equal(t, i, report.SeqNo)
		for _, row := range report.ReportData {
			if len(row.VariableAttribute) > 0 {
				names[row.Variable.Name] = row.VariableAttribute[0].Value
			}
		}
	}
	assert.Equal(t, "SimVendor", names["VendorName"])
	assert.Equal(t, "SimModel", names["Model"])
	assert.Equal(t, "SN-0001", names["SerialNumber"])
	assert.Contains(t, names, "HeartbeatInterval")
	assert.Contains(t, names, "AvailabilityState")
}

func TestStation201_GetBaseReportUnknownBase(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate201(csms.URL()))

	payload, _, err := csms.Call("GetBaseReport",
		map[string]interface{}{"requestId": 1, "reportBase": "SomethingElse"}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"NotSupported"}`, string(payload))
}

func TestStation201_GetSetVariables(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	startTestStation(t, csms, testTemplate201(csms.URL()))

	payload, _, err := csms.Call("GetVariables", map[string]interface{}{
		"getVariableData": []map[string]interface{}{
			{"component": map[string]string{"name": "ChargingStation"}, "variable": map[string]string{"name": "HeartbeatInterval"}},
			{"component": map[string]string{"name": "ChargingStation"}, "variable": map[string]string{"name": "NoSuchVariable"}},
		},
	}, 5*time.Second)
	require.NoError(t, err)
	var getResp struct {
		GetVariableResult []struct {
			AttributeStatus string `json:"attributeStatus"`
			AttributeValue  string `json:"attributeValue"`
		} `json:"getVariableResult"`
	}
	require.NoError(t, json.Unmarshal(payload, &getResp))
	require.Len(t, getResp.GetVariableResult, 2)
	assert.Equal(t, "Accepted", getResp.GetVariableResult[0].AttributeStatus)
	assert.Equal(t, "300", getResp.GetVariableResult[0].AttributeValue)
	assert.Equal(t, "UnknownVariable", getResp.GetVariableResult[1].AttributeStatus)

	payload, _, err = csms.Call("SetVariables", map[string]interface{}{
		"setVariableData": []map[string]interface{}{
			{"attributeValue": "120", "component": map[string]string{"name": "ChargingStation"}, "variable": map[string]string{"name": "HeartbeatInterval"}},
			{"attributeValue": "9", "component": map[string]string{"name": "ChargingStation"}, "variable": map[string]string{"name": "NumberOfConnectors"}},
		},
	}, 5*time.Second)
	require.NoError(t, err)
	var setResp struct {
		SetVariableResult []struct {
			AttributeStatus string `json:"attributeStatus"`
		} `json:"setVariableResult"`
	}
	require.NoError(t, json.Unmarshal(payload, &setResp))
	require.Len(t, setResp.SetVariableResult, 2)
	assert.Equal(t, "Accepted", setResp.SetVariableResult[0].AttributeStatus)
	assert.Equal(t, "Rejected", setResp.SetVariableResult[1].AttributeStatus)
}

func TestStation201_ChargingProfileCapsPower(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate201(csms.URL()))

	payload, _, err := csms.Call("SetChargingProfile", map[string]interface{}{
		"evseId": 1,
		"chargingProfile": map[string]interface{}{
			"id":                     7,
			"stackLevel":             1,
			"chargingProfilePurpose": "TxDefaultProfile",
			"chargingProfileKind":    "Absolute",
			"chargingSchedule": []map[string]interface{}{{
				"id":               1,
				"chargingRateUnit": "W",
				"chargingSchedulePeriod": []map[string]interface{}{
					{"startPeriod": 0, "limit": 7400},
				},
			}},
		},
	}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	limit, ok := st.Connector(1).EffectiveLimit()
	require.True(t, ok)
	assert.Equal(t, 7400.0, limit)

	payload, _, err = csms.Call("ClearChargingProfile",
		map[string]interface{}{"chargingProfileId": 7}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"Accepted"}`, string(payload))

	_, ok = st.Connector(1).EffectiveLimit()
	assert.False(t, ok)
}

func TestStation201_UnlockDuringTransaction(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate201(csms.URL()))

	_, err := st.StartTransaction(context.Background(), 1, "TOKEN1", false)
	require.NoError(t, err)

	payload, _, err := csms.Call("UnlockConnector",
		map[string]interface{}{"evseId": 1, "connectorId": 1}, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OngoingAuthorizedTransaction"}`, string(payload))
}

func TestStation201_Get15118EVCertificatePassThrough(t *testing.T) {
	csms := mocks.NewMockCSMS()
	defer csms.Close()

	st := startTestStation(t, csms, testTemplate201(csms.URL()))

	resp, err := st.Get15118EVCertificate(context.Background(), "urn:iso:15118:2:2013:MsgDef", "Install", "RVhJIFJlcXVlc3Q=")
	require.NoError(t, err)
	assert.Equal(t, "Accepted", string(resp.Status))
	assert.Equal(t, "RVhJIFJlc3BvbnNl", resp.ExiResponse)

	received := csms.ReceivedByAction("Get15118EVCertificate")
	require.Len(t, received, 1)
	var req struct {
		Iso15118SchemaVersion string `json:"iso15118SchemaVersion"`
		Action                string `json:"action"`
		ExiRequest            string `json:"exiRequest"`
	}
	require.NoError(t, json.Unmarshal(received[0].Payload, &req))
	assert.Equal(t, "urn:iso:15118:2:2013:MsgDef", req.Iso15118SchemaVersion)
	assert.Equal(t, "RVhJIFJlcXVlc3Q=", req.ExiRequest)
}
