package mocks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/seu-repo/sigec-fleetsim/internal/ocpp/wire"
)

// ReceivedCall is one Call frame a station sent to the mock CSMS.
type ReceivedCall struct {
	Action  string
	Payload json.RawMessage
}

// Handler produces the CallResult payload for one inbound action.
type Handler func(payload json.RawMessage) interface{}

// MockCSMS is a websocket CSMS double for station tests. It answers station
// Calls with defaults per action (overridable), records everything it
// receives, and can originate Calls toward the station.
type MockCSMS struct {
	Server *httptest.Server

	mu       sync.Mutex
	conns    []*csmsConn
	handlers map[string]Handler
	received []ReceivedCall
	pending  map[string]chan interface{}
	nextTxID int
}

type csmsConn struct {
	ws    *websocket.Conn
	proto string
	wmu   sync.Mutex
}

func NewMockCSMS() *MockCSMS {
	m := &MockCSMS{
		handlers: make(map[string]Handler),
		pending:  make(map[string]chan interface{}),
		nextTxID: 1000,
	}
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"ocpp1.6", "ocpp2.0.1"},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &csmsConn{ws: ws, proto: ws.Subprotocol()}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		go m.serve(conn)
	}))
	return m
}

// URL returns the ws:// endpoint stations dial (append "/<stationName>").
func (m *MockCSMS) URL() string {
	return "ws" + strings.TrimPrefix(m.Server.URL, "http")
}

func (m *MockCSMS) Close() {
	m.mu.Lock()
	conns := append([]*csmsConn(nil), m.conns...)
	m.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
	m.Server.Close()
}

// OnAction overrides the response payload for one action.
func (m *MockCSMS) OnAction(action string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[action] = h
}

// Received returns a copy of all recorded Calls.
func (m *MockCSMS) Received() []ReceivedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReceivedCall(nil), m.received...)
}

// ReceivedByAction filters recorded Calls by action.
func (m *MockCSMS) ReceivedByAction(action string) []ReceivedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReceivedCall
	for _, rc := range m.received {
		if rc.Action == action {
			out = append(out, rc)
		}
	}
	return out
}

// WaitForAction polls until at least n Calls with the action arrived.
func (m *MockCSMS) WaitForAction(action string, n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.ReceivedByAction(action)) >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// Call sends a Call frame to the most recent station connection and waits
// for its CallResult or CallError.
func (m *MockCSMS) Call(action string, payload interface{}, timeout time.Duration) (json.RawMessage, *wire.CallError, error) {
	m.mu.Lock()
	if len(m.conns) == 0 {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("no station connected")
	}
	conn := m.conns[len(m.conns)-1]
	id := uuid.NewString()
	ch := make(chan interface{}, 1)
	m.pending[id] = ch
	m.mu.Unlock()

	call, err := wire.NewCall(id, action, payload)
	if err != nil {
		return nil, nil, err
	}
	frame, err := json.Marshal(call)
	if err != nil {
		return nil, nil, err
	}
	if err := conn.write(frame); err != nil {
		return nil, nil, err
	}

	select {
	case msg := <-ch:
		switch v := msg.(type) {
		case *wire.CallResult:
			return v.Payload, nil, nil
		case *wire.CallError:
			return nil, v, nil
		}
		return nil, nil, fmt.Errorf("unexpected response type")
	case <-time.After(timeout):
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("no response to %s within %v", action, timeout)
	}
}

func (c *csmsConn) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (m *MockCSMS) serve(conn *csmsConn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := wire.Decode(data)
		if err != nil {
			continue
		}
		switch v := msg.(type) {
		case *wire.Call:
			m.mu.Lock()
			m.received = append(m.received, ReceivedCall{Action: v.Action, Payload: v.Payload})
			handler := m.handlers[v.Action]
			m.mu.Unlock()

			var payload interface{}
			if handler != nil {
				payload = handler(v.Payload)
			} else {
				payload = m.defaultResponse(conn.proto, v.Action)
			}
			result, err := wire.NewCallResult(v.ID, payload)
			if err != nil {
				continue
			}
			frame, err := json.Marshal(result)
			if err != nil {
				continue
			}
			conn.write(frame)

		case *wire.CallResult:
			m.route(v.ID, v)
		case *wire.CallError:
			m.route(v.ID, v)
		}
	}
}

func (m *MockCSMS) route(id string, msg interface{}) {
	m.mu.Lock()
	ch, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if ok {
		ch <- msg
	}
}

func (m *MockCSMS) defaultResponse(proto, action string) interface{} {
	now := time.Now().UTC().Format(time.RFC3339)
	switch action {
	case "BootNotification":
		return map[string]interface{}{"status": "Accepted", "interval": 300, "currentTime": now}
	case "Heartbeat":
		return map[string]interface{}{"currentTime": now}
	case "Authorize":
		if proto == "ocpp1.6" {
			return map[string]interface{}{"idTagInfo": map[string]string{"status": "Accepted"}}
		}
		return map[string]interface{}{"idTokenInfo": map[string]string{"status": "Accepted"}}
	case "StartTransaction":
		m.mu.Lock()
		m.nextTxID++
		txID := m.nextTxID
		m.mu.Unlock()
		return map[string]interface{}{
			"transactionId": txID,
			"idTagInfo":     map[string]string{"status": "Accepted"},
		}
	case "StopTransaction":
		return map[string]interface{}{"idTagInfo": map[string]string{"status": "Accepted"}}
	case "Get15118EVCertificate":
		return map[string]interface{}{"status": "Accepted", "exiResponse": "RVhJIFJlc3BvbnNl"}
	case "GetCertificateStatus":
		return map[string]interface{}{"status": "Accepted", "ocspResult": "b2NzcA=="}
	default:
		return map[string]interface{}{}
	}
}
