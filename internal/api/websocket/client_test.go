package websocket

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func newTestClient(hub *Hub) *Client {
	return &Client{Hub: hub, Send: make(chan []byte, 4), UserID: uuid.New()}
}

func drain(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg map[string]interface{}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal send buffer: %v", err)
		}
		return msg
	default:
		t.Fatal("expected a message on Send, got none")
		return nil
	}
}

func TestHandleMessageSubscribeAcks(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()

	payload, _ := json.Marshal(SubscribePayload{ExecutionID: execID.String()})
	msg, _ := json.Marshal(WSMessage{Type: "subscribe", Payload: payload})
	c.handleMessage(msg)

	ack := drain(t, c)
	if ack["type"] != "subscribed" {
		t.Errorf("ack type = %v, want subscribed", ack["type"])
	}

	hub.mu.RLock()
	_, subscribed := hub.execConns[execID][c]
	hub.mu.RUnlock()
	if !subscribed {
		t.Error("client was not registered against the execution id")
	}
}

func TestHandleMessageUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)

	payload, _ := json.Marshal(SubscribePayload{ExecutionID: execID.String()})
	msg, _ := json.Marshal(WSMessage{Type: "unsubscribe", Payload: payload})
	c.handleMessage(msg)

	ack := drain(t, c)
	if ack["type"] != "unsubscribed" {
		t.Errorf("ack type = %v, want unsubscribed", ack["type"])
	}

	hub.mu.RLock()
	_, stillThere := hub.execConns[execID]
	hub.mu.RUnlock()
	if stillThere {
		t.Error("execution subscription set should be cleaned up once empty")
	}
}

func TestHandleMessagePing(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)

	msg, _ := json.Marshal(WSMessage{Type: "ping"})
	c.handleMessage(msg)

	pong := drain(t, c)
	if pong["type"] != "pong" {
		t.Errorf("pong type = %v, want pong", pong["type"])
	}
}

func TestHandleMessageInvalidExecutionID(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)

	payload, _ := json.Marshal(SubscribePayload{ExecutionID: "not-a-uuid"})
	msg, _ := json.Marshal(WSMessage{Type: "subscribe", Payload: payload})
	c.handleMessage(msg)

	errMsg := drain(t, c)
	if errMsg["type"] != "error" {
		t.Errorf("type = %v, want error", errMsg["type"])
	}
}

func TestHandleMessageUnknownType(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)

	msg, _ := json.Marshal(WSMessage{Type: "bogus"})
	c.handleMessage(msg)

	errMsg := drain(t, c)
	if errMsg["type"] != "error" {
		t.Errorf("type = %v, want error", errMsg["type"])
	}
}

func TestHandleMessageMalformedJSON(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)

	c.handleMessage([]byte("not json"))

	errMsg := drain(t, c)
	if errMsg["type"] != "error" {
		t.Errorf("type = %v, want error", errMsg["type"])
	}
}
