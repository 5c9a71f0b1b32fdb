package websocket

import (
	"testing"

	"github.com/google/uuid"
)

func TestSubscribeToExecution(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()

	hub.SubscribeToExecution(c, execID)

	hub.mu.RLock()
	_, ok := hub.execConns[execID][c]
	hub.mu.RUnlock()
	if !ok {
		t.Error("client not registered for execution id")
	}
}

func TestSubscribeToExecutionMultipleClients(t *testing.T) {
	hub := NewHub()
	c1, c2 := newTestClient(hub), newTestClient(hub)
	execID := uuid.New()

	hub.SubscribeToExecution(c1, execID)
	hub.SubscribeToExecution(c2, execID)

	hub.mu.RLock()
	n := len(hub.execConns[execID])
	hub.mu.RUnlock()
	if n != 2 {
		t.Errorf("subscriber count = %d, want 2", n)
	}
}

func TestUnsubscribeFromExecutionRemovesEmptySet(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)

	hub.UnsubscribeFromExecution(c, execID)

	hub.mu.RLock()
	_, ok := hub.execConns[execID]
	hub.mu.RUnlock()
	if ok {
		t.Error("execution id entry should be removed once its last subscriber leaves")
	}
}

func TestUnsubscribeFromExecutionLeavesOthers(t *testing.T) {
	hub := NewHub()
	c1, c2 := newTestClient(hub), newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c1, execID)
	hub.SubscribeToExecution(c2, execID)

	hub.UnsubscribeFromExecution(c1, execID)

	hub.mu.RLock()
	_, c1Present := hub.execConns[execID][c1]
	_, c2Present := hub.execConns[execID][c2]
	hub.mu.RUnlock()
	if c1Present {
		t.Error("c1 should have been removed")
	}
	if !c2Present {
		t.Error("c2 should still be subscribed")
	}
}

func TestUnsubscribeFromExecutionUnknownID(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	// Unsubscribing from an id nobody subscribed to must not panic.
	hub.UnsubscribeFromExecution(c, uuid.New())
}

func TestBroadcastToExecutionDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)

	hub.BroadcastToExecution(execID, NewEvent("log", execID.String(), map[string]interface{}{"line": "hello"}))

	select {
	case raw := <-c.Send:
		if len(raw) == 0 {
			t.Error("expected a non-empty payload")
		}
	default:
		t.Error("expected an event on the client's Send channel")
	}
}

func TestBroadcastToExecutionSkipsUnsubscribed(t *testing.T) {
	hub := NewHub()
	subscribed := newTestClient(hub)
	bystander := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(subscribed, execID)

	hub.BroadcastToExecution(execID, NewEvent("status", execID.String(), nil))

	select {
	case <-bystander.Send:
		t.Error("bystander should not receive an event for an execution it never subscribed to")
	default:
	}
}

func TestBroadcastToExecutionNoSubscribers(t *testing.T) {
	hub := NewHub()
	// Broadcasting to an execution id with zero subscribers must not panic.
	hub.BroadcastToExecution(uuid.New(), NewEvent("status", "x", nil))
}

func TestBroadcastToExecutionDropsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	c := &Client{Hub: hub, Send: make(chan []byte, 1), UserID: uuid.New()}
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)
	c.Send <- []byte("filler")

	hub.BroadcastToExecution(execID, NewEvent("log", execID.String(), nil))

	hub.mu.RLock()
	_, subscribed := hub.execConns[execID][c]
	hub.mu.RUnlock()
	if subscribed {
		t.Error("client with a full send buffer should be dropped from the execution subscription")
	}
}

func TestCleanupExecutionSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)

	hub.CleanupExecutionSubscriptions(execID)

	hub.mu.RLock()
	_, ok := hub.execConns[execID]
	hub.mu.RUnlock()
	if ok {
		t.Error("execConns entry should be gone after cleanup")
	}
}

func TestGetConnectionCount(t *testing.T) {
	hub := NewHub()
	if n := hub.GetConnectionCount(); n != 0 {
		t.Errorf("GetConnectionCount() = %d, want 0", n)
	}

	hub.clients[newTestClient(hub)] = true
	hub.clients[newTestClient(hub)] = true
	if n := hub.GetConnectionCount(); n != 2 {
		t.Errorf("GetConnectionCount() = %d, want 2", n)
	}
}
