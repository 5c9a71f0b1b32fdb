package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestHandleMessageBroadcastsToSubscribedExecution(t *testing.T) {
	hub := NewHub()
	s := &Subscriber{hub: hub}
	c := newTestClient(hub)
	execID := uuid.New()
	hub.SubscribeToExecution(c, execID)

	msg := &redis.Message{
		Channel: updateChannelPrefix + execID.String(),
		Payload: `{"type":"log","execution_id":"` + execID.String() + `","line":"hello"}`,
	}
	s.handleMessage(msg)

	select {
	case <-c.Send:
	default:
		t.Error("expected the subscriber to broadcast the update to the hub")
	}
}

func TestHandleMessageNoSubscribersIsNoop(t *testing.T) {
	hub := NewHub()
	s := &Subscriber{hub: hub}

	// No panic/parse failure even when the channel suffix is a valid id
	// but nobody is subscribed - handleMessage should just no-op.
	execID := uuid.New()
	msg := &redis.Message{
		Channel: updateChannelPrefix + execID.String(),
		Payload: `{"type":"status","execution_id":"` + execID.String() + `","status":"success"}`,
	}
	s.handleMessage(msg)
}

func TestHandleMessageInvalidExecutionIDInChannel(t *testing.T) {
	hub := NewHub()
	s := &Subscriber{hub: hub}

	msg := &redis.Message{
		Channel: updateChannelPrefix + "not-a-uuid",
		Payload: `{"type":"log"}`,
	}
	// Must not panic; malformed channel suffixes are dropped.
	s.handleMessage(msg)
}

func TestHandleMessageInvalidJSONPayload(t *testing.T) {
	hub := NewHub()
	s := &Subscriber{hub: hub}
	execID := uuid.New()

	msg := &redis.Message{
		Channel: updateChannelPrefix + execID.String(),
		Payload: "not json",
	}
	// Must not panic; malformed payloads are dropped.
	s.handleMessage(msg)
}
