package websocket

import "time"

// Event is what the Hub sends to a browser for one Update Channel message
// (spec §4.8): the message's type and execution id, with the message's
// remaining fields under Data. The types seen are log, progress and
// status (fanout.Publisher) and queue_position (queuetracker).
type Event struct {
	Type        string                 `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Data        map[string]interface{} `json:"data"`
}

func NewEvent(eventType, executionID string, data map[string]interface{}) *Event {
	return &Event{
		Type:        eventType,
		ExecutionID: executionID,
		Timestamp:   time.Now(),
		Data:        data,
	}
}
