package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Hub fans a connected client out to whichever execution ids it has
// subscribed to, mirroring the `SUBSCRIBE updates(id)` surface spec §4.8
// describes for a WebSocket-attached caller.
type Hub struct {
	clients    map[*Client]bool
	execConns  map[uuid.UUID]map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		execConns:  make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				for execID, conns := range h.execConns {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.execConns, execID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SubscribeToExecution(client *Client, executionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.execConns[executionID]; !ok {
		h.execConns[executionID] = make(map[*Client]bool)
	}
	h.execConns[executionID][client] = true
}

func (h *Hub) UnsubscribeFromExecution(client *Client, executionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.execConns[executionID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.execConns, executionID)
		}
	}
}

func (h *Hub) BroadcastToExecution(executionID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.execConns[executionID]
	if !ok {
		return
	}
	for client := range conns {
		select {
		case client.Send <- data:
		default:
			log.Warn().Str("execution_id", executionID.String()).Msg("dropping websocket client, send buffer full")
			close(client.Send)
			delete(h.clients, client)
			delete(conns, client)
		}
	}
	if len(conns) == 0 {
		delete(h.execConns, executionID)
	}
}

func (h *Hub) CleanupExecutionSubscriptions(executionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.execConns, executionID)
}
