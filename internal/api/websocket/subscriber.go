package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const updateChannelPrefix = "bifrost:updates:"

// Subscriber mirrors fanout.Publisher's Update Channel naming
// (bifrost:updates:{executionID}) onto the Hub's per-execution broadcast,
// the wire path for spec §4.8's `SUBSCRIBE updates(id)`.
type Subscriber struct {
	redisClient *redis.Client
	hub         *Hub
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewSubscriber(redisClient *redis.Client, hub *Hub) *Subscriber {
	ctx, cancel := context.WithCancel(context.Background())
	return &Subscriber{
		redisClient: redisClient,
		hub:         hub,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Subscriber) Start() {
	s.wg.Add(1)
	go s.subscribeToUpdates()
}

func (s *Subscriber) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Subscriber) subscribeToUpdates() {
	defer s.wg.Done()

	pubsub := s.redisClient.PSubscribe(s.ctx, updateChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()

	log.Info().Msg("websocket update subscriber started")

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("websocket update subscriber stopped")
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			s.handleMessage(msg)
		}
	}
}

func (s *Subscriber) handleMessage(msg *redis.Message) {
	execIDStr := strings.TrimPrefix(msg.Channel, updateChannelPrefix)
	execID, err := uuid.Parse(execIDStr)
	if err != nil {
		log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to parse execution id from update channel")
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal update event")
		return
	}

	eventType, _ := payload["type"].(string)
	delete(payload, "type")
	delete(payload, "execution_id")

	event := NewEvent(eventType, execIDStr, payload)

	log.Debug().
		Str("type", eventType).
		Str("execution_id", execIDStr).
		Msg("broadcasting websocket update")

	s.hub.BroadcastToExecution(execID, event)
}
