package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/labwatch/labwatch/internal/models"
	"github.com/labwatch/labwatch/pkg/logger"
)

// Event is one alert lifecycle transition pushed to live subscribers.
type Event struct {
	ID    string        `json:"id"`
	Type  string        `json:"type"` // triggered, acknowledged, resolved
	Alert *models.Alert `json:"alert"`
	At    time.Time     `json:"at"`
}

// NewEvent stamps an event with a fresh id.
func NewEvent(eventType string, alert *models.Alert, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: eventType, Alert: alert, At: at}
}

// Hub owns the set of live websocket clients and drains the event queue.
// Publishing is best-effort: a full queue or a slow client drops events,
// never the authoritative state change.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan Event
	log        logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan Event, 256),
		log:        log,
	}
}

// Publish enqueues an event without blocking. Returns false when the queue
// is full and the event was dropped.
func (h *Hub) Publish(evt Event) bool {
	select {
	case h.events <- evt:
		return true
	default:
		h.log.Warn("event queue full, dropping broadcast", "type", evt.Type)
		return false
	}
}

// Run drains registrations and events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debug("websocket client registered", "remote", client.conn.RemoteAddr().String())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case evt := <-h.events:
			payload, err := json.Marshal(evt)
			if err != nil {
				h.log.Error("failed to marshal broadcast event", "error", err)
				continue
			}
			for client := range h.clients {
				select {
				case client.send <- payload:
				default:
					// Slow consumer; drop it rather than stall the hub.
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}
