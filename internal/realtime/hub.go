package realtime

import (
	"context"
	"encoding/json"
	"strings"

	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/metrics"
)

type message struct {
	channel string
	payload []byte
}

// Hub tracks connected clients and routes channel messages to them. All
// client bookkeeping happens on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	publish    chan message
	done       chan struct{}
	logger     logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan message, 256),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// Register adds c. Once the hub has stopped, c is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues payload for clients subscribed to channel. It drops the
// message when ctx is done first.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) {
	select {
	case h.publish <- message{channel: channel, payload: payload}:
	case <-ctx.Done():
	case <-h.done:
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			metrics.RealtimeConnections.Set(float64(len(h.clients)))
			h.logger.Debugw("Realtime client connected", "user_id", c.userID, "total_clients", len(h.clients))
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Debugw("Realtime client disconnected", "user_id", c.userID, "total_clients", len(h.clients))
			}
		case m := <-h.publish:
			h.route(m)
		}
	}
}

func (h *Hub) route(m message) {
	slug := strings.TrimPrefix(m.channel, constants.BroadcastChannelPrefix)
	recipient := recipientOf(m.payload)

	for c := range h.clients {
		if !c.wants(slug, recipient) {
			continue
		}
		select {
		case c.send <- m.payload:
			metrics.RealtimeMessagesTotal.WithLabelValues(slug).Inc()
		default:
			h.logger.Warnw("Realtime client too slow, disconnecting", "user_id", c.userID)
			h.drop(c)
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeConnections.Set(float64(len(h.clients)))
}

// recipientOf reads recipient_id from a payload. Zero means everyone.
func recipientOf(payload []byte) int64 {
	var p struct {
		RecipientID int64 `json:"recipient_id"`
	}
	_ = json.Unmarshal(payload, &p)
	return p.RecipientID
}
