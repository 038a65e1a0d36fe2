// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// Frame is the JSON envelope sent to activity feed subscribers.
type Frame struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Event     *listeners.Event `json:"event,omitempty"`
}

// Hub fans server-scope events out to connected websocket clients.
// Clients that cannot keep up are disconnected rather than allowed
// to stall the broadcast loop.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan Frame

	logger zerolog.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan Frame, 64),
		logger:     logging.WithComponent("websocket"),
	}
}

// Broadcast queues a frame for delivery to all connected clients.
// The frame is dropped if the hub's queue is full.
func (h *Hub) Broadcast(frame Frame) {
	select {
	case h.broadcast <- frame:
	default:
		metrics.EventsDropped.WithLabelValues("websocket").Inc()
	}
}

// ClientCount reports the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunWithContext processes registrations and broadcasts until ctx is
// cancelled. Lifecycle changes take priority over pending frames so a
// disconnecting client never receives further messages.
func (h *Hub) RunWithContext(ctx context.Context) error {
	h.logger.Info().Msg("Activity feed hub started")

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info().Msg("Activity feed hub stopped")
			return ctx.Err()
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		default:
			select {
			case <-ctx.Done():
				h.closeAll()
				h.logger.Info().Msg("Activity feed hub stopped")
				return ctx.Err()
			case client := <-h.register:
				h.addClient(client)
			case client := <-h.unregister:
				h.removeClient(client)
			case frame := <-h.broadcast:
				h.broadcastFrame(frame)
			}
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.logger.Debug().
		Uint64("client_id", client.id).
		Int("total_clients", count).
		Msg("Client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WSConnections.Dec()
	close(client.send)
	h.logger.Debug().
		Uint64("client_id", client.id).
		Int("total_clients", count).
		Msg("Client disconnected")
}

func (h *Hub) broadcastFrame(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		metrics.WSErrors.WithLabelValues("marshal").Inc()
		h.logger.Error().Err(err).Str("type", frame.Type).Msg("Failed to marshal frame")
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	// Stable delivery order keeps logs and tests reproducible.
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	for _, client := range targets {
		select {
		case client.send <- payload:
			metrics.WSMessagesSent.Inc()
		default:
			metrics.WSErrors.WithLabelValues("slow_client").Inc()
			h.logger.Warn().Uint64("client_id", client.id).Msg("Dropping slow client")
			h.removeClient(client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnections.Dec()
	}
}
