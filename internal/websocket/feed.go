// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/lineagehub/internal/listeners"
	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed carries no credentials and no mutating operations,
	// so cross-origin subscribers are accepted.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades GET requests into activity feed subscriptions.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			metrics.WSErrors.WithLabelValues("upgrade").Inc()
			logging.CtxErr(r.Context(), err).Msg("WebSocket upgrade failed")
			return
		}
		newClient(hub, conn).Start()
	}
}

// Feed bridges the server-scope event stream onto a hub.
type Feed struct {
	hub *Hub
	bus *listeners.Bus
}

func NewFeed(hub *Hub, bus *listeners.Bus) *Feed {
	return &Feed{hub: hub, bus: bus}
}

// RunWithContext consumes server-scope events and broadcasts them as
// activity frames until ctx is cancelled.
func (f *Feed) RunWithContext(ctx context.Context) error {
	logger := logging.WithComponent("activity-feed")

	ch, err := f.bus.Subscribe(ctx, listeners.TopicServer)
	if err != nil {
		return err
	}
	logger.Info().Msg("Activity feed subscribed to server events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := listeners.UnmarshalEvent(msg.Payload)
			if err != nil {
				logger.Warn().Err(err).Msg("Skipping undecodable event")
				msg.Ack()
				continue
			}
			f.hub.Broadcast(Frame{
				Type:      ev.Type,
				Timestamp: time.Now().UTC(),
				Event:     &ev,
			})
			msg.Ack()
		}
	}
}
