// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package listeners

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// TopicServer is the topic carrying server-scoped activity. Every dataset
// event is mirrored here with its dataset name in the envelope.
const TopicServer = "events.server"

// DatasetTopic returns the topic carrying one dataset's activity.
func DatasetTopic(name string) string {
	return "events.dataset." + name
}

// Bus is the in-process event transport. Notifications are published here
// and dispatched to listeners from dedicated subscriber tasks, so a slow or
// panicking listener can never block the HTTP request that triggered it.
// Within one topic delivery order matches publish order.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates an in-process bus. buffer bounds how many undelivered
// events each subscriber may accumulate before publishers start blocking.
func NewBus(buffer int) *Bus {
	ps := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: int64(buffer),
		},
		newWatermillLogger(logging.WithComponent("bus")),
	)
	return &Bus{pubsub: ps}
}

// Publish marshals the event and sends it to the topic.
func (b *Bus) Publish(topic string, ev Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	msg := message.NewMessage(ev.EventID, payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, topic, err)
	}

	scope := "dataset"
	if topic == TopicServer {
		scope = "server"
	}
	metrics.EventsPublished.WithLabelValues(scope, ev.Type).Inc()
	return nil
}

// Subscribe returns a message channel for the topic. The channel closes
// when ctx is canceled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down. Subscriber channels are closed and pending
// undelivered events are dropped.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger adapts zerolog to the watermill.LoggerAdapter interface.
type watermillLogger struct {
	logger zerolog.Logger
}

func newWatermillLogger(logger zerolog.Logger) watermill.LoggerAdapter {
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := l.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return &watermillLogger{logger: logger}
}

func (l *watermillLogger) event(ev *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	return ev
}
