// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package listeners

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/lineagehub/internal/logging"
	"github.com/tomtom215/lineagehub/internal/metrics"
)

// Dataset-scoped listener shapes. The dataset is implicit.
type (
	LineageArrivedListener func(date time.Time, author string, spots, links int)
	FileArrivedListener    func(name string)
	FileRequestedListener  func(name string)
)

// ListenerID identifies a registration for later removal.
type ListenerID int

// DatasetListeners fans dataset activity out to registered listeners.
// Registration is mutex-guarded so callers may register from any
// goroutine; dispatch runs on a single subscriber task per dataset, so
// listeners for one dataset never run concurrently with each other.
// There is no ordering guarantee between dataset-scoped and server-scoped
// dispatch: they run on independent tasks.
type DatasetListeners struct {
	name   string
	bus    *Bus
	server *ServerListeners

	mu        sync.Mutex
	nextID    ListenerID
	lineage   map[ListenerID]LineageArrivedListener
	arrived   map[ListenerID]FileArrivedListener
	requested map[ListenerID]FileRequestedListener

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDatasetListeners creates the listener registry for one dataset and
// starts its dispatch task. server may be nil when no server-wide fan-out
// is wanted (tests, embedded use).
func NewDatasetListeners(name string, bus *Bus, server *ServerListeners) (*DatasetListeners, error) {
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, DatasetTopic(name))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe dataset topic %s: %w", name, err)
	}

	d := &DatasetListeners{
		name:      name,
		bus:       bus,
		server:    server,
		lineage:   make(map[ListenerID]LineageArrivedListener),
		arrived:   make(map[ListenerID]FileArrivedListener),
		requested: make(map[ListenerID]FileRequestedListener),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go d.dispatch(ch)
	return d, nil
}

// Name returns the dataset this registry is scoped to.
func (d *DatasetListeners) Name() string { return d.name }

// Close stops the dispatch task. Events published after Close are not
// delivered to this registry.
func (d *DatasetListeners) Close() {
	d.cancel()
	<-d.done
}

// AddLineageArrivedListener registers fn and returns its removal handle.
func (d *DatasetListeners) AddLineageArrivedListener(fn LineageArrivedListener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.lineage[id] = fn
	metrics.ListenersRegistered.WithLabelValues("dataset").Inc()
	return id
}

// RemoveLineageArrivedListener unregisters a listener. Unknown IDs are a no-op.
func (d *DatasetListeners) RemoveLineageArrivedListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.lineage[id]; ok {
		delete(d.lineage, id)
		metrics.ListenersRegistered.WithLabelValues("dataset").Dec()
	}
}

// AddFileArrivedListener registers fn and returns its removal handle.
func (d *DatasetListeners) AddFileArrivedListener(fn FileArrivedListener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.arrived[id] = fn
	metrics.ListenersRegistered.WithLabelValues("dataset").Inc()
	return id
}

// RemoveFileArrivedListener unregisters a listener. Unknown IDs are a no-op.
func (d *DatasetListeners) RemoveFileArrivedListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.arrived[id]; ok {
		delete(d.arrived, id)
		metrics.ListenersRegistered.WithLabelValues("dataset").Dec()
	}
}

// AddFileRequestedListener registers fn and returns its removal handle.
func (d *DatasetListeners) AddFileRequestedListener(fn FileRequestedListener) ListenerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.requested[id] = fn
	metrics.ListenersRegistered.WithLabelValues("dataset").Inc()
	return id
}

// RemoveFileRequestedListener unregisters a listener. Unknown IDs are a no-op.
func (d *DatasetListeners) RemoveFileRequestedListener(id ListenerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.requested[id]; ok {
		delete(d.requested, id)
		metrics.ListenersRegistered.WithLabelValues("dataset").Dec()
	}
}

// NotifyFileArrived announces a stored upload. Within one request this is
// published before the matching lineage notification, and same-topic
// delivery preserves that order.
func (d *DatasetListeners) NotifyFileArrived(name string) {
	ev := NewEvent(EventFileArrived, d.name)
	ev.File = name
	d.publish(ev)
}

// NotifyLineageArrived announces a decoded snapshot with its graph counts.
func (d *DatasetListeners) NotifyLineageArrived(date time.Time, author string, spots, links int) {
	ev := NewEvent(EventLineageArrived, d.name)
	ev.Author = author
	ev.Timestamp = date
	ev.Spots = spots
	ev.Links = links
	d.publish(ev)
}

// NotifyFileRequested announces a download about to be served.
func (d *DatasetListeners) NotifyFileRequested(name string) {
	ev := NewEvent(EventFileRequested, d.name)
	ev.File = name
	d.publish(ev)
}

func (d *DatasetListeners) publish(ev Event) {
	if err := d.bus.Publish(DatasetTopic(d.name), ev); err != nil {
		logging.Error().Err(err).Str("dataset", d.name).Str("type", ev.Type).
			Msg("Failed to publish dataset event")
	}
	if d.server != nil {
		if err := d.bus.Publish(TopicServer, ev); err != nil {
			logging.Error().Err(err).Str("dataset", d.name).Str("type", ev.Type).
				Msg("Failed to publish server event")
		}
	}
}

func (d *DatasetListeners) dispatch(ch <-chan *message.Message) {
	defer close(d.done)
	for msg := range ch {
		ev, err := UnmarshalEvent(msg.Payload)
		if err != nil {
			logging.Error().Err(err).Str("dataset", d.name).Msg("Dropping undecodable event")
			msg.Ack()
			continue
		}

		switch ev.Type {
		case EventFileArrived:
			for _, fn := range d.snapshotArrived() {
				invoke("dataset", ev.Type, func() { fn(ev.File) })
			}
		case EventLineageArrived:
			for _, fn := range d.snapshotLineage() {
				invoke("dataset", ev.Type, func() { fn(ev.Timestamp, ev.Author, ev.Spots, ev.Links) })
			}
		case EventFileRequested:
			for _, fn := range d.snapshotRequested() {
				invoke("dataset", ev.Type, func() { fn(ev.File) })
			}
		}
		msg.Ack()
	}
}

func (d *DatasetListeners) snapshotLineage() []LineageArrivedListener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]LineageArrivedListener, 0, len(d.lineage))
	for _, fn := range d.lineage {
		out = append(out, fn)
	}
	return out
}

func (d *DatasetListeners) snapshotArrived() []FileArrivedListener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FileArrivedListener, 0, len(d.arrived))
	for _, fn := range d.arrived {
		out = append(out, fn)
	}
	return out
}

func (d *DatasetListeners) snapshotRequested() []FileRequestedListener {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]FileRequestedListener, 0, len(d.requested))
	for _, fn := range d.requested {
		out = append(out, fn)
	}
	return out
}

// invoke runs one listener with panic isolation. A panicking listener is
// logged and skipped; it cannot take down the dispatch task.
func invoke(scope, eventType string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("scope", scope).
				Str("type", eventType).
				Interface("panic", r).
				Msg("Listener panicked")
		}
	}()
	fn()
}
