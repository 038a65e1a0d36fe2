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

// Server-scoped listener shapes. Each callback receives the dataset name
// as an extra leading argument.
type (
	ServerLineageArrivedListener func(dataset string, date time.Time, author string, spots, links int)
	ServerFileArrivedListener    func(dataset, name string)
	ServerFileRequestedListener  func(dataset, name string)
)

// ServerListeners fans all datasets' activity out to server-wide listeners
// and tracks the per-dataset registries by name. One instance exists per
// running server process.
type ServerListeners struct {
	bus *Bus

	mu        sync.Mutex
	nextID    ListenerID
	lineage   map[ListenerID]ServerLineageArrivedListener
	arrived   map[ListenerID]ServerFileArrivedListener
	requested map[ListenerID]ServerFileRequestedListener
	datasets  map[string]*DatasetListeners

	cancel context.CancelFunc
	done   chan struct{}
}

// NewServerListeners creates the server-wide registry and starts its
// dispatch task on the server topic.
func NewServerListeners(bus *Bus) (*ServerListeners, error) {
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx, TopicServer)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe server topic: %w", err)
	}

	s := &ServerListeners{
		bus:       bus,
		lineage:   make(map[ListenerID]ServerLineageArrivedListener),
		arrived:   make(map[ListenerID]ServerFileArrivedListener),
		requested: make(map[ListenerID]ServerFileRequestedListener),
		datasets:  make(map[string]*DatasetListeners),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go s.dispatch(ch)
	return s, nil
}

// Close stops the dispatch task.
func (s *ServerListeners) Close() {
	s.cancel()
	<-s.done
}

// AddLineageArrivedListener registers fn and returns its removal handle.
func (s *ServerListeners) AddLineageArrivedListener(fn ServerLineageArrivedListener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.lineage[id] = fn
	metrics.ListenersRegistered.WithLabelValues("server").Inc()
	return id
}

// RemoveLineageArrivedListener unregisters a listener. Unknown IDs are a no-op.
func (s *ServerListeners) RemoveLineageArrivedListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lineage[id]; ok {
		delete(s.lineage, id)
		metrics.ListenersRegistered.WithLabelValues("server").Dec()
	}
}

// AddFileArrivedListener registers fn and returns its removal handle.
func (s *ServerListeners) AddFileArrivedListener(fn ServerFileArrivedListener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.arrived[id] = fn
	metrics.ListenersRegistered.WithLabelValues("server").Inc()
	return id
}

// RemoveFileArrivedListener unregisters a listener. Unknown IDs are a no-op.
func (s *ServerListeners) RemoveFileArrivedListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.arrived[id]; ok {
		delete(s.arrived, id)
		metrics.ListenersRegistered.WithLabelValues("server").Dec()
	}
}

// AddFileRequestedListener registers fn and returns its removal handle.
func (s *ServerListeners) AddFileRequestedListener(fn ServerFileRequestedListener) ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.requested[id] = fn
	metrics.ListenersRegistered.WithLabelValues("server").Inc()
	return id
}

// RemoveFileRequestedListener unregisters a listener. Unknown IDs are a no-op.
func (s *ServerListeners) RemoveFileRequestedListener(id ListenerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requested[id]; ok {
		delete(s.requested, id)
		metrics.ListenersRegistered.WithLabelValues("server").Dec()
	}
}

// RegisterDataset records the per-dataset registry under its name.
func (s *ServerListeners) RegisterDataset(d *DatasetListeners) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.Name()] = d
}

// UnregisterDataset removes and returns the per-dataset registry, or nil
// if the name is unknown. The caller owns closing it.
func (s *ServerListeners) UnregisterDataset(name string) *DatasetListeners {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.datasets[name]
	delete(s.datasets, name)
	return d
}

// Dataset returns the per-dataset registry for name, or nil.
func (s *ServerListeners) Dataset(name string) *DatasetListeners {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datasets[name]
}

// NotifyDatasetAdded publishes a lifecycle event to the server topic.
func (s *ServerListeners) NotifyDatasetAdded(name string) {
	s.publishLifecycle(NewEvent(EventDatasetAdded, name))
}

// NotifyDatasetRemoved publishes a lifecycle event to the server topic.
func (s *ServerListeners) NotifyDatasetRemoved(name string) {
	s.publishLifecycle(NewEvent(EventDatasetRemoved, name))
}

func (s *ServerListeners) publishLifecycle(ev Event) {
	if err := s.bus.Publish(TopicServer, ev); err != nil {
		logging.Error().Err(err).Str("dataset", ev.Dataset).Str("type", ev.Type).
			Msg("Failed to publish lifecycle event")
	}
}

func (s *ServerListeners) dispatch(ch <-chan *message.Message) {
	defer close(s.done)
	for msg := range ch {
		ev, err := UnmarshalEvent(msg.Payload)
		if err != nil {
			logging.Error().Err(err).Msg("Dropping undecodable server event")
			msg.Ack()
			continue
		}

		switch ev.Type {
		case EventFileArrived:
			for _, fn := range s.snapshotArrived() {
				invoke("server", ev.Type, func() { fn(ev.Dataset, ev.File) })
			}
		case EventLineageArrived:
			for _, fn := range s.snapshotLineage() {
				invoke("server", ev.Type, func() { fn(ev.Dataset, ev.Timestamp, ev.Author, ev.Spots, ev.Links) })
			}
		case EventFileRequested:
			for _, fn := range s.snapshotRequested() {
				invoke("server", ev.Type, func() { fn(ev.Dataset, ev.File) })
			}
		}
		msg.Ack()
	}
}

func (s *ServerListeners) snapshotLineage() []ServerLineageArrivedListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerLineageArrivedListener, 0, len(s.lineage))
	for _, fn := range s.lineage {
		out = append(out, fn)
	}
	return out
}

func (s *ServerListeners) snapshotArrived() []ServerFileArrivedListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerFileArrivedListener, 0, len(s.arrived))
	for _, fn := range s.arrived {
		out = append(out, fn)
	}
	return out
}

func (s *ServerListeners) snapshotRequested() []ServerFileRequestedListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerFileRequestedListener, 0, len(s.requested))
	for _, fn := range s.requested {
		out = append(out, fn)
	}
	return out
}
