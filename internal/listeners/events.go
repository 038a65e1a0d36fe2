// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package listeners

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Event types carried on the bus.
const (
	EventFileArrived    = "file_arrived"
	EventLineageArrived = "lineage_arrived"
	EventFileRequested  = "file_requested"
	EventDatasetAdded   = "dataset_added"
	EventDatasetRemoved = "dataset_removed"
)

// Event is the canonical envelope for all snapshot exchange activity.
// Dataset-scoped and server-scoped subscribers receive the same shape;
// server-scoped consumers filter on Dataset.
type Event struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Dataset string `json:"dataset"`

	// File is the snapshot filename for file_arrived and file_requested.
	File string `json:"file,omitempty"`

	// Lineage fields, set only for lineage_arrived.
	Author    string    `json:"author,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Spots     int       `json:"spots,omitempty"`
	Links     int       `json:"links,omitempty"`

	EmittedAt time.Time `json:"emitted_at"`
}

// NewEvent creates an event envelope with a unique ID and emission time.
func NewEvent(eventType, dataset string) Event {
	return Event{
		EventID:   uuid.New().String(),
		Type:      eventType,
		Dataset:   dataset,
		EmittedAt: time.Now().UTC(),
	}
}

// Marshal encodes the event for bus transport.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEvent decodes a bus payload back into an Event.
func UnmarshalEvent(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
