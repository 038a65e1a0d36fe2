// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package progress

import (
	"github.com/tomtom215/lineagehub/internal/lineage"
	"github.com/tomtom215/lineagehub/internal/listeners"
)

// Attacher returns a hook the dataset registry calls for every activated
// dataset: it builds a full store with the given options, hooks it onto
// the dataset's listener registry, replays on-disk history, and hands back
// the detach func the registry runs at removal.
func Attacher(opts Options, counter lineage.GraphCounter) func(name, dir string, dl *listeners.DatasetListeners) (func(), error) {
	if counter == nil {
		counter = lineage.ContainerCounter{}
	}
	return func(name, dir string, dl *listeners.DatasetListeners) (func(), error) {
		store, err := NewProgressStore(name, dir, opts)
		if err != nil {
			return nil, err
		}
		store.AttachListeners(dl)
		if err := store.Replay(counter); err != nil {
			store.Detach()
			return nil, err
		}
		return store.Detach, nil
	}
}
