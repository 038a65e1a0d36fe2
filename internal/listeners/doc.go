// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

/*
Package listeners implements the two-level notification fan-out for snapshot
activity: per-dataset registries and one server-wide registry.

# Model

Notifications do not spawn a task per listener. They are published to an
in-process Watermill bus and dispatched from one subscriber task per scope.
That bounds concurrency under upload storms while keeping the contract the
HTTP handlers rely on:

  - A notify call never blocks on listener execution beyond the bus buffer.
  - Within one dataset topic, delivery order matches publish order, so a
    stored upload's file_arrived event is always dispatched before its
    lineage_arrived event.
  - No ordering holds between dataset-scoped and server-scoped dispatch;
    they run on independent tasks.
  - A panicking listener is logged and skipped.

# Registration

Add and Remove methods are mutex-guarded and safe to call from any
goroutine. Removal uses the ListenerID handle returned at registration.
Listeners registered while an event is in flight may or may not observe
that event.

Server-scoped callbacks receive the dataset name as an extra leading
argument; dataset-scoped callbacks have their dataset implied.
*/
package listeners
