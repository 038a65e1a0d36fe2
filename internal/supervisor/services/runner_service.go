// Lineagehub - Collaborative Lineage Snapshot Exchange
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lineagehub

package services

import (
	"context"
)

// ContextRunner matches components whose run loop already follows the
// suture pattern of blocking until the context is cancelled. The
// activity feed hub and the bus-to-hub feed both satisfy it.
type ContextRunner interface {
	RunWithContext(ctx context.Context) error
}

// RunnerService names a ContextRunner so suture can log it.
type RunnerService struct {
	runner ContextRunner
	name   string
}

func NewRunnerService(name string, runner ContextRunner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (r *RunnerService) Serve(ctx context.Context) error {
	return r.runner.RunWithContext(ctx)
}

func (r *RunnerService) String() string {
	return r.name
}
