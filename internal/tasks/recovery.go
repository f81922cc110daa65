package tasks

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/sohanagashimani/playlist-converter/internal/models"
	"github.com/sohanagashimani/playlist-converter/internal/shared"
)

// Reasons recorded on interrupted jobs.
const (
	ReasonShutdown = "shutdown"
	ReasonRestart  = "restart"
)

// ActiveJobIDs lists the jobs holding an active marker.
func (o *Orchestrator) ActiveJobIDs(ctx context.Context) ([]string, error) {
	return o.active.IDs(ctx)
}

// MarkInterrupted records that id stopped without reaching an outcome and releases its marker.
//
// A job that already finished keeps its status. A marker without a job is still removed.
func (o *Orchestrator) MarkInterrupted(ctx context.Context, id, reason string) error {
	payload := models.Payload{
		"error":         msgInterrupted,
		"interruptedAt": o.timestamp(),
		"reason":        reason,
	}
	applied, err := o.jobs.UpdateStatus(ctx, id, models.StatusInterrupted, 0, payload)
	if err != nil && !errors.Is(err, shared.ErrJobNotFound) {
		return fmt.Errorf("marking conversion %s interrupted: %w", id, err)
	}
	if err := o.active.Remove(ctx, id); err != nil {
		return fmt.Errorf("removing active marker for %s: %w", id, err)
	}
	if applied {
		o.logger.Warn("marked conversion interrupted", "job", id, "reason", reason)
	}
	return nil
}

// Recover marks jobs left active by a previous process as interrupted and returns how many were swept.
//
// Jobs running in this process are left alone. With a shared index the markers may belong to
// live processes, so nothing is swept.
func (o *Orchestrator) Recover(ctx context.Context) (int, error) {
	if o.opts.SharedIndex {
		o.logger.Info("skipping recovery, active index is shared")
		return 0, nil
	}

	ids, err := o.active.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: listing active conversions: %v", shared.ErrPersistence, err)
	}

	var errs []error
	swept := 0
	for _, id := range ids {
		if o.isRunning(id) {
			continue
		}
		if err := o.MarkInterrupted(ctx, id, ReasonRestart); err != nil {
			errs = append(errs, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		o.logger.Info("recovered interrupted conversions", "count", swept)
	}
	return swept, errors.Join(errs...)
}

// Drain stops admission, marks every active job interrupted and cancels the running pipelines.
//
// It waits for the pipelines to return until ctx is done.
func (o *Orchestrator) Drain(ctx context.Context) error {
	o.admitMu.Lock()
	o.draining.Store(true)
	o.mu.Lock()
	running := maps.Clone(o.running)
	o.mu.Unlock()
	o.admitMu.Unlock()

	var errs []error
	ids := slices.Collect(maps.Keys(running))
	if !o.opts.SharedIndex {
		markers, err := o.active.IDs(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("listing active conversions: %w", err))
		}
		for _, id := range markers {
			if _, ok := running[id]; !ok {
				ids = append(ids, id)
			}
		}
	}
	o.logger.Info("draining conversions", "running", len(running), "interrupting", len(ids))

	for _, id := range ids {
		if err := o.MarkInterrupted(ctx, id, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	for _, stop := range running {
		stop()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for conversions to stop: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

// Draining reports whether Drain was called.
func (o *Orchestrator) Draining() bool {
	return o.draining.Load()
}

// Wait blocks until every launched pipeline has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
