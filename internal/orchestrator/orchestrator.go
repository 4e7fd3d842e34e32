// Package orchestrator composes the connection pool, the Monitoring and
// Control managers, and the AAS-write pump under one cancellation barrier,
// per spec.md §4.8. It is grounded in the teacher's internal/cloud/manager.go,
// which derives a cancellable context at construction and waits on a
// sync.WaitGroup of independently cancellable loops during shutdown.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hadijannat/basyx-opcua-bridge/internal/aasprovider"
	"github.com/hadijannat/basyx-opcua-bridge/internal/control"
	"github.com/hadijannat/basyx-opcua-bridge/internal/monitor"
	"github.com/hadijannat/basyx-opcua-bridge/internal/opcuapool"
)

// Orchestrator runs the bridge's four concurrent tasks until its context is
// canceled, then waits for each to observe cancellation before returning.
type Orchestrator struct {
	logger   *zap.Logger
	pool     *opcuapool.Pool
	monitor  *monitor.Manager
	control  *control.Manager
	provider aasprovider.Provider

	shutdownTimeout time.Duration
}

// New constructs an Orchestrator wiring the pool, the two direction
// managers, and the AAS provider whose WriteRequests channel feeds the
// Control Manager.
func New(logger *zap.Logger, pool *opcuapool.Pool, monitorMgr *monitor.Manager, controlMgr *control.Manager, provider aasprovider.Provider) *Orchestrator {
	return &Orchestrator{
		logger:          logger,
		pool:            pool,
		monitor:         monitorMgr,
		control:         controlMgr,
		provider:        provider,
		shutdownTimeout: 10 * time.Second,
	}
}

// Run starts all four tasks and blocks until ctx is canceled, then waits
// for each task to wind down. It returns the first non-context-cancellation
// error observed, if any.
func (o *Orchestrator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if starter, ok := o.provider.(aasprovider.Starter); ok {
		if err := starter.Start(runCtx); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-runCtx.Done()
		o.logger.Info("stopping connection pool")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), o.shutdownTimeout)
		defer shutdownCancel()
		if err := o.pool.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("error shutting down connection pool", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.monitor.Run(runCtx); err != nil && err != context.Canceled {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := o.control.Run(runCtx); err != nil && err != context.Canceled {
			errs <- err
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.pumpAASWrites(runCtx)
	}()

	<-ctx.Done()
	o.logger.Info("orchestrator received shutdown signal")
	cancel()
	wg.Wait()

	if closeErr := o.provider.Close(); closeErr != nil {
		o.logger.Warn("error closing AAS provider", zap.Error(closeErr))
	}

	close(errs)
	for err := range errs {
		return err
	}
	return nil
}

// pumpAASWrites forwards every AAS -> OPC UA write request discovered by
// the provider (REST polling, MQTT ingestion, or a direct API call) into
// the Control Manager's queue, per spec.md §4.8 task 4.
func (o *Orchestrator) pumpAASWrites(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-o.provider.WriteRequests():
			if !ok {
				return
			}
			if err := o.control.Submit(event.SubmodelID, event.IDShort, event.Value, event.UserID, event.CorrelationID); err != nil {
				o.logger.Warn("failed to submit AAS-originated write",
					zap.String("submodel_id", event.SubmodelID),
					zap.String("id_short", event.IDShort),
					zap.Error(err))
			}
		}
	}
}
