package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"conductor/pkg/logging"
)

// shutdownTimeout bounds stopping the whole fleet.
const shutdownTimeout = 60 * time.Second

// run boots the fleet in dependency order, starts the background loops and
// blocks until ctx ends. Shutdown stops instances in reverse order.
//
// A service that fails to boot is logged and the rest of the fleet keeps
// running; only a failing admin API or watcher ends the run early.
func run(ctx context.Context, s *Services) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Orchestrator.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.Server != nil {
		g.Go(func() error {
			return s.Server.Start(gctx)
		})
	}

	if err := s.Watcher.Start(gctx); err != nil {
		logging.Warn(subsystem, "Definition hot reload disabled: %v", err)
	}

	logging.Info(subsystem, "Booting fleet")
	if err := s.Orchestrator.StartAll(gctx); err != nil {
		logging.Error(subsystem, err, "Some services failed to start")
	}
	s.Scaler.Start(gctx)
	logging.Info(subsystem, "Fleet is up. Press Ctrl+C to stop all services and exit.")

	<-gctx.Done()
	runErr := g.Wait()

	logging.Info(subsystem, "Shutting down")
	s.Watcher.Stop()
	s.Scaler.Stop()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := s.Orchestrator.StopAll(stopCtx); err != nil {
		logging.Error(subsystem, err, "Some instances did not stop cleanly")
	}
	s.Orchestrator.Stop()
	_ = s.Bus.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
