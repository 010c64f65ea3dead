package daemonservice

import (
	"context"
	"log/slog"
	"time"

	"microloan/go-backend/internal/domains/contracts"
)

// Start runs the session-start sync and the network watch loop. A failed
// initial load is logged, never fatal: reads do not gate the daemon.
func (s *Service) Start(ctx context.Context) error {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()
	if s.running {
		return nil
	}
	if err := s.orchestrator.Start(ctx); err != nil {
		s.logFailure(contracts.ErrorCategoryLedger, err, "start", noSubject)
	}
	s.logEvent(slog.LevelInfo, "start", noSubject, "loan service started", "account", s.wallet.Address().Hex())

	watchCtx, cancel := context.WithCancel(ctx)
	s.stopWatch = cancel
	s.running = true
	if s.checkInterval > 0 {
		s.watchWG.Add(1)
		go func() {
			defer s.watchWG.Done()
			s.runNetworkWatch(watchCtx)
		}()
	}
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	s.startStopMu.Lock()
	defer s.startStopMu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	if s.stopWatch != nil {
		s.stopWatch()
	}
	done := make(chan struct{})
	go func() {
		s.watchWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	if slot, ok := s.orchestrator.CurrentAction(); ok {
		s.logEvent(slog.LevelWarn, "stop", slot.ID, "stopping with a loan action still in flight", "action", string(slot.Kind))
	}
	s.hub.Close()
	if s.closeFn != nil {
		s.closeFn()
	}
	s.logEvent(slog.LevelInfo, "stop", noSubject, "loan service stopped")
	return nil
}

// runNetworkWatch re-checks the wallet chain so a wallet switched to the wrong
// network is announced while the daemon is idle.
func (s *Service) runNetworkWatch(ctx context.Context) {
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, s.checkInterval)
			if _, err := s.orchestrator.NetworkStatus(checkCtx); err != nil && ctx.Err() == nil {
				s.logEvent(slog.LevelWarn, "network_watch", noSubject, "wallet network check failed", "error", err.Error())
			}
			cancel()
		}
	}
}

func (s *Service) SubscribeNotifications(cursor int64) ([]contracts.NotificationEvent, <-chan contracts.NotificationEvent, func()) {
	return s.hub.Subscribe(cursor)
}
