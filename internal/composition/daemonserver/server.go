package daemonserver

import (
	"context"
	"log/slog"

	"microloan/go-backend/internal/adapters/rpc"
	"microloan/go-backend/internal/bootstrap/loanconfig"
	"microloan/go-backend/internal/composition/daemon/servicefactory"
	"microloan/go-backend/internal/platform/ratelimiter"
)

// NewRPCServerWithOptions wires daemon service and RPC transport.
func NewRPCServerWithOptions(ctx context.Context, rpcAddr, configPath string, logger *slog.Logger) (*rpc.Server, error) {
	if logger == nil {
		logger = servicefactory.DefaultLogger()
	}
	cfg, err := loanconfig.LoadFromPath(configPath)
	if err != nil {
		return nil, err
	}
	built, err := servicefactory.BuildDaemonService(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return rpc.NewServerWithService(rpcAddr, built.Service, rpc.Options{
		Logger:     logger,
		ReadLimit:  ratelimiter.Config{RPS: cfg.RPC.RPS, Burst: cfg.RPC.Burst},
		WriteLimit: ratelimiter.Config{RPS: cfg.RPC.WriteRPS, Burst: cfg.RPC.WriteBurst},
		Streams:    rpc.StreamLimit{Total: cfg.RPC.StreamsTotal, PerCaller: cfg.RPC.StreamsPerCaller},
		Observer:   built.Metrics,
	}), nil
}
