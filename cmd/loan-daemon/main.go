package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"microloan/go-backend/internal/bootstrap/loanconfig"
	"microloan/go-backend/internal/composition/daemon/servicefactory"
	"microloan/go-backend/internal/composition/daemonserver"
	"microloan/go-backend/internal/doctor"

	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "127.0.0.1:8787", "JSON-RPC listen address")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	rpcToken := flag.String("rpc-token", "", "RPC token for Authorization/X-Microloan-RPC-Token (optional)")
	transport := flag.String("transport", "", "Ledger transport override: ethereum | mock")
	runDoctor := flag.Bool("doctor", false, "check config, wallet and ledger reachability, print a JSON report and exit")
	flag.Parse()
	if *showVersion {
		fmt.Printf("loan-daemon version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *rpcToken != "" {
		_ = os.Setenv("MICROLOAN_RPC_TOKEN", *rpcToken)
	}
	if *transport != "" {
		_ = os.Setenv("MICROLOAN_LEDGER_TRANSPORT", *transport)
	}

	if *runDoctor {
		os.Exit(doctorMain(ctx, *rpcAddr, *configPath))
	}

	logger := servicefactory.DefaultLogger()
	srv, err := daemonserver.NewRPCServerWithOptions(ctx, *rpcAddr, *configPath, logger)
	if err != nil {
		logger.Error("loan-daemon failed to initialize", "error", err)
		os.Exit(1)
	}

	logger.Info("loan-daemon starting", "rpc_addr", *rpcAddr, "version", version)
	if err := srv.Run(ctx); err != nil {
		logger.Error("loan-daemon failed", "error", err)
		os.Exit(1)
	}
	logger.Info("loan-daemon stopped")
}

func doctorMain(ctx context.Context, rpcAddr, configPath string) int {
	cfg, err := loanconfig.LoadFromPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}
	var node doctor.NodeReader
	if cfg.Ledger.Transport == loanconfig.TransportEthereum {
		client, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
		if err == nil {
			defer client.Close()
			node = client
		}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	report := doctor.Run(checkCtx, doctor.Input{Config: cfg, RPCAddr: rpcAddr}, node)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Ready {
		return 1
	}
	return 0
}
