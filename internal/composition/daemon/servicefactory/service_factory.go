package servicefactory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"microloan/go-backend/internal/bootstrap/loanconfig"
	"microloan/go-backend/internal/composition/daemonservice"
	"microloan/go-backend/internal/domains/contracts"
	loandomain "microloan/go-backend/internal/domains/loan"
	"microloan/go-backend/internal/ledger"
	"microloan/go-backend/internal/ledger/memory"
	"microloan/go-backend/internal/platform/metrics"
	"microloan/go-backend/internal/platform/notify"
	"microloan/go-backend/internal/platform/privacylog"
	"microloan/go-backend/internal/platform/tracing"
	"microloan/go-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/ethclient"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	dialTimeout           = 15 * time.Second
	tracingShutdownWindow = 5 * time.Second
	loanTracerName        = "microloan/go-backend/loan"
)

type Built struct {
	Service *daemonservice.Service
	Metrics *metrics.Loan
}

// DefaultLogger is the daemon's JSON logger; MICROLOAN_LOG_LEVEL=debug|info|warn|error.
func DefaultLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("MICROLOAN_LOG_LEVEL"))) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(privacylog.WrapHandler(handler))
}

// BuildDaemonService composes the daemon service for cfg.Ledger.Transport.
func BuildDaemonService(ctx context.Context, cfg loanconfig.Config, logger *slog.Logger) (Built, error) {
	if logger == nil {
		logger = DefaultLogger()
	}
	if err := cfg.Validate(); err != nil {
		return Built{}, err
	}

	var (
		ledgerImpl contracts.Ledger
		account    contracts.Wallet
		closeFn    func()
		err        error
	)
	switch cfg.Ledger.Transport {
	case loanconfig.TransportMock:
		ledgerImpl, account = buildMock(cfg)
		logger.Warn("using in-memory mock ledger", "account", account.Address().Hex())
	default:
		ledgerImpl, account, closeFn, err = buildEthereum(ctx, cfg, logger)
		if err != nil {
			return Built{}, err
		}
	}

	provider, err := tracing.NewProvider(ctx, tracing.Config{
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRatio: cfg.Telemetry.SampleRatio,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return Built{}, err
	}
	closeFn = withTracingShutdown(closeFn, provider, logger)

	loanMetrics := metrics.NewLoan()
	svc, err := daemonservice.NewService(daemonservice.Options{
		Ledger:          ledgerImpl,
		Wallet:          account,
		Metrics:         loanMetrics,
		Hub:             notify.NewHub(cfg.RPC.EventBuffer),
		Logger:          logger,
		Classifier:      loandomain.NewErrorClassifier(cfg.Ledger.InsufficientPaymentText),
		Tracer:          provider.Tracer(loanTracerName),
		ConfirmTimeout:  cfg.Ledger.ConfirmTimeout,
		ExpectedChainID: cfg.Ledger.ExpectedChainID,
		Close:           closeFn,
	})
	if err != nil {
		closeFn()
		return Built{}, err
	}
	return Built{Service: svc, Metrics: loanMetrics}, nil
}

// withTracingShutdown flushes pending spans after the ledger connections close.
func withTracingShutdown(closeFn func(), provider *sdktrace.TracerProvider, logger *slog.Logger) func() {
	return func() {
		if closeFn != nil {
			closeFn()
		}
		ctx, cancel := context.WithTimeout(context.Background(), tracingShutdownWindow)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err.Error())
		}
	}
}

func buildMock(cfg loanconfig.Config) (contracts.Ledger, contracts.Wallet) {
	l := memory.New(memory.Config{Account: cfg.Mock.Account, InterestBps: cfg.Mock.InterestBps})
	return l, memory.Wallet{Account: cfg.Mock.Account, Chain: cfg.Ledger.ExpectedChainID}
}

func buildEthereum(ctx context.Context, cfg loanconfig.Config, logger *slog.Logger) (contracts.Ledger, contracts.Wallet, func(), error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	client, err := ethclient.DialContext(dialCtx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial ledger node: %w", err)
	}
	signer, err := wallet.Open(dialCtx, cfg.Wallet, client, os.Getenv)
	if err != nil {
		client.Close()
		return nil, nil, nil, fmt.Errorf("open wallet: %w", err)
	}
	closeFn := func() {
		if closer, ok := signer.(interface{ Close() }); ok {
			closer.Close()
		}
		client.Close()
	}

	l, err := ledger.NewEthereum(client, signer, ledger.EthereumConfig{
		Contract:            cfg.Ledger.ContractAddress,
		ABIPath:             cfg.Ledger.ABIPath,
		ReceiptPollInterval: cfg.Ledger.ReceiptPollInterval,
		Logger:              logger,
	})
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	logger.Info("ledger connected",
		"contract", cfg.Ledger.ContractAddress.Hex(),
		"account", signer.Address().Hex(),
		"wallet_mode", cfg.Wallet.Mode,
	)
	return l, signer, closeFn, nil
}
