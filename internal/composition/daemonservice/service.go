package daemonservice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	loandomain "microloan/go-backend/internal/domains/loan"
	"microloan/go-backend/internal/platform/notify"
	"microloan/go-backend/internal/platform/privacylog"

	"go.opentelemetry.io/otel/trace"
)

const DefaultNetworkCheckInterval = 30 * time.Second

type Options struct {
	Ledger          contracts.Ledger
	Wallet          contracts.Wallet
	Metrics         loandomain.ActionMetrics
	Hub             *notify.Hub
	Logger          *slog.Logger
	Classifier      loandomain.ErrorClassifier
	Tracer          trace.Tracer
	ConfirmTimeout  time.Duration
	ExpectedChainID uint64
	// NetworkCheckInterval drives the wallet network watch; negative disables it.
	NetworkCheckInterval time.Duration
	Now                  func() time.Time
	// Close releases ledger and signer connections on Stop.
	Close func()
}

type Service struct {
	orchestrator *loandomain.Orchestrator
	registry     *loandomain.Registry
	wallet       contracts.Wallet
	hub          *notify.Hub
	logger       *slog.Logger
	closeFn      func()

	checkInterval time.Duration

	startStopMu sync.Mutex
	running     bool
	stopWatch   context.CancelFunc
	watchWG     sync.WaitGroup
}

func NewService(opts Options) (*Service, error) {
	if opts.Ledger == nil {
		return nil, errors.New("daemonservice: ledger is required")
	}
	if opts.Wallet == nil {
		return nil, errors.New("daemonservice: wallet is required")
	}
	if opts.Hub == nil {
		opts.Hub = notify.NewHub(notify.DefaultBacklog)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = slog.New(privacylog.WrapHandler(opts.Logger.Handler()))
	if opts.ExpectedChainID == 0 {
		opts.ExpectedChainID = loandomain.CeloAlfajoresChainID
	}
	if opts.NetworkCheckInterval == 0 {
		opts.NetworkCheckInterval = DefaultNetworkCheckInterval
	}

	module := loandomain.NewModule(opts.Ledger, loandomain.Deps{
		Wallet:          opts.Wallet,
		Classifier:      opts.Classifier,
		Metrics:         opts.Metrics,
		Notifier:        opts.Hub,
		Logger:          opts.Logger,
		Tracer:          opts.Tracer,
		Now:             opts.Now,
		ConfirmTimeout:  opts.ConfirmTimeout,
		ExpectedChainID: opts.ExpectedChainID,
	})
	return &Service{
		orchestrator:  module.Orchestrator,
		registry:      module.Registry,
		wallet:        opts.Wallet,
		hub:           opts.Hub,
		logger:        opts.Logger,
		closeFn:       opts.Close,
		checkInterval: opts.NetworkCheckInterval,
	}, nil
}
