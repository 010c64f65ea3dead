//goland:noinspection GoNameStartsWithPackageName
package loan

import (
	"log/slog"

	"microloan/go-backend/internal/domains/contracts"
	loanports "microloan/go-backend/internal/domains/loan/ports"
	loantransport "microloan/go-backend/internal/domains/loan/transport"
	loanusecase "microloan/go-backend/internal/domains/loan/usecase"
)

type Orchestrator = loanusecase.Orchestrator
type Registry = loanusecase.Registry
type Deps = loanusecase.Deps

type ActionMetrics = loanports.ActionMetrics
type Notifier = loanports.Notifier

const (
	NotifyActionSucceeded = loantransport.NotifyActionSucceeded
	NotifyActionFailed    = loantransport.NotifyActionFailed
	NotifyActionBusy      = loantransport.NotifyActionBusy
	NotifyNetworkMismatch = loantransport.NotifyNetworkMismatch
)

type Module struct {
	Registry     *Registry
	Orchestrator *Orchestrator
}

func NewRegistry(reader contracts.LedgerReader, logger *slog.Logger) *Registry {
	return loanusecase.NewRegistry(reader, logger)
}

// NewModule wires a registry over ledger and an orchestrator on top of it.
// deps.Ledger and deps.Registry are filled in when left empty.
func NewModule(ledger contracts.Ledger, deps Deps) Module {
	if deps.Registry == nil {
		deps.Registry = loanusecase.NewRegistry(ledger, deps.Logger)
	}
	if deps.Ledger == nil {
		deps.Ledger = ledger
	}
	return Module{
		Registry:     deps.Registry,
		Orchestrator: loanusecase.NewOrchestrator(deps),
	}
}
