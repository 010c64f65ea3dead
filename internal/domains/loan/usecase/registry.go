package usecase

import (
	"context"
	"log/slog"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Registry is a read-only pass-through to the ledger. Concurrent identical
// queries share one round trip unless made through Refresh; nothing is cached
// past the returned value.
type Registry struct {
	reader contracts.LedgerReader
	logger *slog.Logger
	group  singleflight.Group
}

func NewRegistry(reader contracts.LedgerReader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{reader: reader, logger: logger}
}

func (r *Registry) ListActive(ctx context.Context) ([]models.Loan, error) {
	return r.query(ctx, activeQuery())
}

func (r *Registry) ListByRequester(ctx context.Context, requester common.Address) ([]models.Loan, error) {
	return r.query(ctx, requesterQuery(requester))
}

func (r *Registry) ListByFunder(ctx context.Context, funder common.Address) ([]models.Loan, error) {
	return r.query(ctx, funderQuery(funder))
}

// ListView returns the list backing view for account.
func (r *Registry) ListView(ctx context.Context, view models.ViewMode, account common.Address) ([]models.Loan, error) {
	return r.query(ctx, viewQuery(view, account))
}

// Refresh is ListView with its own round trip under ctx. A read already in
// flight may have started before a mutation landed, so it is never joined.
func (r *Registry) Refresh(ctx context.Context, view models.ViewMode, account common.Address) ([]models.Loan, error) {
	q := viewQuery(view, account)
	loans, err := q.fetch(ctx, r.reader)
	if err != nil {
		return nil, err
	}
	r.reportInvariantViolations(q.key, loans)
	return models.CloneLoans(loans), nil
}

type loanQuery struct {
	key   string
	fetch func(ctx context.Context, reader contracts.LedgerReader) ([]models.Loan, error)
}

func activeQuery() loanQuery {
	return loanQuery{key: "active", fetch: func(ctx context.Context, reader contracts.LedgerReader) ([]models.Loan, error) {
		return reader.ListActive(ctx)
	}}
}

func requesterQuery(requester common.Address) loanQuery {
	return loanQuery{key: "requester:" + requester.Hex(), fetch: func(ctx context.Context, reader contracts.LedgerReader) ([]models.Loan, error) {
		return reader.ListByRequester(ctx, requester)
	}}
}

func funderQuery(funder common.Address) loanQuery {
	return loanQuery{key: "funder:" + funder.Hex(), fetch: func(ctx context.Context, reader contracts.LedgerReader) ([]models.Loan, error) {
		return reader.ListByFunder(ctx, funder)
	}}
}

func viewQuery(view models.ViewMode, account common.Address) loanQuery {
	switch view {
	case models.ViewMyRequests:
		return requesterQuery(account)
	case models.ViewMyFundings:
		return funderQuery(account)
	default:
		return activeQuery()
	}
}

// LoadViews fetches the three views for account concurrently.
func (r *Registry) LoadViews(ctx context.Context, account common.Address) (models.LoanViews, error) {
	var views models.LoanViews
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loans, err := r.ListActive(gctx)
		views.Active = loans
		return err
	})
	g.Go(func() error {
		loans, err := r.ListByRequester(gctx, account)
		views.Requested = loans
		return err
	})
	g.Go(func() error {
		loans, err := r.ListByFunder(gctx, account)
		views.Funded = loans
		return err
	})
	if err := g.Wait(); err != nil {
		return models.LoanViews{}, err
	}
	return views, nil
}

func (r *Registry) query(ctx context.Context, q loanQuery) ([]models.Loan, error) {
	v, err, _ := r.group.Do(q.key, func() (any, error) {
		loans, err := q.fetch(ctx, r.reader)
		if err != nil {
			return nil, err
		}
		r.reportInvariantViolations(q.key, loans)
		return loans, nil
	})
	if err != nil {
		return nil, err
	}
	loans, _ := v.([]models.Loan)
	return models.CloneLoans(loans), nil
}

func (r *Registry) reportInvariantViolations(key string, loans []models.Loan) {
	for _, loan := range loans {
		if err := loan.CheckInvariants(); err != nil {
			r.logger.Warn("ledger returned inconsistent loan", "query", key, "loan_id", loan.ID, "error", err.Error())
		}
	}
}
