package daemonservice

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"
)

func (s *Service) RequestLoan(ctx context.Context, amount, termDays string) (models.ActionResult, error) {
	return s.orchestrator.RequestLoan(ctx, amount, termDays)
}

// FundLoan resolves the total due from the ledger when the caller does not send one.
func (s *Service) FundLoan(ctx context.Context, loanID uint64, totalDue *big.Int) (models.ActionResult, error) {
	if totalDue == nil {
		loan, err := s.lookup(ctx, "fund", loanID)
		if err != nil {
			return models.ActionResult{}, err
		}
		totalDue = loan.TotalDue()
	}
	return s.orchestrator.FundLoan(ctx, loanID, totalDue)
}

func (s *Service) RepayLoan(ctx context.Context, loanID uint64) (models.ActionResult, error) {
	loan, err := s.lookup(ctx, "repay", loanID)
	if err != nil {
		return models.ActionResult{}, err
	}
	return s.orchestrator.RepayLoan(ctx, loanID, loan)
}

func (s *Service) lookup(ctx context.Context, operation string, loanID uint64) (models.Loan, error) {
	loan, err := s.orchestrator.LookupLoan(ctx, loanID)
	if err == nil {
		return loan, nil
	}
	s.logFailure(contracts.ErrorCategoryLedger, err, operation, loanSubject(loanID))
	message := fmt.Sprintf("Could not %s the loan: %s", operation, contracts.ErrGeneric.Message)
	if errors.Is(err, contracts.ErrLoanNotFound) {
		message = fmt.Sprintf("Could not %s the loan: loan %d was not found", operation, loanID)
	}
	return models.Loan{}, contracts.NewActionError(contracts.KindGeneric, message, err)
}

func (s *Service) CurrentAction() (models.ActionSlot, bool) {
	return s.orchestrator.CurrentAction()
}

func (s *Service) ListActive(ctx context.Context) ([]models.Loan, error) {
	return s.readList(ctx, "list_active", func(ctx context.Context) ([]models.Loan, error) {
		return s.registry.ListActive(ctx)
	})
}

func (s *Service) ListRequested(ctx context.Context) ([]models.Loan, error) {
	return s.readList(ctx, "list_requested", func(ctx context.Context) ([]models.Loan, error) {
		return s.registry.ListByRequester(ctx, s.wallet.Address())
	})
}

func (s *Service) ListFunded(ctx context.Context) ([]models.Loan, error) {
	return s.readList(ctx, "list_funded", func(ctx context.Context) ([]models.Loan, error) {
		return s.registry.ListByFunder(ctx, s.wallet.Address())
	})
}

func (s *Service) LoadViews(ctx context.Context) (models.LoanViews, error) {
	views, err := s.registry.LoadViews(ctx, s.wallet.Address())
	if err != nil {
		s.logFailure(contracts.ErrorCategoryLedger, err, "load_views", noSubject)
		return models.LoanViews{}, err
	}
	return views, nil
}

func (s *Service) readList(ctx context.Context, operation string, read func(context.Context) ([]models.Loan, error)) ([]models.Loan, error) {
	loans, err := read(ctx)
	if err != nil {
		s.logFailure(contracts.ErrorCategoryLedger, err, operation, noSubject)
		return nil, err
	}
	return loans, nil
}

func (s *Service) ShowView(ctx context.Context, view models.ViewMode) (models.SessionSnapshot, error) {
	return s.orchestrator.ShowView(ctx, view)
}

func (s *Service) Session() models.SessionSnapshot {
	return s.orchestrator.Session()
}

func (s *Service) NetworkStatus(ctx context.Context) (models.NetworkStatus, error) {
	return s.orchestrator.NetworkStatus(ctx)
}
