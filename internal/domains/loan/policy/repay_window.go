package policy

import (
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"
)

// CheckRepayWindow enforces now >= maturity - grace period. A loan without
// maturity (not yet funded) is never payable.
func CheckRepayWindow(loan models.Loan, now time.Time) error {
	payableFrom, ok := loan.PayableFrom()
	if !ok {
		return contracts.NewActionError(contracts.KindTooEarly, "loan is not funded yet", nil)
	}
	if now.Before(payableFrom) {
		return contracts.ErrTooEarly
	}
	return nil
}
