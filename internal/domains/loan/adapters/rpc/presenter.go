package rpc

import (
	"math/big"
	"time"

	loanpolicy "microloan/go-backend/internal/domains/loan/policy"
	"microloan/go-backend/pkg/models"
)

// loanView is the wire shape of a loan. Amounts travel as decimal strings in
// minor units plus a human rendering; never as JSON numbers.
type loanView struct {
	ID           uint64     `json:"id"`
	Requester    string     `json:"requester"`
	Funder       string     `json:"funder,omitempty"`
	PrincipalWei string     `json:"principal_wei"`
	InterestWei  string     `json:"interest_wei"`
	TotalDueWei  string     `json:"total_due_wei"`
	Principal    string     `json:"principal"`
	Interest     string     `json:"interest"`
	TotalDue     string     `json:"total_due"`
	TermDays     uint64     `json:"term_days"`
	Funded       bool       `json:"funded"`
	Paid         bool       `json:"paid"`
	Status       string     `json:"status"`
	MaturesAt    *time.Time `json:"matures_at,omitempty"`
	PayableFrom  *time.Time `json:"payable_from,omitempty"`
}

func presentLoan(loan models.Loan) loanView {
	total := loan.TotalDue()
	view := loanView{
		ID:           loan.ID,
		Requester:    loan.Requester.Hex(),
		PrincipalWei: weiString(loan.Principal),
		InterestWei:  weiString(loan.Interest),
		TotalDueWei:  total.String(),
		Principal:    loanpolicy.FromMinorUnits(loan.Principal).String(),
		Interest:     loanpolicy.FromMinorUnits(loan.Interest).String(),
		TotalDue:     loanpolicy.FromMinorUnits(total).String(),
		TermDays:     loan.TermDays,
		Funded:       loan.Funded,
		Paid:         loan.Paid,
		Status:       string(loan.Status()),
	}
	if loan.Funder != nil {
		view.Funder = loan.Funder.Hex()
	}
	if !loan.MaturesAt.IsZero() {
		maturesAt := loan.MaturesAt.UTC()
		view.MaturesAt = &maturesAt
	}
	if payableFrom, ok := loan.PayableFrom(); ok {
		payableFrom = payableFrom.UTC()
		view.PayableFrom = &payableFrom
	}
	return view
}

func presentLoans(loans []models.Loan) []loanView {
	out := make([]loanView, 0, len(loans))
	for _, loan := range loans {
		out = append(out, presentLoan(loan))
	}
	return out
}

func presentViews(views models.LoanViews) map[string]any {
	return map[string]any{
		"active":    presentLoans(views.Active),
		"requested": presentLoans(views.Requested),
		"funded":    presentLoans(views.Funded),
	}
}

func presentActionResult(result models.ActionResult) map[string]any {
	out := map[string]any{
		"action_id": result.ActionID,
		"kind":      result.Kind,
		"tx_hash":   result.Receipt.TxHash.Hex(),
		"block":     result.Receipt.BlockNumber,
		"view":      result.View,
		"loans":     presentLoans(result.Loans),
		"stale":     result.Stale,
	}
	if result.LoanID != nil {
		out["loan_id"] = *result.LoanID
	}
	return out
}

func presentSession(snapshot models.SessionSnapshot) map[string]any {
	out := map[string]any{
		"view":         snapshot.View,
		"active":       presentLoans(snapshot.Active),
		"history":      presentLoans(snapshot.History),
		"network":      snapshot.Network,
		"last_refresh": snapshot.LastRefresh,
	}
	if snapshot.InFlight != nil {
		out["in_flight"] = snapshot.InFlight
	}
	return out
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
