package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"microloan/go-backend/internal/domains/contracts"
	loantransport "microloan/go-backend/internal/domains/loan/transport"
	"microloan/go-backend/internal/domains/rpckit"
	"microloan/go-backend/pkg/models"
)

func Dispatch(ctx context.Context, service contracts.CoreAPI, method string, rawParams json.RawMessage) (any, *rpckit.Error, bool) {
	switch method {
	case loantransport.MethodLoanRequest:
		params, err := decodeRequestParams(rawParams)
		if err != nil {
			return nil, rpckit.InvalidParams(), true
		}
		result, rpcErr := callAction(func() (models.ActionResult, error) {
			return service.RequestLoan(ctx, params.Amount, params.TermDays)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanFund:
		params, err := decodeLoanIDParams(rawParams)
		if err != nil {
			return nil, rpckit.InvalidParams(), true
		}
		result, rpcErr := callAction(func() (models.ActionResult, error) {
			return service.FundLoan(ctx, params.LoanID, params.TotalDue)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanRepay:
		params, err := decodeLoanIDParams(rawParams)
		if err != nil {
			return nil, rpckit.InvalidParams(), true
		}
		result, rpcErr := callAction(func() (models.ActionResult, error) {
			return service.RepayLoan(ctx, params.LoanID)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanListActive:
		result, rpcErr := callList(func() ([]models.Loan, error) {
			return service.ListActive(ctx)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanListRequested:
		result, rpcErr := callList(func() ([]models.Loan, error) {
			return service.ListRequested(ctx)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanListFunded:
		result, rpcErr := callList(func() ([]models.Loan, error) {
			return service.ListFunded(ctx)
		})
		return result, rpcErr, true
	case loantransport.MethodLoanViews:
		views, err := service.LoadViews(ctx)
		if err != nil {
			return nil, rpckit.ActionFailure(err), true
		}
		return presentViews(views), nil, true
	case loantransport.MethodViewForm:
		return showView(ctx, service, models.ViewRequestForm)
	case loantransport.MethodViewRequested:
		return showView(ctx, service, models.ViewMyRequests)
	case loantransport.MethodViewFunded:
		return showView(ctx, service, models.ViewMyFundings)
	case loantransport.MethodSessionGet:
		return presentSession(service.Session()), nil, true
	case loantransport.MethodActionCurrent:
		slot, ok := service.CurrentAction()
		if !ok {
			return map[string]any{"in_flight": false}, nil, true
		}
		return map[string]any{"in_flight": true, "action": slot}, nil, true
	case loantransport.MethodNetworkStatus:
		status, err := service.NetworkStatus(ctx)
		if err != nil {
			return nil, rpckit.ServiceError(rpckit.CodeGeneric, errors.New("could not read wallet network")), true
		}
		return status, nil, true
	default:
		return nil, nil, false
	}
}

func showView(ctx context.Context, service contracts.CoreAPI, view models.ViewMode) (any, *rpckit.Error, bool) {
	snapshot, err := service.ShowView(ctx, view)
	if err != nil {
		return nil, rpckit.ActionFailure(err), true
	}
	return presentSession(snapshot), nil, true
}

func callAction(call func() (models.ActionResult, error)) (any, *rpckit.Error) {
	result, err := call()
	if err != nil {
		return nil, rpckit.ActionFailure(err)
	}
	return presentActionResult(result), nil
}

func callList(call func() ([]models.Loan, error)) (any, *rpckit.Error) {
	loans, err := call()
	if err != nil {
		return nil, rpckit.ActionFailure(err)
	}
	return map[string]any{"loans": presentLoans(loans)}, nil
}

type requestParams struct {
	Amount   string
	TermDays string
}

// decodeRequestParams accepts ["1.5", "30"], [{"amount": ..., "term_days": ...}]
// or the bare object. Numbers are kept verbatim so validation sees the raw input.
func decodeRequestParams(raw json.RawMessage) (requestParams, error) {
	type payload struct {
		Amount   flexString `json:"amount"`
		TermDays flexString `json:"term_days"`
	}
	parse := func(p payload) (requestParams, error) {
		if p.Amount == "" || p.TermDays == "" {
			return requestParams{}, errors.New("invalid params")
		}
		return requestParams{Amount: string(p.Amount), TermDays: string(p.TermDays)}, nil
	}
	var pair []flexString
	if err := json.Unmarshal(raw, &pair); err == nil && len(pair) == 2 {
		return parse(payload{Amount: pair[0], TermDays: pair[1]})
	}
	var arr []payload
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 {
		return parse(arr[0])
	}
	var direct payload
	if err := json.Unmarshal(raw, &direct); err == nil {
		return parse(direct)
	}
	return requestParams{}, errors.New("invalid params")
}

type loanIDParams struct {
	LoanID   uint64
	TotalDue *big.Int
}

// decodeLoanIDParams accepts [3], [{"loan_id": 3, "total_due_wei": "..."}] or the bare object.
func decodeLoanIDParams(raw json.RawMessage) (loanIDParams, error) {
	type payload struct {
		LoanID      *uint64    `json:"loan_id"`
		TotalDueWei flexString `json:"total_due_wei"`
	}
	parse := func(p payload) (loanIDParams, error) {
		if p.LoanID == nil {
			return loanIDParams{}, errors.New("invalid params")
		}
		out := loanIDParams{LoanID: *p.LoanID}
		if p.TotalDueWei != "" {
			totalDue, ok := new(big.Int).SetString(string(p.TotalDueWei), 10)
			if !ok || totalDue.Sign() <= 0 || totalDue.BitLen() > 256 {
				return loanIDParams{}, errors.New("invalid params")
			}
			out.TotalDue = totalDue
		}
		return out, nil
	}
	var ids []uint64
	if err := json.Unmarshal(raw, &ids); err == nil && len(ids) == 1 {
		return loanIDParams{LoanID: ids[0]}, nil
	}
	var arr []payload
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) == 1 {
		return parse(arr[0])
	}
	var direct payload
	if err := json.Unmarshal(raw, &direct); err == nil {
		return parse(direct)
	}
	return loanIDParams{}, errors.New("invalid params")
}

// flexString decodes either a JSON string or a JSON number into its textual form.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
