package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type ActionKind string

const (
	ActionRequest ActionKind = "request"
	ActionFund    ActionKind = "fund"
	ActionRepay   ActionKind = "repay"
)

type ViewMode string

const (
	ViewRequestForm ViewMode = "request_form"
	ViewMyRequests  ViewMode = "my_requests"
	ViewMyFundings  ViewMode = "my_fundings"
)

// ActionSlot describes the single in-flight mutating action.
type ActionSlot struct {
	ID        string     `json:"id"`
	Kind      ActionKind `json:"kind"`
	LoanID    *uint64    `json:"loan_id,omitempty"`
	StartedAt time.Time  `json:"started_at"`
}

type Receipt struct {
	TxHash      common.Hash `json:"tx_hash"`
	BlockNumber uint64      `json:"block_number"`
	GasUsed     uint64      `json:"gas_used"`
	Succeeded   bool        `json:"succeeded"`
}

type ActionResult struct {
	ActionID string     `json:"action_id"`
	Kind     ActionKind `json:"kind"`
	LoanID   *uint64    `json:"loan_id,omitempty"`
	Receipt  Receipt    `json:"receipt"`
	View     ViewMode   `json:"view"`
	Loans    []Loan     `json:"loans"`
	// Stale is set when the action confirmed but the follow-up registry refresh failed.
	Stale bool `json:"stale,omitempty"`
}

type NetworkStatus struct {
	Account         common.Address `json:"account"`
	ChainID         uint64         `json:"chain_id"`
	ExpectedChainID uint64         `json:"expected_chain_id"`
	Mismatch        bool           `json:"mismatch"`
	Warning         string         `json:"warning,omitempty"`
	CheckedAt       time.Time      `json:"checked_at"`
}

type SessionSnapshot struct {
	View        ViewMode      `json:"view"`
	Active      []Loan        `json:"active"`
	History     []Loan        `json:"history"`
	Network     NetworkStatus `json:"network"`
	InFlight    *ActionSlot   `json:"in_flight,omitempty"`
	LastRefresh time.Time     `json:"last_refresh"`
}

// LoanViews groups the three registry views for one account.
type LoanViews struct {
	Active    []Loan `json:"active"`
	Requested []Loan `json:"requested"`
	Funded    []Loan `json:"funded"`
}
