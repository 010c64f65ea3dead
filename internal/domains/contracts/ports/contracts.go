package ports

import (
	"context"
	"math/big"
	"time"

	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/common"
)

// LoanAPI is the transport-neutral loan action contract.
type LoanAPI interface {
	RequestLoan(ctx context.Context, amount, termDays string) (models.ActionResult, error)
	// FundLoan funds loanID with totalDue; a nil totalDue is resolved from the ledger view.
	FundLoan(ctx context.Context, loanID uint64, totalDue *big.Int) (models.ActionResult, error)
	RepayLoan(ctx context.Context, loanID uint64) (models.ActionResult, error)
	CurrentAction() (models.ActionSlot, bool)
}

// RegistryAPI exposes read-only ledger views.
type RegistryAPI interface {
	ListActive(ctx context.Context) ([]models.Loan, error)
	ListRequested(ctx context.Context) ([]models.Loan, error)
	ListFunded(ctx context.Context) ([]models.Loan, error)
	LoadViews(ctx context.Context) (models.LoanViews, error)
}

// SessionAPI drives the client-facing view state.
type SessionAPI interface {
	ShowView(ctx context.Context, view models.ViewMode) (models.SessionSnapshot, error)
	Session() models.SessionSnapshot
}

type NetworkAPI interface {
	NetworkStatus(ctx context.Context) (models.NetworkStatus, error)
}

type CoreAPI interface {
	LoanAPI
	RegistryAPI
	SessionAPI
	NetworkAPI
}

type NotificationEvent struct {
	Seq       int64
	Method    string
	Payload   any
	Timestamp time.Time
}

type DaemonService interface {
	CoreAPI
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SubscribeNotifications(cursor int64) ([]NotificationEvent, <-chan NotificationEvent, func())
}

// PendingTx is a submitted ledger transaction awaiting confirmation.
type PendingTx interface {
	Hash() common.Hash
	Wait(ctx context.Context) (models.Receipt, error)
}

type LedgerReader interface {
	ListActive(ctx context.Context) ([]models.Loan, error)
	ListByRequester(ctx context.Context, requester common.Address) ([]models.Loan, error)
	ListByFunder(ctx context.Context, funder common.Address) ([]models.Loan, error)
}

type LedgerWriter interface {
	RequestLoan(ctx context.Context, principal *big.Int, termDays uint64) (PendingTx, error)
	FundLoan(ctx context.Context, loanID uint64, payment *big.Int) (PendingTx, error)
	RepayLoan(ctx context.Context, loanID uint64, payment *big.Int) (PendingTx, error)
}

type Ledger interface {
	LedgerReader
	LedgerWriter
}

// Wallet supplies the signing identity and the network it is connected to.
type Wallet interface {
	Address() common.Address
	ChainID(ctx context.Context) (uint64, error)
}

type ErrorKind string

// ActionError is the closed, user-facing failure of a loan action.
type ActionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ActionError) Error() string {
	if e == nil {
		return "loan action failed"
	}
	return e.Message
}

func (e *ActionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any ActionError of the same kind so sentinels work with errors.Is.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// ProviderError is the wallet-provider failure shape: a numeric code plus optional
// structured data that may carry an originalError with its own code.
type ProviderError struct {
	Code    int
	Message string
	Data    any
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) ErrorCode() int {
	return e.Code
}

func (e *ProviderError) ErrorData() any {
	return e.Data
}
