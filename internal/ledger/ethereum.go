package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const defaultReceiptPollInterval = 2 * time.Second

// Backend is the read side of an Ethereum JSON-RPC node; *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Submitter signs and broadcasts a contract call on behalf of the wallet account.
type Submitter interface {
	Address() common.Address
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

type EthereumConfig struct {
	Contract            common.Address
	ABIPath             string
	ReceiptPollInterval time.Duration
	Logger              *slog.Logger
}

// Ethereum talks to the deployed loan contract. Reads are eth_call; writes are
// simulated first so contract reverts surface before the wallet is asked to sign.
type Ethereum struct {
	backend   Backend
	submitter Submitter
	contract  abi.ABI
	address   common.Address
	poll      time.Duration
	logger    *slog.Logger
}

var _ contracts.Ledger = (*Ethereum)(nil)

func NewEthereum(backend Backend, submitter Submitter, cfg EthereumConfig) (*Ethereum, error) {
	if backend == nil {
		return nil, errors.New("ledger backend is required")
	}
	if submitter == nil {
		return nil, errors.New("ledger submitter is required")
	}
	if cfg.Contract == (common.Address{}) {
		return nil, errors.New("ledger contract address is required")
	}
	parsed, err := LoadABI(cfg.ABIPath)
	if err != nil {
		return nil, err
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ethereum{
		backend:   backend,
		submitter: submitter,
		contract:  parsed,
		address:   cfg.Contract,
		poll:      cfg.ReceiptPollInterval,
		logger:    cfg.Logger,
	}, nil
}

func (e *Ethereum) ListActive(ctx context.Context) ([]models.Loan, error) {
	return e.callLoans(ctx, methodListActive)
}

func (e *Ethereum) ListByRequester(ctx context.Context, requester common.Address) ([]models.Loan, error) {
	return e.callLoans(ctx, methodListByRequester, requester)
}

func (e *Ethereum) ListByFunder(ctx context.Context, funder common.Address) ([]models.Loan, error) {
	return e.callLoans(ctx, methodListByFunder, funder)
}

func (e *Ethereum) RequestLoan(ctx context.Context, principal *big.Int, termDays uint64) (contracts.PendingTx, error) {
	return e.transact(ctx, nil, methodRequest, principal, new(big.Int).SetUint64(termDays))
}

func (e *Ethereum) FundLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return e.transact(ctx, payment, methodFund, new(big.Int).SetUint64(loanID))
}

func (e *Ethereum) RepayLoan(ctx context.Context, loanID uint64, payment *big.Int) (contracts.PendingTx, error) {
	return e.transact(ctx, payment, methodRepay, new(big.Int).SetUint64(loanID))
}

func (e *Ethereum) callLoans(ctx context.Context, method string, args ...any) ([]models.Loan, error) {
	data, err := e.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := e.backend.CallContract(ctx, ethereum.CallMsg{
		From: e.submitter.Address(),
		To:   &e.address,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return unpackLoans(e.contract, method, out)
}

func (e *Ethereum) transact(ctx context.Context, value *big.Int, method string, args ...any) (contracts.PendingTx, error) {
	data, err := e.contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{
		From:  e.submitter.Address(),
		To:    &e.address,
		Value: value,
		Data:  data,
	}
	if _, err := e.backend.CallContract(ctx, msg, nil); err != nil {
		return nil, fmt.Errorf("simulate %s: %w", method, err)
	}
	hash, err := e.submitter.Submit(ctx, e.address, data, value)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("ledger transaction submitted", "method", method, "tx_hash", hash.Hex())
	return &pendingTx{
		hash:    hash,
		method:  method,
		msg:     msg,
		backend: e.backend,
		poll:    e.poll,
	}, nil
}
