package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const defaultGasMultiplier = 1.2

// Backend is what a local signer needs from the node; *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// LocalSigner holds the private key in process and signs legacy-priced
// transactions. Submissions are serialized so nonces never collide.
type LocalSigner struct {
	backend       Backend
	key           *ecdsa.PrivateKey
	address       common.Address
	gasMultiplier float64

	mu      sync.Mutex
	chainID *big.Int
}

func NewLocalSigner(backend Backend, key *ecdsa.PrivateKey, gasMultiplier float64) (*LocalSigner, error) {
	if backend == nil {
		return nil, errors.New("wallet backend is required")
	}
	if key == nil {
		return nil, errors.New("wallet key is required")
	}
	if gasMultiplier < 1 {
		gasMultiplier = defaultGasMultiplier
	}
	return &LocalSigner{
		backend:       backend,
		key:           key,
		address:       crypto.PubkeyToAddress(key.PublicKey),
		gasMultiplier: gasMultiplier,
	}, nil
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) ChainID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.chainIDLocked(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (s *LocalSigner) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chainID, err := s.chainIDLocked(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	if value == nil {
		value = new(big.Int)
	}
	estimate, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      scaleGas(estimate, s.gasMultiplier),
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (s *LocalSigner) chainIDLocked(ctx context.Context) (*big.Int, error) {
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	s.chainID = id
	return id, nil
}

func scaleGas(estimate uint64, multiplier float64) uint64 {
	scaled := float64(estimate) * multiplier
	if scaled >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(math.Ceil(scaled))
}
