package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type pendingTx struct {
	hash    common.Hash
	method  string
	msg     ethereum.CallMsg
	backend Backend
	poll    time.Duration
}

func (p *pendingTx) Hash() common.Hash {
	return p.hash
}

// Wait polls for the receipt until it is mined or ctx ends. A reverted
// transaction is replayed at its block to recover the revert reason.
func (p *pendingTx) Wait(ctx context.Context) (models.Receipt, error) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()
	for {
		receipt, err := p.backend.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil && receipt != nil:
			return p.finish(ctx, receipt)
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return models.Receipt{}, fmt.Errorf("receipt %s: %w", p.hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return models.Receipt{}, fmt.Errorf("waiting for %s: %w", p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *pendingTx) finish(ctx context.Context, receipt *types.Receipt) (models.Receipt, error) {
	out := models.Receipt{
		TxHash:    p.hash,
		GasUsed:   receipt.GasUsed,
		Succeeded: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if out.Succeeded {
		return out, nil
	}
	var at *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		at = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	if _, err := p.backend.CallContract(ctx, p.msg, at); err != nil {
		return out, fmt.Errorf("%s reverted: %w", p.method, err)
	}
	return out, fmt.Errorf("%s reverted in tx %s", p.method, p.hash.Hex())
}
