package memory

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is the account a mock daemon acts as. It always reports ChainID.
type Wallet struct {
	Account common.Address
	Chain   uint64
}

func (w Wallet) Address() common.Address { return w.Account }

func (w Wallet) ChainID(context.Context) (uint64, error) {
	return w.Chain, nil
}
