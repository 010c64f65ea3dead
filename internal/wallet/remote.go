package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrNoAccounts = errors.New("external signer exposes no accounts")

// RemoteSigner delegates signing to an external wallet bridge speaking the
// standard eth_* methods. The user may decline a request; the bridge reports
// that as a JSON-RPC error with code 4001.
type RemoteSigner struct {
	client  *rpc.Client
	address common.Address
}

// DialRemoteSigner connects to url and selects account, or the first
// account the signer exposes when account is empty.
func DialRemoteSigner(ctx context.Context, url, account string) (*RemoteSigner, error) {
	client, err := rpc.DialContext(ctx, strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("dial signer: %w", err)
	}
	signer, err := NewRemoteSigner(ctx, client, account)
	if err != nil {
		client.Close()
		return nil, err
	}
	return signer, nil
}

func NewRemoteSigner(ctx context.Context, client *rpc.Client, account string) (*RemoteSigner, error) {
	var accounts []common.Address
	if err := client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	selected := accounts[0]
	if account = strings.TrimSpace(account); account != "" {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("invalid signer account %q", account)
		}
		want := common.HexToAddress(account)
		found := false
		for _, candidate := range accounts {
			if candidate == want {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("signer does not expose account %s", want.Hex())
		}
		selected = want
	}
	return &RemoteSigner{client: client, address: selected}, nil
}

func (s *RemoteSigner) Address() common.Address {
	return s.address
}

func (s *RemoteSigner) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Big
	if err := s.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return (*big.Int)(&id).Uint64(), nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
	Data  hexutil.Bytes   `json:"data"`
}

// Submit hands the call to the signer; rpc errors keep their code and data.
func (s *RemoteSigner) Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}
	var hash common.Hash
	err := s.client.CallContext(ctx, &hash, "eth_sendTransaction", sendTxArgs{
		From:  s.address,
		To:    &to,
		Value: (*hexutil.Big)(value),
		Data:  data,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *RemoteSigner) Close() {
	s.client.Close()
}
