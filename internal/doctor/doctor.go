package doctor

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"time"

	"microloan/go-backend/internal/bootstrap/loanconfig"
	"microloan/go-backend/internal/ledger"
	"microloan/go-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
)

// NodeReader is the read-only node surface the checks need; *ethclient.Client satisfies it.
type NodeReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

type Input struct {
	Config  loanconfig.Config
	RPCAddr string
	Getenv  func(string) string
	Now     func() time.Time
}

type Check struct {
	Name   string `json:"name"`
	Pass   bool   `json:"pass"`
	Reason string `json:"reason,omitempty"`
}

type Report struct {
	Ready     bool      `json:"ready"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Run reports whether the daemon can start with input. node may be nil for
// the mock transport; node checks are then skipped.
func Run(ctx context.Context, input Input, node NodeReader) Report {
	if input.Getenv == nil {
		input.Getenv = os.Getenv
	}
	if input.Now == nil {
		input.Now = time.Now
	}
	report := Report{
		Ready:     true,
		Checks:    make([]Check, 0, 8),
		CheckedAt: input.Now().UTC(),
	}
	appendCheck := func(name string, err error) {
		check := Check{Name: name, Pass: err == nil}
		if err != nil {
			check.Reason = err.Error()
			report.Ready = false
		}
		report.Checks = append(report.Checks, check)
	}

	cfg := input.Config
	appendCheck("config_valid", cfg.Validate())
	if strings.TrimSpace(input.RPCAddr) != "" {
		appendCheck("rpc_addr_available", checkAddrAvailable(input.RPCAddr))
	}
	if cfg.Ledger.Transport == loanconfig.TransportMock {
		return report
	}

	_, abiErr := ledger.LoadABI(cfg.Ledger.ABIPath)
	appendCheck("abi_loadable", abiErr)
	appendCheck("wallet_secret_present", checkWalletSecret(cfg.Wallet, input.Getenv))

	if node == nil {
		appendCheck("ledger_reachable", errors.New("no ledger node client"))
		return report
	}
	chainID, err := node.ChainID(ctx)
	appendCheck("ledger_reachable", err)
	if err != nil {
		return report
	}
	if got := chainID.Uint64(); got != cfg.Ledger.ExpectedChainID {
		appendCheck("chain_id_matches", fmt.Errorf("node reports chain %d, expected %d", got, cfg.Ledger.ExpectedChainID))
	} else {
		appendCheck("chain_id_matches", nil)
	}
	code, err := node.CodeAt(ctx, cfg.Ledger.ContractAddress, nil)
	if err == nil && len(code) == 0 {
		err = fmt.Errorf("no contract code at %s", cfg.Ledger.ContractAddress.Hex())
	}
	appendCheck("contract_deployed", err)
	return report
}

func checkAddrAvailable(addr string) error {
	ln, err := net.Listen("tcp", strings.TrimSpace(addr))
	if err != nil {
		return fmt.Errorf("rpc address %s is unavailable: %w", addr, err)
	}
	_ = ln.Close()
	return nil
}

func checkWalletSecret(cfg wallet.Config, getenv func(string) string) error {
	present := func(env, what string) error {
		if strings.TrimSpace(env) == "" {
			return fmt.Errorf("no env var configured for the %s", what)
		}
		if strings.TrimSpace(getenv(env)) == "" {
			return fmt.Errorf("%s is not set (%s)", env, what)
		}
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case wallet.ModeExternal:
		if strings.TrimSpace(cfg.SignerURL) == "" {
			return errors.New("external wallet mode requires signerURL")
		}
		return nil
	case wallet.ModeKeystore:
		if _, err := os.Stat(cfg.KeystorePath); err != nil {
			return fmt.Errorf("keystore: %w", err)
		}
		return present(cfg.PassphraseEnv, "keystore passphrase")
	case wallet.ModeMnemonic:
		return present(cfg.MnemonicEnv, "mnemonic")
	default:
		return present(cfg.KeyEnv, "private key")
	}
}
