package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const (
	ModeKey      = "key"
	ModeKeystore = "keystore"
	ModeMnemonic = "mnemonic"
	ModeExternal = "external"
)

// Signer is the wallet seen by the ledger and the orchestrator.
type Signer interface {
	Address() common.Address
	ChainID(ctx context.Context) (uint64, error)
	Submit(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

type Config struct {
	Mode               string
	KeyEnv             string
	KeystorePath       string
	PassphraseEnv      string
	MnemonicEnv        string
	MnemonicPassEnv    string
	SignerURL          string
	SignerAccount      string
	GasLimitMultiplier float64
}

// Open builds the signer selected by cfg.Mode. Secrets are read from the
// environment variables named in cfg, never from the config file itself.
func Open(ctx context.Context, cfg Config, backend Backend, getenv func(string) string) (Signer, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == ModeExternal {
		if strings.TrimSpace(cfg.SignerURL) == "" {
			return nil, fmt.Errorf("wallet mode %q requires signerURL", mode)
		}
		return DialRemoteSigner(ctx, cfg.SignerURL, cfg.SignerAccount)
	}
	key, err := loadKey(mode, cfg, getenv)
	if err != nil {
		return nil, err
	}
	return NewLocalSigner(backend, key, cfg.GasLimitMultiplier)
}

func loadKey(mode string, cfg Config, getenv func(string) string) (*ecdsa.PrivateKey, error) {
	switch mode {
	case ModeKey, "":
		raw, err := requireEnv(getenv, cfg.KeyEnv, "private key")
		if err != nil {
			return nil, err
		}
		return KeyFromHex(raw)
	case ModeKeystore:
		if strings.TrimSpace(cfg.KeystorePath) == "" {
			return nil, fmt.Errorf("wallet mode %q requires keystorePath", mode)
		}
		passphrase, err := requireEnv(getenv, cfg.PassphraseEnv, "keystore passphrase")
		if err != nil {
			return nil, err
		}
		return OpenKey(cfg.KeystorePath, passphrase)
	case ModeMnemonic:
		mnemonic, err := requireEnv(getenv, cfg.MnemonicEnv, "mnemonic")
		if err != nil {
			return nil, err
		}
		passphrase := ""
		if name := strings.TrimSpace(cfg.MnemonicPassEnv); name != "" {
			passphrase = getenv(name)
		}
		return KeyFromMnemonic(mnemonic, passphrase)
	default:
		return nil, fmt.Errorf("unsupported wallet mode %q", mode)
	}
}

func requireEnv(getenv func(string) string, name, what string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%s env variable is not configured", what)
	}
	value := strings.TrimSpace(getenv(name))
	if value == "" {
		return "", fmt.Errorf("%s env variable %s is empty", what, name)
	}
	return value, nil
}
