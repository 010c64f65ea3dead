package wallet

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"

	"microloan/go-backend/internal/securestore"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfoSigning = "microloan/wallet/signing/v1"

var (
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrAddressMismatch = errors.New("keystore address does not match its key")
)

// KeyFromHex parses a secp256k1 private key given as hex, with or without 0x.
func KeyFromHex(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("private key is empty")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// NewMnemonic returns a fresh 24-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// KeyFromMnemonic derives the signing key from a BIP-39 mnemonic and optional
// passphrase. The derivation is HKDF over the BIP-39 seed, not BIP-32/44, so
// the resulting address differs from hardware wallets using the same words.
func KeyFromMnemonic(mnemonic, passphrase string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	defer zeroBytes(seed)
	material, err := hkdfExpand(seed, hkdfInfoSigning, 32)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(material)
	return crypto.ToECDSA(material)
}

// SealKey writes key to path as a passphrase-sealed keystore file.
func SealKey(path, passphrase string, key *ecdsa.PrivateKey) error {
	address := crypto.PubkeyToAddress(key.PublicKey)
	raw := crypto.FromECDSA(key)
	defer zeroBytes(raw)
	return securestore.WriteSealedFile(path, passphrase, address.Hex(), raw)
}

// OpenKey reads a sealed keystore file and checks the recorded address.
func OpenKey(path, passphrase string) (*ecdsa.PrivateKey, error) {
	raw, address, err := securestore.ReadSealedFile(path, passphrase)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(raw)
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("keystore payload: %w", err)
	}
	if address != "" && !strings.EqualFold(address, crypto.PubkeyToAddress(key.PublicKey).Hex()) {
		return nil, ErrAddressMismatch
	}
	return key, nil
}

func hkdfExpand(seed []byte, info string, outLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, seed, nil, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
