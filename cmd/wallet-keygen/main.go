package main

import (
	"crypto/ecdsa"
	"flag"
	"fmt"
	"os"
	"strings"

	"microloan/go-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/crypto"
)

func main() {
	var (
		keystorePath  = flag.String("keystore", "", "write a sealed keystore to this path instead of printing a mnemonic")
		passphraseEnv = flag.String("passphrase-env", "MICROLOAN_KEYSTORE_PASSPHRASE", "env var holding the keystore passphrase")
		mnemonicEnv   = flag.String("from-mnemonic-env", "", "seal the key derived from the mnemonic in this env var")
		mnemonicPass  = flag.String("mnemonic-passphrase-env", "MICROLOAN_MNEMONIC_PASSPHRASE", "env var holding the optional mnemonic passphrase")
	)
	flag.Parse()

	if strings.TrimSpace(*keystorePath) == "" {
		mnemonic, err := wallet.NewMnemonic()
		if err != nil {
			failf("generate mnemonic: %v", err)
		}
		key, err := wallet.KeyFromMnemonic(mnemonic, os.Getenv(*mnemonicPass))
		if err != nil {
			failf("derive key: %v", err)
		}
		fmt.Println(mnemonic)
		fmt.Fprintf(os.Stderr, "address: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return
	}

	passphrase := os.Getenv(strings.TrimSpace(*passphraseEnv))
	if passphrase == "" {
		failf("%s is not set", *passphraseEnv)
	}

	var key *ecdsa.PrivateKey
	var err error
	if name := strings.TrimSpace(*mnemonicEnv); name != "" {
		key, err = wallet.KeyFromMnemonic(os.Getenv(name), os.Getenv(*mnemonicPass))
	} else {
		key, err = crypto.GenerateKey()
	}
	if err != nil {
		failf("prepare key: %v", err)
	}
	if err := wallet.SealKey(*keystorePath, passphrase, key); err != nil {
		failf("seal keystore: %v", err)
	}
	fmt.Printf("keystore written: %s address=%s\n", *keystorePath, crypto.PubkeyToAddress(key.PublicKey).Hex())
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func failf(format string, args ...any) {
	fail(fmt.Sprintf(format, args...))
}
