package securestore

import (
	"os"
	"path/filepath"
	"strings"
)

// ReadSealedFile reads and opens a sealed file with passphrase.
func ReadSealedFile(path, passphrase string) ([]byte, string, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, "", err
	}
	return Open(passphrase, raw)
}

// WriteSealedFile seals plaintext and writes it with owner-only permissions.
// An existing file is never overwritten.
func WriteSealedFile(path, passphrase, address string, plaintext []byte) error {
	sealed, err := Seal(passphrase, address, plaintext)
	if err != nil {
		return err
	}
	path = strings.TrimSpace(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(sealed); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
