package securestore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	kdfName         = "argon2id"
	saltSize        = 16
	filePrefix      = "MLKEY1\n"

	// Files may raise the cost but not past this, so a crafted keystore cannot
	// make the daemon allocate gigabytes at startup.
	maxKDFMemoryKB = 1 << 20
	maxKDFTime     = 16
)

var (
	ErrAuthFailed = errors.New("keystore authentication failed")
	ErrInvalid    = errors.New("keystore envelope is invalid")
	ErrNotSealed  = errors.New("keystore file is not a sealed envelope")
)

var defaultKDF = kdfParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

type kdfParams struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

func (p kdfParams) valid() bool {
	return p.Time > 0 && p.Time <= maxKDFTime &&
		p.MemoryKB > 0 && p.MemoryKB <= maxKDFMemoryKB &&
		p.Threads > 0
}

// Envelope is the on-disk form of a sealed wallet key: argon2id stretches the
// passphrase, XChaCha20-Poly1305 seals the payload. The address is stored in
// clear as associated data so a wrong-account file fails authentication.
type Envelope struct {
	Version     uint32 `json:"version"`
	Address     string `json:"address,omitempty"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

func (e *Envelope) kdf() kdfParams {
	return kdfParams{Time: e.KDFTime, MemoryKB: e.KDFMemoryKB, Threads: e.KDFThreads}
}

func newAEAD(passphrase string, salt []byte, p kdfParams) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
	defer zeroBytes(key)
	return chacha20poly1305.NewX(key)
}

// Seal returns the file bytes for plaintext bound to address.
func Seal(passphrase, address string, plaintext []byte) ([]byte, error) {
	env, err := SealEnvelope(passphrase, address, plaintext)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func SealEnvelope(passphrase, address string, plaintext []byte) (*Envelope, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("keystore passphrase is required")
	}
	salt := make([]byte, saltSize)
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	for _, buf := range [][]byte{salt, nonce} {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
	}
	aead, err := newAEAD(passphrase, salt, defaultKDF)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version:     envelopeVersion,
		Address:     address,
		KDF:         kdfName,
		KDFTime:     defaultKDF.Time,
		KDFMemoryKB: defaultKDF.MemoryKB,
		KDFThreads:  defaultKDF.Threads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, []byte(address)),
	}, nil
}

// Open returns the payload and the address recorded alongside it.
func Open(passphrase string, data []byte) ([]byte, string, error) {
	body, ok := strings.CutPrefix(string(data), filePrefix)
	if !ok {
		return nil, "", ErrNotSealed
	}
	var env Envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, "", ErrInvalid
	}
	plaintext, err := OpenEnvelope(passphrase, &env)
	if err != nil {
		return nil, "", err
	}
	return plaintext, env.Address, nil
}

func OpenEnvelope(passphrase string, env *Envelope) ([]byte, error) {
	if env == nil || env.Version != envelopeVersion || env.KDF != kdfName ||
		!env.kdf().valid() || len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	aead, err := newAEAD(passphrase, env.Salt, env.kdf())
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(env.Address))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func zeroBytes(b []byte) {
	clear(b)
}
