package loanconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	loanpolicy "microloan/go-backend/internal/domains/loan/policy"
	"microloan/go-backend/internal/wallet"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	TransportEthereum = "ethereum"
	TransportMock     = "mock"

	DefaultRPCURL          = "https://alfajores-forno.celo-testnet.org"
	DefaultContractAddress = "0x8496b7E39e5e76EeC35409DBb769DcF029434544"

	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

type Config struct {
	Ledger    LedgerConfig
	Wallet    wallet.Config
	Mock      MockConfig
	RPC       RPCConfig
	Telemetry TelemetryConfig
}

type LedgerConfig struct {
	Transport               string
	RPCURL                  string
	ContractAddress         common.Address
	ABIPath                 string
	ExpectedChainID         uint64
	ConfirmTimeout          time.Duration
	ReceiptPollInterval     time.Duration
	InsufficientPaymentText string
}

type MockConfig struct {
	Account     common.Address
	InterestBps int64
}

type RPCConfig struct {
	RPS         float64
	Burst       int
	WriteRPS    float64
	WriteBurst  int
	EventBuffer int

	// Concurrent /rpc/stream subscriptions, overall and per caller.
	StreamsTotal     int
	StreamsPerCaller int
}

// TelemetryConfig selects where action spans go. Endpoint is host:port for
// the OTLP/HTTP exporter.
type TelemetryConfig struct {
	Exporter    string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
	ServiceName string
}

func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			Transport:               TransportEthereum,
			RPCURL:                  DefaultRPCURL,
			ContractAddress:         common.HexToAddress(DefaultContractAddress),
			ExpectedChainID:         loanpolicy.CeloAlfajoresChainID,
			ConfirmTimeout:          3 * time.Minute,
			ReceiptPollInterval:     2 * time.Second,
			InsufficientPaymentText: loanpolicy.DefaultInsufficientPaymentText,
		},
		Wallet: wallet.Config{
			Mode:               wallet.ModeKey,
			KeyEnv:             "MICROLOAN_PRIVATE_KEY",
			PassphraseEnv:      "MICROLOAN_KEYSTORE_PASSPHRASE",
			MnemonicEnv:        "MICROLOAN_MNEMONIC",
			MnemonicPassEnv:    "MICROLOAN_MNEMONIC_PASSPHRASE",
			GasLimitMultiplier: 1.2,
		},
		Mock: MockConfig{
			Account:     common.HexToAddress("0x00000000000000000000000000000000000a11ce"),
			InterestBps: 1000,
		},
		RPC: RPCConfig{
			RPS:         20,
			Burst:       40,
			WriteRPS:    1,
			WriteBurst:  3,
			EventBuffer: 256,

			StreamsTotal:     32,
			StreamsPerCaller: 4,
		},
		Telemetry: TelemetryConfig{
			Exporter:    ExporterNone,
			SampleRatio: 1,
			ServiceName: "microloan-daemon",
		},
	}
}

type fileConfig struct {
	Ledger    fileLedger    `yaml:"ledger"`
	Wallet    fileWallet    `yaml:"wallet"`
	Mock      fileMock      `yaml:"mock"`
	RPC       fileRPC       `yaml:"rpc"`
	Telemetry fileTelemetry `yaml:"telemetry"`
}

type fileLedger struct {
	Transport               string        `yaml:"transport"`
	RPCURL                  string        `yaml:"rpcURL"`
	ContractAddress         string        `yaml:"contractAddress"`
	ABIPath                 string        `yaml:"abiPath"`
	ExpectedChainID         uint64        `yaml:"expectedChainID"`
	ConfirmTimeout          time.Duration `yaml:"confirmTimeout"`
	ReceiptPollInterval     time.Duration `yaml:"receiptPollInterval"`
	InsufficientPaymentText string        `yaml:"insufficientPaymentText"`
}

type fileWallet struct {
	Mode               string  `yaml:"mode"`
	KeyEnv             string  `yaml:"keyEnv"`
	KeystorePath       string  `yaml:"keystorePath"`
	PassphraseEnv      string  `yaml:"passphraseEnv"`
	MnemonicEnv        string  `yaml:"mnemonicEnv"`
	MnemonicPassEnv    string  `yaml:"mnemonicPassphraseEnv"`
	SignerURL          string  `yaml:"signerURL"`
	SignerAccount      string  `yaml:"signerAccount"`
	GasLimitMultiplier float64 `yaml:"gasLimitMultiplier"`
}

type fileMock struct {
	Account     string `yaml:"account"`
	InterestBps int64  `yaml:"interestBps"`
}

type fileRPC struct {
	RPS         *float64 `yaml:"rps"`
	Burst       *int     `yaml:"burst"`
	WriteRPS    *float64 `yaml:"writeRPS"`
	WriteBurst  *int     `yaml:"writeBurst"`
	EventBuffer int      `yaml:"eventBuffer"`

	StreamsTotal     int `yaml:"streamsTotal"`
	StreamsPerCaller int `yaml:"streamsPerCaller"`
}

type fileTelemetry struct {
	Exporter    string   `yaml:"exporter"`
	Endpoint    string   `yaml:"endpoint"`
	Insecure    *bool    `yaml:"insecure"`
	SampleRatio *float64 `yaml:"sampleRatio"`
	ServiceName string   `yaml:"serviceName"`
}

// LoadFromPath reads configPath, or the first default candidate that exists,
// then applies MICROLOAN_* environment overrides. Missing default candidates are skipped;
// an explicit path must exist.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := []string{configPath}
	if configPath == "" {
		candidates = []string{"go-backend/configs/config.yaml", "configs/config.yaml"}
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && configPath == "" {
				continue
			}
			if errors.Is(err, fs.ErrNotExist) {
				return Config{}, fmt.Errorf("config %s: %w", path, err)
			}
			return Config{}, err
		}
		var parsed fileConfig
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := merge(&cfg, parsed); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
		break
	}

	if err := ApplyEnvOverrides(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func merge(dst *Config, src fileConfig) error {
	l := src.Ledger
	if l.Transport != "" {
		dst.Ledger.Transport = l.Transport
	}
	if l.RPCURL != "" {
		dst.Ledger.RPCURL = l.RPCURL
	}
	if l.ContractAddress != "" {
		addr, err := parseAddress("ledger.contractAddress", l.ContractAddress)
		if err != nil {
			return err
		}
		dst.Ledger.ContractAddress = addr
	}
	if l.ABIPath != "" {
		dst.Ledger.ABIPath = l.ABIPath
	}
	if l.ExpectedChainID != 0 {
		dst.Ledger.ExpectedChainID = l.ExpectedChainID
	}
	if l.ConfirmTimeout != 0 {
		dst.Ledger.ConfirmTimeout = l.ConfirmTimeout
	}
	if l.ReceiptPollInterval != 0 {
		dst.Ledger.ReceiptPollInterval = l.ReceiptPollInterval
	}
	if l.InsufficientPaymentText != "" {
		dst.Ledger.InsufficientPaymentText = l.InsufficientPaymentText
	}

	w := src.Wallet
	if w.Mode != "" {
		dst.Wallet.Mode = w.Mode
	}
	if w.KeyEnv != "" {
		dst.Wallet.KeyEnv = w.KeyEnv
	}
	if w.KeystorePath != "" {
		dst.Wallet.KeystorePath = w.KeystorePath
	}
	if w.PassphraseEnv != "" {
		dst.Wallet.PassphraseEnv = w.PassphraseEnv
	}
	if w.MnemonicEnv != "" {
		dst.Wallet.MnemonicEnv = w.MnemonicEnv
	}
	if w.MnemonicPassEnv != "" {
		dst.Wallet.MnemonicPassEnv = w.MnemonicPassEnv
	}
	if w.SignerURL != "" {
		dst.Wallet.SignerURL = w.SignerURL
	}
	if w.SignerAccount != "" {
		dst.Wallet.SignerAccount = w.SignerAccount
	}
	if w.GasLimitMultiplier != 0 {
		dst.Wallet.GasLimitMultiplier = w.GasLimitMultiplier
	}

	if src.Mock.Account != "" {
		addr, err := parseAddress("mock.account", src.Mock.Account)
		if err != nil {
			return err
		}
		dst.Mock.Account = addr
	}
	if src.Mock.InterestBps != 0 {
		dst.Mock.InterestBps = src.Mock.InterestBps
	}

	// Pointers so an explicit 0 can disable limiting.
	r := src.RPC
	if r.RPS != nil {
		dst.RPC.RPS = *r.RPS
	}
	if r.Burst != nil {
		dst.RPC.Burst = *r.Burst
	}
	if r.WriteRPS != nil {
		dst.RPC.WriteRPS = *r.WriteRPS
	}
	if r.WriteBurst != nil {
		dst.RPC.WriteBurst = *r.WriteBurst
	}
	if r.EventBuffer != 0 {
		dst.RPC.EventBuffer = r.EventBuffer
	}
	if r.StreamsTotal != 0 {
		dst.RPC.StreamsTotal = r.StreamsTotal
	}
	if r.StreamsPerCaller != 0 {
		dst.RPC.StreamsPerCaller = r.StreamsPerCaller
	}

	tel := src.Telemetry
	if tel.Exporter != "" {
		dst.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(tel.Exporter))
	}
	if tel.Endpoint != "" {
		dst.Telemetry.Endpoint = tel.Endpoint
	}
	if tel.Insecure != nil {
		dst.Telemetry.Insecure = *tel.Insecure
	}
	if tel.SampleRatio != nil {
		dst.Telemetry.SampleRatio = *tel.SampleRatio
	}
	if tel.ServiceName != "" {
		dst.Telemetry.ServiceName = tel.ServiceName
	}
	return nil
}

// ApplyEnvOverrides applies MICROLOAN_* variables. Secrets stay in the env
// variables named by the wallet section and are never copied into Config.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("MICROLOAN_LEDGER_TRANSPORT", &cfg.Ledger.Transport)
	str("MICROLOAN_RPC_URL", &cfg.Ledger.RPCURL)
	str("MICROLOAN_ABI_PATH", &cfg.Ledger.ABIPath)
	str("MICROLOAN_WALLET_MODE", &cfg.Wallet.Mode)
	str("MICROLOAN_KEYSTORE_PATH", &cfg.Wallet.KeystorePath)
	str("MICROLOAN_SIGNER_URL", &cfg.Wallet.SignerURL)
	str("MICROLOAN_SIGNER_ACCOUNT", &cfg.Wallet.SignerAccount)
	str("MICROLOAN_OTEL_EXPORTER", &cfg.Telemetry.Exporter)
	str("MICROLOAN_OTEL_ENDPOINT", &cfg.Telemetry.Endpoint)

	if raw := strings.TrimSpace(getenv("MICROLOAN_CONTRACT_ADDRESS")); raw != "" {
		addr, err := parseAddress("MICROLOAN_CONTRACT_ADDRESS", raw)
		if err != nil {
			return err
		}
		cfg.Ledger.ContractAddress = addr
	}
	if raw := strings.TrimSpace(getenv("MICROLOAN_CHAIN_ID")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("MICROLOAN_CHAIN_ID: %w", err)
		}
		cfg.Ledger.ExpectedChainID = v
	}
	if raw := strings.TrimSpace(getenv("MICROLOAN_CONFIRM_TIMEOUT")); raw != "" {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("MICROLOAN_CONFIRM_TIMEOUT: %w", err)
		}
		cfg.Ledger.ConfirmTimeout = v
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Ledger.Transport {
	case TransportEthereum:
		if strings.TrimSpace(c.Ledger.RPCURL) == "" {
			return errors.New("ledger.rpcURL is required for the ethereum transport")
		}
		if c.Ledger.ContractAddress == (common.Address{}) {
			return errors.New("ledger.contractAddress is required for the ethereum transport")
		}
	case TransportMock:
	default:
		return fmt.Errorf("unsupported ledger transport %q", c.Ledger.Transport)
	}
	if c.Ledger.ConfirmTimeout < 0 {
		return errors.New("ledger.confirmTimeout must not be negative")
	}
	switch c.Telemetry.Exporter {
	case ExporterNone, ExporterStdout:
	case ExporterOTLP:
		if strings.TrimSpace(c.Telemetry.Endpoint) == "" {
			return errors.New("telemetry.endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("unsupported telemetry exporter %q", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return errors.New("telemetry.sampleRatio must be within [0, 1]")
	}
	return nil
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}
