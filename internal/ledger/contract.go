package ledger

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"microloan/go-backend/pkg/models"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	methodRequest         = "solicitarPrestamo"
	methodFund            = "financiarPrestamo"
	methodRepay           = "pagarPrestamo"
	methodListActive      = "obtenerPrestamos"
	methodListByRequester = "prestamosPorSolicitante"
	methodListByFunder    = "prestamosFinanciadosPor"
)

//go:embed microcredito.abi.json
var embeddedABI []byte

var requiredMethods = []string{
	methodRequest,
	methodFund,
	methodRepay,
	methodListActive,
	methodListByRequester,
	methodListByFunder,
}

// LoadABI parses the contract ABI from path, or the embedded copy when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	raw := embeddedABI
	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("read contract abi: %w", err)
		}
		raw = data
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse contract abi: %w", err)
	}
	for _, name := range requiredMethods {
		if _, ok := parsed.Methods[name]; !ok {
			return abi.ABI{}, fmt.Errorf("contract abi is missing method %q", name)
		}
	}
	return parsed, nil
}

// prestamoTuple mirrors the contract struct; field names follow the ABI component names.
type prestamoTuple struct {
	Id                *big.Int
	Solicitante       common.Address
	Prestamista       common.Address
	MontoPrincipal    *big.Int
	Interes           *big.Int
	PlazoDias         *big.Int
	TiempoVencimiento *big.Int
	Financiado        bool
	Pagado            bool
}

var errLoanIDOverflow = errors.New("ledger loan id does not fit in uint64")

func unpackLoans(contract abi.ABI, method string, data []byte) ([]models.Loan, error) {
	out, err := contract.Unpack(method, data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("unpack %s: expected 1 output, got %d", method, len(out))
	}
	tuples := *abi.ConvertType(out[0], new([]prestamoTuple)).(*[]prestamoTuple)
	loans := make([]models.Loan, 0, len(tuples))
	for _, tuple := range tuples {
		loan, err := tuple.toLoan()
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

func (t prestamoTuple) toLoan() (models.Loan, error) {
	if t.Id == nil || !t.Id.IsUint64() {
		return models.Loan{}, errLoanIDOverflow
	}
	loan := models.Loan{
		ID:        t.Id.Uint64(),
		Requester: t.Solicitante,
		Principal: bigOrZero(t.MontoPrincipal),
		Interest:  bigOrZero(t.Interes),
		Funded:    t.Financiado,
		Paid:      t.Pagado,
	}
	if t.PlazoDias != nil && t.PlazoDias.IsUint64() {
		loan.TermDays = t.PlazoDias.Uint64()
	}
	if t.Prestamista != (common.Address{}) {
		funder := t.Prestamista
		loan.Funder = &funder
	}
	if t.TiempoVencimiento != nil && t.TiempoVencimiento.Sign() > 0 && t.TiempoVencimiento.IsInt64() {
		loan.MaturesAt = time.Unix(t.TiempoVencimiento.Int64(), 0).UTC()
	}
	return loan, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
