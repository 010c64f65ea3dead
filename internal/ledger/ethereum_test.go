package ledger

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"microloan/go-backend/internal/domains/contracts"
	loanpolicy "microloan/go-backend/internal/domains/loan/policy"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	contractAddr = common.HexToAddress("0x8496b7E39e5e76EeC35409DBb769DcF029434544")
	walletAddr   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

type revertError struct {
	data string
}

func (e revertError) Error() string  { return "execution reverted" }
func (e revertError) ErrorCode() int { return 3 }
func (e revertError) ErrorData() any { return e.data }

func encodeRevert(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		t.Fatalf("new type: %v", err)
	}
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		t.Fatalf("pack reason: %v", err)
	}
	selector := crypto.Keccak256([]byte("Error(string)"))[:4]
	return hexutil.Encode(append(selector, packed...))
}

type fakeBackend struct {
	mu           sync.Mutex
	contract     abi.ABI
	calls        []ethereum.CallMsg
	callResult   map[string][]byte
	simulateErr  error
	replayErr    error
	receipts     []*types.Receipt
	receiptCalls int
}

func (b *fakeBackend) CallContract(_ context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	if blockNumber != nil && b.replayErr != nil {
		return nil, b.replayErr
	}
	method, err := b.contract.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	if out, ok := b.callResult[method.Name]; ok {
		return out, nil
	}
	if b.simulateErr != nil {
		return nil, b.simulateErr
	}
	return nil, nil
}

func (b *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receiptCalls >= len(b.receipts) {
		return nil, ethereum.NotFound
	}
	r := b.receipts[b.receiptCalls]
	b.receiptCalls++
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	sent []*big.Int
	data [][]byte
	err  error
	hash common.Hash
}

func (s *fakeSubmitter) Address() common.Address { return walletAddr }

func (s *fakeSubmitter) Submit(_ context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to != contractAddr {
		return common.Hash{}, errors.New("unexpected destination")
	}
	if s.err != nil {
		return common.Hash{}, s.err
	}
	s.sent = append(s.sent, value)
	s.data = append(s.data, data)
	return s.hash, nil
}

func newTestLedger(t *testing.T, backend *fakeBackend, submitter *fakeSubmitter) *Ethereum {
	t.Helper()
	parsed, err := LoadABI("")
	if err != nil {
		t.Fatalf("load abi: %v", err)
	}
	backend.contract = parsed
	l, err := NewEthereum(backend, submitter, EthereumConfig{
		Contract:            contractAddr,
		ReceiptPollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return l
}

func packLoans(t *testing.T, contract abi.ABI, method string, tuples []prestamoTuple) []byte {
	t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(tuples)
	if err != nil {
		t.Fatalf("pack %s outputs: %v", method, err)
	}
	return out
}

func TestEthereumListActiveDecodesTuples(t *testing.T) {
	backend := &fakeBackend{}
	l := newTestLedger(t, backend, &fakeSubmitter{})
	funder := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	backend.callResult = map[string][]byte{
		methodListActive: packLoans(t, backend.contract, methodListActive, []prestamoTuple{
			{
				Id: big.NewInt(0), Solicitante: walletAddr, MontoPrincipal: big.NewInt(1000), Interes: big.NewInt(100),
				PlazoDias: big.NewInt(30), TiempoVencimiento: big.NewInt(0),
			},
			{
				Id: big.NewInt(1), Solicitante: walletAddr, Prestamista: funder, MontoPrincipal: big.NewInt(5000), Interes: big.NewInt(500),
				PlazoDias: big.NewInt(10), TiempoVencimiento: big.NewInt(1_780_000_000), Financiado: true,
			},
		}),
	}

	loans, err := l.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(loans) != 2 {
		t.Fatalf("expected 2 loans, got %d", len(loans))
	}
	if loans[0].Funder != nil || !loans[0].MaturesAt.IsZero() || loans[0].TermDays != 30 {
		t.Fatalf("unexpected pending loan: %#v", loans[0])
	}
	if loans[1].Funder == nil || *loans[1].Funder != funder || loans[1].MaturesAt.Unix() != 1_780_000_000 {
		t.Fatalf("unexpected funded loan: %#v", loans[1])
	}
	for _, loan := range loans {
		if err := loan.CheckInvariants(); err != nil {
			t.Fatalf("decoded loan %d violates invariants: %v", loan.ID, err)
		}
	}
	if backend.calls[0].To == nil || *backend.calls[0].To != contractAddr {
		t.Fatalf("call must target the contract")
	}
}

func TestEthereumFundSimulatesThenSubmitsAndWaits(t *testing.T) {
	backend := &fakeBackend{
		receipts: []*types.Receipt{nil, {Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(42), GasUsed: 51_000}},
	}
	submitter := &fakeSubmitter{hash: common.HexToHash("0xabc")}
	l := newTestLedger(t, backend, submitter)

	tx, err := l.FundLoan(context.Background(), 7, big.NewInt(1100))
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if len(backend.calls) != 1 || backend.calls[0].Value.Cmp(big.NewInt(1100)) != 0 || backend.calls[0].From != walletAddr {
		t.Fatalf("expected payable simulation from the wallet, got %#v", backend.calls)
	}
	if len(submitter.sent) != 1 || submitter.sent[0].Cmp(big.NewInt(1100)) != 0 {
		t.Fatalf("unexpected submitted value: %v", submitter.sent)
	}
	method, err := backend.contract.MethodById(submitter.data[0][:4])
	if err != nil || method.Name != methodFund {
		t.Fatalf("unexpected submitted method: %v %v", method, err)
	}
	args, err := method.Inputs.Unpack(submitter.data[0][4:])
	if err != nil || args[0].(*big.Int).Uint64() != 7 {
		t.Fatalf("unexpected loan id arg: %v %v", args, err)
	}

	receipt, err := tx.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !receipt.Succeeded || receipt.BlockNumber != 42 || receipt.TxHash != submitter.hash {
		t.Fatalf("unexpected receipt: %#v", receipt)
	}
}

func TestEthereumSimulationRevertIsClassifiable(t *testing.T) {
	backend := &fakeBackend{}
	submitter := &fakeSubmitter{}
	l := newTestLedger(t, backend, submitter)
	backend.simulateErr = revertError{data: encodeRevert(t, "Monto insuficiente")}

	_, err := l.RepayLoan(context.Background(), 1, big.NewInt(10))
	if err == nil {
		t.Fatal("expected simulation failure")
	}
	if len(submitter.sent) != 0 {
		t.Fatalf("reverting call must not reach the wallet")
	}
	classified := loanpolicy.NewErrorClassifier("").Classify(err, "repay")
	if classified.Kind != contracts.KindInsufficientPayment {
		t.Fatalf("expected insufficient payment, got %s (%v)", classified.Kind, err)
	}
}

func TestEthereumRevertedReceiptRecoversReason(t *testing.T) {
	backend := &fakeBackend{
		receipts:  []*types.Receipt{{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}},
		replayErr: errors.New("execution reverted: Monto insuficiente"),
	}
	l := newTestLedger(t, backend, &fakeSubmitter{hash: common.HexToHash("0x01")})

	tx, err := l.RepayLoan(context.Background(), 1, big.NewInt(10))
	if err != nil {
		t.Fatalf("repay submit: %v", err)
	}
	receipt, err := tx.Wait(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Monto insuficiente") {
		t.Fatalf("expected revert reason, got %v", err)
	}
	if receipt.Succeeded {
		t.Fatalf("receipt must be marked failed")
	}
	last := backend.calls[len(backend.calls)-1]
	if last.Value.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("replay must reuse the original call")
	}
}

func TestEthereumWaitHonorsContext(t *testing.T) {
	backend := &fakeBackend{}
	l := newTestLedger(t, backend, &fakeSubmitter{hash: common.HexToHash("0x02")})
	tx, err := l.RequestLoan(context.Background(), big.NewInt(1), 3)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := tx.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestLoadABIRejectsIncompleteContract(t *testing.T) {
	path := t.TempDir() + "/partial.json"
	if err := os.WriteFile(path, []byte(`[{"type":"function","name":"obtenerPrestamos","inputs":[],"outputs":[]}]`), 0o600); err != nil {
		t.Fatalf("write abi: %v", err)
	}
	if _, err := LoadABI(path); err == nil {
		t.Fatal("expected missing method error")
	}
}
