package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"microloan/go-backend/internal/domains/contracts"
	loanpolicy "microloan/go-backend/internal/domains/loan/policy"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

type fakeBackend struct {
	chainID     *big.Int
	nonce       uint64
	gasPrice    *big.Int
	estimate    uint64
	estimateErr error
	sent        []*types.Transaction
	chainCalls  int
}

func (b *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	b.chainCalls++
	return b.chainID, nil
}

func (b *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return b.gasPrice, nil
}

func (b *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return b.estimate, b.estimateErr
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.sent = append(b.sent, tx)
	b.nonce++
	return nil
}

func TestLocalSignerSignsForChain(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	backend := &fakeBackend{chainID: big.NewInt(44787), nonce: 5, gasPrice: big.NewInt(5_000_000_000), estimate: 100_000}
	signer, err := NewLocalSigner(backend, key, 1.5)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	to := common.HexToAddress("0x8496b7E39e5e76EeC35409DBb769DcF029434544")

	hash, err := signer.Submit(context.Background(), to, []byte{0x01, 0x02}, big.NewInt(777))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if tx.Hash() != hash || tx.Nonce() != 5 || tx.Gas() != 150_000 || tx.Value().Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("unexpected transaction: nonce=%d gas=%d value=%s", tx.Nonce(), tx.Gas(), tx.Value())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(44787)), tx)
	if err != nil || from != signer.Address() {
		t.Fatalf("unexpected sender %s err=%v", from.Hex(), err)
	}

	if _, err := signer.Submit(context.Background(), to, nil, nil); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if backend.sent[1].Nonce() != 6 {
		t.Fatalf("expected next nonce, got %d", backend.sent[1].Nonce())
	}
	chainID, err := signer.ChainID(context.Background())
	if err != nil || chainID != 44787 {
		t.Fatalf("unexpected chain id %d err=%v", chainID, err)
	}
	if backend.chainCalls != 1 {
		t.Fatalf("chain id must be cached, calls=%d", backend.chainCalls)
	}
}

func TestLocalSignerPropagatesEstimateRevert(t *testing.T) {
	key, _ := crypto.GenerateKey()
	backend := &fakeBackend{chainID: big.NewInt(1), gasPrice: big.NewInt(1), estimateErr: errors.New("execution reverted: Monto insuficiente")}
	signer, err := NewLocalSigner(backend, key, 0)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	_, err = signer.Submit(context.Background(), common.Address{}, nil, big.NewInt(1))
	if err == nil || len(backend.sent) != 0 {
		t.Fatalf("expected estimate failure without broadcast, err=%v", err)
	}
	if kind := loanpolicy.NewErrorClassifier("").Classify(err, "repay").Kind; kind != contracts.KindInsufficientPayment {
		t.Fatalf("expected insufficient payment classification, got %s", kind)
	}
}

type declineError struct{}

func (declineError) Error() string  { return "User rejected the request." }
func (declineError) ErrorCode() int { return 4001 }

type bridgeService struct {
	accounts []common.Address
	decline  bool
	lastFrom common.Address
	lastVal  *big.Int
}

func (s *bridgeService) Accounts() []common.Address {
	return s.accounts
}

func (s *bridgeService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(44787))
}

func (s *bridgeService) SendTransaction(args sendTxArgs) (common.Hash, error) {
	if s.decline {
		return common.Hash{}, declineError{}
	}
	s.lastFrom = args.From
	s.lastVal = (*big.Int)(args.Value)
	return common.HexToHash("0xfeed"), nil
}

func newBridge(t *testing.T, svc *bridgeService) *rpc.Client {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", svc); err != nil {
		t.Fatalf("register: %v", err)
	}
	t.Cleanup(server.Stop)
	client := rpc.DialInProc(server)
	t.Cleanup(client.Close)
	return client
}

func TestRemoteSignerSubmitsThroughBridge(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	svc := &bridgeService{accounts: []common.Address{account}}
	signer, err := NewRemoteSigner(context.Background(), newBridge(t, svc), "")
	if err != nil {
		t.Fatalf("new remote signer: %v", err)
	}
	if signer.Address() != account {
		t.Fatalf("unexpected account %s", signer.Address().Hex())
	}
	chainID, err := signer.ChainID(context.Background())
	if err != nil || chainID != 44787 {
		t.Fatalf("unexpected chain id %d err=%v", chainID, err)
	}
	hash, err := signer.Submit(context.Background(), common.Address{}, []byte{0xaa}, big.NewInt(12))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != common.HexToHash("0xfeed") || svc.lastFrom != account || svc.lastVal.Int64() != 12 {
		t.Fatalf("unexpected bridge call: hash=%s from=%s value=%v", hash.Hex(), svc.lastFrom.Hex(), svc.lastVal)
	}
}

func TestRemoteSignerDeclineIsUserCancelled(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	svc := &bridgeService{accounts: []common.Address{account}, decline: true}
	signer, err := NewRemoteSigner(context.Background(), newBridge(t, svc), account.Hex())
	if err != nil {
		t.Fatalf("new remote signer: %v", err)
	}
	_, err = signer.Submit(context.Background(), common.Address{}, nil, nil)
	if err == nil {
		t.Fatal("expected decline")
	}
	if kind := loanpolicy.NewErrorClassifier("").Classify(err, "fund").Kind; kind != contracts.KindUserCancelled {
		t.Fatalf("expected user cancelled, got %s (%v)", kind, err)
	}
}

func TestRemoteSignerRejectsUnknownAccount(t *testing.T) {
	svc := &bridgeService{accounts: []common.Address{common.HexToAddress("0x01")}}
	if _, err := NewRemoteSigner(context.Background(), newBridge(t, svc), "0x00000000000000000000000000000000000000ff"); err == nil {
		t.Fatal("expected unknown account error")
	}
	empty := &bridgeService{}
	if _, err := NewRemoteSigner(context.Background(), newBridge(t, empty), ""); !errors.Is(err, ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}
}

func TestOpenSelectsSignerByMode(t *testing.T) {
	key, _ := crypto.GenerateKey()
	env := map[string]string{
		"WALLET_KEY":      hexutil.Encode(crypto.FromECDSA(key)),
		"WALLET_MNEMONIC": testMnemonic,
	}
	getenv := func(name string) string { return env[name] }
	backend := &fakeBackend{chainID: big.NewInt(1)}

	signer, err := Open(context.Background(), Config{Mode: ModeKey, KeyEnv: "WALLET_KEY"}, backend, getenv)
	if err != nil || signer.Address() != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("key mode: %v", err)
	}
	if _, err := Open(context.Background(), Config{Mode: ModeMnemonic, MnemonicEnv: "WALLET_MNEMONIC"}, backend, getenv); err != nil {
		t.Fatalf("mnemonic mode: %v", err)
	}
	if _, err := Open(context.Background(), Config{Mode: ModeKey, KeyEnv: "MISSING"}, backend, getenv); err == nil {
		t.Fatal("expected missing env error")
	}
	if _, err := Open(context.Background(), Config{Mode: "ledger-nano"}, backend, getenv); err == nil {
		t.Fatal("expected unsupported mode error")
	}
	if _, err := Open(context.Background(), Config{Mode: ModeExternal}, backend, getenv); err == nil {
		t.Fatal("expected missing signer url error")
	}
}
