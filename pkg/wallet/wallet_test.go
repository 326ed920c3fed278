package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type fakeBackend struct {
	mu        sync.Mutex
	allowance *big.Int
	sent      []*types.Transaction
	status    uint64
	calls     int
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return common.LeftPadBytes(f.allowance.Bytes(), 32), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 50000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: f.status, TxHash: hash}, nil
		}
	}
	return nil, ethereum.NotFound
}

func newTestWallet(t *testing.T, backend *fakeBackend) *KeyWallet {
	t.Helper()
	w, err := New(testKey, 1, map[int64]string{1: "http://eth.invalid", 137: "http://polygon.invalid"})
	if err != nil {
		t.Fatalf("new wallet: %v", err)
	}
	w.SetDialer(func(context.Context, string) (Backend, error) { return backend, nil })
	return w
}

func TestNewValidation(t *testing.T) {
	if _, err := New("zz", 1, map[int64]string{1: "x"}); err == nil {
		t.Fatalf("expected invalid key error")
	}
	if _, err := New(testKey, 10, map[int64]string{1: "x"}); err == nil {
		t.Fatalf("expected error for active chain without rpc")
	}
}

func TestSwitchAndAddChain(t *testing.T) {
	w := newTestWallet(t, &fakeBackend{})
	ctx := context.Background()

	if err := w.SwitchChain(ctx, 137); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if id, _ := w.ChainID(ctx); id != 137 {
		t.Fatalf("expected active 137, got %d", id)
	}

	if err := w.SwitchChain(ctx, 8453); !errors.Is(err, fusion.ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain, got %v", err)
	}

	base, _ := chains.ByID(8453)
	w.SetPrompter(func(string) bool { return false })
	if err := w.AddChain(ctx, base); !errors.Is(err, fusion.ErrUserRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	w.SetPrompter(nil)
	if err := w.AddChain(ctx, base); err != nil {
		t.Fatalf("add chain: %v", err)
	}
	if err := w.SwitchChain(ctx, 8453); err != nil {
		t.Fatalf("switch after add: %v", err)
	}
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"Order": []apitypes.Type{
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "1inch Aggregation Router",
			Version:           "6",
			ChainId:           math.NewHexOrDecimal256(1),
			VerifyingContract: "0x111111125421ca6dc452d289314280a0f8842a65",
		},
		Message: apitypes.TypedDataMessage{
			"salt":         "12345",
			"maker":        "0x00000000000000000000000000000000000000aa",
			"makingAmount": "1000000",
		},
	}
}

func TestSignTypedDataRecoversSigner(t *testing.T) {
	w := newTestWallet(t, &fakeBackend{})
	data := testTypedData()

	sig, err := w.SignTypedData(context.Background(), data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != 65 || (sig[64] != 27 && sig[64] != 28) {
		t.Fatalf("unexpected signature shape: len=%d v=%d", len(sig), sig[64])
	}

	digest, err := TypedDataDigest(data)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	raw := append([]byte(nil), sig...)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != w.Address() {
		t.Fatalf("recovered wrong signer")
	}
}

func TestSignTypedDataRejections(t *testing.T) {
	w := newTestWallet(t, &fakeBackend{})
	ctx := context.Background()

	w.SetPrompter(func(string) bool { return false })
	if _, err := w.SignTypedData(ctx, testTypedData()); !errors.Is(err, fusion.ErrUserRejected) {
		t.Fatalf("expected ErrUserRejected, got %v", err)
	}

	w.SetPrompter(nil)
	data := testTypedData()
	data.Types["EIP712Domain"] = []apitypes.Type{{Name: "name", Type: "string"}}
	if _, err := w.SignTypedData(ctx, data); !errors.Is(err, fusion.ErrMalformedTypedData) {
		t.Fatalf("expected ErrMalformedTypedData, got %v", err)
	}
}

func TestAllowance(t *testing.T) {
	backend := &fakeBackend{allowance: big.NewInt(500)}
	w := newTestWallet(t, backend)
	ctx := context.Background()
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	spender := common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")

	got, err := w.Allowance(ctx, 1, token, spender)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if got.Int64() != 500 {
		t.Fatalf("expected 500, got %s", got)
	}

	err = w.EnsureAllowance(ctx, 1, token, spender, big.NewInt(1000))
	var insufficient *fusion.InsufficientAllowanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientAllowanceError, got %v", err)
	}
	if insufficient.Need.Int64() != 1000 || insufficient.Have.Int64() != 500 {
		t.Fatalf("unexpected amounts: %+v", insufficient)
	}

	if err := w.EnsureAllowance(ctx, 1, token, spender, big.NewInt(500)); err != nil {
		t.Fatalf("expected sufficient allowance, got %v", err)
	}

	if _, err := w.Allowance(ctx, 56, token, spender); !errors.Is(err, fusion.ErrUnknownChain) {
		t.Fatalf("expected ErrUnknownChain for unconfigured chain, got %v", err)
	}
}

func TestApproveWaitsForReceipt(t *testing.T) {
	backend := &fakeBackend{allowance: big.NewInt(0), status: types.ReceiptStatusSuccessful}
	w := newTestWallet(t, backend)
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")
	spender := common.HexToAddress("0x111111125421ca6dc452d289314280a0f8842a65")

	hash, err := w.Approve(context.Background(), 137, token, spender, MaxUint256)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(backend.sent))
	}

	tx := backend.sent[0]
	if tx.Hash() != hash {
		t.Fatalf("hash mismatch")
	}
	if *tx.To() != token {
		t.Fatalf("approve sent to %s", tx.To().Hex())
	}
	if tx.Nonce() != 7 || tx.Gas() != 60000 {
		t.Fatalf("unexpected nonce/gas: %d/%d", tx.Nonce(), tx.Gas())
	}
	if got := tx.Data()[:4]; common.Bytes2Hex(got) != common.Bytes2Hex(parsedERC20.Methods["approve"].ID) {
		t.Fatalf("unexpected selector %x", got)
	}

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(137)), tx)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	if from != w.Address() {
		t.Fatalf("signed by %s", from.Hex())
	}
}

func TestApproveReverted(t *testing.T) {
	backend := &fakeBackend{allowance: big.NewInt(0), status: types.ReceiptStatusFailed}
	w := newTestWallet(t, backend)
	token := common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

	if _, err := w.Approve(context.Background(), 1, token, token, big.NewInt(1)); err == nil {
		t.Fatalf("expected revert error")
	}
}
