package order

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const (
	usdcMainnet = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	usdtMainnet = "0xdAC17F958D2ee523a2206206994597C13D831ec7"
	usdcPolygon = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
)

func testQuote(secretsCount map[string]int) *fusion.Quote {
	presets := make(map[string]fusion.Preset)
	for name, n := range secretsCount {
		presets[name] = fusion.Preset{
			AuctionDuration:    180,
			SecretsCount:       n,
			AllowPartialFills:  n > 1,
			AllowMultipleFills: n > 1,
		}
	}
	return &fusion.Quote{
		QuoteID:           "quote-1",
		SrcTokenAmount:    "1000000",
		DstTokenAmount:    "998500",
		Presets:           presets,
		RecommendedPreset: "fast",
		FetchedAt:         time.Now(),
	}
}

func orderTypedData(chainID int64, salt string) fusion.TypedData {
	return fusion.TypedData{
		PrimaryType: "Order",
		Types: map[string][]fusion.TypedField{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "receiver", Type: "address"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
				{Name: "takingAmount", Type: "uint256"},
				{Name: "makerTraits", Type: "uint256"},
			},
		},
		Domain: fusion.TypedDomain{
			Name:              "1inch Aggregation Router",
			Version:           "6",
			ChainID:           json.RawMessage(`"` + big.NewInt(chainID).String() + `"`),
			VerifyingContract: "0x111111125421ca6dc452d289314280a0f8842a65",
		},
		Message: fusion.OrderMessage{
			Salt:         salt,
			Maker:        "0x00000000000000000000000000000000000000aa",
			Receiver:     "0x0000000000000000000000000000000000000000",
			MakerAsset:   usdcMainnet,
			TakerAsset:   usdtMainnet,
			MakerTraits:  "0",
			MakingAmount: "1000000",
			TakingAmount: "998500",
		},
	}
}

// orderHashFor derives a deterministic order hash from the secret hashes
func orderHashFor(hashes []common.Hash) string {
	var parts []string
	for _, h := range hashes {
		parts = append(parts, h.Hex())
	}
	return crypto.Keccak256Hash([]byte(strings.Join(parts, ","))).Hex()
}

type fakeAPI struct {
	mu sync.Mutex

	quote     *fusion.Quote
	quoteErr  error
	buildErr  error
	submitErr error
	statusErr error
	secretErr error
	status    *fusion.OrderStatus
	// upperHash makes OrderStatus echo the order hash in upper-case hex
	upperHash bool

	builds  [][]common.Hash
	submits []fusion.SubmitPayload
	secrets []fusion.SecretPayload
	polls   int
}

func (f *fakeAPI) FetchQuote(_ context.Context, p fusion.QuoteParams) (*fusion.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeAPI) BuildOrder(_ context.Context, p fusion.QuoteParams, q *fusion.Quote, preset string, hashes []common.Hash) (*fusion.BuiltOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builds = append(f.builds, hashes)
	if f.buildErr != nil {
		return nil, f.buildErr
	}
	if _, err := q.Preset(preset); err != nil {
		return nil, err
	}
	return &fusion.BuiltOrder{
		TypedData: orderTypedData(p.SrcChainID, "1"),
		OrderHash: orderHashFor(hashes),
	}, nil
}

func (f *fakeAPI) SubmitOrder(_ context.Context, payload fusion.SubmitPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		err := f.submitErr
		f.submitErr = nil
		return err
	}
	f.submits = append(f.submits, payload)
	return nil
}

func (f *fakeAPI) OrderStatus(_ context.Context, orderHash string) (*fusion.OrderStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status == nil {
		return &fusion.OrderStatus{OrderHash: orderHash, Status: fusion.OrderPending}, nil
	}
	s := *f.status
	s.OrderHash = orderHash
	if f.upperHash && strings.HasPrefix(orderHash, "0x") {
		s.OrderHash = "0x" + strings.ToUpper(orderHash[2:])
	}
	return &s, nil
}

func (f *fakeAPI) SubmitSecret(_ context.Context, orderHash, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.secretErr != nil {
		return f.secretErr
	}
	f.secrets = append(f.secrets, fusion.SecretPayload{OrderHash: orderHash, Secret: secret})
	return nil
}

func (f *fakeAPI) setStatus(s *fusion.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

type fakeWallet struct {
	mu       sync.Mutex
	chain    int64
	known    map[int64]bool
	reject   bool
	signs    int
	switches []int64
	added    []chains.Chain
}

func newFakeWallet(active int64, known ...int64) *fakeWallet {
	w := &fakeWallet{chain: active, known: map[int64]bool{active: true}}
	for _, id := range known {
		w.known[id] = true
	}
	return w
}

func (w *fakeWallet) Address() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000aa")
}

func (w *fakeWallet) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signs++
	if w.reject {
		return nil, fusion.ErrUserRejected
	}
	return crypto.Keccak256([]byte(data.Message["salt"].(string))), nil
}

func (w *fakeWallet) ChainID(context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain, nil
}

func (w *fakeWallet) SwitchChain(_ context.Context, id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switches = append(w.switches, id)
	if !w.known[id] {
		return fusion.ErrUnknownChain
	}
	w.chain = id
	return nil
}

func (w *fakeWallet) AddChain(_ context.Context, c chains.Chain) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added = append(w.added, c)
	w.known[c.ID] = true
	return nil
}

type fakeAllowance struct {
	err   error
	calls int
}

func (a *fakeAllowance) EnsureAllowance(context.Context, int64, common.Address, common.Address, *big.Int) error {
	a.calls++
	return a.err
}

func params(src, dst int64, preset string) fusion.QuoteParams {
	return fusion.QuoteParams{
		SrcChainID: src,
		DstChainID: dst,
		SrcToken:   usdcMainnet,
		DstToken:   usdcPolygon,
		Amount:     "1000000",
		Preset:     preset,
	}
}

func escrowFill(src, dst bool) fusion.Fill {
	f := fusion.Fill{Status: "pending", TxHash: "0xfill"}
	if src {
		f.EscrowEvents = append(f.EscrowEvents, fusion.EscrowEvent{Side: fusion.SideSrc, Action: fusion.ActionSrcEscrowCreated})
	}
	if dst {
		f.EscrowEvents = append(f.EscrowEvents, fusion.EscrowEvent{Side: fusion.SideDst, Action: fusion.ActionDstEscrowCreated})
	}
	return f
}
