package fusion

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuoteParams identifies the swap a quote is requested for. Amount is already
// scaled to the source token's base units.
type QuoteParams struct {
	SrcChainID    int64
	DstChainID    int64
	SrcToken      string
	DstToken      string
	Amount        string
	WalletAddress string
	Preset        string
}

// AuctionPoint is a step of the Dutch auction curve
type AuctionPoint struct {
	Delay       int64 `json:"delay"`
	Coefficient int64 `json:"coefficient"`
}

// GasCost is the upstream gas estimate attached to a preset
type GasCost struct {
	GasBumpEstimate  int64  `json:"gasBumpEstimate"`
	GasPriceEstimate string `json:"gasPriceEstimate"`
}

// Preset holds the auction terms for one timing profile
type Preset struct {
	AuctionDuration    int64          `json:"auctionDuration"`
	StartAuctionIn     int64          `json:"startAuctionIn"`
	InitialRateBump    int64          `json:"initialRateBump"`
	AuctionStartAmount string         `json:"auctionStartAmount"`
	StartAmount        string         `json:"startAmount"`
	AuctionEndAmount   string         `json:"auctionEndAmount"`
	ExclusiveResolver  *string        `json:"exclusiveResolver"`
	CostInDstToken     string         `json:"costInDstToken"`
	Points             []AuctionPoint `json:"points"`
	AllowPartialFills  bool           `json:"allowPartialFills"`
	AllowMultipleFills bool           `json:"allowMultipleFills"`
	GasCost            GasCost        `json:"gasCost"`
	SecretsCount       int            `json:"secretsCount"`
}

// TimeLocks are the escrow withdrawal and cancellation windows in seconds
type TimeLocks struct {
	SrcWithdrawal         int64 `json:"srcWithdrawal"`
	SrcPublicWithdrawal   int64 `json:"srcPublicWithdrawal"`
	SrcCancellation       int64 `json:"srcCancellation"`
	SrcPublicCancellation int64 `json:"srcPublicCancellation"`
	DstWithdrawal         int64 `json:"dstWithdrawal"`
	DstPublicWithdrawal   int64 `json:"dstPublicWithdrawal"`
	DstCancellation       int64 `json:"dstCancellation"`
}

// TokenPair carries a src/dst value pair denominated in some currency
type TokenPair struct {
	SrcToken string `json:"srcToken"`
	DstToken string `json:"dstToken"`
}

// USDPair wraps a TokenPair under a "usd" key
type USDPair struct {
	USD TokenPair `json:"usd"`
}

// Quote is an indicative quote. It is immutable once fetched; a re-fetch
// supersedes it.
type Quote struct {
	QuoteID            string            `json:"quoteId"`
	SrcTokenAmount     string            `json:"srcTokenAmount"`
	DstTokenAmount     string            `json:"dstTokenAmount"`
	Presets            map[string]Preset `json:"presets"`
	TimeLocks          TimeLocks         `json:"timeLocks"`
	SrcEscrowFactory   string            `json:"srcEscrowFactory"`
	DstEscrowFactory   string            `json:"dstEscrowFactory"`
	SrcSafetyDeposit   string            `json:"srcSafetyDeposit"`
	DstSafetyDeposit   string            `json:"dstSafetyDeposit"`
	Whitelist          []string          `json:"whitelist"`
	RecommendedPreset  string            `json:"recommendedPreset"`
	Prices             USDPair           `json:"prices"`
	Volume             USDPair           `json:"volume"`
	PriceImpactPercent float64           `json:"priceImpactPercent"`
	AutoK              float64           `json:"autoK"`
	K                  float64           `json:"k"`
	MxK                float64           `json:"mxK"`

	// Raw is the quote exactly as received. The build call echoes it back.
	Raw       json.RawMessage `json:"-"`
	FetchedAt time.Time       `json:"-"`
}

// Validate rejects quotes missing the fields the order lifecycle depends on
func (q *Quote) Validate() error {
	if q.QuoteID == "" {
		return fmt.Errorf("quote: %w: quoteId", ErrMissingField)
	}
	if q.DstTokenAmount == "" {
		return fmt.Errorf("quote: %w: dstTokenAmount", ErrMissingField)
	}
	if len(q.Presets) == 0 {
		return fmt.Errorf("quote: %w: presets", ErrMissingField)
	}
	for name, p := range q.Presets {
		if p.SecretsCount < 1 {
			return fmt.Errorf("quote: preset %s has secretsCount %d, must be at least 1", name, p.SecretsCount)
		}
	}
	return nil
}

// Preset returns the named preset or ErrInvalidPreset
func (q *Quote) Preset(name string) (Preset, error) {
	p, ok := q.Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrInvalidPreset, name)
	}
	return p, nil
}

// TypedField is one entry of an EIP-712 type schema
type TypedField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypedDomain is the EIP-712 domain as returned by the build call. ChainID is
// kept raw: upstream may send it as a number, a decimal string or hex.
type TypedDomain struct {
	Name              string          `json:"name"`
	Version           string          `json:"version"`
	ChainID           json.RawMessage `json:"chainId"`
	VerifyingContract string          `json:"verifyingContract"`
}

// IsZero reports whether the domain carries no data
func (d TypedDomain) IsZero() bool {
	return d.Name == "" && d.Version == "" && len(d.ChainID) == 0 && d.VerifyingContract == ""
}

// OrderMessage is the limit order struct that gets signed
type OrderMessage struct {
	Salt         string `json:"salt"`
	Maker        string `json:"maker"`
	Receiver     string `json:"receiver"`
	MakerAsset   string `json:"makerAsset"`
	TakerAsset   string `json:"takerAsset"`
	MakerTraits  string `json:"makerTraits"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
}

// IsZero reports whether the message carries no data
func (m OrderMessage) IsZero() bool {
	return m == OrderMessage{}
}

// Fields returns the message keyed by EIP-712 field name
func (m OrderMessage) Fields() map[string]string {
	return map[string]string{
		"salt":         m.Salt,
		"maker":        m.Maker,
		"receiver":     m.Receiver,
		"makerAsset":   m.MakerAsset,
		"takerAsset":   m.TakerAsset,
		"makerTraits":  m.MakerTraits,
		"makingAmount": m.MakingAmount,
		"takingAmount": m.TakingAmount,
	}
}

// TypedData is the domain/types/message triple of a built order
type TypedData struct {
	PrimaryType string                  `json:"primaryType"`
	Types       map[string][]TypedField `json:"types"`
	Domain      TypedDomain             `json:"domain"`
	Message     OrderMessage            `json:"message"`
}

// BuiltOrder is the signable order produced by the build call
type BuiltOrder struct {
	TypedData TypedData `json:"typedData"`
	OrderHash string    `json:"orderHash"`
	Extension string    `json:"extension"`
}

// Validate rejects build responses without an order hash
func (b *BuiltOrder) Validate() error {
	if b.OrderHash == "" {
		return fmt.Errorf("build: %w: orderHash", ErrMissingField)
	}
	return nil
}

// SignedOrder is a built order plus the maker's signature
type SignedOrder struct {
	Order     OrderMessage `json:"order"`
	Signature string       `json:"signature"`
	QuoteID   string       `json:"quoteId"`
}

// SubmitPayload is the body of the relayer submit call. SecretHashes is only
// present for multi-secret orders.
type SubmitPayload struct {
	Order        OrderMessage `json:"order"`
	Signature    string       `json:"signature"`
	QuoteID      string       `json:"quoteId"`
	SrcChainID   int64        `json:"srcChainId"`
	Extension    string       `json:"extension"`
	SecretHashes []string     `json:"secretHashes,omitempty"`
}

// SecretPayload is the body of a single-secret disclosure
type SecretPayload struct {
	OrderHash string `json:"orderHash"`
	Secret    string `json:"secret"`
}
