package fusion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultBaseURL is the public Fusion+ API root
const DefaultBaseURL = "https://api.1inch.dev/fusion-plus"

// Upstream endpoint paths, relative to the API root
const (
	PathQuoteReceive     = "/quoter/v1.0/quote/receive"
	PathQuoteBuild       = "/quoter/v1.0/quote/build"
	PathOrderCreate      = "/order/create"
	PathSubmit           = "/relayer/v1.0/submit"
	PathSubmitSecret     = "/relayer/v1.0/submit/secret"
	PathOrderStatus      = "/orders/v1.0/order/status/"
	PathReadySecretFills = "/orders/v1.0/secret-fills/"
)

// Client talks to the Fusion+ API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Fusion+ API client. An empty baseURL selects the public API.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchQuote requests an indicative quote for the given swap
func (c *Client) FetchQuote(ctx context.Context, p QuoteParams) (*Quote, error) {
	q := p.values()
	q.Set("enableEstimate", "true")
	if p.Preset != "" {
		q.Set("preset", p.Preset)
	}

	raw, err := c.do(ctx, http.MethodGet, PathQuoteReceive, q, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}

	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("failed to decode quote: %w", err)
	}
	if err := quote.Validate(); err != nil {
		return nil, err
	}
	quote.Raw = raw
	quote.FetchedAt = time.Now()

	return &quote, nil
}

type buildRequest struct {
	Quote           json.RawMessage `json:"quote"`
	SecretsHashList []string        `json:"secretsHashList"`
}

// BuildOrder turns a quote into a signable order bound to the given secret
// hashes. The quote is not modified.
func (c *Client) BuildOrder(ctx context.Context, p QuoteParams, quote *Quote, preset string, hashes []common.Hash) (*BuiltOrder, error) {
	terms, err := quote.Preset(preset)
	if err != nil {
		return nil, err
	}
	if len(hashes) != terms.SecretsCount {
		return nil, fmt.Errorf("preset %s requires %d secret hashes, got %d", preset, terms.SecretsCount, len(hashes))
	}

	rawQuote := quote.Raw
	if len(rawQuote) == 0 {
		rawQuote, err = json.Marshal(quote)
		if err != nil {
			return nil, fmt.Errorf("failed to encode quote: %w", err)
		}
	}

	body := buildRequest{
		Quote:           rawQuote,
		SecretsHashList: HashStrings(hashes),
	}

	raw, err := c.do(ctx, http.MethodPost, PathQuoteBuild, p.values(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build order: %w", err)
	}

	var built BuiltOrder
	if err := json.Unmarshal(raw, &built); err != nil {
		return nil, fmt.Errorf("failed to decode built order: %w", err)
	}
	if err := built.Validate(); err != nil {
		return nil, err
	}

	return &built, nil
}

// SubmitOrder hands a signed order to the relayer
func (c *Client) SubmitOrder(ctx context.Context, payload SubmitPayload) error {
	if _, err := c.do(ctx, http.MethodPost, PathSubmit, nil, payload); err != nil {
		return fmt.Errorf("failed to submit order: %w", err)
	}
	return nil
}

// OrderStatus fetches the current status of an order
func (c *Client) OrderStatus(ctx context.Context, orderHash string) (*OrderStatus, error) {
	raw, err := c.do(ctx, http.MethodGet, PathOrderStatus+url.PathEscape(orderHash), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	var status OrderStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	if err := status.Validate(); err != nil {
		return nil, err
	}

	return &status, nil
}

// ReadyToAcceptSecretFills lists fills whose escrows are deployed on both chains
func (c *Client) ReadyToAcceptSecretFills(ctx context.Context, orderHash string) (*ReadyFills, error) {
	raw, err := c.do(ctx, http.MethodGet, PathReadySecretFills+url.PathEscape(orderHash), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready fills: %w", err)
	}

	var fills ReadyFills
	if err := json.Unmarshal(raw, &fills); err != nil {
		return nil, fmt.Errorf("failed to decode ready fills: %w", err)
	}
	return &fills, nil
}

// SubmitSecret discloses one secret for an order
func (c *Client) SubmitSecret(ctx context.Context, orderHash, secret string) error {
	payload := SecretPayload{OrderHash: orderHash, Secret: secret}
	if _, err := c.do(ctx, http.MethodPost, PathSubmitSecret, nil, payload); err != nil {
		return fmt.Errorf("failed to submit secret: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Description: describe(raw, resp.Status)}
	}

	return raw, nil
}

// describe extracts the machine description from an error body
func describe(raw []byte, fallback string) string {
	var errorResp map[string]interface{}
	if err := json.Unmarshal(raw, &errorResp); err == nil {
		for _, key := range []string{"description", "message", "error"} {
			if msg, ok := errorResp[key].(string); ok && msg != "" {
				return msg
			}
		}
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return fallback
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func (p QuoteParams) values() url.Values {
	q := url.Values{}
	q.Set("srcChain", strconv.FormatInt(p.SrcChainID, 10))
	q.Set("dstChain", strconv.FormatInt(p.DstChainID, 10))
	q.Set("srcTokenAddress", p.SrcToken)
	q.Set("dstTokenAddress", p.DstToken)
	q.Set("amount", p.Amount)
	q.Set("walletAddress", p.WalletAddress)
	return q
}

// HashStrings hex-encodes a list of hashes
func HashStrings(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}
