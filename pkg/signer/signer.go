// Package signer turns a built Fusion+ order into a signed one.
package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fusion-swap/pkg/fusion"
)

// DomainType is the meta-schema entry describing the EIP-712 domain itself
const DomainType = "EIP712Domain"

// TypedDataSigner signs EIP-712 payloads on behalf of an account. Payloads
// never carry the DomainType entry; the signer derives it from the domain.
type TypedDataSigner interface {
	Address() common.Address
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// Sign signs the built order's typed data and pairs the signature with the
// quote it came from. It blocks until the signer answers and returns
// fusion.ErrUserRejected if the owner declines.
func Sign(ctx context.Context, built *fusion.BuiltOrder, quoteID string, w TypedDataSigner) (*fusion.SignedOrder, error) {
	if built == nil {
		return nil, fmt.Errorf("%w: no built order", fusion.ErrMalformedTypedData)
	}
	if quoteID == "" {
		return nil, fmt.Errorf("quote id is required")
	}

	data, err := TypedDataFor(built)
	if err != nil {
		return nil, err
	}

	sig, err := w.SignTypedData(ctx, data)
	if err != nil {
		if errors.Is(err, fusion.ErrUserRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to sign order: %w", err)
	}

	return &fusion.SignedOrder{
		Order:     built.TypedData.Message,
		Signature: hexutil.Encode(sig),
		QuoteID:   quoteID,
	}, nil
}

// TypedDataFor converts a built order into the payload handed to a signer:
// the domain type entry is stripped and the chain id coerced to an integer.
func TypedDataFor(built *fusion.BuiltOrder) (apitypes.TypedData, error) {
	td := built.TypedData
	if td.Domain.IsZero() {
		return apitypes.TypedData{}, fmt.Errorf("%w: empty domain", fusion.ErrMalformedTypedData)
	}
	if len(td.Types) == 0 {
		return apitypes.TypedData{}, fmt.Errorf("%w: empty type schema", fusion.ErrMalformedTypedData)
	}
	if td.Message.IsZero() {
		return apitypes.TypedData{}, fmt.Errorf("%w: empty message", fusion.ErrMalformedTypedData)
	}

	types := apitypes.Types{}
	for name, fields := range td.Types {
		if name == DomainType {
			continue
		}
		converted := make([]apitypes.Type, len(fields))
		for i, f := range fields {
			converted[i] = apitypes.Type{Name: f.Name, Type: f.Type}
		}
		types[name] = converted
	}

	primary := td.PrimaryType
	if primary == "" && len(types) == 1 {
		for name := range types {
			primary = name
		}
	}
	fields, ok := types[primary]
	if !ok || len(fields) == 0 {
		return apitypes.TypedData{}, fmt.Errorf("%w: no schema for primary type %q", fusion.ErrMalformedTypedData, primary)
	}

	chainID, err := CoerceChainID(td.Domain.ChainID)
	if err != nil {
		return apitypes.TypedData{}, fmt.Errorf("%w: %v", fusion.ErrMalformedTypedData, err)
	}

	values := td.Message.Fields()
	message := apitypes.TypedDataMessage{}
	for _, f := range fields {
		v, ok := values[f.Name]
		if !ok || v == "" {
			return apitypes.TypedData{}, fmt.Errorf("%w: message missing %s", fusion.ErrMalformedTypedData, f.Name)
		}
		message[f.Name] = v
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              td.Domain.Name,
			Version:           td.Domain.Version,
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: td.Domain.VerifyingContract,
		},
		Message: message,
	}, nil
}

// CoerceChainID accepts a chain id encoded as a JSON number, a decimal
// string or a 0x-prefixed hex string.
func CoerceChainID(raw json.RawMessage) (int64, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0, fmt.Errorf("chainId is missing")
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("chainId: %w", err)
		}
		text = strings.TrimSpace(s)
	}

	var (
		id  int64
		err error
	)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
		id, err = strconv.ParseInt(text[2:], 16, 64)
	} else {
		id, err = strconv.ParseInt(text, 10, 64)
	}
	if err != nil {
		return 0, fmt.Errorf("chainId %q is not an integer", text)
	}
	if id <= 0 {
		return 0, fmt.Errorf("chainId must be positive, got %d", id)
	}

	return id, nil
}
