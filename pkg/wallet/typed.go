package wallet

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"fusion-swap/pkg/fusion"
	"fusion-swap/pkg/signer"
)

// SignTypedData signs an EIP-712 payload. The payload must not declare the
// domain type; it is derived from the populated domain fields.
func (w *KeyWallet) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	if _, ok := data.Types[signer.DomainType]; ok {
		return nil, fmt.Errorf("%w: payload declares %s", fusion.ErrMalformedTypedData, signer.DomainType)
	}

	prompt := fmt.Sprintf("Sign %s for %s on chain %v (verifying contract %s)?",
		data.PrimaryType, data.Domain.Name, data.Domain.ChainId, data.Domain.VerifyingContract)
	if !w.ask(prompt) {
		return nil, fusion.ErrUserRejected
	}

	digest, err := TypedDataDigest(data)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	sig[64] += 27

	return sig, nil
}

// TypedDataDigest computes the EIP-712 digest of a payload without a domain
// type entry.
func TypedDataDigest(data apitypes.TypedData) ([]byte, error) {
	full := data
	full.Types = make(apitypes.Types, len(data.Types)+1)
	for name, fields := range data.Types {
		full.Types[name] = fields
	}
	full.Types[signer.DomainType] = domainFields(data.Domain)

	digest, _, err := apitypes.TypedDataAndHash(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fusion.ErrMalformedTypedData, err)
	}
	return digest, nil
}

// domainFields lists the domain type for the fields that are set, in the
// canonical order.
func domainFields(d apitypes.TypedDataDomain) []apitypes.Type {
	var fields []apitypes.Type
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if d.ChainId != nil {
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if d.VerifyingContract != "" {
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if d.Salt != "" {
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return fields
}
