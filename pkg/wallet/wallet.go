// Package wallet is a private-key wallet that behaves like a browser wallet:
// it has an active chain that can be switched, a set of known networks that
// can be extended, and it asks its owner before signing anything.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"fusion-swap/pkg/chains"
	"fusion-swap/pkg/fusion"
)

// Backend is the subset of an RPC client the wallet needs
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dialer opens a Backend for an RPC URL
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// Prompter asks the wallet owner to approve an action
type Prompter func(message string) bool

// KeyWallet signs with a local secp256k1 key
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address

	mu       sync.Mutex
	active   int64
	networks map[int64]string
	backends map[int64]Backend
	dial     Dialer
	confirm  Prompter
}

// New creates a wallet from a hex private key. networks maps chain ids to
// RPC URLs; only those chains can be switched to without AddChain.
func New(privateKeyHex string, active int64, networks map[int64]string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	known := make(map[int64]string, len(networks))
	for id, rpc := range networks {
		known[id] = rpc
	}
	if _, ok := known[active]; !ok {
		return nil, fmt.Errorf("active chain %d has no RPC configured", active)
	}

	return &KeyWallet{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		active:   active,
		networks: known,
		backends: make(map[int64]Backend),
		dial:     dialEthclient,
	}, nil
}

func dialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// SetPrompter installs the approval prompt. A nil prompter approves everything.
func (w *KeyWallet) SetPrompter(p Prompter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.confirm = p
}

// SetDialer replaces how RPC backends are opened
func (w *KeyWallet) SetDialer(d Dialer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dial = d
	w.backends = make(map[int64]Backend)
}

// Address returns the account address
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// ChainID returns the active chain
func (w *KeyWallet) ChainID(_ context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active, nil
}

// SwitchChain makes chainID active. It fails with fusion.ErrUnknownChain if
// the network was never added.
func (w *KeyWallet) SwitchChain(_ context.Context, chainID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.networks[chainID]; !ok {
		return fmt.Errorf("switch to chain %d: %w", chainID, fusion.ErrUnknownChain)
	}
	w.active = chainID
	return nil
}

// AddChain registers a network after asking the owner
func (w *KeyWallet) AddChain(_ context.Context, c chains.Chain) error {
	if c.RPC == "" {
		return fmt.Errorf("chain %d has no RPC URL", c.ID)
	}
	if !w.ask(fmt.Sprintf("Add network %s (chain %d, %s) to wallet?", c.Name, c.ID, c.RPC)) {
		return fusion.ErrUserRejected
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.networks[c.ID] = c.RPC
	return nil
}

func (w *KeyWallet) ask(message string) bool {
	w.mu.Lock()
	confirm := w.confirm
	w.mu.Unlock()

	if confirm == nil {
		return true
	}
	return confirm(message)
}

// backend returns a cached RPC backend for a chain
func (w *KeyWallet) backend(ctx context.Context, chainID int64) (Backend, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b, ok := w.backends[chainID]; ok {
		return b, nil
	}
	rpc, ok := w.networks[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", chainID, fusion.ErrUnknownChain)
	}

	b, err := w.dial(ctx, rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	w.backends[chainID] = b
	return b, nil
}

// Close releases RPC connections that support closing
func (w *KeyWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, b := range w.backends {
		if c, ok := b.(interface{ Close() }); ok {
			c.Close()
		}
		delete(w.backends, id)
	}
}
