package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"fusion-swap/pkg/fusion"
)

// ERC20 allowance/approve ABI
const erc20ABI = `[
{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

// ReceiptPollInterval is how often Approve checks for the approval receipt
var ReceiptPollInterval = 2 * time.Second

var parsedERC20 = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse ERC20 ABI: %v", err))
	}
	return parsed
}

// MaxUint256 is the conventional unlimited approval amount
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Allowance reads how much spender may move of the wallet's token on a chain
func (w *KeyWallet) Allowance(ctx context.Context, chainID int64, token, spender common.Address) (*big.Int, error) {
	b, err := w.backend(ctx, chainID)
	if err != nil {
		return nil, err
	}

	data, err := parsedERC20.Pack("allowance", w.address, spender)
	if err != nil {
		return nil, fmt.Errorf("failed to pack allowance data: %w", err)
	}

	result, err := b.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call allowance: %w", err)
	}

	out, err := parsedERC20.Unpack("allowance", result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode allowance: %w", err)
	}
	amount, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance type %T", out[0])
	}

	return amount, nil
}

// EnsureAllowance returns an InsufficientAllowanceError if the current
// allowance is below need.
func (w *KeyWallet) EnsureAllowance(ctx context.Context, chainID int64, token, spender common.Address, need *big.Int) error {
	have, err := w.Allowance(ctx, chainID, token, spender)
	if err != nil {
		return err
	}
	if have.Cmp(need) < 0 {
		return &fusion.InsufficientAllowanceError{
			Token:   token.Hex(),
			Spender: spender.Hex(),
			Have:    have,
			Need:    new(big.Int).Set(need),
		}
	}
	return nil
}

// Approve sends an ERC-20 approve transaction and waits until it is mined
func (w *KeyWallet) Approve(ctx context.Context, chainID int64, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	if !w.ask(fmt.Sprintf("Approve %s to spend token %s on chain %d?", spender.Hex(), token.Hex(), chainID)) {
		return common.Hash{}, fusion.ErrUserRejected
	}

	b, err := w.backend(ctx, chainID)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := parsedERC20.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve data: %w", err)
	}

	nonce, err := b.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	gasLimit := uint64(100000)
	estimated, err := b.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &token, Data: data})
	if err == nil {
		gasLimit = estimated * 120 / 100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &token,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := b.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	receipt, err := WaitForReceipt(ctx, b, signedTx.Hash(), ReceiptPollInterval)
	if err != nil {
		return signedTx.Hash(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signedTx.Hash(), fmt.Errorf("approval transaction %s reverted", signedTx.Hash().Hex())
	}

	return signedTx.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is cancelled
func WaitForReceipt(ctx context.Context, b Backend, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
