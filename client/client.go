package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jpillora/backoff"
)

// Caller is the read-only half of the chain connection.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Backend is the full chain connection used for submission. *ethclient.Client satisfies it.
type Backend interface {
	Caller
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

var (
	_ Caller  = (*ethclient.Client)(nil)
	_ Backend = (*ethclient.Client)(nil)
)

// Dial connects to the JSON-RPC endpoint at rawurl.
func Dial(ctx context.Context, rawurl string) (*ethclient.Client, error) {
	ethcli, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node url %s: %w", rawurl, err)
	}
	return ethcli, nil
}

// Call executes a read-only call against contract at the latest block.
func Call(ctx context.Context, caller Caller, contract common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{
		To:   &contract,
		Data: data,
	}
	return caller.CallContract(ctx, msg, nil)
}

// IsDeployed reports whether code exists at account.
func IsDeployed(ctx context.Context, caller Caller, account common.Address) (bool, error) {
	code, err := caller.CodeAt(ctx, account, nil)
	if err != nil {
		return false, fmt.Errorf("failed to query code for %s: %w", account.Hex(), err)
	}
	return len(code) > 0, nil
}

// ErrReceiptTimeout is returned by WaitForReceipt when the deadline passes first.
var ErrReceiptTimeout = errors.New("timeout waiting for transaction receipt")

// PollOptions controls WaitForReceipt.
type PollOptions struct {
	// Timeout bounds the whole wait. Zero means wait until ctx is done.
	Timeout time.Duration
	// Interval is the first poll delay.
	Interval time.Duration
	// MaxInterval caps the growing poll delay.
	MaxInterval time.Duration
}

// WaitForReceipt polls for the receipt of txHash with exponential backoff. Only
// ethereum.NotFound counts as "not mined yet"; any other RPC error keeps the poll going
// but is remembered and wrapped into the timeout error if it is still failing when
// opts.Timeout elapses. A cancelled ctx returns ctx.Err() unchanged.
func WaitForReceipt(ctx context.Context, backend Backend, txHash common.Hash, opts PollOptions) (*ethtypes.Receipt, error) {
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.MaxInterval < opts.Interval {
		opts.MaxInterval = opts.Interval
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	b := &backoff.Backoff{
		Min:    opts.Interval,
		Max:    opts.MaxInterval,
		Factor: 1.5,
	}

	ticker := time.NewTimer(b.Duration())
	defer ticker.Stop()

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			if lastErr != nil {
				return nil, fmt.Errorf("%w %s: last error: %w", ErrReceiptTimeout, txHash.Hex(), lastErr)
			}
			return nil, fmt.Errorf("%w %s", ErrReceiptTimeout, txHash.Hex())
		case <-ticker.C:
			receipt, err := backend.TransactionReceipt(ctx, txHash)
			switch {
			case err == nil && receipt != nil:
				return receipt, nil
			case err == nil, errors.Is(err, ethereum.NotFound):
				// the node answered, the tx is just not mined yet
				lastErr = nil
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				lastErr = err
			}
			ticker.Reset(b.Duration())
		}
	}
}
