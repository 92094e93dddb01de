package client_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/testutil"
)

// receiptBackend returns pollErr (NotFound when unset) until ready polls have been made.
type receiptBackend struct {
	*testutil.Chain
	ready   int
	polls   int
	pollErr error
}

func (b *receiptBackend) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	b.polls++
	if b.polls <= b.ready {
		if b.pollErr != nil {
			return nil, b.pollErr
		}
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func TestWaitForReceipt(t *testing.T) {
	fast := client.PollOptions{Interval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

	t.Run("found after a few polls", func(t *testing.T) {
		backend := &receiptBackend{Chain: testutil.NewChain(), ready: 3}
		opts := fast
		opts.Timeout = 5 * time.Second

		receipt, err := client.WaitForReceipt(context.Background(), backend, common.Hash{0x01}, opts)
		require.NoError(t, err)
		require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
		require.Equal(t, 4, backend.polls)
	})

	t.Run("timeout", func(t *testing.T) {
		backend := &receiptBackend{Chain: testutil.NewChain(), ready: 1 << 30}
		opts := fast
		opts.Timeout = 20 * time.Millisecond

		_, err := client.WaitForReceipt(context.Background(), backend, common.Hash{0x02}, opts)
		require.ErrorIs(t, err, client.ErrReceiptTimeout)
	})

	t.Run("timeout keeps the last rpc error", func(t *testing.T) {
		refused := errors.New("dial tcp 127.0.0.1:8545: connection refused")
		backend := &receiptBackend{Chain: testutil.NewChain(), ready: 1 << 30, pollErr: refused}
		opts := fast
		opts.Timeout = 30 * time.Millisecond

		_, err := client.WaitForReceipt(context.Background(), backend, common.Hash{0x04}, opts)
		require.ErrorIs(t, err, client.ErrReceiptTimeout)
		require.ErrorIs(t, err, refused)
		require.ErrorContains(t, err, "connection refused")
	})

	t.Run("transient rpc error then receipt", func(t *testing.T) {
		backend := &receiptBackend{Chain: testutil.NewChain(), ready: 2, pollErr: errors.New("502 bad gateway")}
		opts := fast
		opts.Timeout = 5 * time.Second

		receipt, err := client.WaitForReceipt(context.Background(), backend, common.Hash{0x05}, opts)
		require.NoError(t, err)
		require.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		backend := &receiptBackend{Chain: testutil.NewChain(), ready: 1 << 30}
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := client.WaitForReceipt(ctx, backend, common.Hash{0x03}, fast)
		require.ErrorIs(t, err, context.Canceled)
		require.False(t, errors.Is(err, client.ErrReceiptTimeout))
	})
}

func TestIsDeployed(t *testing.T) {
	chain := testutil.NewChain()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	deployed, err := client.IsDeployed(context.Background(), chain, addr)
	require.NoError(t, err)
	require.False(t, deployed)

	chain.SetCode(addr, []byte{0x60, 0x80})
	deployed, err = client.IsDeployed(context.Background(), chain, addr)
	require.NoError(t, err)
	require.True(t, deployed)

	chain.SetCallError(errors.New("connection refused"))
	_, err = client.IsDeployed(context.Background(), chain, addr)
	require.ErrorContains(t, err, "connection refused")
}
