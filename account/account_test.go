package account

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/testutil"
	"github.com/lazy-account/lazyaccount/types"
)

func newTestAccount(t *testing.T, chain *testutil.Chain, opts ...Option) (*SmartAccount, types.DeploymentBundle) {
	t.Helper()
	impl, err := NewImplementation(types.AccountKindSafe7579, chain, DefaultSafe7579Config(), log.NewNopLogger())
	require.NoError(t, err)
	bundle, _, err := impl.PlanDeployment(context.Background(), PlanRequest{
		Owners:     []common.Address{owner1},
		Validators: []common.Address{validator},
	})
	require.NoError(t, err)
	acc, err := NewSmartAccount(impl, chain, append([]Option{WithDeployment(bundle)}, opts...)...)
	require.NoError(t, err)
	return acc, bundle
}

func TestNewImplementation(t *testing.T) {
	impl, err := NewImplementation(types.AccountKindSafe7579, testutil.NewChain(), DefaultSafe7579Config(), nil)
	require.NoError(t, err)
	require.Equal(t, types.AccountKindSafe7579, impl.Kind())

	_, err = NewImplementation(types.AccountKindKernel, testutil.NewChain(), DefaultSafe7579Config(), nil)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
	require.ErrorContains(t, err, "unsupported account kind")
}

func TestSmartAccountDeploymentLifecycle(t *testing.T) {
	chain := testutil.NewChain()
	acc, bundle := newTestAccount(t, chain)

	addr, ok := acc.Address()
	require.True(t, ok)
	require.Equal(t, bundle.PredictedAddress(), addr)
	require.Equal(t, bundle.InitCode(), acc.InitCode())
	require.False(t, acc.Deployed())

	deployed, err := acc.RefreshDeployment(context.Background())
	require.NoError(t, err)
	require.False(t, deployed)
	require.NotEmpty(t, acc.InitCode())

	chain.SetCode(addr, []byte{0x60, 0x80})
	deployed, err = acc.RefreshDeployment(context.Background())
	require.NoError(t, err)
	require.True(t, deployed)
	require.True(t, acc.Deployed())
	require.Empty(t, acc.InitCode())
	_, pending := acc.Deployment()
	require.False(t, pending)
}

func TestSmartAccountMarkDeployed(t *testing.T) {
	acc, _ := newTestAccount(t, testutil.NewChain())
	acc.MarkDeployed()
	require.Empty(t, acc.InitCode())
	_, ok := acc.Address()
	require.True(t, ok)
}

func TestSmartAccountOptions(t *testing.T) {
	chain := testutil.NewChain()
	impl, err := NewImplementation(types.AccountKindSafe7579, chain, DefaultSafe7579Config(), nil)
	require.NoError(t, err)
	bundle, _, err := impl.PlanDeployment(context.Background(), PlanRequest{Owners: []common.Address{owner1}})
	require.NoError(t, err)
	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	testCases := []struct {
		name   string
		opts   []Option
		expErr error
	}{
		{"address only", []Option{WithAddress(other)}, nil},
		{"matching address and bundle", []Option{WithAddress(bundle.PredictedAddress()), WithDeployment(bundle)}, nil},
		{"conflicting address and bundle", []Option{WithAddress(other), WithDeployment(bundle)}, types.ErrAddressMismatch},
		{"conflicting addresses", []Option{WithAddress(other), WithAddress(owner1)}, types.ErrAddressMismatch},
		{"zero address", []Option{WithAddress(common.Address{})}, types.ErrInvalidConfiguration},
		{"zero bundle", []Option{WithDeployment(types.DeploymentBundle{})}, types.ErrInvalidConfiguration},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSmartAccount(impl, chain, tc.opts...)
			if tc.expErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.expErr)
		})
	}

	_, err = NewSmartAccount(nil, chain)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

func TestSmartAccountPlan(t *testing.T) {
	chain := testutil.NewChain()
	impl, err := NewImplementation(types.AccountKindSafe7579, chain, DefaultSafe7579Config(), nil)
	require.NoError(t, err)
	acc, err := NewSmartAccount(impl, chain)
	require.NoError(t, err)

	_, ok := acc.Address()
	require.False(t, ok)
	_, err = acc.RefreshDeployment(context.Background())
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)

	bundle, err := acc.Plan(context.Background(), PlanRequest{Owners: []common.Address{owner1}})
	require.NoError(t, err)
	addr, ok := acc.Address()
	require.True(t, ok)
	require.Equal(t, bundle.PredictedAddress(), addr)

	// a different owner set predicts another address and cannot rebind the account
	_, err = acc.Plan(context.Background(), PlanRequest{Owners: []common.Address{owner2}})
	require.ErrorIs(t, err, types.ErrAddressMismatch)
}

func TestPlanMany(t *testing.T) {
	chain := testutil.NewChain()
	impl, err := NewImplementation(types.AccountKindSafe7579, chain, DefaultSafe7579Config(), nil)
	require.NoError(t, err)

	reqs := make([]PlanRequest, 8)
	for i := range reqs {
		reqs[i] = PlanRequest{Owners: []common.Address{owner1}, Salt: common.BigToHash(big.NewInt(int64(i)))}
	}

	results, err := PlanMany(context.Background(), impl, reqs, 3)
	require.NoError(t, err)
	require.Len(t, results, len(reqs))

	seen := make(map[common.Address]struct{})
	for i, req := range reqs {
		want, err := impl.PredictAddress(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, want, results[i].Address, "request %d", i)
		require.Equal(t, req.Salt, results[i].Bundle.Salt())
		seen[results[i].Address] = struct{}{}
	}
	require.Len(t, seen, len(reqs))

	reqs[5].Owners = nil
	_, err = PlanMany(context.Background(), impl, reqs, 0)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

func TestEncodeExecutions(t *testing.T) {
	testCases := []struct {
		name       string
		executions []types.Execution
	}{
		{"empty", []types.Execution{}},
		{"single", []types.Execution{{Target: owner1, Value: big.NewInt(1), CallData: []byte{0x01}}}},
		{
			"ordered batch",
			[]types.Execution{
				{Target: owner1, Value: big.NewInt(0), CallData: []byte{}},
				{Target: owner2, Value: big.NewInt(2), CallData: []byte{0xa9, 0x05, 0x9c, 0xbb}},
				{Target: validator, Value: big.NewInt(3), CallData: []byte{}},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeExecutions(tc.executions)
			require.NoError(t, err)

			got, err := DecodeExecutions(data)
			require.NoError(t, err)
			require.Len(t, got, len(tc.executions))
			for i, e := range tc.executions {
				require.Equal(t, e.Target, got[i].Target)
				require.Zero(t, e.Value.Cmp(got[i].Value))
				require.Equal(t, e.CallData, got[i].CallData)
			}
		})
	}

	_, err := DecodeExecutions([]byte{0x01, 0x02, 0x03, 0x04})
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}
