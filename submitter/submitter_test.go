package submitter

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/testutil"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

var (
	validator = common.HexToAddress("0x2483DA3A338895199E5e538530213157e931Bf06")
	fastAwait = AwaitOptions{Timeout: 2 * time.Second, PollInterval: time.Millisecond, MaxPollInterval: 5 * time.Millisecond}
)

type SubmitterTestSuite struct {
	suite.Suite

	chain     *testutil.Chain
	key       *ecdsa.PrivateKey
	signer    *userop.ECDSASigner
	submitter *Submitter
	sender    common.Address
}

func TestSubmitterTestSuite(t *testing.T) {
	suite.Run(t, new(SubmitterTestSuite))
}

func (s *SubmitterTestSuite) SetupTest() {
	var err error
	s.chain = testutil.NewChain()
	s.key, err = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	s.Require().NoError(err)
	s.signer = userop.NewECDSASigner(s.key)

	opts, err := bind.NewKeyedTransactorWithChainID(s.key, testutil.DefaultChainID)
	s.Require().NoError(err)
	s.submitter, err = New(s.chain, opts, DefaultConfig(), nil)
	s.Require().NoError(err)

	s.sender = common.HexToAddress("0x1111111111111111111111111111111111111111")
	s.chain.SetCode(s.sender, []byte{0x60, 0x80})
}

func (s *SubmitterTestSuite) op(seq uint64, signed bool) types.PackedUserOperation {
	op, err := userop.NewBuilder().
		Sender(s.sender).
		Nonce(nonce.Compose(nonce.DeriveKey(validator), seq)).
		CallData([]byte{0x01}).
		Finalize()
	s.Require().NoError(err)
	if !signed {
		return op
	}
	op, err = userop.Sign(context.Background(), op, s.signer, s.submitter.EntryPoint(), testutil.DefaultChainID)
	s.Require().NoError(err)
	return op
}

func (s *SubmitterTestSuite) TestSubmitRejectsUnsignedBeforeNetwork() {
	_, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true), s.op(1, false)}, common.Address{})
	s.Require().ErrorIs(err, types.ErrNotSigned)
	s.Require().Equal(types.ClassConfiguration, types.Classify(err))
	s.Require().Zero(s.chain.Calls("eth_chainId"))
	s.Require().Zero(s.chain.Calls("eth_getTransactionCount"))
	s.Require().Zero(s.chain.Calls("eth_sendRawTransaction"))
}

func (s *SubmitterTestSuite) TestSubmitEmptyBatch() {
	_, err := s.submitter.Submit(context.Background(), nil, common.Address{})
	s.Require().ErrorIs(err, types.ErrInvalidConfiguration)
	s.Require().Zero(s.chain.Calls("eth_sendRawTransaction"))
}

func (s *SubmitterTestSuite) TestSubmitAndInclude() {
	ctx := context.Background()
	op := s.op(0, true)

	sub, err := s.submitter.Submit(ctx, []types.PackedUserOperation{op}, common.Address{})
	s.Require().NoError(err)
	s.Require().Len(sub.UserOpHashes, 1)
	s.Require().Len(s.chain.Sent(), 1)
	s.Require().Equal(sub.TxHash, s.chain.Sent()[0].Hash())

	wantHash, err := userop.Hash(op, s.submitter.EntryPoint(), testutil.DefaultChainID)
	s.Require().NoError(err)
	s.Require().Equal(wantHash, sub.UserOpHashes[0])

	receipt, err := s.submitter.AwaitInclusion(ctx, sub, fastAwait)
	s.Require().NoError(err)
	s.Require().Equal(StatusIncluded, receipt.Status)
	s.Require().Equal(sub.TxHash, receipt.TxHash)
	s.Require().Len(receipt.Results, 1)
	s.Require().True(receipt.Results[0].Success)
	s.Require().Equal(s.sender, receipt.Results[0].Sender)
	s.Require().Equal(wantHash, receipt.Results[0].UserOpHash)
	s.Require().Empty(receipt.Deployed)

	// the bundler nonce advances for the next batch
	sub2, err := s.submitter.Submit(ctx, []types.PackedUserOperation{s.op(1, true)}, common.Address{})
	s.Require().NoError(err)
	s.Require().Equal(uint64(1), s.chain.Sent()[1].Nonce())
	_, err = s.submitter.AwaitInclusion(ctx, sub2, fastAwait)
	s.Require().NoError(err)
}

func (s *SubmitterTestSuite) TestAwaitWithInclusionDelay() {
	s.chain.SetInclusionDelay(3)
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().NoError(err)

	receipt, err := s.submitter.AwaitInclusion(context.Background(), sub, fastAwait)
	s.Require().NoError(err)
	s.Require().Equal(StatusIncluded, receipt.Status)
	s.Require().GreaterOrEqual(s.chain.Calls("eth_getTransactionReceipt"), 4)
}

func (s *SubmitterTestSuite) TestAwaitTimeout() {
	s.chain.Hold(true)
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().NoError(err)

	opts := fastAwait
	opts.Timeout = 30 * time.Millisecond
	receipt, err := s.submitter.AwaitInclusion(context.Background(), sub, opts)
	s.Require().ErrorIs(err, types.ErrTimedOut)
	s.Require().Equal(StatusTimedOut, receipt.Status)
	s.Require().Equal(sub.TxHash, receipt.TxHash)
	s.Require().False(types.IsRetryable(err))
	// nothing is resent
	s.Require().Equal(1, s.chain.Calls("eth_sendRawTransaction"))
}

func (s *SubmitterTestSuite) TestAwaitTimeoutCarriesRPCError() {
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().NoError(err)
	s.chain.SetReceiptError(errors.New("connection refused"))

	opts := fastAwait
	opts.Timeout = 30 * time.Millisecond
	receipt, err := s.submitter.AwaitInclusion(context.Background(), sub, opts)
	s.Require().ErrorIs(err, types.ErrTimedOut)
	s.Require().ErrorContains(err, "connection refused")
	s.Require().Equal(StatusTimedOut, receipt.Status)
	s.Require().Equal(types.ClassSubmission, types.Classify(err))
	s.Require().False(types.IsRetryable(err))
	s.Require().Equal(1, s.chain.Calls("eth_sendRawTransaction"))
}

func (s *SubmitterTestSuite) TestAwaitCancelled() {
	s.chain.Hold(true)
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err = s.submitter.AwaitInclusion(ctx, sub, fastAwait)
	s.Require().ErrorIs(err, context.Canceled)
	s.Require().False(errors.Is(err, types.ErrTimedOut))
}

func (s *SubmitterTestSuite) TestOperationReverted() {
	s.chain.FailOps(s.sender, "AA23 insufficient allowance")
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().NoError(err)

	receipt, err := s.submitter.AwaitInclusion(context.Background(), sub, fastAwait)
	s.Require().ErrorIs(err, types.ErrReverted)
	s.Require().ErrorContains(err, "AA23 insufficient allowance")
	s.Require().Equal(StatusReverted, receipt.Status)
	s.Require().Len(receipt.Results, 1)
	s.Require().False(receipt.Results[0].Success)
	s.Require().Equal("AA23 insufficient allowance", receipt.Results[0].RevertReason)
}

func (s *SubmitterTestSuite) TestBatchReverted() {
	// sequence 5 is not the next one, so the whole batch fails validation
	sub, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(5, true)}, common.Address{})
	s.Require().NoError(err)

	receipt, err := s.submitter.AwaitInclusion(context.Background(), sub, fastAwait)
	s.Require().ErrorIs(err, types.ErrReverted)
	s.Require().Equal(types.ClassOnChain, types.Classify(err))
	s.Require().Equal(StatusReverted, receipt.Status)
	s.Require().Empty(receipt.Results)
}

func (s *SubmitterTestSuite) TestBroadcastFailure() {
	s.chain.SetSendError(errors.New("insufficient funds for gas * price + value"))
	_, err := s.submitter.Submit(context.Background(), []types.PackedUserOperation{s.op(0, true)}, common.Address{})
	s.Require().ErrorIs(err, types.ErrSubmissionFailed)
	s.Require().Equal(types.ClassSubmission, types.Classify(err))
	s.Require().False(types.IsRetryable(err))
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name     string
		malleate func(c *Config)
		expPass  bool
	}{
		{"default", func(*Config) {}, true},
		{"no entry point", func(c *Config) { c.EntryPoint = common.Address{} }, false},
		{"zero gas limit", func(c *Config) { c.GasLimit = 0 }, false},
		{"nil max fee", func(c *Config) { c.MaxFeePerGas = nil }, false},
		{"tip above fee cap", func(c *Config) { c.MaxPriorityFeePerGas = new(big.Int).Add(c.MaxFeePerGas, big.NewInt(1)) }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.malleate(&cfg)
			err := cfg.Validate()
			if tc.expPass {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, types.ErrInvalidConfiguration)
		})
	}
}

func TestNewRequiresTransactOpts(t *testing.T) {
	_, err := New(testutil.NewChain(), nil, DefaultConfig(), nil)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
	_, err = New(nil, &bind.TransactOpts{}, DefaultConfig(), nil)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}
