package pipeline_test

import (
	"context"
	"errors"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/mock/gomock"

	//nolint:revive // dot imports are fine for Ginkgo
	. "github.com/onsi/ginkgo/v2"
	//nolint:revive // dot imports are fine for Ginkgo
	. "github.com/onsi/gomega"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/pipeline"
	"github.com/lazy-account/lazyaccount/submitter"
	"github.com/lazy-account/lazyaccount/testutil"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

var (
	validator      = common.HexToAddress("0x2483DA3A338895199E5e538530213157e931Bf06")
	otherValidator = common.HexToAddress("0x503b54Ed1E62365F0c9e4caF1479623b08acbe77")
	recipient      = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

var _ = Describe("User operation pipeline", func() {
	var (
		ctx    context.Context
		chain  *testutil.Chain
		sub    *submitter.Submitter
		owner  *userop.ECDSASigner
		acc    *account.SmartAccount
		sender common.Address
		await  submitter.AwaitOptions
	)

	transfer := func(wei int64) []types.Execution {
		return []types.Execution{{Target: recipient, Value: big.NewInt(wei), CallData: []byte{}}}
	}

	newPipeline := func(signer userop.Signer, opts ...pipeline.Option) *pipeline.Pipeline {
		p, err := pipeline.New(chain, sub, signer, append([]pipeline.Option{pipeline.WithAwaitOptions(await)}, opts...)...)
		Expect(err).To(BeNil())
		return p
	}

	BeforeEach(func() {
		ctx = context.Background()
		chain = testutil.NewChain()
		await = submitter.AwaitOptions{Timeout: 2 * time.Second, PollInterval: time.Millisecond, MaxPollInterval: 5 * time.Millisecond}

		bundlerKey, err := crypto.HexToECDSA("8f2a55949038a9610f50fb23b5883af3b4ecb3c3bb792cbcefbd1542c692be63")
		Expect(err).To(BeNil())
		opts, err := bind.NewKeyedTransactorWithChainID(bundlerKey, testutil.DefaultChainID)
		Expect(err).To(BeNil())
		sub, err = submitter.New(chain, opts, submitter.DefaultConfig(), nil)
		Expect(err).To(BeNil())

		owner, err = userop.NewECDSASignerFromHex("0x0000000000000000000000000000000000000000000000000000000000000001")
		Expect(err).To(BeNil())

		impl, err := account.NewImplementation(types.AccountKindSafe7579, chain, account.DefaultSafe7579Config(), nil)
		Expect(err).To(BeNil())
		acc, err = account.NewSmartAccount(impl, chain)
		Expect(err).To(BeNil())
		_, err = acc.Plan(ctx, account.PlanRequest{
			Owners:     []common.Address{owner.Address()},
			Validators: []common.Address{validator, otherValidator},
		})
		Expect(err).To(BeNil())
		var ok bool
		sender, ok = acc.Address()
		Expect(ok).To(BeTrue())
	})

	Describe("an undeployed account", func() {
		It("deploys with the first operation and drops the init code afterwards", func() {
			p := newPipeline(owner, pipeline.WithHashCheck())

			first, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator, Executions: transfer(1)})
			Expect(err).To(BeNil())
			Expect(first.Status).To(Equal(submitter.StatusIncluded))
			Expect(first.Op.InitCode).ToNot(BeEmpty())
			Expect(first.Receipt.Deployed).To(ContainElement(sender))
			Expect(acc.Deployed()).To(BeTrue())
			Expect(acc.InitCode()).To(BeEmpty())
			Expect(chain.Calls("getUserOpHash")).To(Equal(1))

			recovered, err := userop.RecoverSigner(first.UserOpHash, first.Op.Signature)
			Expect(err).To(BeNil())
			Expect(recovered).To(Equal(owner.Address()))

			second, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator, Executions: transfer(2)})
			Expect(err).To(BeNil())
			Expect(second.Status).To(Equal(submitter.StatusIncluded))
			Expect(second.Op.InitCode).To(BeEmpty())

			key, seq := nonce.Split(second.Op.Nonce)
			Expect(key.Equal(nonce.DeriveKey(validator))).To(BeTrue())
			Expect(seq).To(Equal(uint64(1)))
		})

		It("notices a deployment made elsewhere", func() {
			chain.SetCode(sender, []byte{0x60, 0x80})
			p := newPipeline(owner)

			res, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator})
			Expect(err).To(BeNil())
			Expect(res.Op.InitCode).To(BeEmpty())
			Expect(res.Receipt.Deployed).To(BeEmpty())
			Expect(acc.Deployed()).To(BeTrue())
		})
	})

	Describe("a deployed account", func() {
		BeforeEach(func() {
			chain.SetCode(sender, []byte{0x60, 0x80})
			acc.MarkDeployed()
		})

		It("orders concurrent operations on one lane and keeps lanes independent", func() {
			p := newPipeline(owner)

			var reqs []pipeline.Request
			for i := 0; i < 4; i++ {
				reqs = append(reqs, pipeline.Request{Account: acc, Validator: validator, Executions: transfer(int64(i))})
			}
			reqs = append(reqs, pipeline.Request{Account: acc, Validator: otherValidator, Executions: transfer(9)})

			results, err := p.RunAll(ctx, reqs)
			Expect(err).To(BeNil())
			Expect(results).To(HaveLen(len(reqs)))

			var seqs []int
			for _, res := range results[:4] {
				Expect(res.Status).To(Equal(submitter.StatusIncluded))
				_, seq := nonce.Split(res.Op.Nonce)
				seqs = append(seqs, int(seq))
			}
			sort.Ints(seqs)
			Expect(seqs).To(Equal([]int{0, 1, 2, 3}))

			key, seq := nonce.Split(results[4].Op.Nonce)
			Expect(nonce.ValidatorOf(key)).To(Equal(otherValidator))
			Expect(seq).To(BeZero())
			Expect(chain.Sent()).To(HaveLen(5))
		})

		It("joins per-request failures without stopping the rest of the batch", func() {
			p := newPipeline(owner, pipeline.WithMaxConcurrency(1))

			reqs := []pipeline.Request{
				{Account: acc, Validator: validator, Executions: transfer(1)},
				{Account: acc, Executions: transfer(2)},
				{Account: acc, Validator: otherValidator, Executions: transfer(3)},
			}
			results, err := p.RunAll(ctx, reqs)
			Expect(errors.Is(err, types.ErrInvalidConfiguration)).To(BeTrue())
			Expect(results[0].Status).To(Equal(submitter.StatusIncluded))
			Expect(results[1].Op.Sender).To(Equal(common.Address{}))
			Expect(results[2].Status).To(Equal(submitter.StatusIncluded))
			Expect(chain.Sent()).To(HaveLen(2))
		})

		It("reports a reverted operation and still advances the nonce", func() {
			chain.FailOps(sender, "transfer failed")
			p := newPipeline(owner)

			res, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator, Executions: transfer(1)})
			Expect(errors.Is(err, types.ErrReverted)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("transfer failed"))
			Expect(res.Status).To(Equal(submitter.StatusReverted))

			seq, err := nonce.CurrentSequence(ctx, chain, sub.EntryPoint(), sender, nonce.DeriveKey(validator))
			Expect(err).To(BeNil())
			Expect(seq).To(Equal(uint64(1)))
		})

		It("stops at timed out without resubmitting", func() {
			chain.Hold(true)
			await.Timeout = 30 * time.Millisecond
			p := newPipeline(owner)

			res, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator})
			Expect(errors.Is(err, types.ErrTimedOut)).To(BeTrue())
			Expect(res.Status).To(Equal(submitter.StatusTimedOut))
			Expect(res.Submission.TxHash).To(Equal(res.Receipt.TxHash))
			Expect(chain.Calls("eth_sendRawTransaction")).To(Equal(1))
		})

		It("returns the caller's cancellation while awaiting", func() {
			chain.Hold(true)
			p := newPipeline(owner)

			cctx, cancel := context.WithCancel(ctx)
			time.AfterFunc(10*time.Millisecond, cancel)
			res, err := p.Run(cctx, pipeline.Request{Account: acc, Validator: validator})
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(res.Status).To(Equal(submitter.StatusSubmitted))
		})

		It("submits nothing when signing fails", func() {
			ctrl := gomock.NewController(GinkgoT())
			signer := userop.NewMockSigner(ctrl)
			signer.EXPECT().SignHash(gomock.Any(), gomock.Any()).Return(nil, errors.New("device locked"))
			p := newPipeline(signer)

			res, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator})
			Expect(errors.Is(err, types.ErrNotSigned)).To(BeTrue())
			Expect(res.Status).To(Equal(submitter.StatusBuilt))
			Expect(chain.Calls("eth_sendRawTransaction")).To(BeZero())
		})

		It("surfaces a failed nonce lookup as retryable", func() {
			chain.SetCallError(errors.New("connection reset"))
			p := newPipeline(owner)

			_, err := p.Run(ctx, pipeline.Request{Account: acc, Validator: validator})
			Expect(errors.Is(err, types.ErrLookupFailed)).To(BeTrue())
			Expect(types.IsRetryable(err)).To(BeTrue())
		})
	})

	It("rejects a request without a validator", func() {
		p := newPipeline(owner)
		_, err := p.Run(ctx, pipeline.Request{Account: acc})
		Expect(errors.Is(err, types.ErrInvalidConfiguration)).To(BeTrue())
	})
})
