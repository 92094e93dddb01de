// Package pipeline runs the full lifecycle of a user operation: nonce lookup, build,
// sign, submit and await. Operations that share an (account, nonce key) lane run one
// at a time; independent lanes run concurrently.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/submitter"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

// Request is one batch of executions from one account.
type Request struct {
	Account *account.SmartAccount
	// Validator selects the nonce key and the module that checks the signature.
	Validator  common.Address
	Executions []types.Execution
	// Gas overrides the pipeline's gas profile when set.
	Gas              *userop.GasProfile
	PaymasterAndData []byte
}

// Result carries whatever the pipeline reached before returning.
type Result struct {
	Status     submitter.Status
	Op         types.PackedUserOperation
	UserOpHash common.Hash
	Submission submitter.Submission
	Receipt    submitter.Receipt
}

type lane struct {
	account common.Address
	key     types.NonceKey
}

// Pipeline owns the lanes and the collaborators of every step.
type Pipeline struct {
	caller    client.Caller
	submitter *submitter.Submitter
	signer    userop.Signer

	await       submitter.AwaitOptions
	gas         userop.GasProfile
	beneficiary common.Address
	verifyHash  bool
	maxParallel int
	logger      log.Logger

	mu    sync.Mutex
	lanes map[lane]*sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithAwaitOptions(opts submitter.AwaitOptions) Option {
	return func(p *Pipeline) { p.await = opts }
}

func WithGasProfile(g userop.GasProfile) Option {
	return func(p *Pipeline) { p.gas = g }
}

func WithBeneficiary(addr common.Address) Option {
	return func(p *Pipeline) { p.beneficiary = addr }
}

// WithHashCheck compares the local operation hash with the entry point's before signing.
func WithHashCheck() Option {
	return func(p *Pipeline) { p.verifyHash = true }
}

// WithMaxConcurrency bounds how many requests RunAll keeps in flight. Zero or less
// means no bound.
func WithMaxConcurrency(n int) Option {
	return func(p *Pipeline) { p.maxParallel = n }
}

func WithLogger(logger log.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// New returns a Pipeline.
func New(caller client.Caller, sub *submitter.Submitter, signer userop.Signer, opts ...Option) (*Pipeline, error) {
	if caller == nil || sub == nil || signer == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "pipeline needs a caller, submitter and signer")
	}
	p := &Pipeline{
		caller:    caller,
		submitter: sub,
		signer:    signer,
		await:     submitter.DefaultAwaitOptions(),
		gas:       userop.DefaultGasProfile(),
		logger:    log.NewNopLogger(),
		lanes:     make(map[lane]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("module", "pipeline")
	return p, nil
}

func (p *Pipeline) laneLock(l lane) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.lanes[l]
	if !ok {
		m = new(sync.Mutex)
		p.lanes[l] = m
	}
	return m
}

// Run executes req and waits for its outcome. The lane lock is held until the
// operation is included, reverted or timed out, so the next lookup on the same lane
// observes its effect.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	if req.Account == nil {
		return res, errorsmod.Wrap(types.ErrInvalidConfiguration, "request has no account")
	}
	sender, ok := req.Account.Address()
	if !ok {
		return res, errorsmod.Wrap(types.ErrInvalidConfiguration, "account address is unknown")
	}
	if req.Validator == (common.Address{}) {
		return res, errorsmod.Wrap(types.ErrInvalidConfiguration, "validator is not set")
	}
	key := nonce.DeriveKey(req.Validator)

	mu := p.laneLock(lane{account: sender, key: key})
	mu.Lock()
	defer mu.Unlock()

	logger := p.logger.With("account", sender.Hex(), "key", key.Hex())

	bundle, pending := req.Account.Deployment()
	if pending {
		deployed, err := req.Account.RefreshDeployment(ctx)
		if err != nil {
			return res, err
		}
		if deployed {
			logger.Info("account already deployed, dropping init code")
			pending = false
		}
	}

	n, err := nonce.Lookup(ctx, p.caller, p.submitter.EntryPoint(), sender, key)
	if err != nil {
		return res, err
	}

	callData, err := req.Account.EncodeExecutions(req.Executions)
	if err != nil {
		return res, err
	}

	gas := p.gas
	if req.Gas != nil {
		gas = *req.Gas
	}
	b := userop.NewBuilder().
		Sender(sender).
		Nonce(n).
		CallData(callData).
		GasProfile(gas).
		PaymasterAndData(req.PaymasterAndData)
	if pending {
		b.InitCode(bundle)
	}
	op, err := b.Finalize()
	if err != nil {
		return res, err
	}
	res.Op = op
	res.Status = submitter.StatusBuilt

	chainID, err := p.submitter.ChainID(ctx)
	if err != nil {
		return res, err
	}
	if res.UserOpHash, err = userop.Hash(op, p.submitter.EntryPoint(), chainID); err != nil {
		return res, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	if p.verifyHash {
		remote, err := userop.RemoteHash(ctx, p.caller, p.submitter.EntryPoint(), op)
		if err != nil {
			return res, err
		}
		if remote != res.UserOpHash {
			return res, errorsmod.Wrapf(types.ErrInvalidConfiguration, "entry point hash %s differs from local hash %s", remote.Hex(), res.UserOpHash.Hex())
		}
	}

	signed, err := userop.Sign(ctx, op, p.signer, p.submitter.EntryPoint(), chainID)
	if err != nil {
		return res, err
	}
	res.Op = signed
	if err := advance(&res, submitter.StatusSigned); err != nil {
		return res, err
	}

	sub, err := p.submitter.Submit(ctx, []types.PackedUserOperation{signed}, p.beneficiary)
	if err != nil {
		return res, err
	}
	res.Submission = sub
	if err := advance(&res, submitter.StatusSubmitted); err != nil {
		return res, err
	}
	logger.Debug("operation submitted", "user_op", res.UserOpHash.Hex(), "tx", sub.TxHash.Hex(), "nonce", n)

	receipt, awaitErr := p.submitter.AwaitInclusion(ctx, sub, p.await)
	res.Receipt = receipt
	if receipt.Status.Terminal() {
		if err := advance(&res, receipt.Status); err != nil {
			return res, err
		}
	}
	if pending && deployedBy(receipt, sender) {
		req.Account.MarkDeployed()
		logger.Info("account deployed", "tx", sub.TxHash.Hex())
	}
	return res, awaitErr
}

// RunAll runs reqs concurrently, at most WithMaxConcurrency at a time. Requests on
// the same lane are still serialised. A failed request does not cancel the others:
// once submitted an operation is awaited to its outcome. Results are in request
// order and the returned error joins every per-request failure.
func (p *Pipeline) RunAll(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = p.Run(ctx, req)
			if errs[i] != nil {
				p.logger.Debug("request failed", "index", i, "err", errs[i])
			}
			return nil
		})
	}
	// the goroutines report through errs, so Wait only joins them
	_ = g.Wait()
	return results, errors.Join(errs...)
}

func advance(res *Result, next submitter.Status) error {
	if !res.Status.CanTransition(next) {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "invalid status transition %s -> %s", res.Status, next)
	}
	res.Status = next
	return nil
}

func deployedBy(receipt submitter.Receipt, sender common.Address) bool {
	for _, addr := range receipt.Deployed {
		if addr == sender {
			return true
		}
	}
	return false
}
