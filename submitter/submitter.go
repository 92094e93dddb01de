// Package submitter broadcasts signed user operations through EntryPoint.handleOps and
// tracks their inclusion.
package submitter

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/metrics"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

const DefaultHandleOpsGasLimit uint64 = 5_000_000

var (
	// DefaultMaxFeePerGas is the bundler transaction fee cap, 200 gwei.
	DefaultMaxFeePerGas = new(big.Int).Mul(big.NewInt(200), big.NewInt(params.GWei))
	// DefaultMaxPriorityFeePerGas is the bundler transaction tip cap, 1.5 gwei.
	DefaultMaxPriorityFeePerGas = big.NewInt(1_500_000_000)
)

// Config holds the handleOps transaction parameters.
type Config struct {
	EntryPoint           common.Address
	GasLimit             uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// DefaultConfig returns the v0.7 entry point with default gas settings.
func DefaultConfig() Config {
	return Config{
		EntryPoint:           contracts.DefaultEntryPoint,
		GasLimit:             DefaultHandleOpsGasLimit,
		MaxFeePerGas:         new(big.Int).Set(DefaultMaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(DefaultMaxPriorityFeePerGas),
	}
}

func (c Config) Validate() error {
	if c.EntryPoint == (common.Address{}) {
		return errorsmod.Wrap(types.ErrInvalidConfiguration, "entry point address is not set")
	}
	if c.GasLimit == 0 {
		return errorsmod.Wrap(types.ErrInvalidConfiguration, "handleOps gas limit is zero")
	}
	if c.MaxFeePerGas == nil || c.MaxFeePerGas.Sign() <= 0 {
		return errorsmod.Wrap(types.ErrInvalidConfiguration, "max fee per gas must be positive")
	}
	if c.MaxPriorityFeePerGas == nil || c.MaxPriorityFeePerGas.Sign() < 0 {
		return errorsmod.Wrap(types.ErrInvalidConfiguration, "max priority fee per gas must not be negative")
	}
	if c.MaxPriorityFeePerGas.Cmp(c.MaxFeePerGas) > 0 {
		return errorsmod.Wrap(types.ErrInvalidConfiguration, "max priority fee per gas exceeds max fee per gas")
	}
	return nil
}

// Submission identifies a broadcast handleOps transaction.
type Submission struct {
	TxHash       common.Hash
	UserOpHashes []common.Hash
	Ops          []types.PackedUserOperation
	SubmittedAt  time.Time
}

// OpResult is the on-chain outcome of one operation in the batch.
type OpResult struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
	RevertReason  string
}

// Receipt is the outcome of an included batch.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber *big.Int
	GasUsed     uint64
	Status      Status
	Results     []OpResult
	// Deployed lists accounts created by this batch.
	Deployed []common.Address
}

// AwaitOptions controls AwaitInclusion.
type AwaitOptions struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

// DefaultAwaitOptions polls from 1s up to 10s for at most two minutes.
func DefaultAwaitOptions() AwaitOptions {
	return AwaitOptions{
		Timeout:         2 * time.Minute,
		PollInterval:    time.Second,
		MaxPollInterval: 10 * time.Second,
	}
}

// Submitter sends handleOps transactions from a bundler account.
type Submitter struct {
	backend client.Backend
	opts    *bind.TransactOpts
	cfg     Config
	logger  log.Logger

	// serialises pending nonce reads and sends from the bundler account
	sendMu sync.Mutex
}

// New returns a Submitter. opts must carry the bundler From address and Signer.
func New(backend client.Backend, opts *bind.TransactOpts, cfg Config, logger log.Logger) (*Submitter, error) {
	if backend == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "backend is nil")
	}
	if opts == nil || opts.Signer == nil || opts.From == (common.Address{}) {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "transact opts need a sender and signer")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Submitter{
		backend: backend,
		opts:    opts,
		cfg:     cfg,
		logger:  logger.With("module", "submitter"),
	}, nil
}

// EntryPoint returns the entry point the submitter targets.
func (s *Submitter) EntryPoint() common.Address { return s.cfg.EntryPoint }

// ChainID reads the chain id from the backend.
func (s *Submitter) ChainID(ctx context.Context) (*big.Int, error) {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrLookupFailed, "chain id: %s", err)
	}
	return chainID, nil
}

// Submit broadcasts ops in a single handleOps transaction paying fees to beneficiary.
// Every op must be signed; nothing is sent otherwise. A broadcast error is ambiguous
// and is never retried here.
func (s *Submitter) Submit(ctx context.Context, ops []types.PackedUserOperation, beneficiary common.Address) (Submission, error) {
	if len(ops) == 0 {
		return Submission{}, errorsmod.Wrap(types.ErrInvalidConfiguration, "empty operation batch")
	}
	for i, op := range ops {
		if !op.IsSigned() {
			return Submission{}, errorsmod.Wrapf(types.ErrNotSigned, "op %d from %s nonce %s", i, op.Sender.Hex(), op.Nonce)
		}
	}
	if beneficiary == (common.Address{}) {
		beneficiary = s.opts.From
	}

	data, err := contracts.PackHandleOps(ops, beneficiary)
	if err != nil {
		return Submission{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}

	chainID, err := s.ChainID(ctx)
	if err != nil {
		return Submission{}, err
	}

	hashes := make([]common.Hash, len(ops))
	for i, op := range ops {
		if hashes[i], err = userop.Hash(op, s.cfg.EntryPoint, chainID); err != nil {
			return Submission{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
		}
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.opts.From)
	if err != nil {
		return Submission{}, errorsmod.Wrapf(types.ErrLookupFailed, "pending nonce of %s: %s", s.opts.From.Hex(), err)
	}

	entryPoint := s.cfg.EntryPoint
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: new(big.Int).Set(s.cfg.MaxPriorityFeePerGas),
		GasFeeCap: new(big.Int).Set(s.cfg.MaxFeePerGas),
		Gas:       s.cfg.GasLimit,
		To:        &entryPoint,
		Value:     new(big.Int),
		Data:      data,
	})
	signedTx, err := s.opts.Signer(s.opts.From, tx)
	if err != nil {
		return Submission{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "failed to sign handleOps transaction: %s", err)
	}

	if err := s.backend.SendTransaction(ctx, signedTx); err != nil {
		metrics.RecordSubmission(len(ops), err)
		s.logger.Error("handleOps broadcast failed", "nonce", nonce, "ops", len(ops), "err", err)
		return Submission{}, errorsmod.Wrapf(types.ErrSubmissionFailed, "tx %s: %s", signedTx.Hash().Hex(), err)
	}
	metrics.RecordSubmission(len(ops), nil)

	sub := Submission{
		TxHash:       signedTx.Hash(),
		UserOpHashes: hashes,
		Ops:          copyOps(ops),
		SubmittedAt:  time.Now(),
	}
	s.logger.Info("submitted handleOps", "tx", sub.TxHash.Hex(), "ops", len(ops), "nonce", nonce)
	return sub, nil
}

// AwaitInclusion waits for the submission's receipt. A timeout returns ErrTimedOut and
// a cancelled ctx returns ctx.Err() unchanged; neither affects the on-chain outcome.
// A reverted batch or a failed operation returns ErrReverted along with the receipt.
func (s *Submitter) AwaitInclusion(ctx context.Context, sub Submission, opts AwaitOptions) (Receipt, error) {
	raw, err := client.WaitForReceipt(ctx, s.backend, sub.TxHash, client.PollOptions{
		Timeout:     opts.Timeout,
		Interval:    opts.PollInterval,
		MaxInterval: opts.MaxPollInterval,
	})
	switch {
	case err == nil:
	case errors.Is(err, client.ErrReceiptTimeout):
		metrics.RecordTimedOut()
		s.logger.Info("inclusion not observed before deadline", "tx", sub.TxHash.Hex(), "timeout", opts.Timeout, "err", err)
		return Receipt{TxHash: sub.TxHash, Status: StatusTimedOut}, errorsmod.Wrapf(types.ErrTimedOut, "tx %s after %s: %s", sub.TxHash.Hex(), opts.Timeout, err)
	default:
		return Receipt{}, err
	}

	receipt := s.decodeReceipt(raw, sub)
	if raw.Status == ethtypes.ReceiptStatusFailed {
		receipt.Status = StatusReverted
		metrics.RecordReverted(sub.SubmittedAt)
		return receipt, errorsmod.Wrapf(types.ErrReverted, "handleOps tx %s failed", sub.TxHash.Hex())
	}

	var failures []string
	for _, res := range receipt.Results {
		if !res.Success {
			msg := fmt.Sprintf("op %s from %s", res.UserOpHash.Hex(), res.Sender.Hex())
			if res.RevertReason != "" {
				msg += ": " + res.RevertReason
			}
			failures = append(failures, msg)
		}
	}
	if missing := len(sub.UserOpHashes) - len(receipt.Results); missing > 0 {
		failures = append(failures, fmt.Sprintf("%d ops have no UserOperationEvent", missing))
	}
	if len(failures) > 0 {
		receipt.Status = StatusReverted
		metrics.RecordReverted(sub.SubmittedAt)
		return receipt, errorsmod.Wrap(types.ErrReverted, strings.Join(failures, "; "))
	}

	receipt.Status = StatusIncluded
	metrics.RecordIncluded(sub.SubmittedAt)
	s.logger.Info("handleOps included", "tx", sub.TxHash.Hex(), "block", receipt.BlockNumber, "gas_used", receipt.GasUsed)
	return receipt, nil
}

// decodeReceipt extracts the entry point events that belong to sub.
func (s *Submitter) decodeReceipt(raw *ethtypes.Receipt, sub Submission) Receipt {
	wanted := make(map[common.Hash]struct{}, len(sub.UserOpHashes))
	for _, h := range sub.UserOpHashes {
		wanted[h] = struct{}{}
	}

	reasons := make(map[common.Hash]string)
	var (
		events   []contracts.UserOperationEvent
		deployed []common.Address
	)
	for _, l := range raw.Logs {
		if l.Address != s.cfg.EntryPoint || len(l.Topics) == 0 {
			continue
		}
		switch l.Topics[0] {
		case contracts.UserOperationEventID:
			ev, err := contracts.ParseUserOperationEvent(l)
			if err != nil {
				s.logger.Error("failed to parse UserOperationEvent", "tx", raw.TxHash.Hex(), "err", err)
				continue
			}
			if _, ok := wanted[ev.UserOpHash]; ok {
				events = append(events, ev)
			}
		case contracts.UserOperationRevertReasonID:
			rr, err := contracts.ParseUserOperationRevertReason(l)
			if err != nil {
				s.logger.Error("failed to parse UserOperationRevertReason", "tx", raw.TxHash.Hex(), "err", err)
				continue
			}
			reasons[rr.UserOpHash] = contracts.DecodeRevert(rr.RevertReason)
		case contracts.AccountDeployedID:
			if len(l.Topics) >= 3 {
				deployed = append(deployed, common.BytesToAddress(l.Topics[2].Bytes()))
			}
		}
	}

	results := make([]OpResult, 0, len(events))
	for _, ev := range events {
		results = append(results, OpResult{
			UserOpHash:    ev.UserOpHash,
			Sender:        ev.Sender,
			Nonce:         ev.Nonce,
			Success:       ev.Success,
			ActualGasCost: ev.ActualGasCost,
			ActualGasUsed: ev.ActualGasUsed,
			RevertReason:  reasons[ev.UserOpHash],
		})
	}

	return Receipt{
		TxHash:      sub.TxHash,
		BlockNumber: raw.BlockNumber,
		GasUsed:     raw.GasUsed,
		Status:      StatusSubmitted,
		Results:     results,
		Deployed:    deployed,
	}
}

func copyOps(ops []types.PackedUserOperation) []types.PackedUserOperation {
	out := make([]types.PackedUserOperation, len(ops))
	for i, op := range ops {
		out[i] = op.Copy()
	}
	return out
}
