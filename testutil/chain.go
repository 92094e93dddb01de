// Package testutil provides an in-memory chain that answers the entry point, launchpad
// and proxy factory calls the client makes.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

// ErrExecutionReverted is returned for calls the chain does not understand.
var ErrExecutionReverted = errors.New("execution reverted")

// DefaultChainID is the chain id of a new Chain.
var DefaultChainID = big.NewInt(1337)

// DefaultProxyCreationCode is the bytecode the fake factory reports.
var DefaultProxyCreationCode = common.FromHex("0x608060405234801561001057600080fd5b5060405161017138038061017183398101604081905261002f916100b9565b")

// deployedCode is stored at accounts created through handleOps.
var deployedCode = common.FromHex("0x6080604052")

type nonceSlot struct {
	sender common.Address
	key    [24]byte
}

type pendingReceipt struct {
	receipt *ethtypes.Receipt
	polls   int
}

// Chain is a concurrency-safe in-memory client.Backend.
type Chain struct {
	mu sync.Mutex

	chainID    *big.Int
	entryPoint common.Address
	launchpad  common.Address
	factory    common.Address
	proxyCode  []byte

	code         map[common.Address][]byte
	nonces       map[nonceSlot]uint64
	senderNonces map[common.Address]uint64
	receipts     map[common.Hash]*pendingReceipt
	sent         []*ethtypes.Transaction
	block        uint64

	inclusionDelay int
	hold           bool
	callErr        error
	sendErr        error
	receiptErr     error
	failingOps     map[common.Address]string
	calls          map[string]int
}

var _ client.Backend = (*Chain)(nil)

// NewChain returns a chain with the canonical entry point, launchpad and factory.
func NewChain() *Chain {
	return &Chain{
		chainID:      new(big.Int).Set(DefaultChainID),
		entryPoint:   contracts.DefaultEntryPoint,
		launchpad:    contracts.DefaultSafe7579Launchpad,
		factory:      contracts.DefaultSafeProxyFactory,
		proxyCode:    common.CopyBytes(DefaultProxyCreationCode),
		code:         make(map[common.Address][]byte),
		nonces:       make(map[nonceSlot]uint64),
		senderNonces: make(map[common.Address]uint64),
		receipts:     make(map[common.Hash]*pendingReceipt),
		failingOps:   make(map[common.Address]string),
		calls:        make(map[string]int),
	}
}

// PredictAddress computes the proxy address the fake launchpad reports:
// CREATE2(factory, keccak(keccak(initializer) ‖ salt), keccak(creationCode ‖ uint256(singleton))).
func PredictAddress(factory, singleton common.Address, creationCode []byte, salt common.Hash, initializer []byte) common.Address {
	saltPrime := crypto.Keccak256Hash(crypto.Keccak256(initializer), salt.Bytes())
	deployment := append(common.CopyBytes(creationCode), common.LeftPadBytes(singleton.Bytes(), 32)...)
	return crypto.CreateAddress2(factory, saltPrime, crypto.Keccak256(deployment))
}

func (c *Chain) EntryPoint() common.Address { return c.entryPoint }

// SetInclusionDelay makes receipts appear only after n polls.
func (c *Chain) SetInclusionDelay(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inclusionDelay = n
}

// Hold keeps every new transaction pending forever.
func (c *Chain) Hold(hold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = hold
}

// SetCallError makes every read-only call fail with err.
func (c *Chain) SetCallError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErr = err
}

// SetReceiptError makes TransactionReceipt fail with err, as an unreachable node would.
func (c *Chain) SetReceiptError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptErr = err
}

// SetSendError makes SendTransaction fail with err.
func (c *Chain) SetSendError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// FailOps makes every operation from sender execute unsuccessfully with reason.
func (c *Chain) FailOps(sender common.Address, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failingOps[sender] = reason
}

// SetProxyCreationCode replaces the bytecode the factory reports.
func (c *Chain) SetProxyCreationCode(code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proxyCode = common.CopyBytes(code)
}

// SetCode installs code at addr.
func (c *Chain) SetCode(addr common.Address, code []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = common.CopyBytes(code)
}

// SetNonce sets the entry point sequence of (sender, key).
func (c *Chain) SetNonce(sender common.Address, key types.NonceKey, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nonces[nonceSlot{sender: sender, key: key.Bytes24()}] = seq
}

// Sent returns the transactions accepted so far.
func (c *Chain) Sent() []*ethtypes.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ethtypes.Transaction, len(c.sent))
	copy(out, c.sent)
	return out
}

// Calls returns how often the named method was called.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_chainId"]++
	return new(big.Int).Set(c.chainID), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_getTransactionCount"]++
	return c.senderNonces[account], nil
}

func (c *Chain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_getCode"]++
	if c.callErr != nil {
		return nil, c.callErr
	}
	return common.CopyBytes(c.code[account]), nil
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.callErr != nil {
		return nil, c.callErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, ErrExecutionReverted
	}

	switch *msg.To {
	case c.entryPoint:
		return c.callEntryPoint(msg.Data)
	case c.launchpad:
		return c.callLaunchpad(msg.Data)
	case c.factory:
		return c.callFactory(msg.Data)
	}
	return nil, ErrExecutionReverted
}

func (c *Chain) callEntryPoint(data []byte) ([]byte, error) {
	switch method := methodOf(contracts.EntryPointABI, data); method {
	case "getNonce":
		c.calls[method]++
		sender, key, err := contracts.UnpackGetNonceCall(data)
		if err != nil {
			return nil, err
		}
		k, overflow := uint256.FromBig(key)
		if overflow {
			return nil, ErrExecutionReverted
		}
		nk := types.NewNonceKey(k)
		seq := c.nonces[nonceSlot{sender: sender, key: nk.Bytes24()}]
		return contracts.EntryPointABI.Methods[method].Outputs.Pack(nonce.Compose(nk, seq))
	case "getUserOpHash":
		c.calls[method]++
		op, err := contracts.UnpackGetUserOpHashCall(data)
		if err != nil {
			return nil, err
		}
		h, err := userop.Hash(op, c.entryPoint, c.chainID)
		if err != nil {
			return nil, err
		}
		return contracts.EntryPointABI.Methods[method].Outputs.Pack(h)
	}
	return nil, ErrExecutionReverted
}

func (c *Chain) callLaunchpad(data []byte) ([]byte, error) {
	switch method := methodOf(contracts.Safe7579LaunchpadABI, data); method {
	case "hash":
		c.calls[method]++
		if _, err := contracts.UnpackHashCall(data); err != nil {
			return nil, err
		}
		return contracts.Safe7579LaunchpadABI.Methods[method].Outputs.Pack(crypto.Keccak256Hash(data[4:]))
	case "predictSafeAddress":
		c.calls[method]++
		args, err := contracts.UnpackPredictSafeAddressCall(data)
		if err != nil {
			return nil, err
		}
		addr := PredictAddress(args.SafeProxyFactory, args.Singleton, args.CreationCode, args.Salt, args.FactoryInitializer)
		return contracts.Safe7579LaunchpadABI.Methods[method].Outputs.Pack(addr)
	}
	return nil, ErrExecutionReverted
}

func (c *Chain) callFactory(data []byte) ([]byte, error) {
	if method := methodOf(contracts.SafeProxyFactoryABI, data); method == "proxyCreationCode" {
		c.calls[method]++
		return contracts.SafeProxyFactoryABI.Methods[method].Outputs.Pack(common.CopyBytes(c.proxyCode))
	}
	return nil, ErrExecutionReverted
}

// SendTransaction executes a handleOps transaction. A batch with an invalid operation
// reverts as a whole; an operation whose sender was registered with FailOps is
// included with success=false.
func (c *Chain) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_sendRawTransaction"]++
	if c.sendErr != nil {
		return c.sendErr
	}

	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := c.senderNonces[from]; tx.Nonce() != want {
		return fmt.Errorf("nonce too low: have %d, want %d", tx.Nonce(), want)
	}
	if tx.To() == nil || *tx.To() != c.entryPoint {
		return fmt.Errorf("unexpected recipient")
	}
	ops, _, err := contracts.UnpackHandleOps(tx.Data())
	if err != nil {
		return err
	}

	c.senderNonces[from]++
	c.sent = append(c.sent, tx)
	c.block++

	receipt := &ethtypes.Receipt{
		Type:        tx.Type(),
		Status:      ethtypes.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(c.block),
		GasUsed:     21_000,
	}
	if logs, ok := c.execute(ops); ok {
		receipt.Logs = logs
	} else {
		receipt.Status = ethtypes.ReceiptStatusFailed
	}
	for i, l := range receipt.Logs {
		l.TxHash = receipt.TxHash
		l.BlockNumber = c.block
		l.Index = uint(i)
	}

	polls := c.inclusionDelay
	if c.hold {
		polls = -1
	}
	c.receipts[tx.Hash()] = &pendingReceipt{receipt: receipt, polls: polls}
	return nil
}

// execute validates every op before applying any of them, like handleOps does.
func (c *Chain) execute(ops []types.PackedUserOperation) ([]*ethtypes.Log, bool) {
	type validated struct {
		op     types.PackedUserOperation
		slot   nonceSlot
		seq    uint64
		deploy bool
	}
	checked := make([]validated, 0, len(ops))
	seen := make(map[nonceSlot]uint64)
	for _, op := range ops {
		deploy := false
		if op.HasInitCode() {
			if len(c.code[op.Sender]) > 0 || !c.deploysSender(op) {
				return nil, false
			}
			deploy = true
		} else if len(c.code[op.Sender]) == 0 {
			return nil, false
		}

		key, seq := nonce.Split(op.Nonce)
		slot := nonceSlot{sender: op.Sender, key: key.Bytes24()}
		want, ok := seen[slot]
		if !ok {
			want = c.nonces[slot]
		}
		if seq != want {
			return nil, false
		}
		seen[slot] = want + 1
		checked = append(checked, validated{op: op, slot: slot, seq: seq, deploy: deploy})
	}

	var logs []*ethtypes.Log
	for _, v := range checked {
		hash, err := userop.Hash(v.op, c.entryPoint, c.chainID)
		if err != nil {
			return nil, false
		}
		c.nonces[v.slot] = v.seq + 1
		if v.deploy {
			c.code[v.op.Sender] = common.CopyBytes(deployedCode)
			factory, _, _ := types.SplitInitCode(v.op.InitCode)
			logs = append(logs, c.accountDeployedLog(hash, v.op.Sender, factory))
		}

		reason, failing := c.failingOps[v.op.Sender]
		if failing {
			logs = append(logs, c.revertReasonLog(hash, v.op, reason))
		}
		logs = append(logs, c.userOperationLog(hash, v.op, !failing))
	}
	return logs, true
}

func (c *Chain) deploysSender(op types.PackedUserOperation) bool {
	factory, data, err := types.SplitInitCode(op.InitCode)
	if err != nil || factory != c.factory {
		return false
	}
	args, err := contracts.UnpackCreateProxyWithNonce(data)
	if err != nil {
		return false
	}
	salt := common.BigToHash(args.SaltNonce)
	return PredictAddress(c.factory, args.Singleton, c.proxyCode, salt, args.Initializer) == op.Sender
}

func (c *Chain) userOperationLog(hash common.Hash, op types.PackedUserOperation, success bool) *ethtypes.Log {
	ev := contracts.EntryPointABI.Events["UserOperationEvent"]
	data, _ := ev.Inputs.NonIndexed().Pack(op.Nonce, success, big.NewInt(1_000_000), big.NewInt(100_000))
	return &ethtypes.Log{
		Address: c.entryPoint,
		Topics:  []common.Hash{ev.ID, hash, common.BytesToHash(op.Sender.Bytes()), {}},
		Data:    data,
	}
}

func (c *Chain) revertReasonLog(hash common.Hash, op types.PackedUserOperation, reason string) *ethtypes.Log {
	ev := contracts.EntryPointABI.Events["UserOperationRevertReason"]
	data, _ := ev.Inputs.NonIndexed().Pack(op.Nonce, encodeRevert(reason))
	return &ethtypes.Log{
		Address: c.entryPoint,
		Topics:  []common.Hash{ev.ID, hash, common.BytesToHash(op.Sender.Bytes())},
		Data:    data,
	}
}

func (c *Chain) accountDeployedLog(hash common.Hash, sender, factory common.Address) *ethtypes.Log {
	ev := contracts.EntryPointABI.Events["AccountDeployed"]
	data, _ := ev.Inputs.NonIndexed().Pack(factory, common.Address{})
	return &ethtypes.Log{
		Address: c.entryPoint,
		Topics:  []common.Hash{ev.ID, hash, common.BytesToHash(sender.Bytes())},
		Data:    data,
	}
}

// TransactionReceipt returns ethereum.NotFound until the inclusion delay has elapsed.
func (c *Chain) TransactionReceipt(_ context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["eth_getTransactionReceipt"]++
	if c.receiptErr != nil {
		return nil, c.receiptErr
	}
	p, ok := c.receipts[txHash]
	if !ok || p.polls < 0 {
		return nil, ethereum.NotFound
	}
	if p.polls > 0 {
		p.polls--
		return nil, ethereum.NotFound
	}
	return p.receipt, nil
}

func methodOf(parsed abi.ABI, data []byte) string {
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return ""
	}
	return m.Name
}

var revertSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

func encodeRevert(reason string) []byte {
	stringTy, _ := abi.NewType("string", "", nil)
	enc, _ := abi.Arguments{{Type: stringTy}}.Pack(reason)
	return append(bytes.Clone(revertSelector), enc...)
}
