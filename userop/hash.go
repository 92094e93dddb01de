package userop

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/types"
)

var (
	packedOpArgs abi.Arguments
	hashArgs     abi.Arguments
)

func init() {
	address, _ := abi.NewType("address", "", nil)
	uint256Ty, _ := abi.NewType("uint256", "", nil)
	bytes32, _ := abi.NewType("bytes32", "", nil)

	packedOpArgs = abi.Arguments{
		{Type: address},   // sender
		{Type: uint256Ty}, // nonce
		{Type: bytes32},   // keccak(initCode)
		{Type: bytes32},   // keccak(callData)
		{Type: bytes32},   // accountGasLimits
		{Type: uint256Ty}, // preVerificationGas
		{Type: bytes32},   // gasFees
		{Type: bytes32},   // keccak(paymasterAndData)
	}
	hashArgs = abi.Arguments{
		{Type: bytes32},
		{Type: address},
		{Type: uint256Ty},
	}
}

// Hash returns the EntryPoint v0.7 user operation hash. The signature is not covered.
func Hash(op types.PackedUserOperation, entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	nonce := op.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	pvg := op.PreVerificationGas
	if pvg == nil {
		pvg = new(big.Int)
	}
	if chainID == nil {
		chainID = new(big.Int)
	}

	packed, err := packedOpArgs.Pack(
		op.Sender,
		nonce,
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.AccountGasLimits,
		pvg,
		op.GasFees,
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, err
	}
	enc, err := hashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// RemoteHash asks the entry point for the hash of op. It is used to cross-check Hash
// against a deployment before signing.
func RemoteHash(ctx context.Context, caller client.Caller, entryPoint common.Address, op types.PackedUserOperation) (common.Hash, error) {
	data, err := contracts.PackGetUserOpHash(op)
	if err != nil {
		return common.Hash{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	ret, err := client.Call(ctx, caller, entryPoint, data)
	if err != nil {
		return common.Hash{}, errorsmod.Wrapf(types.ErrLookupFailed, "getUserOpHash on %s: %s", entryPoint.Hex(), err)
	}
	h, err := contracts.UnpackGetUserOpHash(ret)
	if err != nil {
		return common.Hash{}, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	return h, nil
}
