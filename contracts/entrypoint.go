package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/lazy-account/lazyaccount/types"
)

var (
	// UserOperationEventID is topic0 of EntryPoint.UserOperationEvent.
	UserOperationEventID = EntryPointABI.Events["UserOperationEvent"].ID
	// UserOperationRevertReasonID is topic0 of EntryPoint.UserOperationRevertReason.
	UserOperationRevertReasonID = EntryPointABI.Events["UserOperationRevertReason"].ID
	// AccountDeployedID is topic0 of EntryPoint.AccountDeployed.
	AccountDeployedID = EntryPointABI.Events["AccountDeployed"].ID
)

// UserOperationEvent is the decoded EntryPoint.UserOperationEvent log.
type UserOperationEvent struct {
	UserOpHash    common.Hash
	Sender        common.Address
	Paymaster     common.Address
	Nonce         *big.Int
	Success       bool
	ActualGasCost *big.Int
	ActualGasUsed *big.Int
}

// UserOperationRevertReason is the decoded EntryPoint.UserOperationRevertReason log.
type UserOperationRevertReason struct {
	UserOpHash   common.Hash
	Sender       common.Address
	Nonce        *big.Int
	RevertReason []byte
}

// PackGetNonce packs EntryPoint.getNonce(sender, key).
func PackGetNonce(sender common.Address, key types.NonceKey) ([]byte, error) {
	data, err := EntryPointABI.Pack("getNonce", sender, key.Big())
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce: %w", err)
	}
	return data, nil
}

// UnpackGetNonce decodes the getNonce return value.
func UnpackGetNonce(ret []byte) (*big.Int, error) {
	out, err := EntryPointABI.Unpack("getNonce", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getNonce: %w", err)
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getNonce return type %T", out[0])
	}
	return nonce, nil
}

// UnpackGetNonceCall decodes getNonce calldata, selector included.
func UnpackGetNonceCall(calldata []byte) (common.Address, *big.Int, error) {
	var args struct {
		Sender common.Address
		Key    *big.Int
	}
	if err := unpackCall(EntryPointABI.Methods["getNonce"], calldata, &args); err != nil {
		return common.Address{}, nil, err
	}
	return args.Sender, args.Key, nil
}

// PackHandleOps packs EntryPoint.handleOps(ops, beneficiary).
func PackHandleOps(ops []types.PackedUserOperation, beneficiary common.Address) ([]byte, error) {
	data, err := EntryPointABI.Pack("handleOps", normalizeOps(ops), beneficiary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handleOps: %w", err)
	}
	return data, nil
}

// UnpackHandleOps decodes handleOps calldata, selector included.
func UnpackHandleOps(calldata []byte) ([]types.PackedUserOperation, common.Address, error) {
	method := EntryPointABI.Methods["handleOps"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return nil, common.Address{}, fmt.Errorf("not a handleOps call")
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to unpack handleOps: %w", err)
	}
	var args struct {
		Ops         []types.PackedUserOperation
		Beneficiary common.Address
	}
	if err := method.Inputs.Copy(&args, values); err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to copy handleOps arguments: %w", err)
	}
	return args.Ops, args.Beneficiary, nil
}

// PackGetUserOpHash packs EntryPoint.getUserOpHash(op).
func PackGetUserOpHash(op types.PackedUserOperation) ([]byte, error) {
	data, err := EntryPointABI.Pack("getUserOpHash", normalizeOp(op))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getUserOpHash: %w", err)
	}
	return data, nil
}

// UnpackGetUserOpHashCall decodes the operation of a getUserOpHash call.
func UnpackGetUserOpHashCall(calldata []byte) (types.PackedUserOperation, error) {
	var args struct{ UserOp types.PackedUserOperation }
	if err := unpackCall(EntryPointABI.Methods["getUserOpHash"], calldata, &args); err != nil {
		return types.PackedUserOperation{}, err
	}
	return args.UserOp, nil
}

// UnpackGetUserOpHash decodes the getUserOpHash return value.
func UnpackGetUserOpHash(ret []byte) (common.Hash, error) {
	out, err := EntryPointABI.Unpack("getUserOpHash", ret)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unpack getUserOpHash: %w", err)
	}
	h, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected getUserOpHash return type %T", out[0])
	}
	return common.Hash(h), nil
}

// ParseUserOperationEvent decodes a UserOperationEvent log.
func ParseUserOperationEvent(log *ethtypes.Log) (UserOperationEvent, error) {
	if len(log.Topics) != 4 || log.Topics[0] != UserOperationEventID {
		return UserOperationEvent{}, fmt.Errorf("log is not a UserOperationEvent")
	}
	var body struct {
		Nonce         *big.Int
		Success       bool
		ActualGasCost *big.Int
		ActualGasUsed *big.Int
	}
	if err := EntryPointABI.UnpackIntoInterface(&body, "UserOperationEvent", log.Data); err != nil {
		return UserOperationEvent{}, fmt.Errorf("failed to unpack UserOperationEvent: %w", err)
	}
	return UserOperationEvent{
		UserOpHash:    log.Topics[1],
		Sender:        common.BytesToAddress(log.Topics[2].Bytes()),
		Paymaster:     common.BytesToAddress(log.Topics[3].Bytes()),
		Nonce:         body.Nonce,
		Success:       body.Success,
		ActualGasCost: body.ActualGasCost,
		ActualGasUsed: body.ActualGasUsed,
	}, nil
}

// ParseUserOperationRevertReason decodes a UserOperationRevertReason log.
func ParseUserOperationRevertReason(log *ethtypes.Log) (UserOperationRevertReason, error) {
	if len(log.Topics) != 3 || log.Topics[0] != UserOperationRevertReasonID {
		return UserOperationRevertReason{}, fmt.Errorf("log is not a UserOperationRevertReason")
	}
	var body struct {
		Nonce        *big.Int
		RevertReason []byte
	}
	if err := EntryPointABI.UnpackIntoInterface(&body, "UserOperationRevertReason", log.Data); err != nil {
		return UserOperationRevertReason{}, fmt.Errorf("failed to unpack UserOperationRevertReason: %w", err)
	}
	return UserOperationRevertReason{
		UserOpHash:   log.Topics[1],
		Sender:       common.BytesToAddress(log.Topics[2].Bytes()),
		Nonce:        body.Nonce,
		RevertReason: body.RevertReason,
	}, nil
}

// DecodeRevert renders revert data as text. It understands Error(string) and the entry
// point's FailedOp errors and falls back to hex.
func DecodeRevert(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	for _, name := range []string{"FailedOp", "FailedOpWithRevert"} {
		abiErr := EntryPointABI.Errors[name]
		if len(data) < 4 || !bytes.Equal(data[:4], abiErr.ID[:4]) {
			continue
		}
		values, err := abiErr.Inputs.Unpack(data[4:])
		if err != nil || len(values) < 2 {
			break
		}
		return fmt.Sprintf("%s(op %v): %v", name, values[0], values[1])
	}
	return common.Bytes2Hex(data)
}

func normalizeOps(ops []types.PackedUserOperation) []types.PackedUserOperation {
	out := make([]types.PackedUserOperation, len(ops))
	for i, op := range ops {
		out[i] = normalizeOp(op)
	}
	return out
}

// normalizeOp replaces nil big.Int and byte slices, which abi.Pack rejects or encodes
// inconsistently.
func normalizeOp(op types.PackedUserOperation) types.PackedUserOperation {
	if op.Nonce == nil {
		op.Nonce = new(big.Int)
	}
	if op.PreVerificationGas == nil {
		op.PreVerificationGas = new(big.Int)
	}
	if op.InitCode == nil {
		op.InitCode = []byte{}
	}
	if op.CallData == nil {
		op.CallData = []byte{}
	}
	if op.PaymasterAndData == nil {
		op.PaymasterAndData = []byte{}
	}
	if op.Signature == nil {
		op.Signature = []byte{}
	}
	return op
}
