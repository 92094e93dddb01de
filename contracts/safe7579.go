package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lazy-account/lazyaccount/types"
)

// ERC-7579 call types, the first byte of a ModeCode.
const (
	CallTypeSingle   byte = 0x00
	CallTypeBatch    byte = 0x01
	CallTypeDelegate byte = 0xff
)

// BatchMode is the ModeCode for a batch of calls with default exec type.
var BatchMode = [32]byte{CallTypeBatch}

var executionsArgs abi.Arguments

func init() {
	executionsType, err := abi.NewType("tuple[]", "struct Execution[]", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(fmt.Sprintf("failed to build Execution[] type: %v", err))
	}
	executionsArgs = abi.Arguments{{Name: "executions", Type: executionsType}}
}

// PackExecutionBatch encodes executions as abi.encode(Execution[]), the batch
// executionCalldata of ERC-7579.
func PackExecutionBatch(executions []types.Execution) ([]byte, error) {
	out := make([]types.Execution, len(executions))
	for i, e := range executions {
		value := e.Value
		if value == nil {
			value = new(big.Int)
		}
		out[i] = types.Execution{Target: e.Target, Value: value, CallData: nonNilBytes(e.CallData)}
	}
	data, err := executionsArgs.Pack(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executions: %w", err)
	}
	return data, nil
}

// UnpackExecutionBatch is the inverse of PackExecutionBatch.
func UnpackExecutionBatch(data []byte) ([]types.Execution, error) {
	values, err := executionsArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}
	var executions []types.Execution
	if err := executionsArgs.Copy(&executions, values); err != nil {
		return nil, fmt.Errorf("failed to copy executions: %w", err)
	}
	return executions, nil
}

// PackExecute packs Safe7579.execute(mode, executionCalldata).
func PackExecute(mode [32]byte, executionCalldata []byte) ([]byte, error) {
	data, err := Safe7579ABI.Pack("execute", mode, nonNilBytes(executionCalldata))
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return data, nil
}

// UnpackExecute decodes execute calldata, selector included.
func UnpackExecute(calldata []byte) ([32]byte, []byte, error) {
	method := Safe7579ABI.Methods["execute"]
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return [32]byte{}, nil, fmt.Errorf("not an execute call")
	}
	var args struct {
		Mode              [32]byte
		ExecutionCalldata []byte
	}
	if err := unpackCall(method, calldata, &args); err != nil {
		return [32]byte{}, nil, err
	}
	return args.Mode, args.ExecutionCalldata, nil
}

// ModeCallType returns the call type byte of a ModeCode.
func ModeCallType(mode [32]byte) byte { return mode[0] }

// ExecuteSelector returns the 4-byte selector of Safe7579.execute.
func ExecuteSelector() []byte { return common.CopyBytes(Safe7579ABI.Methods["execute"].ID) }
