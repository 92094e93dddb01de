package account

import (
	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/types"
)

// EncodeExecutions packs executions into the call data of Safe7579.execute in batch mode.
// Order is preserved and an empty list is a valid no-op batch.
func EncodeExecutions(executions []types.Execution) ([]byte, error) {
	batch, err := contracts.PackExecutionBatch(executions)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	data, err := contracts.PackExecute(contracts.BatchMode, batch)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	return data, nil
}

// DecodeExecutions is the inverse of EncodeExecutions.
func DecodeExecutions(callData []byte) ([]types.Execution, error) {
	mode, batch, err := contracts.UnpackExecute(callData)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	if contracts.ModeCallType(mode) != contracts.CallTypeBatch {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "unsupported call type 0x%02x", contracts.ModeCallType(mode))
	}
	executions, err := contracts.UnpackExecutionBatch(batch)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	return executions, nil
}
