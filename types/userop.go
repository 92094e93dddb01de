package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Execution is one call performed by the account.
type Execution struct {
	Target   common.Address
	Value    *big.Int
	CallData []byte
}

// PackedUserOperation is the EntryPoint v0.7 operation envelope. Field names match the
// ABI tuple components so the struct can be passed to abi.Pack directly.
type PackedUserOperation struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// IsSigned reports whether signature bytes are present.
func (op PackedUserOperation) IsSigned() bool { return len(op.Signature) > 0 }

// HasInitCode reports whether the operation deploys its sender.
func (op PackedUserOperation) HasInitCode() bool { return len(op.InitCode) > 0 }

// Copy returns a deep copy of the operation.
func (op PackedUserOperation) Copy() PackedUserOperation {
	cpy := op
	if op.Nonce != nil {
		cpy.Nonce = new(big.Int).Set(op.Nonce)
	}
	if op.PreVerificationGas != nil {
		cpy.PreVerificationGas = new(big.Int).Set(op.PreVerificationGas)
	}
	cpy.InitCode = common.CopyBytes(op.InitCode)
	cpy.CallData = common.CopyBytes(op.CallData)
	cpy.PaymasterAndData = common.CopyBytes(op.PaymasterAndData)
	cpy.Signature = common.CopyBytes(op.Signature)
	return cpy
}

// CallGasLimit returns the low 128 bits of AccountGasLimits.
func (op PackedUserOperation) CallGasLimit() *big.Int {
	_, low := UnpackUint128Pair(op.AccountGasLimits)
	return low
}

// VerificationGasLimit returns the high 128 bits of AccountGasLimits.
func (op PackedUserOperation) VerificationGasLimit() *big.Int {
	high, _ := UnpackUint128Pair(op.AccountGasLimits)
	return high
}

// MaxFeePerGas returns the low 128 bits of GasFees.
func (op PackedUserOperation) MaxFeePerGas() *big.Int {
	_, low := UnpackUint128Pair(op.GasFees)
	return low
}

// MaxPriorityFeePerGas returns the high 128 bits of GasFees.
func (op PackedUserOperation) MaxPriorityFeePerGas() *big.Int {
	high, _ := UnpackUint128Pair(op.GasFees)
	return high
}

// PackUint128Pair packs two 128-bit values into a bytes32 as bytes32(high << 128 | low).
// Values wider than 128 bits are not representable; callers validate with FitsUint128.
func PackUint128Pair(high, low *big.Int) [32]byte {
	var out [32]byte
	if high != nil {
		high.FillBytes(out[0:16])
	}
	if low != nil {
		low.FillBytes(out[16:32])
	}
	return out
}

// UnpackUint128Pair is the inverse of PackUint128Pair.
func UnpackUint128Pair(packed [32]byte) (high, low *big.Int) {
	return new(big.Int).SetBytes(packed[0:16]), new(big.Int).SetBytes(packed[16:32])
}

// FitsUint128 reports whether v is a non-negative value below 2^128.
func FitsUint128(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.BitLen() <= 128
}
