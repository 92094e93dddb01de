// Package userop builds, hashes and signs EntryPoint v0.7 user operations.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/types"
)

const (
	DefaultCallGasLimit         uint64 = 200_000
	DefaultVerificationGasLimit uint64 = 1_000_000
	DefaultPreVerificationGas   uint64 = 50_000
)

var (
	// DefaultMaxFeePerGas is 200 gwei.
	DefaultMaxFeePerGas = new(big.Int).Mul(big.NewInt(200), big.NewInt(params.GWei))
	// DefaultMaxPriorityFeePerGas is 1.5 gwei.
	DefaultMaxPriorityFeePerGas = big.NewInt(1_500_000_000)
)

// GasProfile holds the gas limits and fee caps of an operation.
type GasProfile struct {
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// DefaultGasProfile returns the default limits and fees.
func DefaultGasProfile() GasProfile {
	return GasProfile{
		CallGasLimit:         new(big.Int).SetUint64(DefaultCallGasLimit),
		VerificationGasLimit: new(big.Int).SetUint64(DefaultVerificationGasLimit),
		PreVerificationGas:   new(big.Int).SetUint64(DefaultPreVerificationGas),
		MaxFeePerGas:         new(big.Int).Set(DefaultMaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(DefaultMaxPriorityFeePerGas),
	}
}

func (g GasProfile) copy() GasProfile {
	return GasProfile{
		CallGasLimit:         copyBig(g.CallGasLimit),
		VerificationGasLimit: copyBig(g.VerificationGasLimit),
		PreVerificationGas:   copyBig(g.PreVerificationGas),
		MaxFeePerGas:         copyBig(g.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(g.MaxPriorityFeePerGas),
	}
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func (g GasProfile) validate() error {
	for name, v := range map[string]*big.Int{
		"callGasLimit":         g.CallGasLimit,
		"verificationGasLimit": g.VerificationGasLimit,
		"preVerificationGas":   g.PreVerificationGas,
		"maxFeePerGas":         g.MaxFeePerGas,
		"maxPriorityFeePerGas": g.MaxPriorityFeePerGas,
	} {
		if v == nil {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s is not set", name)
		}
		if !types.FitsUint128(v) {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s %s does not fit in 128 bits", name, v)
		}
	}
	return nil
}

// Builder is a draft operation. Setters may be called in any order; nothing is
// validated until Finalize.
type Builder struct {
	sender           *common.Address
	nonce            *big.Int
	bundle           *types.DeploymentBundle
	callData         []byte
	gas              GasProfile
	paymasterAndData []byte
}

// NewBuilder returns a draft with the default gas profile.
func NewBuilder() *Builder {
	return &Builder{gas: DefaultGasProfile()}
}

func (b *Builder) Sender(addr common.Address) *Builder {
	b.sender = &addr
	return b
}

func (b *Builder) Nonce(n *big.Int) *Builder {
	b.nonce = copyBig(n)
	return b
}

// InitCode attaches the deployment bundle of an undeployed sender.
func (b *Builder) InitCode(bundle types.DeploymentBundle) *Builder {
	b.bundle = &bundle
	return b
}

func (b *Builder) CallData(data []byte) *Builder {
	b.callData = common.CopyBytes(data)
	return b
}

// GasProfile replaces every gas field at once.
func (b *Builder) GasProfile(g GasProfile) *Builder {
	b.gas = g.copy()
	return b
}

func (b *Builder) CallGasLimit(v uint64) *Builder {
	b.gas.CallGasLimit = new(big.Int).SetUint64(v)
	return b
}

func (b *Builder) VerificationGasLimit(v uint64) *Builder {
	b.gas.VerificationGasLimit = new(big.Int).SetUint64(v)
	return b
}

func (b *Builder) PreVerificationGas(v uint64) *Builder {
	b.gas.PreVerificationGas = new(big.Int).SetUint64(v)
	return b
}

func (b *Builder) MaxFeePerGas(v *big.Int) *Builder {
	b.gas.MaxFeePerGas = copyBig(v)
	return b
}

func (b *Builder) MaxPriorityFeePerGas(v *big.Int) *Builder {
	b.gas.MaxPriorityFeePerGas = copyBig(v)
	return b
}

func (b *Builder) PaymasterAndData(data []byte) *Builder {
	b.paymasterAndData = common.CopyBytes(data)
	return b
}

// Finalize validates the draft and returns the unsigned operation. On error no
// operation is produced.
func (b *Builder) Finalize() (types.PackedUserOperation, error) {
	if b.sender == nil || *b.sender == (common.Address{}) {
		return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, "sender is not set")
	}
	if b.nonce == nil {
		return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, "nonce is not set")
	}
	if b.nonce.Sign() < 0 || b.nonce.BitLen() > 256 {
		return types.PackedUserOperation{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "nonce %s is out of range", b.nonce)
	}
	if err := b.gas.validate(); err != nil {
		return types.PackedUserOperation{}, err
	}

	var initCode []byte
	if b.bundle != nil {
		if err := b.bundle.Validate(); err != nil {
			return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
		}
		if predicted := b.bundle.PredictedAddress(); predicted != *b.sender {
			return types.PackedUserOperation{}, errorsmod.Wrapf(
				types.ErrAddressMismatch,
				"deployment bundle targets %s, sender is %s", predicted.Hex(), b.sender.Hex(),
			)
		}
		initCode = b.bundle.InitCode()
	}

	callData := b.callData
	if callData == nil {
		callData = []byte{}
	}
	paymaster := b.paymasterAndData
	if paymaster == nil {
		paymaster = []byte{}
	}
	if initCode == nil {
		initCode = []byte{}
	}

	return types.PackedUserOperation{
		Sender:             *b.sender,
		Nonce:              new(big.Int).Set(b.nonce),
		InitCode:           initCode,
		CallData:           common.CopyBytes(callData),
		AccountGasLimits:   types.PackUint128Pair(b.gas.VerificationGasLimit, b.gas.CallGasLimit),
		PreVerificationGas: new(big.Int).Set(b.gas.PreVerificationGas),
		GasFees:            types.PackUint128Pair(b.gas.MaxPriorityFeePerGas, b.gas.MaxFeePerGas),
		PaymasterAndData:   common.CopyBytes(paymaster),
		Signature:          []byte{},
	}, nil
}
