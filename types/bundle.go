package types

import (
	"bytes"
	"slices"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"
)

// DeploymentParams holds everything a planner resolved for one account deployment.
type DeploymentParams struct {
	Factory          common.Address
	FactoryData      []byte
	PredictedAddress common.Address
	Owners           []common.Address
	Threshold        uint64
	Validators       []ModuleInit
	Salt             common.Hash
	InitHash         common.Hash
	// SetupCallData is the launchpad setupSafe call that must be the call data of the
	// first operation of a launchpad-deployed account.
	SetupCallData []byte
}

// DeploymentBundle is the factory address and calldata that deploy one account. It is
// immutable: accessors return copies.
type DeploymentBundle struct {
	params DeploymentParams
}

// NewDeploymentBundle validates params and freezes them into a bundle.
func NewDeploymentBundle(params DeploymentParams) (DeploymentBundle, error) {
	b := DeploymentBundle{params: DeploymentParams{
		Factory:          params.Factory,
		FactoryData:      common.CopyBytes(params.FactoryData),
		PredictedAddress: params.PredictedAddress,
		Owners:           slices.Clone(params.Owners),
		Threshold:        params.Threshold,
		Validators:       copyModuleInits(params.Validators),
		Salt:             params.Salt,
		InitHash:         params.InitHash,
		SetupCallData:    common.CopyBytes(params.SetupCallData),
	}}
	if err := b.Validate(); err != nil {
		return DeploymentBundle{}, err
	}
	return b, nil
}

// Validate re-checks the bundle invariants.
func (b DeploymentBundle) Validate() error {
	p := b.params
	if p.Factory == (common.Address{}) {
		return errorsmod.Wrap(ErrInvalidConfiguration, "deployment bundle has no factory")
	}
	if len(p.FactoryData) == 0 {
		return errorsmod.Wrap(ErrInvalidConfiguration, "deployment bundle has no factory calldata")
	}
	if p.PredictedAddress == (common.Address{}) {
		return errorsmod.Wrap(ErrInvalidConfiguration, "deployment bundle has no predicted address")
	}
	return ValidateOwners(p.Owners, p.Threshold)
}

// ValidateOwners checks the owner set is non-empty, duplicate free and that
// 1 <= threshold <= len(owners).
func ValidateOwners(owners []common.Address, threshold uint64) error {
	if len(owners) == 0 {
		return errorsmod.Wrap(ErrInvalidConfiguration, "owner set is empty")
	}
	seen := make(map[common.Address]struct{}, len(owners))
	for _, o := range owners {
		if o == (common.Address{}) {
			return errorsmod.Wrap(ErrInvalidConfiguration, "owner is the zero address")
		}
		if _, ok := seen[o]; ok {
			return errorsmod.Wrapf(ErrInvalidConfiguration, "duplicate owner %s", o.Hex())
		}
		seen[o] = struct{}{}
	}
	if threshold == 0 || threshold > uint64(len(owners)) {
		return errorsmod.Wrapf(ErrInvalidConfiguration, "threshold %d out of range for %d owners", threshold, len(owners))
	}
	return nil
}

// IsZero reports whether the bundle is the zero value.
func (b DeploymentBundle) IsZero() bool { return b.params.Factory == (common.Address{}) && len(b.params.FactoryData) == 0 }

func (b DeploymentBundle) Factory() common.Address          { return b.params.Factory }
func (b DeploymentBundle) FactoryData() []byte              { return common.CopyBytes(b.params.FactoryData) }
func (b DeploymentBundle) PredictedAddress() common.Address { return b.params.PredictedAddress }
func (b DeploymentBundle) Owners() []common.Address         { return slices.Clone(b.params.Owners) }
func (b DeploymentBundle) Threshold() uint64                { return b.params.Threshold }
func (b DeploymentBundle) Validators() []ModuleInit         { return copyModuleInits(b.params.Validators) }
func (b DeploymentBundle) Salt() common.Hash                { return b.params.Salt }
func (b DeploymentBundle) InitHash() common.Hash            { return b.params.InitHash }
func (b DeploymentBundle) SetupCallData() []byte            { return common.CopyBytes(b.params.SetupCallData) }

// InitCode is the EntryPoint v0.7 initCode: the factory address followed by its calldata.
func (b DeploymentBundle) InitCode() []byte {
	if b.IsZero() {
		return nil
	}
	out := make([]byte, 0, common.AddressLength+len(b.params.FactoryData))
	out = append(out, b.params.Factory.Bytes()...)
	return append(out, b.params.FactoryData...)
}

// Equal reports whether both bundles deploy the same account with identical calldata.
func (b DeploymentBundle) Equal(o DeploymentBundle) bool {
	return b.params.Factory == o.params.Factory &&
		b.params.PredictedAddress == o.params.PredictedAddress &&
		bytes.Equal(b.params.FactoryData, o.params.FactoryData)
}

// SplitInitCode splits a v0.7 initCode into factory and factory calldata.
func SplitInitCode(initCode []byte) (common.Address, []byte, error) {
	if len(initCode) == 0 {
		return common.Address{}, nil, nil
	}
	if len(initCode) < common.AddressLength {
		return common.Address{}, nil, errorsmod.Wrapf(ErrInvalidConfiguration, "init code too short: %d bytes", len(initCode))
	}
	return common.BytesToAddress(initCode[:common.AddressLength]), common.CopyBytes(initCode[common.AddressLength:]), nil
}
