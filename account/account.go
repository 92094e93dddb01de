package account

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/types"
)

// Implementation is the per-kind capability set of a smart account.
type Implementation interface {
	Kind() types.AccountKind
	PredictAddress(ctx context.Context, req PlanRequest) (common.Address, error)
	PlanDeployment(ctx context.Context, req PlanRequest) (types.DeploymentBundle, common.Address, error)
	EncodeExecutions(executions []types.Execution) ([]byte, error)
}

// Safe7579 is the Implementation for Safe accounts with the ERC-7579 adapter.
type Safe7579 struct {
	planner *Planner
}

var _ Implementation = (*Safe7579)(nil)

// NewSafe7579 returns the Safe7579 implementation.
func NewSafe7579(planner *Planner) *Safe7579 {
	return &Safe7579{planner: planner}
}

func (s *Safe7579) Kind() types.AccountKind { return types.AccountKindSafe7579 }

func (s *Safe7579) PredictAddress(ctx context.Context, req PlanRequest) (common.Address, error) {
	_, addr, err := s.planner.PlanWithOptions(ctx, req)
	return addr, err
}

func (s *Safe7579) PlanDeployment(ctx context.Context, req PlanRequest) (types.DeploymentBundle, common.Address, error) {
	return s.planner.PlanWithOptions(ctx, req)
}

func (s *Safe7579) EncodeExecutions(executions []types.Execution) ([]byte, error) {
	return EncodeExecutions(executions)
}

// NewImplementation selects the implementation for kind.
func NewImplementation(kind types.AccountKind, caller client.Caller, cfg Safe7579Config, logger log.Logger) (Implementation, error) {
	switch kind {
	case types.AccountKindSafe7579:
		planner, err := NewPlanner(caller, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewSafe7579(planner), nil
	default:
		return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "unsupported account kind %s", kind)
	}
}

// SmartAccount is one counterfactual or deployed account.
type SmartAccount struct {
	impl   Implementation
	caller client.Caller

	mu       sync.RWMutex
	address  common.Address
	bundle   types.DeploymentBundle
	deployed bool
}

// Option configures a SmartAccount at construction.
type Option func(*SmartAccount) error

// WithAddress sets an already known account address.
func WithAddress(addr common.Address) Option {
	return func(a *SmartAccount) error {
		if addr == (common.Address{}) {
			return errorsmod.Wrap(types.ErrInvalidConfiguration, "account address is the zero address")
		}
		if a.address != (common.Address{}) && a.address != addr {
			return errorsmod.Wrapf(types.ErrAddressMismatch, "address %s conflicts with %s", addr.Hex(), a.address.Hex())
		}
		a.address = addr
		return nil
	}
}

// WithDeployment attaches the bundle that deploys the account. The account address
// becomes the bundle's predicted address.
func WithDeployment(bundle types.DeploymentBundle) Option {
	return func(a *SmartAccount) error {
		return a.setDeployment(bundle)
	}
}

// NewSmartAccount builds an account of the given implementation.
func NewSmartAccount(impl Implementation, caller client.Caller, opts ...Option) (*SmartAccount, error) {
	if impl == nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "account implementation is nil")
	}
	a := &SmartAccount{impl: impl, caller: caller}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *SmartAccount) setDeployment(bundle types.DeploymentBundle) error {
	if err := bundle.Validate(); err != nil {
		return err
	}
	predicted := bundle.PredictedAddress()
	if a.address != (common.Address{}) && a.address != predicted {
		return errorsmod.Wrapf(types.ErrAddressMismatch, "bundle deploys %s, account is %s", predicted.Hex(), a.address.Hex())
	}
	a.address = predicted
	a.bundle = bundle
	a.deployed = false
	return nil
}

// Kind returns the account implementation tag.
func (a *SmartAccount) Kind() types.AccountKind { return a.impl.Kind() }

// Implementation returns the capability set behind the account.
func (a *SmartAccount) Implementation() Implementation { return a.impl }

// Address returns the account address and whether it is known.
func (a *SmartAccount) Address() (common.Address, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.address, a.address != (common.Address{})
}

// Deployment returns the pending deployment bundle, if the account is still undeployed.
func (a *SmartAccount) Deployment() (types.DeploymentBundle, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.deployed || a.bundle.IsZero() {
		return types.DeploymentBundle{}, false
	}
	return a.bundle, true
}

// InitCode returns the v0.7 initCode for the next operation, empty once deployed.
func (a *SmartAccount) InitCode() []byte {
	bundle, ok := a.Deployment()
	if !ok {
		return nil
	}
	return bundle.InitCode()
}

// Deployed reports whether an on-chain deployment has been recorded.
func (a *SmartAccount) Deployed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.deployed
}

// MarkDeployed records the deployment and drops the bundle so it is never resent.
func (a *SmartAccount) MarkDeployed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deployed = true
	a.bundle = types.DeploymentBundle{}
}

// RefreshDeployment checks the chain for code at the account address and records the
// deployment when found.
func (a *SmartAccount) RefreshDeployment(ctx context.Context) (bool, error) {
	addr, ok := a.Address()
	if !ok {
		return false, errorsmod.Wrap(types.ErrInvalidConfiguration, "account address is unknown")
	}
	deployed, err := client.IsDeployed(ctx, a.caller, addr)
	if err != nil {
		return false, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	if deployed {
		a.MarkDeployed()
	}
	return deployed, nil
}

// Plan plans the account's deployment and records the predicted address and bundle.
func (a *SmartAccount) Plan(ctx context.Context, req PlanRequest) (types.DeploymentBundle, error) {
	bundle, _, err := a.impl.PlanDeployment(ctx, req)
	if err != nil {
		return types.DeploymentBundle{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.setDeployment(bundle); err != nil {
		return types.DeploymentBundle{}, err
	}
	return bundle, nil
}

// EncodeExecutions encodes executions for the account's dispatcher.
func (a *SmartAccount) EncodeExecutions(executions []types.Execution) ([]byte, error) {
	return a.impl.EncodeExecutions(executions)
}
