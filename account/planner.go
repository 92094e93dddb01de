package account

import (
	"context"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/metrics"
	"github.com/lazy-account/lazyaccount/types"
)

// Safe7579Config names the contracts a Safe7579 account is deployed with.
type Safe7579Config struct {
	Adapter      common.Address
	Launchpad    common.Address
	Singleton    common.Address
	ProxyFactory common.Address
	// ProxyCreationCode pins the proxy bytecode. When empty it is read from the factory.
	ProxyCreationCode []byte
}

// DefaultSafe7579Config returns the canonical deployment addresses.
func DefaultSafe7579Config() Safe7579Config {
	return Safe7579Config{
		Adapter:      contracts.DefaultSafe7579Adapter,
		Launchpad:    contracts.DefaultSafe7579Launchpad,
		Singleton:    contracts.DefaultSafeSingleton,
		ProxyFactory: contracts.DefaultSafeProxyFactory,
	}
}

// Validate checks that every contract address is set.
func (c Safe7579Config) Validate() error {
	for name, addr := range map[string]common.Address{
		"adapter":       c.Adapter,
		"launchpad":     c.Launchpad,
		"singleton":     c.Singleton,
		"proxy factory": c.ProxyFactory,
	} {
		if addr == (common.Address{}) {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "safe7579 %s address is not set", name)
		}
	}
	return nil
}

// PlanRequest describes one account deployment.
type PlanRequest struct {
	Owners     []common.Address
	Validators []common.Address
	Salt       common.Hash
	// Threshold defaults to 1 when zero.
	Threshold uint64
	// Executors, Fallbacks and Hooks default to a single empty module entry.
	Executors []types.ModuleInit
	Fallbacks []types.ModuleInit
	Hooks     []types.ModuleInit
}

// Planner builds Safe7579 deployment bundles through the launchpad.
type Planner struct {
	cfg       Safe7579Config
	caller    client.Caller
	predictor *Predictor
	logger    log.Logger
}

// NewPlanner returns a Planner for the given deployment.
func NewPlanner(caller client.Caller, cfg Safe7579Config, logger log.Logger) (*Planner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Planner{
		cfg:       cfg,
		caller:    caller,
		predictor: NewPredictor(caller),
		logger:    logger.With("module", "planner"),
	}, nil
}

// Config returns the deployment the planner targets.
func (p *Planner) Config() Safe7579Config { return p.cfg }

// Predictor returns the predictor used by the planner.
func (p *Planner) Predictor() *Predictor { return p.predictor }

// Plan builds a 1-of-N deployment for owners with the given validators.
func (p *Planner) Plan(ctx context.Context, owners, validators []common.Address, salt common.Hash) (types.DeploymentBundle, common.Address, error) {
	return p.PlanWithOptions(ctx, PlanRequest{Owners: owners, Validators: validators, Salt: salt})
}

// PlanWithOptions builds the deployment bundle and predicts the account address.
func (p *Planner) PlanWithOptions(ctx context.Context, req PlanRequest) (types.DeploymentBundle, common.Address, error) {
	bundle, predicted, err := p.plan(ctx, req)
	metrics.RecordPrediction(err)
	return bundle, predicted, err
}

func (p *Planner) plan(ctx context.Context, req PlanRequest) (types.DeploymentBundle, common.Address, error) {
	threshold := req.Threshold
	if threshold == 0 {
		threshold = 1
	}
	if err := types.ValidateOwners(req.Owners, threshold); err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}
	if threshold > math.MaxUint8 {
		return types.DeploymentBundle{}, common.Address{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "threshold %d does not fit the attester threshold", threshold)
	}

	validators, err := types.NewModuleInits(types.ModuleRoleValidator, req.Validators)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}
	executors, err := defaultModules(types.ModuleRoleExecutor, req.Executors)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}
	fallbacks, err := defaultModules(types.ModuleRoleFallback, req.Fallbacks)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}
	hooks, err := defaultModules(types.ModuleRoleHook, req.Hooks)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}

	setupData, err := contracts.PackInitSafe7579(contracts.InitSafe7579Args{
		Safe7579:  p.cfg.Adapter,
		Executors: executors,
		Fallbacks: fallbacks,
		Hooks:     hooks,
		Attesters: req.Owners,
		Threshold: uint8(threshold), // #nosec G115 -- checked against MaxUint8 above
	})
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}

	initData := contracts.InitData{
		Singleton:  p.cfg.Singleton,
		Owners:     req.Owners,
		Threshold:  new(big.Int).SetUint64(threshold),
		SetupTo:    p.cfg.Launchpad,
		SetupData:  setupData,
		Safe7579:   p.cfg.Adapter,
		Validators: validators,
		CallData:   []byte{},
	}

	initHash, err := p.initHash(ctx, initData)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}

	initializer, err := contracts.PackPreValidationSetup(contracts.PreValidationSetupArgs{
		InitHash: initHash,
		To:       common.Address{},
		PreInit:  []byte{},
	})
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}

	proxyCode := p.cfg.ProxyCreationCode
	if len(proxyCode) == 0 {
		if proxyCode, err = p.predictor.ProxyCreationCode(ctx, p.cfg.ProxyFactory); err != nil {
			return types.DeploymentBundle{}, common.Address{}, err
		}
	}

	predicted, err := p.predictor.Predict(ctx, p.cfg.ProxyFactory, p.cfg.Launchpad, proxyCode, req.Salt, initializer)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}

	factoryData, err := contracts.PackCreateProxyWithNonce(contracts.CreateProxyWithNonceArgs{
		Singleton:   p.cfg.Launchpad,
		Initializer: initializer,
		SaltNonce:   new(big.Int).SetBytes(req.Salt.Bytes()),
	})
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}

	setupCall, err := contracts.PackSetupSafe(initData)
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}

	bundle, err := types.NewDeploymentBundle(types.DeploymentParams{
		Factory:          p.cfg.ProxyFactory,
		FactoryData:      factoryData,
		PredictedAddress: predicted,
		Owners:           req.Owners,
		Threshold:        threshold,
		Validators:       validators,
		Salt:             req.Salt,
		InitHash:         initHash,
		SetupCallData:    setupCall,
	})
	if err != nil {
		return types.DeploymentBundle{}, common.Address{}, err
	}

	p.logger.Debug(
		"planned safe7579 deployment",
		"predicted", predicted.Hex(),
		"owners", len(req.Owners),
		"validators", len(validators),
		"threshold", threshold,
		"salt", req.Salt.Hex(),
	)

	return bundle, predicted, nil
}

// initHash reads the launchpad's hash of initData.
func (p *Planner) initHash(ctx context.Context, initData contracts.InitData) (common.Hash, error) {
	data, err := contracts.PackHash(initData)
	if err != nil {
		return common.Hash{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	ret, err := client.Call(ctx, p.caller, p.cfg.Launchpad, data)
	if err != nil {
		return common.Hash{}, errorsmod.Wrapf(types.ErrPredictionFailed, "hash on %s: %s", p.cfg.Launchpad.Hex(), err)
	}
	h, err := contracts.UnpackHashResult(ret)
	if err != nil {
		return common.Hash{}, errorsmod.Wrap(types.ErrPredictionFailed, err.Error())
	}
	return h, nil
}

func defaultModules(role types.ModuleRole, inits []types.ModuleInit) ([]types.ModuleInit, error) {
	if len(inits) == 0 {
		return []types.ModuleInit{types.EmptyModuleInit}, nil
	}
	if err := types.ValidateModuleInits(role, inits); err != nil {
		return nil, err
	}
	return inits, nil
}
