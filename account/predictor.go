package account

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/types"
)

// Predictor computes counterfactual Safe addresses by asking the launchpad's
// predictSafeAddress view, so the result always follows the deployed hashing rule.
type Predictor struct {
	caller client.Caller

	mu        sync.Mutex
	codeCache map[common.Address][]byte
}

// NewPredictor returns a Predictor issuing read-only calls through caller.
func NewPredictor(caller client.Caller) *Predictor {
	return &Predictor{
		caller:    caller,
		codeCache: make(map[common.Address][]byte),
	}
}

// Predict returns the address the factory will deploy the proxy at. Any failure is
// reported as ErrPredictionFailed; no fallback address is ever returned.
func (p *Predictor) Predict(
	ctx context.Context,
	factory common.Address,
	launchpad common.Address,
	proxyBytecode []byte,
	salt common.Hash,
	initializer []byte,
) (common.Address, error) {
	if len(proxyBytecode) == 0 {
		return common.Address{}, errorsmod.Wrap(types.ErrPredictionFailed, "empty proxy creation code")
	}
	data, err := contracts.PackPredictSafeAddress(contracts.PredictSafeAddressArgs{
		Singleton:          launchpad,
		SafeProxyFactory:   factory,
		CreationCode:       proxyBytecode,
		Salt:               salt,
		FactoryInitializer: initializer,
	})
	if err != nil {
		return common.Address{}, errorsmod.Wrap(types.ErrPredictionFailed, err.Error())
	}

	ret, err := client.Call(ctx, p.caller, launchpad, data)
	if err != nil {
		return common.Address{}, errorsmod.Wrapf(types.ErrPredictionFailed, "predictSafeAddress on %s: %s", launchpad.Hex(), err)
	}

	predicted, err := contracts.UnpackPredictSafeAddressResult(ret)
	if err != nil {
		return common.Address{}, errorsmod.Wrap(types.ErrPredictionFailed, err.Error())
	}
	if predicted == (common.Address{}) {
		return common.Address{}, errorsmod.Wrap(types.ErrPredictionFailed, "launchpad predicted the zero address")
	}
	return predicted, nil
}

// ProxyCreationCode reads the proxy creation bytecode from the factory. Results are
// cached per factory.
func (p *Predictor) ProxyCreationCode(ctx context.Context, factory common.Address) ([]byte, error) {
	p.mu.Lock()
	code, ok := p.codeCache[factory]
	p.mu.Unlock()
	if ok {
		return common.CopyBytes(code), nil
	}

	data, err := contracts.PackProxyCreationCode()
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	ret, err := client.Call(ctx, p.caller, factory, data)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrLookupFailed, "proxyCreationCode on %s: %s", factory.Hex(), err)
	}
	code, err = contracts.UnpackProxyCreationCode(ret)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	if len(code) == 0 {
		return nil, errorsmod.Wrapf(types.ErrLookupFailed, "factory %s returned empty proxy creation code", factory.Hex())
	}

	p.mu.Lock()
	p.codeCache[factory] = common.CopyBytes(code)
	p.mu.Unlock()
	return code, nil
}
