// Package config loads client settings from TOML profiles, the environment and .env
// files.
package config

import (
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/submitter"
	"github.com/lazy-account/lazyaccount/types"
)

const (
	DefaultRPCNodeURL       = "http://localhost:8545"
	DefaultRPCBundlerURL    = "http://localhost:4337"
	DefaultPollInterval     = time.Second
	DefaultMaxPollInterval  = 10 * time.Second
	DefaultInclusionTimeout = 2 * time.Minute
	DefaultMetricsAddr      = ""
)

// Config is the full client configuration.
type Config struct {
	RPCNodeURL    string
	RPCBundlerURL string

	EntryPoint    common.Address
	Safe7579      common.Address
	Launchpad     common.Address
	SafeSingleton common.Address
	ProxyFactory  common.Address
	// ProxyCreationCode pins the proxy bytecode; empty means read it from the factory.
	ProxyCreationCode []byte

	HandleOpsGasLimit    uint64
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	PollInterval     time.Duration
	MaxPollInterval  time.Duration
	InclusionTimeout time.Duration

	MetricsAddr string

	// PrivateKey is only ever read from the environment.
	PrivateKey string
}

// DefaultConfig returns the canonical deployments and local endpoints.
func DefaultConfig() Config {
	return Config{
		RPCNodeURL:           DefaultRPCNodeURL,
		RPCBundlerURL:        DefaultRPCBundlerURL,
		EntryPoint:           contracts.DefaultEntryPoint,
		Safe7579:             contracts.DefaultSafe7579Adapter,
		Launchpad:            contracts.DefaultSafe7579Launchpad,
		SafeSingleton:        contracts.DefaultSafeSingleton,
		ProxyFactory:         contracts.DefaultSafeProxyFactory,
		HandleOpsGasLimit:    submitter.DefaultHandleOpsGasLimit,
		MaxFeePerGas:         new(big.Int).Set(submitter.DefaultMaxFeePerGas),
		MaxPriorityFeePerGas: new(big.Int).Set(submitter.DefaultMaxPriorityFeePerGas),
		PollInterval:         DefaultPollInterval,
		MaxPollInterval:      DefaultMaxPollInterval,
		InclusionTimeout:     DefaultInclusionTimeout,
		MetricsAddr:          DefaultMetricsAddr,
	}
}

func (c Config) Validate() error {
	for name, raw := range map[string]string{
		KeyRPCNodeURL:    c.RPCNodeURL,
		KeyRPCBundlerURL: c.RPCBundlerURL,
	} {
		if raw == "" {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s must be set", name)
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s %q is not a valid url", name, raw)
		}
	}

	for name, addr := range map[string]common.Address{
		KeyEntryPoint:    c.EntryPoint,
		KeySafe7579:      c.Safe7579,
		KeyLaunchpad:     c.Launchpad,
		KeySafeSingleton: c.SafeSingleton,
		KeyProxyFactory:  c.ProxyFactory,
	} {
		if addr == (common.Address{}) {
			return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s must be set", name)
		}
	}

	if c.PollInterval <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s must be positive", KeyPollInterval)
	}
	if c.MaxPollInterval < c.PollInterval {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s must not be below %s", KeyMaxPollInterval, KeyPollInterval)
	}
	if c.InclusionTimeout <= 0 {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s must be positive", KeyInclusionTimeout)
	}

	return c.SubmitterConfig().Validate()
}

// Safe7579Config returns the account deployment addresses.
func (c Config) Safe7579Config() account.Safe7579Config {
	return account.Safe7579Config{
		Adapter:           c.Safe7579,
		Launchpad:         c.Launchpad,
		Singleton:         c.SafeSingleton,
		ProxyFactory:      c.ProxyFactory,
		ProxyCreationCode: common.CopyBytes(c.ProxyCreationCode),
	}
}

// SubmitterConfig returns the handleOps transaction parameters.
func (c Config) SubmitterConfig() submitter.Config {
	return submitter.Config{
		EntryPoint:           c.EntryPoint,
		GasLimit:             c.HandleOpsGasLimit,
		MaxFeePerGas:         c.MaxFeePerGas,
		MaxPriorityFeePerGas: c.MaxPriorityFeePerGas,
	}
}

// AwaitOptions returns the inclusion polling settings.
func (c Config) AwaitOptions() submitter.AwaitOptions {
	return submitter.AwaitOptions{
		Timeout:         c.InclusionTimeout,
		PollInterval:    c.PollInterval,
		MaxPollInterval: c.MaxPollInterval,
	}
}

// Settings renders the configuration as the key/value pairs written to a profile.
// The private key is never included.
func (c Config) Settings() map[string]interface{} {
	out := map[string]interface{}{
		KeyRPCNodeURL:           c.RPCNodeURL,
		KeyRPCBundlerURL:        c.RPCBundlerURL,
		KeyEntryPoint:           c.EntryPoint.Hex(),
		KeySafe7579:             c.Safe7579.Hex(),
		KeyLaunchpad:            c.Launchpad.Hex(),
		KeySafeSingleton:        c.SafeSingleton.Hex(),
		KeyProxyFactory:         c.ProxyFactory.Hex(),
		KeyHandleOpsGasLimit:    c.HandleOpsGasLimit,
		KeyMaxFeePerGas:         bigString(c.MaxFeePerGas),
		KeyMaxPriorityFeePerGas: bigString(c.MaxPriorityFeePerGas),
		KeyPollInterval:         c.PollInterval.String(),
		KeyMaxPollInterval:      c.MaxPollInterval.String(),
		KeyInclusionTimeout:     c.InclusionTimeout.String(),
		KeyMetricsAddr:          c.MetricsAddr,
	}
	if len(c.ProxyCreationCode) > 0 {
		out[KeyProxyCreationCode] = fmt.Sprintf("0x%x", c.ProxyCreationCode)
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
