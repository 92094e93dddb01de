package config

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cast"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/types"
)

const (
	KeyRPCNodeURL           = "rpc_node_url"
	KeyRPCBundlerURL        = "rpc_bundler_url"
	KeyEntryPoint           = "entry_point"
	KeySafe7579             = "safe7579"
	KeyLaunchpad            = "launchpad"
	KeySafeSingleton        = "safe_singleton"
	KeyProxyFactory         = "proxy_factory"
	KeyProxyCreationCode    = "proxy_creation_code"
	KeyHandleOpsGasLimit    = "handle_ops_gas_limit"
	KeyMaxFeePerGas         = "max_fee_per_gas"
	KeyMaxPriorityFeePerGas = "max_priority_fee_per_gas"
	KeyPollInterval         = "poll_interval"
	KeyMaxPollInterval      = "max_poll_interval"
	KeyInclusionTimeout     = "inclusion_timeout"
	KeyMetricsAddr          = "metrics_addr"
)

// Keys lists every profile key.
var Keys = []string{
	KeyRPCNodeURL,
	KeyRPCBundlerURL,
	KeyEntryPoint,
	KeySafe7579,
	KeyLaunchpad,
	KeySafeSingleton,
	KeyProxyFactory,
	KeyProxyCreationCode,
	KeyHandleOpsGasLimit,
	KeyMaxFeePerGas,
	KeyMaxPriorityFeePerGas,
	KeyPollInterval,
	KeyMaxPollInterval,
	KeyInclusionTimeout,
	KeyMetricsAddr,
}

// Options is a read-only view of raw settings, satisfied by *viper.Viper.
type Options interface {
	Get(key string) interface{}
}

// FromOptions builds a Config from opts, keeping the default for every key that is
// unset or empty. Malformed values are errors.
func FromOptions(opts Options, logger log.Logger) (Config, error) {
	cfg := DefaultConfig()
	if opts == nil {
		logger.Error("options are nil, using default config")
		return cfg, nil
	}

	if v := cast.ToString(opts.Get(KeyRPCNodeURL)); v != "" {
		cfg.RPCNodeURL = v
	}
	if v := cast.ToString(opts.Get(KeyRPCBundlerURL)); v != "" {
		cfg.RPCBundlerURL = v
	}
	if v := cast.ToString(opts.Get(KeyMetricsAddr)); v != "" {
		cfg.MetricsAddr = v
	}

	for key, dst := range map[string]*common.Address{
		KeyEntryPoint:    &cfg.EntryPoint,
		KeySafe7579:      &cfg.Safe7579,
		KeyLaunchpad:     &cfg.Launchpad,
		KeySafeSingleton: &cfg.SafeSingleton,
		KeyProxyFactory:  &cfg.ProxyFactory,
	} {
		raw := cast.ToString(opts.Get(key))
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s: invalid address %q", key, raw)
		}
		*dst = common.HexToAddress(raw)
	}

	if raw := cast.ToString(opts.Get(KeyProxyCreationCode)); raw != "" {
		code, err := hexutil.Decode(raw)
		if err != nil {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s: %s", KeyProxyCreationCode, err)
		}
		cfg.ProxyCreationCode = code
	}

	if raw := opts.Get(KeyHandleOpsGasLimit); raw != nil && cast.ToString(raw) != "" {
		limit, err := cast.ToUint64E(raw)
		if err != nil {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s: %s", KeyHandleOpsGasLimit, err)
		}
		cfg.HandleOpsGasLimit = limit
	}

	for key, dst := range map[string]**big.Int{
		KeyMaxFeePerGas:         &cfg.MaxFeePerGas,
		KeyMaxPriorityFeePerGas: &cfg.MaxPriorityFeePerGas,
	} {
		raw := strings.TrimSpace(cast.ToString(opts.Get(key)))
		if raw == "" {
			continue
		}
		v, ok := new(big.Int).SetString(raw, 0)
		if !ok || v.Sign() < 0 {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s: invalid amount %q", key, raw)
		}
		*dst = v
	}

	for key, dst := range map[string]*time.Duration{
		KeyPollInterval:     &cfg.PollInterval,
		KeyMaxPollInterval:  &cfg.MaxPollInterval,
		KeyInclusionTimeout: &cfg.InclusionTimeout,
	} {
		raw := opts.Get(key)
		if raw == nil || cast.ToString(raw) == "" {
			continue
		}
		d, err := cast.ToDurationE(raw)
		if err != nil {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s: %s", key, err)
		}
		*dst = d
	}

	logger.Debug(
		"loaded config",
		"rpc_node_url", cfg.RPCNodeURL,
		"entry_point", cfg.EntryPoint.Hex(),
		"inclusion_timeout", cfg.InclusionTimeout,
	)
	return cfg, nil
}
