package config

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/types"
)

type mapOptions map[string]interface{}

func (m mapOptions) Get(key string) interface{} { return m[key] }

func TestValidate(t *testing.T) {
	testCases := []struct {
		name     string
		malleate func(c *Config)
		expPass  bool
	}{
		{"default", func(*Config) {}, true},
		{"empty node url", func(c *Config) { c.RPCNodeURL = "" }, false},
		{"node url without scheme", func(c *Config) { c.RPCNodeURL = "localhost:8545" }, false},
		{"zero entry point", func(c *Config) { c.EntryPoint = common.Address{} }, false},
		{"zero proxy factory", func(c *Config) { c.ProxyFactory = common.Address{} }, false},
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }, false},
		{"max poll below poll", func(c *Config) { c.MaxPollInterval = time.Millisecond }, false},
		{"zero timeout", func(c *Config) { c.InclusionTimeout = 0 }, false},
		{"zero gas limit", func(c *Config) { c.HandleOpsGasLimit = 0 }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.malleate(&cfg)
			err := cfg.Validate()
			if tc.expPass {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, types.ErrInvalidConfiguration)
		})
	}
}

func TestFromOptions(t *testing.T) {
	logger := log.NewNopLogger()

	cfg, err := FromOptions(nil, logger)
	require.NoError(t, err)
	require.Equal(t, DefaultRPCNodeURL, cfg.RPCNodeURL)

	cfg, err = FromOptions(mapOptions{
		KeyRPCNodeURL:        "https://rpc.example.org",
		KeyEntryPoint:        "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
		KeyHandleOpsGasLimit: "3000000",
		KeyMaxFeePerGas:      "0x77359400",
		KeyPollInterval:      "250ms",
		KeyProxyCreationCode: "0x6080",
		KeyRPCBundlerURL:     "",
	}, logger)
	require.NoError(t, err)
	require.Equal(t, "https://rpc.example.org", cfg.RPCNodeURL)
	require.Equal(t, DefaultRPCBundlerURL, cfg.RPCBundlerURL)
	require.Equal(t, common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), cfg.EntryPoint)
	require.Equal(t, contracts.DefaultSafe7579Launchpad, cfg.Launchpad)
	require.Equal(t, uint64(3_000_000), cfg.HandleOpsGasLimit)
	require.Zero(t, big.NewInt(2_000_000_000).Cmp(cfg.MaxFeePerGas))
	require.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	require.Equal(t, []byte{0x60, 0x80}, cfg.ProxyCreationCode)

	for key, value := range map[string]string{
		KeySafe7579:          "0x1234",
		KeyMaxFeePerGas:      "-1",
		KeyHandleOpsGasLimit: "lots",
		KeyInclusionTimeout:  "soon",
		KeyProxyCreationCode: "6080",
	} {
		_, err := FromOptions(mapOptions{key: value}, logger)
		require.ErrorIs(t, err, types.ErrInvalidConfiguration, key)
	}
}

func TestWriteAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles", "test.toml")
	logger := log.NewNopLogger()

	cfg := DefaultConfig()
	cfg.RPCNodeURL = "https://rpc.example.org"
	cfg.InclusionTimeout = 5 * time.Minute
	cfg.MaxPriorityFeePerGas = big.NewInt(2_000_000_000)
	cfg.ProxyCreationCode = []byte{0x60, 0x80, 0x60, 0x40}
	cfg.MetricsAddr = "127.0.0.1:9090"
	cfg.PrivateKey = "must-not-be-written"
	require.NoError(t, WriteFile(path, cfg))

	loaded, err := LoadFile(path, logger)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCNodeURL, loaded.RPCNodeURL)
	require.Equal(t, cfg.EntryPoint, loaded.EntryPoint)
	require.Equal(t, cfg.SafeSingleton, loaded.SafeSingleton)
	require.Equal(t, cfg.InclusionTimeout, loaded.InclusionTimeout)
	require.Equal(t, cfg.HandleOpsGasLimit, loaded.HandleOpsGasLimit)
	require.Zero(t, cfg.MaxPriorityFeePerGas.Cmp(loaded.MaxPriorityFeePerGas))
	require.Equal(t, cfg.ProxyCreationCode, loaded.ProxyCreationCode)
	require.Equal(t, cfg.MetricsAddr, loaded.MetricsAddr)
	require.Empty(t, loaded.PrivateKey)
}

func TestLoadFileEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	logger := log.NewNopLogger()

	loaded, err := LoadFile(path, logger)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig().RPCNodeURL, loaded.RPCNodeURL)

	t.Setenv(EnvPrefix+"_RPC_NODE_URL", "http://node.internal:8545")
	t.Setenv(EnvPrefix+"_INCLUSION_TIMEOUT", "45s")
	t.Setenv(EnvPrivateKey, " 0xabc ")
	loaded, err = LoadFile(path, logger)
	require.NoError(t, err)
	require.Equal(t, "http://node.internal:8545", loaded.RPCNodeURL)
	require.Equal(t, 45*time.Second, loaded.InclusionTimeout)
	require.Equal(t, "0xabc", loaded.PrivateKey)

	t.Setenv(EnvPrefix+"_ENTRY_POINT", "not-an-address")
	_, err = LoadFile(path, logger)
	require.ErrorIs(t, err, types.ErrInvalidConfiguration)
}

func TestProfilePath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path, err := ProfilePath(DefaultProfile)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "lazy-account", "default.toml"), path)

	for _, name := range []string{"", "  ", "../etc", `a\b`} {
		_, err := ProfilePath(name)
		require.ErrorIs(t, err, types.ErrInvalidConfiguration, name)
	}

	written, err := WriteProfile("sepolia", DefaultConfig())
	require.NoError(t, err)
	loaded, err := LoadProfile("sepolia", log.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "lazy-account", "sepolia.toml"), written)
	require.Equal(t, DefaultConfig().EntryPoint, loaded.EntryPoint)
}

func TestSettingsOmitPrivateKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivateKey = "secret"
	settings := cfg.Settings()
	require.Len(t, settings, len(Keys)-1)
	for _, v := range settings {
		require.NotEqual(t, "secret", v)
	}
	_, ok := settings[KeyProxyCreationCode]
	require.False(t, ok)
}
