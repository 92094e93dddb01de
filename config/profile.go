package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/types"
)

const (
	// EnvPrefix prefixes every environment override, e.g. LAZYACCOUNT_RPC_NODE_URL.
	EnvPrefix = "LAZYACCOUNT"
	// EnvPrivateKey holds the bundler and owner key. It is never stored in a profile.
	EnvPrivateKey = EnvPrefix + "_PRIVATE_KEY"

	DefaultProfile = "default"
	appDirName     = "lazy-account"
	profileExt     = ".toml"
)

// ProfilePath returns <UserConfigDir>/lazy-account/<profile>.toml.
func ProfilePath(profile string) (string, error) {
	if strings.TrimSpace(profile) == "" {
		return "", errorsmod.Wrap(types.ErrInvalidConfiguration, "profile name is empty")
	}
	if strings.ContainsAny(profile, `/\`) {
		return "", errorsmod.Wrapf(types.ErrInvalidConfiguration, "profile name %q contains a path separator", profile)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errorsmod.Wrapf(types.ErrInvalidConfiguration, "user config dir: %s", err)
	}
	return filepath.Join(dir, appDirName, profile+profileExt), nil
}

// LoadProfile loads the named profile. A missing profile file yields the defaults.
func LoadProfile(profile string, logger log.Logger) (Config, error) {
	path, err := ProfilePath(profile)
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path, logger)
}

// LoadFile reads a TOML profile at path, applies LAZYACCOUNT_* environment
// overrides and validates the result. A missing file yields the defaults.
func LoadFile(path string, logger log.Logger) (Config, error) {
	v := newViper()
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "failed to read profile %s: %s", path, err)
		}
		logger.Debug("read profile", "path", path)
	} else if errors.Is(err, os.ErrNotExist) {
		logger.Debug("profile not found, using defaults", "path", path)
	} else {
		return Config{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "failed to stat profile %s: %s", path, err)
	}

	cfg, err := FromOptions(v, logger)
	if err != nil {
		return Config{}, err
	}
	cfg.PrivateKey = strings.TrimSpace(os.Getenv(EnvPrivateKey))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteFile stores cfg as a TOML profile at path, creating parent directories.
func WriteFile(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "failed to create %s: %s", filepath.Dir(path), err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	for key, value := range cfg.Settings() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "failed to write profile %s: %s", path, err)
	}
	return nil
}

// WriteProfile stores cfg as the named profile and returns its path.
func WriteProfile(profile string, cfg Config) (string, error) {
	path, err := ProfilePath(profile)
	if err != nil {
		return "", err
	}
	return path, WriteFile(path, cfg)
}

// LoadEnvironment loads .env files from the working directory and from the directory
// of the executable. Variables already set are not overwritten.
func LoadEnvironment(logger log.Logger) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded from working directory", "err", err)
	} else {
		logger.Debug("loaded .env file from working directory")
	}

	execPath, err := os.Executable()
	if err != nil {
		logger.Debug("could not determine executable path", "err", err)
		return
	}
	envPath := filepath.Join(filepath.Dir(execPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		logger.Debug("no .env file loaded from app directory", "path", envPath, "err", err)
	} else {
		logger.Debug("loaded .env file from app directory", "path", envPath)
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range Keys {
		_ = v.BindEnv(key)
	}
	return v
}
