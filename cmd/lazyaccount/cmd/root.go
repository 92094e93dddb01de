package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"

	"github.com/lazy-account/lazyaccount/config"
	"github.com/lazy-account/lazyaccount/types"
)

const (
	flagProfile   = "profile"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagOutput    = "output"
)

// app is the state shared by every subcommand after flag parsing.
type app struct {
	profile   string
	logLevel  string
	logFormat string
	output    string

	logger log.Logger
	cfg    config.Config
}

// NewRootCmd returns the lazyaccount command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "lazyaccount",
		Short:         "Counterfactual ERC-4337 smart accounts",
		Long:          `lazyaccount predicts, deploys and operates Safe7579 smart accounts through the EntryPoint v0.7.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setupLogger(); err != nil {
				return err
			}
			if !isOutputFormat(a.output) {
				return errorsmod.Wrapf(types.ErrInvalidConfiguration, "unknown output format %q", a.output)
			}
			config.LoadEnvironment(a.logger)
			if skipsConfig(cmd) {
				return nil
			}
			cfg, err := config.LoadProfile(a.profile, a.logger)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.profile, flagProfile, config.DefaultProfile, "Configuration profile name")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, flagLogLevel, zerolog.InfoLevel.String(), "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&a.logFormat, flagLogFormat, "plain", "Log format (plain|json)")
	rootCmd.PersistentFlags().StringVarP(&a.output, flagOutput, "o", outputText, "Output format (text|json|yaml)")

	rootCmd.AddCommand(
		newPredictCmd(a),
		newNonceCmd(a),
		newSendCmd(a),
		newSubmitOpCmd(a),
		newConfigCmd(a),
	)
	return rootCmd
}

func (a *app) setupLogger() error {
	level, err := zerolog.ParseLevel(a.logLevel)
	if err != nil {
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "invalid log level %q", a.logLevel)
	}
	opts := []log.Option{log.LevelOption(level)}
	switch a.logFormat {
	case "plain":
	case "json":
		opts = append(opts, log.OutputJSONOption())
	default:
		return errorsmod.Wrapf(types.ErrInvalidConfiguration, "invalid log format %q", a.logFormat)
	}
	a.logger = log.NewLogger(os.Stderr, opts...)
	return nil
}

// skipsConfig reports whether cmd must run without a valid profile.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoConfig] == "true" {
			return true
		}
	}
	return false
}

const annotationNoConfig = "no-config"
