package cmd

import (
	"os"

	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/config"
	"github.com/lazy-account/lazyaccount/types"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration profiles",
	}
	cmd.AddCommand(newConfigInitCmd(a), newConfigShowCmd(a))
	return cmd
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		force      bool
		nodeURL    string
		bundlerURL string
	)

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a profile with the canonical deployments",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ProfilePath(a.profile)
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errorsmod.Wrapf(types.ErrInvalidConfiguration, "profile %s already exists, use --force to overwrite", path)
			}

			cfg := config.DefaultConfig()
			if nodeURL != "" {
				cfg.RPCNodeURL = nodeURL
			}
			if bundlerURL != "" {
				cfg.RPCBundlerURL = bundlerURL
			}
			if err := config.WriteFile(path, cfg); err != nil {
				return err
			}
			a.logger.Info("wrote profile", "profile", a.profile, "path", path)
			return printOutput(cmd.OutOrStdout(), a.output, map[string]string{"profile": a.profile, "path": path})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing profile")
	cmd.Flags().StringVar(&nodeURL, "rpc-node-url", "", "JSON-RPC endpoint of the chain")
	cmd.Flags().StringVar(&bundlerURL, "rpc-bundler-url", "", "JSON-RPC endpoint of the bundler")
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := a.cfg.Settings()
			settings["private_key_set"] = a.cfg.PrivateKey != ""
			return printOutput(cmd.OutOrStdout(), a.output, settings)
		},
	}
}
