package cmd

import (
	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/types"
)

type nonceOutput struct {
	Account   string `json:"account"`
	Validator string `json:"validator"`
	Key       string `json:"key"`
	Sequence  uint64 `json:"sequence"`
	Nonce     string `json:"nonce"`
}

func newNonceCmd(a *app) *cobra.Command {
	var accountRaw, validatorRaw string

	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Read the next nonce of an account for a validator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			acct, err := parseAddress(flagAccount, accountRaw)
			if err != nil {
				return err
			}
			validator, err := parseAddress(flagValidator, validatorRaw)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ethcli, err := client.Dial(ctx, a.cfg.RPCNodeURL)
			if err != nil {
				return errorsmod.Wrap(types.ErrLookupFailed, err.Error())
			}
			defer ethcli.Close()

			key := nonce.DeriveKey(validator)
			seq, err := nonce.CurrentSequence(ctx, ethcli, a.cfg.EntryPoint, acct, key)
			if err != nil {
				return err
			}
			return printOutput(cmd.OutOrStdout(), a.output, nonceOutput{
				Account:   acct.Hex(),
				Validator: validator.Hex(),
				Key:       key.Hex(),
				Sequence:  seq,
				Nonce:     nonce.Compose(key, seq).String(),
			})
		},
	}

	cmd.Flags().StringVar(&accountRaw, flagAccount, "", "Account address")
	cmd.Flags().StringVar(&validatorRaw, flagValidator, "", "Validator module address")
	_ = cmd.MarkFlagRequired(flagAccount)
	_ = cmd.MarkFlagRequired(flagValidator)
	return cmd
}
