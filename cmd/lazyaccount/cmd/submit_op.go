package cmd

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

type submitOpOutput struct {
	UserOpHash string `json:"user_op_hash"`
	TxHash     string `json:"tx_hash"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func newSubmitOpCmd(a *app) *cobra.Command {
	var beneficiaryRaw string

	cmd := &cobra.Command{
		Use:   "submit-op [file]",
		Short: "Submit a signed user operation given as eth_sendUserOperation JSON",
		Long: `Submit-op reads a signed user operation in the JSON form printed by "send --dry-run"
from a file, or from stdin when the file is "-" or omitted, and submits it through
EntryPoint.handleOps.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				bz  []byte
				err error
			)
			if len(args) == 0 || args[0] == "-" {
				bz, err = io.ReadAll(cmd.InOrStdin())
			} else {
				bz, err = os.ReadFile(args[0])
			}
			if err != nil {
				return errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
			}
			op, err := userop.UnmarshalBundlerJSON(bz)
			if err != nil {
				return err
			}

			var beneficiary common.Address
			if beneficiaryRaw != "" {
				if beneficiary, err = parseAddress("beneficiary", beneficiaryRaw); err != nil {
					return err
				}
			}
			if a.cfg.PrivateKey == "" {
				return errorsmod.Wrap(types.ErrInvalidConfiguration, "bundler private key is not set")
			}

			ethcli, err := client.Dial(ctx, a.cfg.RPCNodeURL)
			if err != nil {
				return errorsmod.Wrap(types.ErrLookupFailed, err.Error())
			}
			defer ethcli.Close()

			sub, err := newSubmitter(ctx, a, ethcli)
			if err != nil {
				return err
			}
			submission, err := sub.Submit(ctx, []types.PackedUserOperation{op}, beneficiary)
			if err != nil {
				return err
			}

			receipt, awaitErr := sub.AwaitInclusion(ctx, submission, a.cfg.AwaitOptions())
			out := submitOpOutput{
				UserOpHash: submission.UserOpHashes[0].Hex(),
				TxHash:     submission.TxHash.Hex(),
				Status:     receipt.Status.String(),
			}
			if awaitErr != nil {
				out.Error = awaitErr.Error()
			}
			if err := printOutput(cmd.OutOrStdout(), a.output, out); err != nil {
				return err
			}
			return awaitErr
		},
	}

	cmd.Flags().StringVar(&beneficiaryRaw, "beneficiary", "", "Fee recipient (defaults to the bundler account)")
	return cmd
}
