package cmd

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/types"
)

type predictOutput struct {
	Address     string   `json:"address"`
	Salt        string   `json:"salt"`
	Owners      []string `json:"owners"`
	Threshold   uint64   `json:"threshold"`
	InitHash    string   `json:"init_hash"`
	Factory     string   `json:"factory"`
	FactoryData string   `json:"factory_data"`
}

func newPredictCmd(a *app) *cobra.Command {
	var (
		flags       accountFlags
		count       int
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the counterfactual address of a Safe7579 account",
		Long: `Predict plans the deployment of a Safe7579 account and prints its address together with
the init code that deploys it. With --count, consecutive salts starting at --salt are
planned concurrently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.planRequest()
			if err != nil {
				return err
			}
			if count < 1 {
				return errorsmod.Wrap(types.ErrInvalidConfiguration, "--count must be at least 1")
			}

			ctx := cmd.Context()
			ethcli, err := client.Dial(ctx, a.cfg.RPCNodeURL)
			if err != nil {
				return errorsmod.Wrap(types.ErrLookupFailed, err.Error())
			}
			defer ethcli.Close()

			impl, err := account.NewImplementation(types.AccountKindSafe7579, ethcli, a.cfg.Safe7579Config(), a.logger)
			if err != nil {
				return err
			}

			reqs := make([]account.PlanRequest, count)
			base := new(big.Int).SetBytes(req.Salt.Bytes())
			for i := range reqs {
				reqs[i] = req
				reqs[i].Salt = common.BigToHash(new(big.Int).Add(base, big.NewInt(int64(i))))
			}
			results, err := account.PlanMany(ctx, impl, reqs, concurrency)
			if err != nil {
				return err
			}

			outs := make([]predictOutput, len(results))
			for i, res := range results {
				outs[i] = newPredictOutput(res)
			}
			if len(outs) == 1 {
				return printOutput(cmd.OutOrStdout(), a.output, outs[0])
			}
			return printOutput(cmd.OutOrStdout(), a.output, outs)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&count, "count", 1, "Number of consecutive salts to plan")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum concurrent plans")
	_ = cmd.MarkFlagRequired(flagOwner)
	_ = cmd.MarkFlagRequired(flagValidator)
	return cmd
}

func newPredictOutput(res account.PlanResult) predictOutput {
	owners := make([]string, 0, len(res.Bundle.Owners()))
	for _, o := range res.Bundle.Owners() {
		owners = append(owners, o.Hex())
	}
	return predictOutput{
		Address:     res.Address.Hex(),
		Salt:        res.Bundle.Salt().Hex(),
		Owners:      owners,
		Threshold:   res.Bundle.Threshold(),
		InitHash:    res.Bundle.InitHash().Hex(),
		Factory:     res.Bundle.Factory().Hex(),
		FactoryData: hexutil.Encode(res.Bundle.FactoryData()),
	}
}
