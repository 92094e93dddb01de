package cmd

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/config"
	"github.com/lazy-account/lazyaccount/metrics"
	"github.com/lazy-account/lazyaccount/nonce"
	"github.com/lazy-account/lazyaccount/pipeline"
	"github.com/lazy-account/lazyaccount/submitter"
	"github.com/lazy-account/lazyaccount/types"
	"github.com/lazy-account/lazyaccount/userop"
)

type sendOutput struct {
	Account    string `json:"account"`
	UserOpHash string `json:"user_op_hash"`
	TxHash     string `json:"tx_hash,omitempty"`
	Status     string `json:"status"`
	Block      string `json:"block,omitempty"`
	Deployed   bool   `json:"deployed"`
	Error      string `json:"error,omitempty"`
}

func newSendCmd(a *app) *cobra.Command {
	var (
		flags      accountFlags
		accountRaw string
		calls      []string
		dryRun     bool
		verifyHash bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Execute calls from a smart account, deploying it first if needed",
		Long: `Send batches the given calls into one user operation, signs it with the key in
` + config.EnvPrivateKey + ` and submits it through EntryPoint.handleOps. When --owner is
given the account is planned and deployed by the operation if it has no code yet.

A call is "to[,value[,data]]", e.g. --call 0xabc...,1000000000000000000,0x.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			executions, err := parseCalls(calls)
			if err != nil {
				return err
			}
			if a.cfg.PrivateKey == "" {
				return errorsmod.Wrapf(types.ErrInvalidConfiguration, "%s is not set", config.EnvPrivateKey)
			}
			signer, err := userop.NewECDSASignerFromHex(a.cfg.PrivateKey)
			if err != nil {
				return err
			}

			ethcli, err := client.Dial(ctx, a.cfg.RPCNodeURL)
			if err != nil {
				return errorsmod.Wrap(types.ErrLookupFailed, err.Error())
			}
			defer ethcli.Close()

			acct, validator, err := openAccount(ctx, a, ethcli, flags, accountRaw)
			if err != nil {
				return err
			}

			sub, err := newSubmitter(ctx, a, ethcli)
			if err != nil {
				return err
			}

			if dryRun {
				return printDryRun(ctx, cmd, a, ethcli, sub, signer, acct, validator, executions)
			}

			opts := []pipeline.Option{
				pipeline.WithAwaitOptions(a.cfg.AwaitOptions()),
				pipeline.WithLogger(a.logger),
			}
			if verifyHash {
				opts = append(opts, pipeline.WithHashCheck())
			}
			p, err := pipeline.New(ethcli, sub, signer, opts...)
			if err != nil {
				return err
			}

			var res pipeline.Result
			runErr := withMetricsServer(ctx, a, func(ctx context.Context) error {
				var err error
				res, err = p.Run(ctx, pipeline.Request{
					Account:    acct,
					Validator:  validator,
					Executions: executions,
				})
				return err
			})

			addr, _ := acct.Address()
			out := sendOutput{
				Account:    addr.Hex(),
				UserOpHash: res.UserOpHash.Hex(),
				Status:     res.Status.String(),
				Deployed:   acct.Deployed(),
			}
			if res.Submission.TxHash != (common.Hash{}) {
				out.TxHash = res.Submission.TxHash.Hex()
			}
			if res.Receipt.BlockNumber != nil {
				out.Block = res.Receipt.BlockNumber.String()
			}
			if runErr != nil {
				out.Error = fmt.Sprintf("%s: %s", types.Classify(runErr), runErr)
			}
			if err := printOutput(cmd.OutOrStdout(), a.output, out); err != nil {
				return err
			}
			return runErr
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&accountRaw, flagAccount, "", "Existing account address")
	cmd.Flags().StringArrayVar(&calls, "call", nil, "Call to execute as to[,value[,data]] (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Sign and print the operation as eth_sendUserOperation JSON without submitting")
	cmd.Flags().BoolVar(&verifyHash, "verify-hash", false, "Compare the local operation hash with the entry point before signing")
	return cmd
}

// openAccount resolves the account from --account and/or the planning flags and
// returns it with the validator that signs for it.
func openAccount(ctx context.Context, a *app, ethcli *ethclient.Client, flags accountFlags, accountRaw string) (*account.SmartAccount, common.Address, error) {
	impl, err := account.NewImplementation(types.AccountKindSafe7579, ethcli, a.cfg.Safe7579Config(), a.logger)
	if err != nil {
		return nil, common.Address{}, err
	}

	var opts []account.Option
	if accountRaw != "" {
		addr, err := parseAddress(flagAccount, accountRaw)
		if err != nil {
			return nil, common.Address{}, err
		}
		opts = append(opts, account.WithAddress(addr))
	}
	acct, err := account.NewSmartAccount(impl, ethcli, opts...)
	if err != nil {
		return nil, common.Address{}, err
	}

	req, err := flags.planRequest()
	if err != nil {
		return nil, common.Address{}, err
	}
	if len(req.Validators) == 0 {
		return nil, common.Address{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--%s is required", flagValidator)
	}
	if len(req.Owners) > 0 {
		if _, err := acct.Plan(ctx, req); err != nil {
			return nil, common.Address{}, err
		}
	} else if accountRaw == "" {
		return nil, common.Address{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "either --%s or --%s is required", flagAccount, flagOwner)
	}
	return acct, req.Validators[0], nil
}

func newSubmitter(ctx context.Context, a *app, backend client.Backend) (*submitter.Submitter, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "invalid private key")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrLookupFailed, "chain id: %s", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	return submitter.New(backend, opts, a.cfg.SubmitterConfig(), a.logger)
}

func printDryRun(
	ctx context.Context,
	cmd *cobra.Command,
	a *app,
	caller client.Caller,
	sub *submitter.Submitter,
	signer userop.Signer,
	acct *account.SmartAccount,
	validator common.Address,
	executions []types.Execution,
) error {
	signed, err := dryRunOperation(ctx, caller, sub, signer, acct, validator, executions)
	if err != nil {
		return err
	}
	bz, err := userop.MarshalBundlerJSON(signed)
	if err != nil {
		return err
	}
	if a.output == outputText {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
		return err
	}
	return printOutput(cmd.OutOrStdout(), a.output, gjson.ParseBytes(bz).Value())
}

// dryRunOperation builds and signs the operation the pipeline would send, without
// submitting it. Init code is attached only while the account has no code on chain.
func dryRunOperation(
	ctx context.Context,
	caller client.Caller,
	sub *submitter.Submitter,
	signer userop.Signer,
	acct *account.SmartAccount,
	validator common.Address,
	executions []types.Execution,
) (types.PackedUserOperation, error) {
	sender, _ := acct.Address()
	bundle, pending := acct.Deployment()
	if pending {
		deployed, err := acct.RefreshDeployment(ctx)
		if err != nil {
			return types.PackedUserOperation{}, err
		}
		pending = !deployed
	}

	n, err := nonce.Lookup(ctx, caller, sub.EntryPoint(), sender, nonce.DeriveKey(validator))
	if err != nil {
		return types.PackedUserOperation{}, err
	}
	callData, err := acct.EncodeExecutions(executions)
	if err != nil {
		return types.PackedUserOperation{}, err
	}
	b := userop.NewBuilder().Sender(sender).Nonce(n).CallData(callData)
	if pending {
		b.InitCode(bundle)
	}
	op, err := b.Finalize()
	if err != nil {
		return types.PackedUserOperation{}, err
	}
	chainID, err := sub.ChainID(ctx)
	if err != nil {
		return types.PackedUserOperation{}, err
	}
	return userop.Sign(ctx, op, signer, sub.EntryPoint(), chainID)
}

// withMetricsServer runs fn, serving metrics alongside it when an address is configured.
func withMetricsServer(ctx context.Context, a *app, fn func(context.Context) error) error {
	if a.cfg.MetricsAddr == "" {
		return fn(ctx)
	}
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error {
		return metrics.StartServer(gctx, a.logger, a.cfg.MetricsAddr)
	})

	err := fn(ctx)
	stopServer()
	if serr := g.Wait(); serr != nil && err == nil {
		a.logger.Error("metrics server failed", "err", serr)
	}
	return err
}

func parseCalls(raws []string) ([]types.Execution, error) {
	executions := make([]types.Execution, 0, len(raws))
	for _, raw := range raws {
		parts := strings.Split(raw, ",")
		if len(parts) > 3 {
			return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--call %q has too many fields", raw)
		}
		to, err := parseAddress("call", parts[0])
		if err != nil {
			return nil, err
		}
		value := new(big.Int)
		if len(parts) > 1 && parts[1] != "" {
			if value, err = parseBig("call", parts[1]); err != nil {
				return nil, err
			}
		}
		data := []byte{}
		if len(parts) > 2 {
			if data, err = parseBytes("call", parts[2]); err != nil {
				return nil, err
			}
		}
		executions = append(executions, types.Execution{Target: to, Value: value, CallData: data})
	}
	return executions, nil
}
