package cmd

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/account"
	"github.com/lazy-account/lazyaccount/types"
)

const (
	flagOwner     = "owner"
	flagValidator = "validator"
	flagSalt      = "salt"
	flagThreshold = "threshold"
	flagAccount   = "account"
)

// accountFlags describe the account a command operates on.
type accountFlags struct {
	owners     []string
	validators []string
	salt       string
	threshold  uint64
}

func (f *accountFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.owners, flagOwner, nil, "Owner address (repeatable)")
	cmd.Flags().StringSliceVar(&f.validators, flagValidator, nil, "Validator module address (repeatable)")
	cmd.Flags().StringVar(&f.salt, flagSalt, "0x0", "Deployment salt as hex")
	cmd.Flags().Uint64Var(&f.threshold, flagThreshold, 1, "Owner threshold")
}

func (f *accountFlags) planRequest() (account.PlanRequest, error) {
	owners, err := parseAddresses(flagOwner, f.owners)
	if err != nil {
		return account.PlanRequest{}, err
	}
	validators, err := parseAddresses(flagValidator, f.validators)
	if err != nil {
		return account.PlanRequest{}, err
	}
	salt, err := parseHash(flagSalt, f.salt)
	if err != nil {
		return account.PlanRequest{}, err
	}
	return account.PlanRequest{
		Owners:     owners,
		Validators: validators,
		Salt:       salt,
		Threshold:  f.threshold,
	}, nil
}

func parseAddress(flag, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--%s: invalid address %q", flag, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAddresses(flag string, raws []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(raws))
	for _, raw := range raws {
		addr, err := parseAddress(flag, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseHash(flag, raw string) (common.Hash, error) {
	v, err := parseBig(flag, raw)
	if err != nil {
		return common.Hash{}, err
	}
	if v.BitLen() > 256 {
		return common.Hash{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--%s: value exceeds 32 bytes", flag)
	}
	return common.BigToHash(v), nil
}

func parseBig(flag, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 0)
	if !ok || v.Sign() < 0 {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--%s: invalid number %q", flag, raw)
	}
	return v, nil
}

func parseBytes(flag, raw string) ([]byte, error) {
	if raw == "" {
		return []byte{}, nil
	}
	b, err := hexutil.Decode(raw)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "--%s: %s", flag, err)
	}
	return b, nil
}
