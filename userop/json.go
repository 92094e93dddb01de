package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/types"
)

// paymaster(20) ‖ verificationGasLimit(16) ‖ postOpGasLimit(16)
const paymasterStaticLen = common.AddressLength + 32

// MarshalBundlerJSON encodes op in the unpacked form accepted by eth_sendUserOperation.
// Absent factory and paymaster fields are omitted.
func MarshalBundlerJSON(op types.PackedUserOperation) ([]byte, error) {
	nonce := op.Nonce
	if nonce == nil {
		nonce = new(big.Int)
	}
	pvg := op.PreVerificationGas
	if pvg == nil {
		pvg = new(big.Int)
	}
	verification, call := types.UnpackUint128Pair(op.AccountGasLimits)
	priority, maxFee := types.UnpackUint128Pair(op.GasFees)

	fields := []struct {
		path  string
		value string
	}{
		{"sender", op.Sender.Hex()},
		{"nonce", hexutil.EncodeBig(nonce)},
		{"callData", hexutil.Encode(nonEmpty(op.CallData))},
		{"callGasLimit", hexutil.EncodeBig(call)},
		{"verificationGasLimit", hexutil.EncodeBig(verification)},
		{"preVerificationGas", hexutil.EncodeBig(pvg)},
		{"maxFeePerGas", hexutil.EncodeBig(maxFee)},
		{"maxPriorityFeePerGas", hexutil.EncodeBig(priority)},
		{"signature", hexutil.Encode(nonEmpty(op.Signature))},
	}

	if op.HasInitCode() {
		factory, factoryData, err := types.SplitInitCode(op.InitCode)
		if err != nil {
			return nil, err
		}
		fields = append(fields,
			struct{ path, value string }{"factory", factory.Hex()},
			struct{ path, value string }{"factoryData", hexutil.Encode(nonEmpty(factoryData))},
		)
	}

	if len(op.PaymasterAndData) > 0 {
		if len(op.PaymasterAndData) < paymasterStaticLen {
			return nil, errorsmod.Wrapf(types.ErrInvalidConfiguration, "paymasterAndData is %d bytes, want at least %d", len(op.PaymasterAndData), paymasterStaticLen)
		}
		pm := op.PaymasterAndData
		fields = append(fields,
			struct{ path, value string }{"paymaster", common.BytesToAddress(pm[:20]).Hex()},
			struct{ path, value string }{"paymasterVerificationGasLimit", hexutil.EncodeBig(new(big.Int).SetBytes(pm[20:36]))},
			struct{ path, value string }{"paymasterPostOpGasLimit", hexutil.EncodeBig(new(big.Int).SetBytes(pm[36:52]))},
			struct{ path, value string }{"paymasterData", hexutil.Encode(nonEmpty(pm[52:]))},
		)
	}

	out := "{}"
	for _, f := range fields {
		var err error
		if out, err = sjson.Set(out, f.path, f.value); err != nil {
			return nil, err
		}
	}
	return []byte(out), nil
}

// UnmarshalBundlerJSON is the inverse of MarshalBundlerJSON.
func UnmarshalBundlerJSON(data []byte) (types.PackedUserOperation, error) {
	if !gjson.ValidBytes(data) {
		return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, "invalid user operation json")
	}
	res := gjson.ParseBytes(data)
	d := decoder{res: res}

	sender := d.address("sender", true)
	nonce := d.big("nonce", true)
	callData := d.bytes("callData")
	call := d.big("callGasLimit", true)
	verification := d.big("verificationGasLimit", true)
	pvg := d.big("preVerificationGas", true)
	maxFee := d.big("maxFeePerGas", true)
	priority := d.big("maxPriorityFeePerGas", true)
	signature := d.bytes("signature")

	var initCode []byte
	if res.Get("factory").Exists() {
		factory := d.address("factory", true)
		initCode = append(factory.Bytes(), d.bytes("factoryData")...)
	}

	var paymasterAndData []byte
	if res.Get("paymaster").Exists() {
		paymaster := d.address("paymaster", true)
		pmVerification := d.big("paymasterVerificationGasLimit", true)
		pmPostOp := d.big("paymasterPostOpGasLimit", true)
		if d.err == nil && (!types.FitsUint128(pmVerification) || !types.FitsUint128(pmPostOp)) {
			d.err = errorsmod.Wrap(types.ErrInvalidConfiguration, "paymaster gas limits do not fit in 128 bits")
		}
		if d.err == nil {
			limits := types.PackUint128Pair(pmVerification, pmPostOp)
			paymasterAndData = append(paymaster.Bytes(), limits[:]...)
			paymasterAndData = append(paymasterAndData, d.bytes("paymasterData")...)
		}
	}

	if d.err != nil {
		return types.PackedUserOperation{}, d.err
	}
	for _, v := range []*big.Int{call, verification, maxFee, priority} {
		if !types.FitsUint128(v) {
			return types.PackedUserOperation{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "gas value %s does not fit in 128 bits", v)
		}
	}

	return types.PackedUserOperation{
		Sender:             sender,
		Nonce:              nonce,
		InitCode:           nonEmpty(initCode),
		CallData:           callData,
		AccountGasLimits:   types.PackUint128Pair(verification, call),
		PreVerificationGas: pvg,
		GasFees:            types.PackUint128Pair(priority, maxFee),
		PaymasterAndData:   nonEmpty(paymasterAndData),
		Signature:          signature,
	}, nil
}

// decoder keeps the first field error.
type decoder struct {
	res gjson.Result
	err error
}

func (d *decoder) field(path string, required bool) (string, bool) {
	if d.err != nil {
		return "", false
	}
	v := d.res.Get(path)
	if !v.Exists() {
		if required {
			d.err = errorsmod.Wrapf(types.ErrInvalidConfiguration, "missing field %q", path)
		}
		return "", false
	}
	return v.String(), true
}

func (d *decoder) address(path string, required bool) common.Address {
	s, ok := d.field(path, required)
	if !ok {
		return common.Address{}
	}
	if !common.IsHexAddress(s) {
		d.err = errorsmod.Wrapf(types.ErrInvalidConfiguration, "field %q: invalid address %q", path, s)
		return common.Address{}
	}
	return common.HexToAddress(s)
}

func (d *decoder) big(path string, required bool) *big.Int {
	s, ok := d.field(path, required)
	if !ok {
		return new(big.Int)
	}
	v, err := hexutil.DecodeBig(s)
	if err != nil {
		d.err = errorsmod.Wrapf(types.ErrInvalidConfiguration, "field %q: %s", path, err)
		return new(big.Int)
	}
	return v
}

func (d *decoder) bytes(path string) []byte {
	s, ok := d.field(path, false)
	if !ok {
		return []byte{}
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		d.err = errorsmod.Wrapf(types.ErrInvalidConfiguration, "field %q: %s", path, err)
		return []byte{}
	}
	return b
}

func nonEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
