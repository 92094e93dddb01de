package contracts

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/lazy-account/lazyaccount/types"
)

// InitData mirrors Safe7579Launchpad.InitData.
type InitData struct {
	Singleton  common.Address
	Owners     []common.Address
	Threshold  *big.Int
	SetupTo    common.Address
	SetupData  []byte
	Safe7579   common.Address
	Validators []types.ModuleInit
	CallData   []byte
}

// InitSafe7579Args mirrors the arguments of Safe7579Launchpad.initSafe7579.
type InitSafe7579Args struct {
	Safe7579  common.Address
	Executors []types.ModuleInit
	Fallbacks []types.ModuleInit
	Hooks     []types.ModuleInit
	Attesters []common.Address
	Threshold uint8
}

// PredictSafeAddressArgs mirrors the arguments of Safe7579Launchpad.predictSafeAddress.
type PredictSafeAddressArgs struct {
	Singleton          common.Address
	SafeProxyFactory   common.Address
	CreationCode       []byte
	Salt               [32]byte
	FactoryInitializer []byte
}

// PreValidationSetupArgs mirrors the arguments of Safe7579Launchpad.preValidationSetup.
type PreValidationSetupArgs struct {
	InitHash [32]byte
	To       common.Address
	PreInit  []byte
}

// PackInitSafe7579 packs the launchpad's initSafe7579 setup call.
func PackInitSafe7579(args InitSafe7579Args) ([]byte, error) {
	data, err := Safe7579LaunchpadABI.Pack("initSafe7579",
		args.Safe7579,
		nonNilModules(args.Executors),
		nonNilModules(args.Fallbacks),
		nonNilModules(args.Hooks),
		nonNilAddresses(args.Attesters),
		args.Threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack initSafe7579: %w", err)
	}
	return data, nil
}

// UnpackInitSafe7579 decodes initSafe7579 calldata, selector included.
func UnpackInitSafe7579(calldata []byte) (InitSafe7579Args, error) {
	var args InitSafe7579Args
	if err := unpackCall(Safe7579LaunchpadABI.Methods["initSafe7579"], calldata, &args); err != nil {
		return InitSafe7579Args{}, err
	}
	return args, nil
}

// PackHash packs the launchpad's hash(InitData) view call.
func PackHash(data InitData) ([]byte, error) {
	out, err := Safe7579LaunchpadABI.Pack("hash", normalizeInitData(data))
	if err != nil {
		return nil, fmt.Errorf("failed to pack hash: %w", err)
	}
	return out, nil
}

// UnpackHashResult decodes the init hash returned by hash(InitData).
func UnpackHashResult(ret []byte) (common.Hash, error) {
	out, err := Safe7579LaunchpadABI.Unpack("hash", ret)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to unpack hash: %w", err)
	}
	h, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("unexpected hash return type %T", out[0])
	}
	return common.Hash(h), nil
}

// UnpackHashCall decodes the InitData argument of a hash(InitData) call.
func UnpackHashCall(calldata []byte) (InitData, error) {
	var args struct{ Data InitData }
	if err := unpackCall(Safe7579LaunchpadABI.Methods["hash"], calldata, &args); err != nil {
		return InitData{}, err
	}
	return args.Data, nil
}

// PackSetupSafe packs setupSafe(InitData), the first call of a launchpad-deployed account.
func PackSetupSafe(data InitData) ([]byte, error) {
	out, err := Safe7579LaunchpadABI.Pack("setupSafe", normalizeInitData(data))
	if err != nil {
		return nil, fmt.Errorf("failed to pack setupSafe: %w", err)
	}
	return out, nil
}

// PackPreValidationSetup packs the factory initializer handed to the proxy factory.
func PackPreValidationSetup(args PreValidationSetupArgs) ([]byte, error) {
	preInit := args.PreInit
	if preInit == nil {
		preInit = []byte{}
	}
	out, err := Safe7579LaunchpadABI.Pack("preValidationSetup", args.InitHash, args.To, preInit)
	if err != nil {
		return nil, fmt.Errorf("failed to pack preValidationSetup: %w", err)
	}
	return out, nil
}

// UnpackPreValidationSetup decodes preValidationSetup calldata, selector included.
func UnpackPreValidationSetup(calldata []byte) (PreValidationSetupArgs, error) {
	var args PreValidationSetupArgs
	if err := unpackCall(Safe7579LaunchpadABI.Methods["preValidationSetup"], calldata, &args); err != nil {
		return PreValidationSetupArgs{}, err
	}
	return args, nil
}

// PackPredictSafeAddress packs the launchpad's predictSafeAddress view call.
func PackPredictSafeAddress(args PredictSafeAddressArgs) ([]byte, error) {
	out, err := Safe7579LaunchpadABI.Pack("predictSafeAddress",
		args.Singleton,
		args.SafeProxyFactory,
		nonNilBytes(args.CreationCode),
		args.Salt,
		nonNilBytes(args.FactoryInitializer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack predictSafeAddress: %w", err)
	}
	return out, nil
}

// UnpackPredictSafeAddressCall decodes predictSafeAddress calldata, selector included.
func UnpackPredictSafeAddressCall(calldata []byte) (PredictSafeAddressArgs, error) {
	var args PredictSafeAddressArgs
	if err := unpackCall(Safe7579LaunchpadABI.Methods["predictSafeAddress"], calldata, &args); err != nil {
		return PredictSafeAddressArgs{}, err
	}
	return args, nil
}

// UnpackPredictSafeAddressResult decodes the predicted proxy address.
func UnpackPredictSafeAddressResult(ret []byte) (common.Address, error) {
	out, err := Safe7579LaunchpadABI.Unpack("predictSafeAddress", ret)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to unpack predictSafeAddress: %w", err)
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected predictSafeAddress return type %T", out[0])
	}
	return addr, nil
}

func unpackCall(method abi.Method, calldata []byte, dst interface{}) error {
	if len(calldata) < 4 || !bytes.Equal(calldata[:4], method.ID) {
		return fmt.Errorf("not a %s call", method.Name)
	}
	values, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return fmt.Errorf("failed to unpack %s: %w", method.Name, err)
	}
	if err := method.Inputs.Copy(dst, values); err != nil {
		return fmt.Errorf("failed to copy %s arguments: %w", method.Name, err)
	}
	return nil
}

func normalizeInitData(d InitData) InitData {
	if d.Threshold == nil {
		d.Threshold = new(big.Int)
	}
	d.Owners = nonNilAddresses(d.Owners)
	d.SetupData = nonNilBytes(d.SetupData)
	d.Validators = nonNilModules(d.Validators)
	d.CallData = nonNilBytes(d.CallData)
	return d
}

func nonNilModules(m []types.ModuleInit) []types.ModuleInit {
	out := make([]types.ModuleInit, len(m))
	for i, mi := range m {
		out[i] = types.ModuleInit{Module: mi.Module, InitData: nonNilBytes(mi.InitData)}
	}
	return out
}

func nonNilAddresses(a []common.Address) []common.Address {
	if a == nil {
		return []common.Address{}
	}
	return a
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
