package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CreateProxyWithNonceArgs mirrors the arguments of SafeProxyFactory.createProxyWithNonce.
type CreateProxyWithNonceArgs struct {
	Singleton   common.Address
	Initializer []byte
	SaltNonce   *big.Int
}

// PackCreateProxyWithNonce packs the factory call that deploys a Safe proxy.
func PackCreateProxyWithNonce(args CreateProxyWithNonceArgs) ([]byte, error) {
	salt := args.SaltNonce
	if salt == nil {
		salt = new(big.Int)
	}
	data, err := SafeProxyFactoryABI.Pack("createProxyWithNonce", args.Singleton, nonNilBytes(args.Initializer), salt)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createProxyWithNonce: %w", err)
	}
	return data, nil
}

// UnpackCreateProxyWithNonce decodes createProxyWithNonce calldata, selector included.
func UnpackCreateProxyWithNonce(calldata []byte) (CreateProxyWithNonceArgs, error) {
	var args CreateProxyWithNonceArgs
	if err := unpackCall(SafeProxyFactoryABI.Methods["createProxyWithNonce"], calldata, &args); err != nil {
		return CreateProxyWithNonceArgs{}, err
	}
	return args, nil
}

// PackProxyCreationCode packs SafeProxyFactory.proxyCreationCode().
func PackProxyCreationCode() ([]byte, error) {
	data, err := SafeProxyFactoryABI.Pack("proxyCreationCode")
	if err != nil {
		return nil, fmt.Errorf("failed to pack proxyCreationCode: %w", err)
	}
	return data, nil
}

// UnpackProxyCreationCode decodes the proxy creation bytecode.
func UnpackProxyCreationCode(ret []byte) ([]byte, error) {
	out, err := SafeProxyFactoryABI.Unpack("proxyCreationCode", ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack proxyCreationCode: %w", err)
	}
	code, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected proxyCreationCode return type %T", out[0])
	}
	return code, nil
}
