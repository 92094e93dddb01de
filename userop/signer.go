package userop

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/types"
)

//go:generate mockgen -source=signer.go -destination=mock_signer.go -package=userop

// Signer produces the account signature over a user operation hash. Implementations
// may be remote; the context bounds the request.
type Signer interface {
	SignHash(ctx context.Context, hash common.Hash) ([]byte, error)
}

// ECDSASigner signs with a local key using EIP-191 personal-sign over the hash.
type ECDSASigner struct {
	key *ecdsa.PrivateKey
}

var _ Signer = (*ECDSASigner)(nil)

func NewECDSASigner(key *ecdsa.PrivateKey) *ECDSASigner {
	return &ECDSASigner{key: key}
}

// NewECDSASignerFromHex parses a hex private key, with or without 0x prefix.
func NewECDSASignerFromHex(hexKey string) (*ECDSASigner, error) {
	if len(hexKey) >= 2 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrInvalidConfiguration, "invalid private key")
	}
	return NewECDSASigner(key), nil
}

// Address returns the signer's address.
func (s *ECDSASigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *ECDSASigner) SignHash(_ context.Context, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Sign returns a copy of op carrying the signer's signature over its v0.7 hash.
func Sign(ctx context.Context, op types.PackedUserOperation, signer Signer, entryPoint common.Address, chainID *big.Int) (types.PackedUserOperation, error) {
	if signer == nil {
		return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, "signer is nil")
	}
	hash, err := Hash(op, entryPoint, chainID)
	if err != nil {
		return types.PackedUserOperation{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	sig, err := signer.SignHash(ctx, hash)
	if err != nil {
		return types.PackedUserOperation{}, errorsmod.Wrapf(types.ErrNotSigned, "signing %s: %s", hash.Hex(), err)
	}
	if len(sig) == 0 {
		return types.PackedUserOperation{}, errorsmod.Wrapf(types.ErrNotSigned, "signer returned an empty signature for %s", hash.Hex())
	}
	signed := op.Copy()
	signed.Signature = common.CopyBytes(sig)
	return signed, nil
}

// RecoverSigner returns the address that produced an ECDSASigner signature over hash.
func RecoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errorsmod.Wrapf(types.ErrInvalidConfiguration, "signature length %d", len(sig))
	}
	cpy := common.CopyBytes(sig)
	if cpy[crypto.RecoveryIDOffset] >= 27 {
		cpy[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), cpy)
	if err != nil {
		return common.Address{}, errorsmod.Wrap(types.ErrInvalidConfiguration, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}
