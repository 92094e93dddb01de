// Package nonce maps validator modules onto the EntryPoint's two-part nonce space.
//
// The entry point keeps one 64-bit sequence per (sender, 192-bit key). Safe7579 reads the
// validator that checks a user operation's signature from the key, so the key for a
// validator is its address in the low 160 bits with the remaining high bits zero.
package nonce

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	errorsmod "cosmossdk.io/errors"

	"github.com/lazy-account/lazyaccount/client"
	"github.com/lazy-account/lazyaccount/contracts"
	"github.com/lazy-account/lazyaccount/metrics"
	"github.com/lazy-account/lazyaccount/types"
)

// DeriveKey returns the nonce key that selects validator.
func DeriveKey(validator common.Address) types.NonceKey {
	var raw [32]byte
	copy(raw[32-common.AddressLength:], validator.Bytes())
	return types.NewNonceKey(new(uint256.Int).SetBytes32(raw[:]))
}

// ValidatorOf returns the validator embedded in the low 160 bits of key.
func ValidatorOf(key types.NonceKey) common.Address {
	b := key.Uint256().Bytes32()
	return common.BytesToAddress(b[32-common.AddressLength:])
}

// Compose returns the full 256-bit nonce key << 64 | seq.
func Compose(key types.NonceKey, seq uint64) *big.Int {
	n := new(uint256.Int).Lsh(key.Uint256(), types.NonceSequenceBits)
	n.Or(n, uint256.NewInt(seq))
	return n.ToBig()
}

// Split separates a full nonce into key and sequence. Bits above 256 are ignored.
func Split(n *big.Int) (types.NonceKey, uint64) {
	if n == nil || n.Sign() <= 0 {
		return types.NonceKey{}, 0
	}
	v, _ := uint256.FromBig(n)
	seq := v.Uint64()
	return types.NewNonceKey(new(uint256.Int).Rsh(v, types.NonceSequenceBits)), seq
}

// CurrentSequence reads the sequence of key for account from the entry point.
func CurrentSequence(ctx context.Context, caller client.Caller, entryPoint, account common.Address, key types.NonceKey) (uint64, error) {
	full, err := fetch(ctx, caller, entryPoint, account, key)
	if err != nil {
		return 0, err
	}
	gotKey, seq := Split(full)
	if !gotKey.Equal(key) {
		return 0, errorsmod.Wrapf(types.ErrLookupFailed, "entry point returned nonce for key %s, want %s", gotKey, key)
	}
	return seq, nil
}

// Lookup returns the full nonce the next operation under key must carry. It must be
// called immediately before building each operation.
func Lookup(ctx context.Context, caller client.Caller, entryPoint, account common.Address, key types.NonceKey) (*big.Int, error) {
	seq, err := CurrentSequence(ctx, caller, entryPoint, account, key)
	if err != nil {
		return nil, err
	}
	return Compose(key, seq), nil
}

func fetch(ctx context.Context, caller client.Caller, entryPoint, account common.Address, key types.NonceKey) (*big.Int, error) {
	metrics.RecordNonceLookup()
	data, err := contracts.PackGetNonce(account, key)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	ret, err := client.Call(ctx, caller, entryPoint, data)
	if err != nil {
		return nil, errorsmod.Wrapf(types.ErrLookupFailed, "getNonce(%s, %s): %s", account.Hex(), key, err)
	}
	full, err := contracts.UnpackGetNonce(ret)
	if err != nil {
		return nil, errorsmod.Wrap(types.ErrLookupFailed, err.Error())
	}
	return full, nil
}
