package types

import (
	"math/big"

	"github.com/holiman/uint256"
)

const (
	// NonceKeyBits is the width of the key half of a 4337 nonce.
	NonceKeyBits = 192
	// NonceSequenceBits is the width of the per-key sequence counter.
	NonceSequenceBits = 64
)

// nonceKeyMask has the low 192 bits set.
var nonceKeyMask = new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 256-NonceKeyBits)

// NonceKey is the 192-bit key half of an EntryPoint nonce.
type NonceKey struct {
	v uint256.Int
}

// NewNonceKey masks v to exactly 192 significant bits.
func NewNonceKey(v *uint256.Int) NonceKey {
	var k NonceKey
	if v != nil {
		k.v.And(v, nonceKeyMask)
	}
	return k
}

// Uint256 returns a copy of the key as a 256-bit integer.
func (k NonceKey) Uint256() *uint256.Int { return new(uint256.Int).Set(&k.v) }

// Big returns the key as a big.Int, the form abi.Pack expects for uint192.
func (k NonceKey) Big() *big.Int { return k.v.ToBig() }

// Bytes24 returns the big-endian 24-byte encoding of the key.
func (k NonceKey) Bytes24() [24]byte {
	b32 := k.v.Bytes32()
	var out [24]byte
	copy(out[:], b32[8:])
	return out
}

func (k NonceKey) IsZero() bool          { return k.v.IsZero() }
func (k NonceKey) Equal(o NonceKey) bool { return k.v.Eq(&o.v) }
func (k NonceKey) Hex() string           { return k.v.Hex() }
func (k NonceKey) String() string        { return k.v.Hex() }
