// Package hash defines the pluggable hash functions used to build
// accumulator trees. Every Hasher is deterministic and returns fixed-width
// digests.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"slices"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/mimc7"
	"github.com/vocdoni/blindvote/crypto/hash/poseidon"
)

const (
	TypeSHA256    = "sha256"
	TypeKeccak256 = "keccak256"
	TypePoseidon  = "poseidon"
	TypeMiMC7     = "mimc7"
)

// Hasher is a fixed-width hash function.
type Hasher interface {
	// Hash returns the digest of data. The result always has Size() bytes.
	Hash(data []byte) []byte
	// Size is the digest width in bytes.
	Size() int
	// Type identifies the hash function.
	Type() string
}

// New returns the Hasher identified by hashType.
func New(hashType string) (Hasher, error) {
	switch hashType {
	case TypeSHA256:
		return SHA256{}, nil
	case TypeKeccak256:
		return Keccak256{}, nil
	case TypePoseidon:
		return Poseidon{}, nil
	case TypeMiMC7:
		return MiMC7{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash type %q", hashType)
	}
}

// Types returns the list of supported hash types.
func Types() []string {
	return []string{TypeSHA256, TypeKeccak256, TypePoseidon, TypeMiMC7}
}

// IsValid reports whether hashType is supported.
func IsValid(hashType string) bool {
	return slices.Contains(Types(), hashType)
}

// SHA256 is the default tree hasher.
type SHA256 struct{}

func (SHA256) Hash(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

func (SHA256) Size() int { return sha256.Size }

func (SHA256) Type() string { return TypeSHA256 }

// Keccak256 is the Ethereum flavour of SHA-3.
type Keccak256 struct{}

func (Keccak256) Hash(data []byte) []byte {
	return ethcrypto.Keccak256(data)
}

func (Keccak256) Size() int { return 32 }

func (Keccak256) Type() string { return TypeKeccak256 }

// Poseidon hashes over the BN254 scalar field, so the resulting trees can be
// proven inside circuits.
type Poseidon struct{}

// Hash panics only if the poseidon permutation rejects its inputs, which
// cannot happen since BytesToFieldElements keeps them below the modulus.
func (Poseidon) Hash(data []byte) []byte {
	h, err := poseidon.HashBytes(data)
	if err != nil {
		panic(fmt.Sprintf("poseidon: %v", err))
	}
	return h
}

func (Poseidon) Size() int { return poseidon.DigestLen }

func (Poseidon) Type() string { return TypePoseidon }

// MiMC7 hashes 31 byte blocks with the iden3 MiMC7 construction. The input
// is prefixed with its 8 byte length, since the block packing alone maps an
// empty input to zero and ignores trailing zero bytes.
type MiMC7 struct{}

func (MiMC7) Hash(data []byte) []byte {
	prefixed := binary.BigEndian.AppendUint64(make([]byte, 0, 8+len(data)), uint64(len(data)))
	prefixed = append(prefixed, data...)
	return mimc7.HashBytes(prefixed).FillBytes(make([]byte, 32))
}

func (MiMC7) Size() int { return 32 }

func (MiMC7) Type() string { return TypeMiMC7 }
