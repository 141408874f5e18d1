// Package poseidon provides cryptographic hash functions based on the Poseidon hash algorithm.
// It includes utilities for hashing large numbers of inputs and arbitrary
// byte strings over the BN254 scalar field.
package poseidon

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

const (
	// chunkSize is the number of bytes packed in each field element, one
	// less than the field width so every chunk is below the modulus.
	chunkSize = 31
	// maxArity is the maximum number of inputs accepted by poseidon.Hash.
	maxArity = 16
	// DigestLen is the length in bytes of the digests returned by HashBytes.
	DigestLen = 32
)

// MultiPoseidon computes the Poseidon hash of a variable number of big.Int inputs.
// It handles large numbers of inputs by chunking them into groups of 16, hashing each chunk,
// and then recursively hashing the resulting hashes together.
// Returns an error if no inputs are provided.
func MultiPoseidon(inputs ...*big.Int) (*big.Int, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs provided")
	}
	if len(inputs) <= maxArity {
		return poseidon.Hash(inputs)
	}

	hashes := make([]*big.Int, 0, (len(inputs)+maxArity-1)/maxArity)
	for i := 0; i < len(inputs); i += maxArity {
		end := min(i+maxArity, len(inputs))
		hash, err := poseidon.Hash(inputs[i:end])
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}
	return MultiPoseidon(hashes...)
}

// BytesToFieldElements packs data into big-endian 31 byte field elements.
// The first element is the length of data, so inputs that only differ in
// trailing zero bytes map to different sequences.
func BytesToFieldElements(data []byte) []*big.Int {
	elems := make([]*big.Int, 0, 1+(len(data)+chunkSize-1)/chunkSize)
	elems = append(elems, new(big.Int).SetUint64(uint64(len(data))))
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		elems = append(elems, new(big.Int).SetBytes(data[i:end]))
	}
	return elems
}

// HashBytes returns the 32 byte big-endian Poseidon digest of data.
func HashBytes(data []byte) ([]byte, error) {
	h, err := MultiPoseidon(BytesToFieldElements(data)...)
	if err != nil {
		return nil, err
	}
	return h.FillBytes(make([]byte, DigestLen)), nil
}
