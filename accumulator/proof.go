package accumulator

import (
	"bytes"
	"fmt"

	"github.com/vocdoni/blindvote/crypto/hash"
	"github.com/vocdoni/blindvote/types"
)

// Proof is a self-contained inclusion proof. Siblings are ordered from the
// leaf's sibling up to the child of the root; IsLeft[i] tells whether
// Siblings[i] is the left operand of the parent hash.
type Proof struct {
	Root     types.HexBytes   `json:"root" cbor:"root"`
	Siblings []types.HexBytes `json:"siblings" cbor:"siblings"`
	IsLeft   []bool           `json:"isLeft" cbor:"isLeft"`
}

// Validate checks that the proof has one sibling and one side flag per
// level of a tree of the given height, and that every digest has the
// hasher width.
func (p *Proof) Validate(height, digestSize int) error {
	if p == nil {
		return fmt.Errorf("%w: nil proof", ErrInvalidProofShape)
	}
	if len(p.Siblings) != height || len(p.IsLeft) != height {
		return fmt.Errorf("%w: got %d siblings and %d sides, want %d",
			ErrInvalidProofShape, len(p.Siblings), len(p.IsLeft), height)
	}
	if len(p.Root) != digestSize {
		return fmt.Errorf("%w: root has %d bytes, want %d", ErrInvalidProofShape, len(p.Root), digestSize)
	}
	for i, sib := range p.Siblings {
		if len(sib) != digestSize {
			return fmt.Errorf("%w: sibling %d has %d bytes, want %d", ErrInvalidProofShape, i, len(sib), digestSize)
		}
	}
	return nil
}

// Clone returns a deep copy of the proof.
func (p *Proof) Clone() *Proof {
	if p == nil {
		return nil
	}
	c := &Proof{
		Root:     p.Root.Clone(),
		Siblings: make([]types.HexBytes, len(p.Siblings)),
		IsLeft:   append([]bool(nil), p.IsLeft...),
	}
	for i, s := range p.Siblings {
		c.Siblings[i] = s.Clone()
	}
	return c
}

// Verify recomputes the root from H(preimage) and the proof path and
// compares it byte-wise with the proof root. It does not need the tree.
func Verify(hasher hash.Hasher, preimage []byte, proof *Proof) bool {
	if proof == nil || len(proof.Siblings) != len(proof.IsLeft) || len(proof.Root) != hasher.Size() {
		return false
	}
	current := hasher.Hash(preimage)
	for i, sib := range proof.Siblings {
		if len(sib) != hasher.Size() {
			return false
		}
		if proof.IsLeft[i] {
			current = hashPair(hasher, sib, current)
		} else {
			current = hashPair(hasher, current, sib)
		}
	}
	return bytes.Equal(current, proof.Root)
}
