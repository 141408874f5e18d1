// Package accumulator implements a fixed-capacity Merkle membership
// accumulator backed by a single array.
//
// The tree of height h stores 2^(h+1)-1 digests. Index 0 is the root, the
// children of node i are 2i+1 (left) and 2i+2 (right), and the leaves
// occupy the last 2^h slots. Parents are always H(left ++ right) over
// fixed-width digests. An empty subtree of height k commits to z[k], with
// z[0] the sentinel and z[k+1] = H(z[k] ++ z[k]), so the root depends only
// on the set of occupied leaves.
package accumulator

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/blindvote/crypto/hash"
	"github.com/vocdoni/blindvote/types"
)

// MaxHeight bounds the tree height so the node array stays addressable.
const MaxHeight = 30

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotRemoved
)

// Tree is a fixed-height, array-backed complete binary hash tree.
type Tree struct {
	mu     sync.RWMutex
	height int
	hasher hash.Hasher
	// nodes holds every digest of the tree, root first.
	nodes [][]byte
	// slots tracks the state of each leaf, indexed by leaf position.
	slots []slotState
	// next is the next free leaf position.
	next uint64
	// sentinel is the digest stored in unoccupied leaves: hasher.Size()
	// zero bytes, which the hash does not produce on real input.
	sentinel []byte

	lazy  bool
	dirty []uint64
}

// Option configures a Tree.
type Option func(*Tree)

// LazyRoot defers path recomputation until the root or a proof is
// requested. Pending paths are flushed in a single batch.
func LazyRoot() Option {
	return func(t *Tree) { t.lazy = true }
}

// New creates an empty tree with 2^height leaves that hashes with hasher.
func New(height int, hasher hash.Hasher, opts ...Option) (*Tree, error) {
	if height < 0 || height > MaxHeight {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrInvalidHeight, height, MaxHeight)
	}
	if hasher == nil {
		return nil, fmt.Errorf("nil hasher")
	}
	t := &Tree{
		height:   height,
		hasher:   hasher,
		nodes:    make([][]byte, (uint64(1)<<(height+1))-1),
		slots:    make([]slotState, uint64(1)<<height),
		sentinel: make([]byte, hasher.Size()),
	}
	zeros := emptySubtrees(hasher, t.sentinel, height)
	for depth := 0; depth <= height; depth++ {
		first := (uint64(1) << depth) - 1
		for i := first; i < 2*first+1; i++ {
			t.nodes[i] = zeros[height-depth]
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Height returns the height of the tree.
func (t *Tree) Height() int {
	return t.height
}

// Capacity returns the number of leaves of the tree.
func (t *Tree) Capacity() uint64 {
	return uint64(len(t.slots))
}

// Hasher returns the hash function of the tree.
func (t *Tree) Hasher() hash.Hasher {
	return t.hasher
}

// Len returns the number of appended leaves, removed ones included.
func (t *Tree) Len() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.next
}

// Append hashes preimage into the next free leaf and returns its position.
// It fails with ErrCapacityExceeded when the tree is full.
func (t *Tree) Append(preimage []byte) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.append(preimage)
}

// AppendAll appends every preimage in order. On error the leaves appended
// so far are kept and their positions returned.
func (t *Tree) AppendAll(preimages [][]byte) ([]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	indexes := make([]uint64, 0, len(preimages))
	for _, p := range preimages {
		idx, err := t.append(p)
		if err != nil {
			return indexes, err
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

func (t *Tree) append(preimage []byte) (uint64, error) {
	if t.next >= t.Capacity() {
		return 0, fmt.Errorf("%w: %d leaves", ErrCapacityExceeded, t.Capacity())
	}
	leaf := t.next
	t.nodes[t.nodeIndex(leaf)] = t.hasher.Hash(preimage)
	t.slots[leaf] = slotOccupied
	t.next++
	t.touch(leaf)
	return leaf, nil
}

// Remove resets an appended leaf to the sentinel digest. The position is
// not reused by later appends.
func (t *Tree) Remove(leaf uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if leaf >= t.next {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, leaf)
	}
	if t.slots[leaf] != slotOccupied {
		return fmt.Errorf("%w: %d", ErrLeafNotOccupied, leaf)
	}
	t.nodes[t.nodeIndex(leaf)] = t.sentinel
	t.slots[leaf] = slotRemoved
	t.touch(leaf)
	return nil
}

// Leaf returns the digest stored at the given leaf and whether it is
// occupied.
func (t *Tree) Leaf(leaf uint64) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if leaf >= t.Capacity() || t.slots[leaf] != slotOccupied {
		return nil, false
	}
	return bytes.Clone(t.nodes[t.nodeIndex(leaf)]), true
}

// Find returns the position of the first occupied leaf whose digest is
// H(preimage).
func (t *Tree) Find(preimage []byte) (uint64, bool) {
	digest := t.hasher.Hash(preimage)
	t.mu.RLock()
	defer t.mu.RUnlock()
	for leaf := uint64(0); leaf < t.next; leaf++ {
		if t.slots[leaf] == slotOccupied && bytes.Equal(t.nodes[t.nodeIndex(leaf)], digest) {
			return leaf, true
		}
	}
	return 0, false
}

// RecomputePath rehashes every node from the given leaf up to the root.
// It is idempotent.
func (t *Tree) RecomputePath(leaf uint64) error {
	if leaf >= t.Capacity() {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, leaf)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recomputePath(leaf)
	return nil
}

// Root returns a copy of the current root digest.
func (t *Tree) Root() []byte {
	t.flush()
	t.mu.RLock()
	defer t.mu.RUnlock()
	return bytes.Clone(t.nodes[0])
}

// Proof returns the inclusion proof of the given leaf together with the
// root it was computed against. Proofs of unoccupied leaves are allowed;
// they commit to the sentinel and never verify for a real preimage.
func (t *Tree) Proof(leaf uint64) (*Proof, error) {
	if leaf >= t.Capacity() {
		return nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, leaf)
	}
	t.flush()
	t.mu.RLock()
	defer t.mu.RUnlock()

	proof := &Proof{
		Root:     bytes.Clone(t.nodes[0]),
		Siblings: make([]types.HexBytes, 0, t.height),
		IsLeft:   make([]bool, 0, t.height),
	}
	for idx := t.nodeIndex(leaf); idx > 0; idx = parent(idx) {
		sib := sibling(idx)
		proof.Siblings = append(proof.Siblings, bytes.Clone(t.nodes[sib]))
		proof.IsLeft = append(proof.IsLeft, isLeftNode(sib))
	}
	return proof, nil
}

// touch recomputes the path of leaf, or queues it when the tree is lazy.
// The caller holds the write lock.
func (t *Tree) touch(leaf uint64) {
	if t.lazy {
		t.dirty = append(t.dirty, leaf)
		return
	}
	t.recomputePath(leaf)
}

// flush recomputes the queued paths of a lazy tree.
func (t *Tree) flush() {
	if !t.lazy {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.dirty) == 0 {
		return
	}
	slices.Sort(t.dirty)
	for _, leaf := range slices.Compact(t.dirty) {
		t.recomputePath(leaf)
	}
	t.dirty = t.dirty[:0]
}

func (t *Tree) recomputePath(leaf uint64) {
	for idx := t.nodeIndex(leaf); idx > 0; {
		sib := sibling(idx)
		left, right := idx, sib
		if sib < idx {
			left, right = sib, idx
		}
		idx = parent(idx)
		t.nodes[idx] = hashPair(t.hasher, t.nodes[left], t.nodes[right])
	}
}

// nodeIndex maps a leaf position to its index in the node array.
func (t *Tree) nodeIndex(leaf uint64) uint64 {
	return uint64(len(t.slots)) - 1 + leaf
}

func parent(idx uint64) uint64 {
	return (idx - 1) / 2
}

func sibling(idx uint64) uint64 {
	if isLeftNode(idx) {
		return idx + 1
	}
	return idx - 1
}

// isLeftNode reports whether idx is a left child. The root has no side.
func isLeftNode(idx uint64) bool {
	return idx%2 == 1
}

// emptySubtrees returns the roots of empty subtrees of height 0 to height.
func emptySubtrees(h hash.Hasher, sentinel []byte, height int) [][]byte {
	zeros := make([][]byte, height+1)
	zeros[0] = sentinel
	for k := 1; k <= height; k++ {
		zeros[k] = hashPair(h, zeros[k-1], zeros[k-1])
	}
	return zeros
}

// hashPair returns H(left ++ right).
func hashPair(h hash.Hasher, left, right []byte) []byte {
	buf := make([]byte, 0, len(left)+len(right))
	buf = append(buf, left...)
	buf = append(buf, right...)
	return h.Hash(buf)
}
