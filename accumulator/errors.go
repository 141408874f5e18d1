package accumulator

import "fmt"

var (
	// ErrCapacityExceeded is returned by Append once all 2^height leaves are
	// occupied. The tree is left unchanged.
	ErrCapacityExceeded = fmt.Errorf("accumulator capacity exceeded")
	// ErrIndexOutOfRange is returned when a leaf index is beyond the tree
	// capacity (or beyond the appended leaves for Remove).
	ErrIndexOutOfRange = fmt.Errorf("leaf index out of range")
	// ErrLeafNotOccupied is returned when removing a leaf that holds no value.
	ErrLeafNotOccupied = fmt.Errorf("leaf is not occupied")
	// ErrInvalidHeight is returned by New for negative or too large heights.
	ErrInvalidHeight = fmt.Errorf("invalid tree height")
	// ErrInvalidProofShape is returned when a proof does not match the tree
	// height or the digest width of the hasher.
	ErrInvalidProofShape = fmt.Errorf("invalid proof shape")
)
