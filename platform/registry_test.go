package platform

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/blindvote/crypto/hash"
)

func TestRegistry(t *testing.T) {
	c := qt.New(t)
	r := NewRegistry()

	id1, p1 := r.Create(Config{})
	id2, p2 := r.Create(Config{})
	c.Assert(id1, qt.Not(qt.Equals), id2)
	c.Assert(r.IDs(), qt.HasLen, 2)

	// elections are independent
	c.Assert(p1.Initialize(1, hash.SHA256{}), qt.IsNil)
	c.Assert(p2.State(), qt.Equals, StateUninitialized)
	_, err := p1.RegisterVoter(voterKey(0))
	c.Assert(err, qt.IsNil)
	c.Assert(p2.RegisteredCount(), qt.Equals, uint64(0))

	got, err := r.Get(id1)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, p1)

	c.Assert(r.Remove(id1), qt.IsNil)
	c.Assert(p1.State(), qt.Equals, StateUninitialized)
	_, err = r.Get(id1)
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)
	c.Assert(r.Remove(id1), qt.ErrorIs, ErrElectionNotFound)
	c.Assert(r.IDs(), qt.DeepEquals, []uuid.UUID{id2})
}
