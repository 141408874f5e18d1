package platform

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/crypto/blindsig"
	"github.com/vocdoni/blindvote/crypto/ecc/bls12381"
	"github.com/vocdoni/blindvote/crypto/hash"
)

func voterKey(i int) []byte {
	return []byte(fmt.Sprintf("voter-public-key-%03d", i))
}

// newOpenPlatform returns an open election with n registered voters.
func newOpenPlatform(t *testing.T, cfg Config, height, n int) *VotingPlatform {
	t.Helper()
	p := New(cfg)
	qt.Assert(t, p.Initialize(height, hash.SHA256{}), qt.IsNil)
	for i := range n {
		idx, err := p.RegisterVoter(voterKey(i))
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, idx, qt.Equals, uint64(i))
	}
	return p
}

func blindedBallot(t *testing.T, msg []byte) ([]byte, *blindsig.BlindingFactor) {
	t.Helper()
	blinded, bf, err := blindsig.Blind(msg)
	qt.Assert(t, err, qt.IsNil)
	return blinded, bf
}

func TestStateTransitions(t *testing.T) {
	c := qt.New(t)
	p := New(Config{})
	c.Assert(p.State(), qt.Equals, StateUninitialized)

	_, err := p.RegisterVoter(voterKey(0))
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	_, err = p.Tally()
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	c.Assert(p.Close(), qt.ErrorIs, ErrInvalidState)

	c.Assert(p.Initialize(2, hash.SHA256{}), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateOpen)
	c.Assert(p.Initialize(2, hash.SHA256{}), qt.ErrorIs, ErrInvalidState)

	c.Assert(p.Close(), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateClosed)
	_, err = p.RegisterVoter(voterKey(0))
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	c.Assert(p.SubmitVote([]byte("late")), qt.ErrorIs, ErrInvalidState)
	blinded, _ := blindedBallot(t, PlaintextYes)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	_, err = p.AuthorizeVote(blinded, voterKey(0), proof)
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	tally, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(tally.Total(), qt.Equals, 0)

	p.Reset()
	c.Assert(p.State(), qt.Equals, StateUninitialized)
	c.Assert(p.RegisteredCount(), qt.Equals, uint64(0))
	c.Assert(p.Initialize(1, hash.SHA256{}), qt.IsNil)
	c.Assert(p.State(), qt.Equals, StateOpen)

	c.Assert(New(Config{}).Initialize(accumulator.MaxHeight+1, hash.SHA256{}), qt.ErrorIs, accumulator.ErrInvalidHeight)
}

func TestCapacityExceeded(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 4)
	root, err := p.Root()
	c.Assert(err, qt.IsNil)

	_, err = p.RegisterVoter(voterKey(4))
	c.Assert(err, qt.ErrorIs, accumulator.ErrCapacityExceeded)
	c.Assert(p.RegisteredCount(), qt.Equals, uint64(4))
	after, err := p.Root()
	c.Assert(err, qt.IsNil)
	c.Assert(after, qt.DeepEquals, root)
}

func TestAntiReplay(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 4)
	proof, err := p.Proof(1)
	c.Assert(err, qt.IsNil)

	blinded, _ := blindedBallot(t, PlaintextYes)
	signed, err := p.AuthorizeVote(blinded, voterKey(1), proof)
	c.Assert(err, qt.IsNil)
	c.Assert(signed, qt.HasLen, bls12381.G2Size)

	_, err = p.AuthorizeVote(blinded, voterKey(1), proof)
	c.Assert(err, qt.ErrorIs, ErrAlreadyAuthorized)

	// a different blinding of the same plaintext is a new ballot
	again, _ := blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(again, voterKey(1), proof)
	c.Assert(err, qt.IsNil)

	n, err := p.AuthorizedCount()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
}

func TestOneAuthorizationPerVoter(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{OneAuthorizationPerVoter: true}, 2, 2)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)

	first, _ := blindedBallot(t, PlaintextNo)
	_, err = p.AuthorizeVote(first, voterKey(0), proof)
	c.Assert(err, qt.IsNil)

	second, _ := blindedBallot(t, PlaintextNo)
	_, err = p.AuthorizeVote(second, voterKey(0), proof)
	c.Assert(err, qt.ErrorIs, ErrAlreadyAuthorized)

	// the other voter is unaffected
	proof, err = p.Proof(1)
	c.Assert(err, qt.IsNil)
	_, err = p.AuthorizeVote(second, voterKey(1), proof)
	c.Assert(err, qt.IsNil)
}

// vote runs the voter protocol for the leaf at index and submits the
// unblinded signature.
func vote(t *testing.T, p *VotingPlatform, index int, plaintext []byte) {
	t.Helper()
	proof, err := p.Proof(uint64(index))
	qt.Assert(t, err, qt.IsNil)
	vk, err := p.VerifyKey()
	qt.Assert(t, err, qt.IsNil)
	blinded, bf := blindedBallot(t, plaintext)
	signed, err := p.AuthorizeVote(blinded, voterKey(index), proof)
	qt.Assert(t, err, qt.IsNil)
	sig, err := blindsig.Unblind(vk.P, bf, signed)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, p.SubmitVote(sig), qt.IsNil)
}

func TestTally(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 4)
	for i := range 3 {
		vote(t, p, i, PlaintextNo)
	}
	c.Assert(p.SubmitVote(bytes.Repeat([]byte{0x42}, bls12381.G2Size)), qt.IsNil)

	snapshot, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*snapshot, qt.Equals, Tally{Yes: 0, No: 3, Invalid: 1})

	c.Assert(p.Close(), qt.IsNil)
	final, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*final, qt.Equals, *snapshot)

	data, err := json.Marshal(final)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"Y":0,"N":3,"Invalid":1}`)
}

func TestTallyMixed(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 3, 8)
	for i := range 5 {
		vote(t, p, i, PlaintextYes)
	}
	vote(t, p, 5, PlaintextNo)
	// a valid signature over another plaintext is not a yes or a no
	vote(t, p, 6, []byte("maybe"))
	c.Assert(p.SubmitVote(nil), qt.IsNil)

	tally, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*tally, qt.Equals, Tally{Yes: 5, No: 1, Invalid: 2})
	c.Assert(tally.String(), qt.Equals, "Y=5 N=1 Invalid=2")
}

func TestSignatureFromOtherElectionIsInvalid(t *testing.T) {
	c := qt.New(t)
	other := newOpenPlatform(t, Config{}, 1, 1)
	otherSK, _, err := blindsig.Setup()
	c.Assert(err, qt.IsNil)
	forged, err := blindsig.SignDirect(PlaintextYes, otherSK)
	c.Assert(err, qt.IsNil)
	c.Assert(other.SubmitVote(forged), qt.IsNil)

	tally, err := other.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*tally, qt.Equals, Tally{Invalid: 1})
}

func TestNonMemberCopiedPath(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 4)
	proof, err := p.Proof(2)
	c.Assert(err, qt.IsNil)

	blinded, _ := blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(blinded, []byte("never registered"), proof)
	c.Assert(err, qt.ErrorIs, ErrNotAMember)

	// the rejection recorded nothing: the member can still use the ballot
	_, err = p.AuthorizeVote(blinded, voterKey(2), proof)
	c.Assert(err, qt.IsNil)
}

func TestUnoccupiedLeafProofRejected(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 2)
	proof, err := p.Proof(3)
	c.Assert(err, qt.IsNil)
	blinded, _ := blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(blinded, nil, proof)
	c.Assert(err, qt.ErrorIs, ErrNotAMember)
	_, err = p.AuthorizeVote(blinded, []byte{}, proof)
	c.Assert(err, qt.ErrorIs, ErrNotAMember)
}

func TestRootHistory(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{RootHistory: 2}, 3, 1)
	stale, err := p.Proof(0)
	c.Assert(err, qt.IsNil)

	// one more registration: the proof root is still in the history
	_, err = p.RegisterVoter(voterKey(1))
	c.Assert(err, qt.IsNil)
	blinded, _ := blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(blinded, voterKey(0), stale)
	c.Assert(err, qt.IsNil)

	// two more: the root was evicted
	for i := 2; i < 4; i++ {
		_, err = p.RegisterVoter(voterKey(i))
		c.Assert(err, qt.IsNil)
	}
	blinded, _ = blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(blinded, voterKey(0), stale)
	c.Assert(err, qt.ErrorIs, ErrNotAMember)

	fresh, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	_, err = p.AuthorizeVote(blinded, voterKey(0), fresh)
	c.Assert(err, qt.IsNil)
}

func TestForeignRootRejected(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 1)

	// a self-consistent proof against a tree the platform never had
	tree, err := accumulator.New(2, hash.SHA256{})
	c.Assert(err, qt.IsNil)
	_, err = tree.Append([]byte("intruder"))
	c.Assert(err, qt.IsNil)
	proof, err := tree.Proof(0)
	c.Assert(err, qt.IsNil)
	c.Assert(accumulator.Verify(hash.SHA256{}, []byte("intruder"), proof), qt.IsTrue)

	blinded, _ := blindedBallot(t, PlaintextYes)
	_, err = p.AuthorizeVote(blinded, []byte("intruder"), proof)
	c.Assert(err, qt.ErrorIs, ErrNotAMember)
}

func TestInvalidProofShape(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 1)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	blinded, _ := blindedBallot(t, PlaintextYes)

	short := proof.Clone()
	short.Siblings = short.Siblings[:1]
	_, err = p.AuthorizeVote(blinded, voterKey(0), short)
	c.Assert(err, qt.ErrorIs, accumulator.ErrInvalidProofShape)

	flags := proof.Clone()
	flags.IsLeft = append(flags.IsLeft, true)
	_, err = p.AuthorizeVote(blinded, voterKey(0), flags)
	c.Assert(err, qt.ErrorIs, accumulator.ErrInvalidProofShape)

	_, err = p.AuthorizeVote(blinded, voterKey(0), nil)
	c.Assert(err, qt.ErrorIs, accumulator.ErrInvalidProofShape)
}

func TestInvalidEncoding(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 1)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)

	for _, blinded := range [][]byte{
		nil,
		{1, 2, 3},
		bytes.Repeat([]byte{0xff}, bls12381.G2Size),
		new(bls12381.G2).Sub(bls12381.G2Generator(), bls12381.G2Generator()).Bytes(),
	} {
		_, err = p.AuthorizeVote(blinded, voterKey(0), proof)
		c.Assert(err, qt.ErrorIs, bls12381.ErrInvalidEncoding)
	}
	n, err := p.AuthorizedCount()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
}

func TestConcurrentAuthorizeSameBallot(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 4)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	blinded, _ := blindedBallot(t, PlaintextYes)

	const workers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		replayed int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.AuthorizeVote(blinded, voterKey(0), proof)
			mu.Lock()
			defer mu.Unlock()
			switch ReasonFromError(err) {
			case "":
				accepted++
			case ReasonAlreadyAuthorized:
				replayed++
			}
		}()
	}
	wg.Wait()
	c.Assert(accepted, qt.Equals, 1)
	c.Assert(replayed, qt.Equals, workers-1)
}

func TestConcurrentRegistration(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 5, 0)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.RegisterVoter(voterKey(i))
			c.Check(err, qt.IsNil)
		}()
	}
	wg.Wait()
	c.Assert(p.RegisteredCount(), qt.Equals, uint64(32))
	hasher, err := p.Hasher()
	c.Assert(err, qt.IsNil)
	for i := range 32 {
		proof, err := p.Proof(uint64(i))
		c.Assert(err, qt.IsNil)
		found := 0
		for j := range 32 {
			if accumulator.Verify(hasher, voterKey(j), proof) {
				found++
			}
		}
		c.Assert(found, qt.Equals, 1)
	}
}

func TestAuthorizeWire(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 2, 2)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	blinded, _ := blindedBallot(t, PlaintextNo)

	data, err := json.Marshal(&AuthorizationRequest{
		BlindedBallot: blinded,
		PublicKey:     voterKey(0),
		Proof:         proof,
	})
	c.Assert(err, qt.IsNil)
	var req AuthorizationRequest
	c.Assert(json.Unmarshal(data, &req), qt.IsNil)

	resp := p.Authorize(&req)
	c.Assert(resp.Authorized(), qt.IsTrue)
	c.Assert(resp.SignedBlindedBallot, qt.HasLen, bls12381.G2Size)

	resp = p.Authorize(&req)
	c.Assert(resp.Authorized(), qt.IsFalse)
	c.Assert(resp.Reason, qt.Equals, ReasonAlreadyAuthorized)
	data, err = json.Marshal(resp)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"reason":"AlreadyAuthorized"}`)

	req.PublicKey = voterKey(1)
	c.Assert(p.Authorize(&req).Reason, qt.Equals, ReasonNotAMember)
	c.Assert(p.Authorize(nil).Reason, qt.Equals, ReasonInvalidProofShape)
}

func TestReasonFromError(t *testing.T) {
	c := qt.New(t)
	c.Assert(ReasonFromError(nil), qt.Equals, Reason(""))
	c.Assert(ReasonFromError(fmt.Errorf("x: %w", ErrNotAMember)), qt.Equals, ReasonNotAMember)
	c.Assert(ReasonFromError(ErrAlreadyAuthorized), qt.Equals, ReasonAlreadyAuthorized)
	c.Assert(ReasonFromError(accumulator.ErrInvalidProofShape), qt.Equals, ReasonInvalidProofShape)
	c.Assert(ReasonFromError(bls12381.ErrInvalidEncoding), qt.Equals, ReasonInvalidEncoding)
	c.Assert(ReasonFromError(ErrInvalidState), qt.Equals, ReasonInvalidState)
	c.Assert(ReasonFromError(fmt.Errorf("boom")), qt.Equals, ReasonInternal)
}

func TestVerifyKeyIsCopy(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 1, 2)

	vk, err := p.VerifyKey()
	c.Assert(err, qt.IsNil)
	original := vk.Clone()
	s, err := bls12381.RandomScalar()
	c.Assert(err, qt.IsNil)
	vk.G.ScalarBaseMult(s)
	vk.P.ScalarBaseMult(s)

	current, err := p.VerifyKey()
	c.Assert(err, qt.IsNil)
	c.Assert(current.G.Equal(original.G), qt.IsTrue)
	c.Assert(current.P.Equal(original.P), qt.IsTrue)

	vote(t, p, 0, PlaintextYes)
	tally, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*tally, qt.Equals, Tally{Yes: 1})
}

func TestDuplicateSubmissionCountsTwice(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{}, 1, 2)
	proof, err := p.Proof(0)
	c.Assert(err, qt.IsNil)
	vk, err := p.VerifyKey()
	c.Assert(err, qt.IsNil)

	blinded, bf := blindedBallot(t, PlaintextNo)
	signed, err := p.AuthorizeVote(blinded, voterKey(0), proof)
	c.Assert(err, qt.IsNil)
	sig, err := blindsig.Unblind(vk.P, bf, signed)
	c.Assert(err, qt.IsNil)
	c.Assert(p.SubmitVote(sig), qt.IsNil)
	c.Assert(p.SubmitVote(sig), qt.IsNil)

	n, err := p.SubmittedCount()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
	tally, err := p.Tally()
	c.Assert(err, qt.IsNil)
	c.Assert(*tally, qt.Equals, Tally{No: 2})
}

func TestAuthorizationLookup(t *testing.T) {
	c := qt.New(t)
	p := newOpenPlatform(t, Config{OneAuthorizationPerVoter: true}, 1, 2)
	proof, err := p.Proof(1)
	c.Assert(err, qt.IsNil)

	blinded, _ := blindedBallot(t, PlaintextYes)
	_, err = p.Authorization(blinded)
	c.Assert(err, qt.ErrorIs, ErrBallotNotAuthorized)

	_, err = p.AuthorizeVote(blinded, voterKey(1), proof)
	c.Assert(err, qt.IsNil)
	rec, err := p.Authorization(blinded)
	c.Assert(err, qt.IsNil)
	c.Assert([]byte(rec.Voter), qt.DeepEquals, voterKey(1))
	c.Assert(rec.Timestamp > 0, qt.IsTrue)

	c.Assert(p.SubmitVote([]byte("garbage")), qt.IsNil)
	n, err := p.SubmittedCount()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	p.Reset()
	_, err = p.SubmittedCount()
	c.Assert(err, qt.ErrorIs, ErrInvalidState)
	c.Assert(p.Initialize(1, hash.SHA256{}), qt.IsNil)
	n, err = p.SubmittedCount()
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	_, err = p.Authorization(blinded)
	c.Assert(err, qt.ErrorIs, ErrBallotNotAuthorized)
}
