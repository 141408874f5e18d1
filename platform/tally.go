package platform

import (
	"fmt"
	"runtime"

	"github.com/vocdoni/blindvote/crypto/blindsig"
	"github.com/vocdoni/blindvote/log"
	"golang.org/x/sync/errgroup"
)

var (
	// PlaintextYes is the ballot content counted as a yes vote.
	PlaintextYes = []byte("Y")
	// PlaintextNo is the ballot content counted as a no vote.
	PlaintextNo = []byte("N")
)

// Tally is the outcome of an election. Every submitted ballot is counted in
// exactly one bucket.
type Tally struct {
	Yes     int `json:"Y"`
	No      int `json:"N"`
	Invalid int `json:"Invalid"`
}

// Total returns the number of counted ballots.
func (t *Tally) Total() int {
	return t.Yes + t.No + t.Invalid
}

func (t *Tally) String() string {
	return fmt.Sprintf("Y=%d N=%d Invalid=%d", t.Yes, t.No, t.Invalid)
}

type outcome uint8

const (
	outcomeInvalid outcome = iota
	outcomeYes
	outcomeNo
)

// Tally counts the submitted ballots. It can run while the election is
// open, giving a snapshot, or after Close for the final result. Signatures
// are verified in parallel.
//
// Every submission is counted: the same unblinded signature submitted twice
// counts twice. Tally does not bound the result by the number of
// authorizations; duplicate filtering belongs to whoever accepts
// submissions.
func (p *VotingPlatform) Tally() (*Tally, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.requireState("tally", StateOpen, StateClosed); err != nil {
		return nil, err
	}
	ballots, err := p.box.Ballots()
	if err != nil {
		return nil, fmt.Errorf("could not read ballots: %w", err)
	}

	outcomes := make([]outcome, len(ballots))
	g := new(errgroup.Group)
	g.SetLimit(runtime.NumCPU())
	for i, b := range ballots {
		g.Go(func() error {
			outcomes[i] = classify(p.vk, b.Signature)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := &Tally{}
	for _, o := range outcomes {
		switch o {
		case outcomeYes:
			t.Yes++
		case outcomeNo:
			t.No++
		default:
			t.Invalid++
		}
	}
	log.Infow("tally computed", "state", p.state.String(), "yes", t.Yes, "no", t.No, "invalid", t.Invalid)
	return t, nil
}

func classify(vk *blindsig.VerifyKey, sig []byte) outcome {
	switch {
	case blindsig.Verify(vk.G, PlaintextYes, sig):
		return outcomeYes
	case blindsig.Verify(vk.G, PlaintextNo, sig):
		return outcomeNo
	default:
		return outcomeInvalid
	}
}
