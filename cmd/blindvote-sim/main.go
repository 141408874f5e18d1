// Command blindvote-sim runs a complete election in memory: it registers
// voters, lets each of them obtain a blind signature and vote, probes the
// platform with a replayed ballot and a non-member, and prints the tally.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/vocdoni/blindvote/crypto/ecc/bls12381"
	"github.com/vocdoni/blindvote/crypto/hash"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/platform"
	"github.com/vocdoni/blindvote/util"
	"github.com/vocdoni/blindvote/voter"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting blindvote-sim", "version", Version)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	tally, err := run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}
	out, err := json.Marshal(tally)
	if err != nil {
		log.Fatalf("Could not encode tally: %v", err)
	}
	fmt.Println(string(out))
}

// expectedTally is what the simulated election should produce.
func expectedTally(e ElectionConfig, registered int) platform.Tally {
	return platform.Tally{
		Yes:     e.Yes,
		No:      registered - e.Yes - e.Invalid,
		Invalid: e.Invalid,
	}
}

// run performs the simulated election and checks its tally.
func run(ctx context.Context, cfg *Config) (*platform.Tally, error) {
	e := cfg.Election
	hasher, err := hash.New(e.Hasher)
	if err != nil {
		return nil, err
	}

	registry := platform.NewRegistry()
	id, p := registry.Create(platform.Config{
		RootHistory:              e.RootHistory,
		OneAuthorizationPerVoter: e.OneVote,
		RequireVoterSignature:    e.Signed,
	})
	defer func() {
		if err := registry.Remove(id); err != nil {
			log.Warnw("could not remove election", "error", err)
		}
	}()
	if err := p.Initialize(e.Height, hasher); err != nil {
		return nil, err
	}

	voters, err := registerVoters(p, e.Voters)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, v := range voters {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return castBallot(p, v, uint64(i), e.ballotFor(i))
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := probe(p, voters); err != nil {
		return nil, err
	}

	if err := p.Close(); err != nil {
		return nil, err
	}
	tally, err := p.Tally()
	if err != nil {
		return nil, err
	}
	if want := expectedTally(e, len(voters)); *tally != want {
		return tally, fmt.Errorf("unexpected tally %s, want %s", tally, &want)
	}
	log.Infow("election finished", "election", id.String(), "tally", tally.String())
	return tally, nil
}

// ballotFor returns the plaintext voted by the i-th voter, nil meaning a
// garbage ballot.
func (e ElectionConfig) ballotFor(i int) []byte {
	switch {
	case i < e.Yes:
		return platform.PlaintextYes
	case i < e.Yes+e.Invalid:
		return nil
	default:
		return platform.PlaintextNo
	}
}

// registerVoters creates n voters and registers them in order.
func registerVoters(p *platform.VotingPlatform, n int) ([]*voter.Voter, error) {
	voters := make([]*voter.Voter, 0, n)
	for range n {
		v, err := voter.New()
		if err != nil {
			return nil, err
		}
		index, err := p.RegisterVoter(v.PublicKey())
		if err != nil {
			return nil, fmt.Errorf("could not register voter %s: %w", v.Address().Hex(), err)
		}
		log.Debugw("voter registered", "address", v.Address().Hex(), "index", index)
		voters = append(voters, v)
	}
	return voters, nil
}

// castBallot votes plaintext, or submits random bytes of random length when
// plaintext is nil.
func castBallot(p *platform.VotingPlatform, v *voter.Voter, index uint64, plaintext []byte) error {
	if plaintext == nil {
		return p.SubmitVote(util.RandomBytes(util.RandomInt(1, 2*bls12381.G2Size)))
	}
	if err := v.Vote(p, index, plaintext); err != nil {
		return fmt.Errorf("voter %d: %w", index, err)
	}
	return nil
}

// probe checks that the platform refuses a replayed ballot and a
// non-member presenting a copied proof.
func probe(p *platform.VotingPlatform, voters []*voter.Voter) error {
	if len(voters) == 0 {
		return nil
	}
	proof, err := p.Proof(0)
	if err != nil {
		return err
	}

	outsider, err := voter.New()
	if err != nil {
		return err
	}
	ballot, err := voter.NewBallot(platform.PlaintextYes)
	if err != nil {
		return err
	}
	req, err := outsider.Request(ballot, proof)
	if err != nil {
		return err
	}
	if resp := p.Authorize(req); resp.Reason != platform.ReasonNotAMember {
		return fmt.Errorf("non-member probe got %q", resp.Reason)
	}

	// With the per-voter guard the voter already spent its authorization;
	// without it the first request goes through. The replay is refused
	// either way. The probe ballot is never submitted.
	req, err = voters[0].Request(ballot, proof)
	if err != nil {
		return err
	}
	if first := p.Authorize(req); !first.Authorized() && first.Reason != platform.ReasonAlreadyAuthorized {
		return fmt.Errorf("replay probe: first request got %q", first.Reason)
	}
	if second := p.Authorize(req); second.Reason != platform.ReasonAlreadyAuthorized {
		return fmt.Errorf("replay probe got %q", second.Reason)
	}
	return nil
}
