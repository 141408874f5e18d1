package main

import (
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/blindvote/accumulator"
	"github.com/vocdoni/blindvote/crypto/hash"
	"github.com/vocdoni/blindvote/log"
	"github.com/vocdoni/blindvote/platform"
)

const (
	defaultHeight      = 2
	defaultHasher      = hash.TypeSHA256
	defaultVoters      = 4
	defaultYes         = 0
	defaultInvalid     = 1
	defaultOneVote     = true
	defaultSigned      = true
	defaultRootHistory = platform.DefaultRootHistory
	defaultLogLevel    = log.LogLevelInfo
	defaultLogOutput   = "stdout"
)

// Version is the build version, set at build time with -ldflags
var Version = "dev"

// Config holds the simulator configuration
type Config struct {
	Election ElectionConfig
	Log      LogConfig
}

// ElectionConfig describes the simulated election. Registered voters that
// are neither yes nor invalid voters vote no.
type ElectionConfig struct {
	Height      int    `mapstructure:"height"`
	Hasher      string `mapstructure:"hasher"`
	Voters      int    `mapstructure:"voters"`
	Yes         int    `mapstructure:"yes"`
	Invalid     int    `mapstructure:"invalid"`
	OneVote     bool   `mapstructure:"onevote"`
	Signed      bool   `mapstructure:"signed"`
	RootHistory int    `mapstructure:"roothistory"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig(args []string) (*Config, error) {
	v := viper.New()

	v.SetDefault("election.height", defaultHeight)
	v.SetDefault("election.hasher", defaultHasher)
	v.SetDefault("election.voters", defaultVoters)
	v.SetDefault("election.yes", defaultYes)
	v.SetDefault("election.invalid", defaultInvalid)
	v.SetDefault("election.onevote", defaultOneVote)
	v.SetDefault("election.signed", defaultSigned)
	v.SetDefault("election.roothistory", defaultRootHistory)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)

	fs := flag.NewFlagSet("blindvote-sim", flag.ContinueOnError)
	fs.IntP("election.height", "t", defaultHeight, "voter tree height, the election admits 2^height voters")
	fs.StringP("election.hasher", "H", defaultHasher, fmt.Sprintf("voter tree hash function %v", hash.Types()))
	fs.IntP("election.voters", "v", defaultVoters, "number of voters to register")
	fs.IntP("election.yes", "y", defaultYes, "number of registered voters voting yes")
	fs.IntP("election.invalid", "i", defaultInvalid, "number of registered voters submitting a garbage ballot")
	fs.Bool("election.onevote", defaultOneVote, "refuse a second authorization for the same voter")
	fs.Bool("election.signed", defaultSigned, "require authorization requests signed with the voter key")
	fs.Int("election.roothistory", defaultRootHistory, "number of recent voter tree roots accepted in proofs")
	fs.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "blindvote-sim v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: blindvote-sim [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, BLINDVOTE_ELECTION_HEIGHT or BLINDVOTE_LOG_LEVEL\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # 16 voters, 10 yes, 2 garbage ballots, keccak256 voter tree\n")
		fmt.Fprintf(os.Stderr, "  blindvote-sim -t 4 -v 16 -y 10 -i 2 -H keccak256\n")
	}

	fs.SortFlags = false
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v.SetEnvPrefix("BLINDVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	e := cfg.Election
	if e.Height < 0 || e.Height > accumulator.MaxHeight {
		return fmt.Errorf("invalid height %d, must be between 0 and %d", e.Height, accumulator.MaxHeight)
	}
	if !hash.IsValid(e.Hasher) {
		return fmt.Errorf("invalid hasher %q, available hashers: %v", e.Hasher, hash.Types())
	}
	if e.Voters < 0 || e.Yes < 0 || e.Invalid < 0 {
		return fmt.Errorf("voter counts can not be negative")
	}
	if capacity := 1 << e.Height; e.Voters > capacity {
		return fmt.Errorf("%d voters do not fit in a tree of height %d (capacity %d)", e.Voters, e.Height, capacity)
	}
	if e.Yes+e.Invalid > e.Voters {
		return fmt.Errorf("yes (%d) and invalid (%d) voters exceed the %d registered voters", e.Yes, e.Invalid, e.Voters)
	}
	if e.RootHistory <= 0 {
		return fmt.Errorf("root history must be positive")
	}
	return nil
}
