package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/economy"
	"github.com/jayeshpatil8him-crypto/Sukunaguessing/internal/match"
	"github.com/joho/godotenv"
)

type Config struct {
	Port         string `env:"PORT"          envDefault:"8080"`
	DatabasePath string `env:"DATABASE_PATH"`
	ImageDir     string `env:"IMAGE_DIR"     envDefault:"./images"`
	CatalogSeed  string `env:"CATALOG_SEED"`

	RoundDuration       time.Duration `env:"ROUND_DURATION"         envDefault:"15s"`
	NextRoundDelay      time.Duration `env:"NEXT_ROUND_DELAY"       envDefault:"2s"`
	TimeoutRetryDelay   time.Duration `env:"TIMEOUT_RETRY_DELAY"    envDefault:"5s"`
	AutoNextRound       bool          `env:"AUTO_NEXT_ROUND"        envDefault:"true"`
	AllowAnyGuesser     bool          `env:"ALLOW_ANY_GUESSER"      envDefault:"false"`
	WrongGuessEndsRound bool          `env:"WRONG_GUESS_ENDS_ROUND" envDefault:"true"`
	MaxDraws            int           `env:"MAX_DRAWS"              envDefault:"3"`

	MatchPolicy         []string `env:"MATCH_POLICY"          envSeparator:"," envDefault:"exact,alias"`
	MatchFuzzyThreshold float64  `env:"MATCH_FUZZY_THRESHOLD" envDefault:"0.85"`
	MatchAliases        string   `env:"MATCH_ALIASES"`

	RewardBase       int    `env:"REWARD_BASE"        envDefault:"20"`
	RewardDecadeMode string `env:"REWARD_DECADE_MODE" envDefault:"flat"`
	RewardDecadeFlat int    `env:"REWARD_DECADE_FLAT" envDefault:"100"`

	AdminUser    string `env:"ADMIN_USER"`
	AdminPass    string `env:"ADMIN_PASS"`
	DebugAnswers bool   `env:"DEBUG_ANSWERS" envDefault:"false"`

	NATSURL           string `env:"NATS_URL"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX" envDefault:"guess.rounds"`

	ExportEnabled bool   `env:"EXPORT_ENABLED" envDefault:"false"`
	ExportFile    string `env:"EXPORT_FILE"    envDefault:"./round-results.txt"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if c.RoundDuration <= 0 {
		return Config{}, fmt.Errorf("ROUND_DURATION must be positive, got %s", c.RoundDuration)
	}
	if c.MaxDraws <= 0 {
		c.MaxDraws = 1
	}
	return c, nil
}

// LoadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// UploadsEnabled reports whether admin credentials are configured.
func (c Config) UploadsEnabled() bool {
	return c.AdminUser != "" && c.AdminPass != ""
}

// Aliases parses MATCH_ALIASES, written as alias=canonical;alias=canonical.
func (c Config) Aliases() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.MatchAliases, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		alias, canonical, ok := strings.Cut(pair, "=")
		alias, canonical = strings.TrimSpace(alias), strings.TrimSpace(canonical)
		if !ok || alias == "" || canonical == "" {
			return nil, fmt.Errorf("invalid alias %q, want alias=canonical", pair)
		}
		out[alias] = canonical
	}
	return out, nil
}

// Policy builds the configured match policy.
func (c Config) Policy() (match.Policy, error) {
	aliases, err := c.Aliases()
	if err != nil {
		return nil, err
	}
	return match.ParsePolicy(c.MatchPolicy, c.MatchFuzzyThreshold, aliases)
}

// Rewards builds the reward table from the default milestones.
func (c Config) Rewards() (economy.Table, error) {
	mode, err := economy.ParseDecadeMode(c.RewardDecadeMode)
	if err != nil {
		return economy.Table{}, err
	}
	t := economy.DefaultTable()
	t.Base = c.RewardBase
	t.DecadeMode = mode
	t.DecadeFlat = c.RewardDecadeFlat
	return t, nil
}
