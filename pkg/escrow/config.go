package escrow

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/depositbox/escrow-client/pkg/solana"
)

// Config is the orchestration core configuration. Values may come from a
// config file, the environment, or the defaults below, in that order of
// precedence.
type Config struct {
	// Endpoint is the ledger JSON RPC endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Commitment is the confirmation level flows wait for: "processed",
	// "confirmed", or "finalized".
	Commitment string `mapstructure:"commitment"`

	// SubmissionAttempts bounds identical-payload retransmissions on
	// transport failure.
	SubmissionAttempts uint `mapstructure:"submission_attempts"`

	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`

	// AirdropRate is the per-wallet faucet request rate, in requests per
	// second.
	AirdropRate float64 `mapstructure:"airdrop_rate"`
}

var defaultConfig = Config{
	Endpoint:   string(solana.EnvironmentDev),
	Commitment: "confirmed",

	SubmissionAttempts: 3,

	ConfirmationTimeout: 90 * time.Second,
	PollInterval:        solana.PollRate,

	AirdropRate: 0.2,
}

func init() {
	_ = viper.BindEnv("endpoint", "ESCROW_ENDPOINT")
	_ = viper.BindEnv("commitment", "ESCROW_COMMITMENT")

	_ = viper.BindEnv("submission_attempts", "ESCROW_SUBMISSION_ATTEMPTS")

	_ = viper.BindEnv("confirmation_timeout", "ESCROW_CONFIRMATION_TIMEOUT")
	_ = viper.BindEnv("poll_interval", "ESCROW_POLL_INTERVAL")

	_ = viper.BindEnv("airdrop_rate", "ESCROW_AIRDROP_RATE")
}

// LoadConfig reads configuration from the optional file at path, layered
// over environment variables and defaults.
func LoadConfig(path string) (*Config, error) {
	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has
	// to search for a default config file because one hasn't been
	// explicitly set. That is, if we explicitly set a config file, and it
	// does not exist, viper will not return a ConfigFileNotFoundError, so
	// we do it ourselves.
	if len(path) > 0 {
		if _, err := os.Stat(path); err == nil {
			viper.SetConfigFile(path)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	err := viper.ReadInConfig()
	if _, isConfigNotFound := err.(viper.ConfigFileNotFoundError); err != nil && !isConfigNotFound {
		return nil, err
	}

	conf := defaultConfig
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, err
	}

	return &conf, nil
}

func (c *Config) commitment() solana.Commitment {
	switch c.Commitment {
	case "processed":
		return solana.CommitmentProcessed
	case "finalized":
		return solana.CommitmentFinalized
	default:
		return solana.CommitmentConfirmed
	}
}
