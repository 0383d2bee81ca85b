package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Server
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Files
	RatingsPath string `mapstructure:"RATINGS_PATH"`
	OutputDir   string `mapstructure:"OUTPUT_DIR"`

	// Rating model
	Iterations     int     `mapstructure:"ITERATIONS"`
	NeutralRating  float64 `mapstructure:"NEUTRAL_RATING"`
	WinWeight      float64 `mapstructure:"WIN_WEIGHT"`
	OpponentWeight float64 `mapstructure:"OPPONENT_WEIGHT"`
	ScalingFactor  float64 `mapstructure:"SCALING_FACTOR"`
	UpdateFactor   float64 `mapstructure:"UPDATE_FACTOR"`

	// Schedule generation
	Strategy      int      `mapstructure:"STRATEGY"`
	RegionalQuota float64  `mapstructure:"REGIONAL_QUOTA"`
	RegionalTeams []string `mapstructure:"REGIONAL_TEAMS"`
	HomeTeam      string   `mapstructure:"HOME_TEAM"`

	// Simulation
	ScheduleSims int   `mapstructure:"SCHEDULE_SIMS"`
	OutcomeSims  int   `mapstructure:"OUTCOME_SIMS"`
	Workers      int   `mapstructure:"WORKERS"`
	Seed         int64 `mapstructure:"SEED"`
	KeepPlayed   bool  `mapstructure:"KEEP_PLAYED"`

	// Season carry-over
	CrossSeasonWeight float64 `mapstructure:"CROSS_SEASON_WEIGHT"`
	CrossSeasonMean   float64 `mapstructure:"CROSS_SEASON_MEAN"`
}

// LoadConfig reads defaults, an optional npisim.yaml and NPISIM_* variables.
// path, when non-empty, names the config file explicitly.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("npisim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvPrefix("NPISIM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// env values arrive as one comma-separated string
	cfg.RegionalTeams = splitList(strings.Join(cfg.RegionalTeams, ","))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("RATINGS_PATH", "data/elo_start.csv")
	v.SetDefault("OUTPUT_DIR", "result")

	v.SetDefault("ITERATIONS", 30)
	v.SetDefault("NEUTRAL_RATING", 50.0)
	v.SetDefault("WIN_WEIGHT", 0.2)
	v.SetDefault("OPPONENT_WEIGHT", 0.8)
	v.SetDefault("SCALING_FACTOR", 400.0)
	v.SetDefault("UPDATE_FACTOR", 133.0)

	v.SetDefault("STRATEGY", 0)
	v.SetDefault("REGIONAL_QUOTA", 0.7)
	v.SetDefault("REGIONAL_TEAMS", []string{})
	v.SetDefault("HOME_TEAM", "")

	v.SetDefault("SCHEDULE_SIMS", 10)
	v.SetDefault("OUTCOME_SIMS", 30)
	v.SetDefault("WORKERS", 0) // 0 = GOMAXPROCS
	v.SetDefault("SEED", 0)    // 0 = seed from clock
	v.SetDefault("KEEP_PLAYED", false)

	v.SetDefault("CROSS_SEASON_WEIGHT", 0.8)
	v.SetDefault("CROSS_SEASON_MEAN", 1505.0)
}

// Validate rejects values the simulation cannot run with.
func (c *Config) Validate() error {
	var problems []string
	if c.Iterations < 0 {
		problems = append(problems, "ITERATIONS must not be negative")
	}
	if c.ScalingFactor <= 0 {
		problems = append(problems, "SCALING_FACTOR must be positive")
	}
	if c.UpdateFactor < 0 {
		problems = append(problems, "UPDATE_FACTOR must not be negative")
	}
	if c.RegionalQuota < 0 || c.RegionalQuota > 1 {
		problems = append(problems, "REGIONAL_QUOTA must be within [0, 1]")
	}
	if c.ScheduleSims < 1 || c.OutcomeSims < 1 {
		problems = append(problems, "SCHEDULE_SIMS and OUTCOME_SIMS must be at least 1")
	}
	if c.Workers < 0 {
		problems = append(problems, "WORKERS must not be negative")
	}
	if c.CrossSeasonWeight < 0 || c.CrossSeasonWeight > 1 {
		problems = append(problems, "CROSS_SEASON_WEIGHT must be within [0, 1]")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
