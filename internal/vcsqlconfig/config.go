// Package vcsqlconfig loads the ambient settings of a vcsql deployment —
// repository location, default transaction isolation, optimizer cost
// knobs, and the lock-wait budget — from vcsql.toml, grounded on the
// teacher's viper-based config loading (internal/labelmutex/policy.go)
// and its TOML config file convention (internal/configfile).
package vcsqlconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/vcsql/vcsql/internal/plan"
	"github.com/vcsql/vcsql/internal/txn"
)

// ConfigFileName is the TOML config file vcsql looks for in the
// repository directory.
const ConfigFileName = "vcsql.toml"

// EnvPrefix namespaces the environment variable overrides AutomaticEnv
// recognizes, e.g. VCSQL_REPO_PATH.
const EnvPrefix = "VCSQL"

// OptimizerConfig carries the physical planner's strategy-selection
// thresholds (spec §4.11).
type OptimizerConfig struct {
	ExternalSortThreshold int `mapstructure:"external_sort_threshold" toml:"external_sort_threshold"`
	HashJoinThreshold     int `mapstructure:"hash_join_threshold" toml:"hash_join_threshold"`
}

// Config is the full set of settings a vcsql deployment reads from
// vcsql.toml, environment variables, or neither (defaults apply).
type Config struct {
	RepoPath         string          `mapstructure:"repo_path" toml:"repo_path"`
	DefaultIsolation string          `mapstructure:"default_isolation" toml:"default_isolation"`
	LockTimeout      time.Duration   `mapstructure:"lock_timeout" toml:"lock_timeout"`
	Optimizer        OptimizerConfig `mapstructure:"optimizer" toml:"optimizer"`
}

// Default returns the configuration vcsql runs with when no vcsql.toml is
// present.
func Default() Config {
	return Config{
		RepoPath:         "vcsql.db",
		DefaultIsolation: "read-committed",
		LockTimeout:      5 * time.Second,
		Optimizer: OptimizerConfig{
			ExternalSortThreshold: plan.ExternalSortThreshold,
			HashJoinThreshold:     plan.HashJoinThreshold,
		},
	}
}

// Load reads dir/vcsql.toml over the defaults, with VCSQL_*
// environment variables taking precedence over both. A missing config
// file is not an error — Default() applies.
func Load(dir string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", path, err)
	}

	bindDefaults(v, cfg)
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// bindDefaults seeds viper with cfg's zero-config values so
// AutomaticEnv/Unmarshal fall back to them for keys neither the file nor
// the environment set.
func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("repo_path", cfg.RepoPath)
	v.SetDefault("default_isolation", cfg.DefaultIsolation)
	v.SetDefault("lock_timeout", cfg.LockTimeout)
	v.SetDefault("optimizer.external_sort_threshold", cfg.Optimizer.ExternalSortThreshold)
	v.SetDefault("optimizer.hash_join_threshold", cfg.Optimizer.HashJoinThreshold)
}

// Isolation parses DefaultIsolation into a txn.Isolation, defaulting to
// ReadCommitted on an unrecognized value.
func (c Config) Isolation() txn.Isolation {
	if c.DefaultIsolation == "repeatable-read" {
		return txn.RepeatableRead
	}
	return txn.ReadCommitted
}

// ApplyOptimizer pushes the config's cost-model thresholds into the plan
// package's strategy-selection knobs. Call once at startup before
// running any query.
func (c Config) ApplyOptimizer() {
	if c.Optimizer.ExternalSortThreshold > 0 {
		plan.ExternalSortThreshold = c.Optimizer.ExternalSortThreshold
	}
	if c.Optimizer.HashJoinThreshold > 0 {
		plan.HashJoinThreshold = c.Optimizer.HashJoinThreshold
	}
}

// WriteDefault writes the default configuration to dir/vcsql.toml,
// failing if the file already exists. Mirrors the teacher's
// configfile.Config.Save, but through BurntSushi/toml's encoder rather
// than encoding/json since this file is meant for a human to edit.
func WriteDefault(dir string) error {
	path := filepath.Join(dir, ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("vcsqlconfig: %s already exists", path)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(Default()); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
