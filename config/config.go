// Package config loads the settings of a cleaning run from an optional
// logclean.yaml, LOGCLEAN_* environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/davidvella/logclean/errdefs"
)

const (
	envPrefix  = "LOGCLEAN"
	configName = "logclean"

	defaultPartitionSize = 100_000
	// memoryRatio is the share of the memory limit given to sorting.
	memoryRatio = 0.8
	// fallbackMemory is used when no memory limit can be discovered.
	fallbackMemory = 1 << 30
)

// Config is the settings of a run. Keys match the mapstructure tags.
type Config struct {
	Source            string        `mapstructure:"source"`
	Output            string        `mapstructure:"output"`
	WorkDir           string        `mapstructure:"work_dir"`
	PartitionSize     int           `mapstructure:"partition_size"`
	PartitionWindow   time.Duration `mapstructure:"partition_window"`
	MemoryBudget      string        `mapstructure:"memory_budget"`
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	SkipMalformed     bool          `mapstructure:"skip_malformed"`
	DedupPartitions   bool          `mapstructure:"dedup_partitions"`
	KeepIntermediates bool          `mapstructure:"keep_intermediates"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
}

// DefaultConfig returns the settings used when nothing overrides them.
// MemoryBudget is left empty and resolved by MemoryBudgetBytes.
func DefaultConfig() Config {
	return Config{
		PartitionSize:  defaultPartitionSize,
		MaxConcurrency: runtime.GOMAXPROCS(0),
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads the configuration. file names a configuration file; when empty,
// logclean.yaml is looked up in the current directory and is optional. Flags
// are bound by key, with '_' spelled '-' in flag names.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindEnvs(v, &cfg)

	if flags != nil {
		if err := bindFlags(v, &cfg, flags); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: failed to read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errdefs.NewConfigError("config", "%v", err)
	}
	return &cfg, nil
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any) {
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		_ = v.BindEnv(typ.Field(i).Tag.Get("mapstructure"))
	}
}

func bindFlags(v *viper.Viper, cfg any, flags *pflag.FlagSet) error {
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		key := typ.Field(i).Tag.Get("mapstructure")
		flag := flags.Lookup(strings.ReplaceAll(key, "_", "-"))
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("config: failed to bind flag %s: %w", flag.Name, err)
		}
	}
	return nil
}

// Validate checks the values that the pipeline does not check itself.
func (c *Config) Validate() error {
	if _, err := c.MemoryBudgetBytes(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errdefs.NewConfigError("log_format", "must be text or json, got %q", c.LogFormat)
	}
	if c.PartitionSize <= 0 {
		return errdefs.NewConfigError("partition_size", "must be positive, got %d", c.PartitionSize)
	}
	if c.MaxConcurrency < 0 {
		return errdefs.NewConfigError("max_concurrency", "must not be negative, got %d", c.MaxConcurrency)
	}
	return nil
}

// MemoryBudgetBytes parses MemoryBudget, such as "512M" or "2G". When it is
// empty the budget is a share of the cgroup or system memory limit.
func (c *Config) MemoryBudgetBytes() (uint64, error) {
	if c.MemoryBudget == "" {
		return DefaultMemoryBudget(), nil
	}
	n, err := bytefmt.ToBytes(c.MemoryBudget)
	if err != nil {
		return 0, errdefs.NewConfigError("memory_budget", "%v", err)
	}
	if n == 0 {
		return 0, errdefs.NewConfigError("memory_budget", "must be positive")
	}
	return n, nil
}

// DefaultMemoryBudget returns 80% of the memory limit of the cgroup, or of
// the system when there is none.
func DefaultMemoryBudget() uint64 {
	provider := memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)
	limit, err := provider()
	if err != nil || limit == 0 {
		return fallbackMemory
	}
	return uint64(float64(limit) * memoryRatio)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errdefs.NewConfigError("log_level", "must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return level, nil
}
