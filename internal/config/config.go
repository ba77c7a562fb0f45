// Package config loads this core's runtime configuration the way
// pkg/config in the wider example pack loads a server's: viper over a
// TOML file, defaults set up front, optional hot reload on file change.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Config is the full set of runtime-tunable knobs for the DSP core.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	CRC     CRCConfig     `mapstructure:"crc"`
}

// LoggingConfig controls the shared debug.Logger's verbosity and which
// components it records entries for.
type LoggingConfig struct {
	Level                string   `mapstructure:"level"`
	EnabledComponents     []string `mapstructure:"enabled_components"`
	MaxEntries            int      `mapstructure:"max_entries"`
}

// CRCConfig lets an operator supply additional (or replacement)
// CRC32 -> (class, version) table entries for the ucode dispatcher,
// covering firmware revisions this core's built-in table doesn't know
// about.
type CRCConfig struct {
	Overrides []CRCOverride `mapstructure:"overrides"`
}

// CRCOverride names one dispatcher table entry. Class is the lowercase
// ucode name ("aac", "g711", "graphics"); CRC32 is given in hex.
type CRCOverride struct {
	CRC32   string `mapstructure:"crc32"`
	Class   string `mapstructure:"class"`
	Version int32  `mapstructure:"version"`
}

// Load reads configuration from configFile (TOML) if given, falling back
// to ./dsphle.toml and /etc/dsphle/dsphle.toml, then environment
// variables prefixed DSPHLE_. A missing config file is not an error;
// defaults apply.
func Load(configFile string) (*Config, error) {
	v := newViper(configFile)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func newViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("dsphle")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/dsphle")
	}

	v.SetEnvPrefix("DSPHLE")
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "warning")
	v.SetDefault("logging.enabled_components", []string{"dsp"})
	v.SetDefault("logging.max_entries", 10000)
}
