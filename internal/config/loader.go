package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyp3rd/ewrap"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RAVINE_PORT=9000.
const EnvPrefix = "RAVINE"

const maxFileSize = 1 * 1024 * 1024

// allKeys lists the configuration keys that may come from the environment.
func allKeys() []string {
	return []string{
		"device", "width", "height", "fps", "replay_dir",
		"rf_path", "window_col", "window_row", "buffers", "threshold", "adapt_rate",
		"waveform_path", "audio_device", "sample_rate", "latency", "noise_rows", "noise_level",
		"port", "serial_path", "serial_baud", "log_file",
		"db_path", "listen",
	}
}

// Load reads the config file at path (JSON, YAML or TOML by extension) and
// applies RAVINE_* environment overrides. An empty path loads the
// environment alone. Unset keys keep their Get* defaults.
func Load(path string) (*PipelineConfig, error) {
	v := viper.New()
	if err := bindEnvironment(v); err != nil {
		return nil, err
	}

	if path != "" {
		cleanPath := filepath.Clean(path)
		info, err := os.Stat(cleanPath)
		if err != nil {
			return nil, ewrap.Wrap(err, "failed to stat config file").
				WithMetadata("path", cleanPath)
		}
		if info.Size() > maxFileSize {
			return nil, ewrap.New(fmt.Sprintf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)).
				WithMetadata("path", cleanPath)
		}
		v.SetConfigFile(cleanPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, ewrap.Wrap(err, "failed to read configuration file").
				WithMetadata("path", cleanPath)
		}
	}

	return decode(v)
}

// Parse decodes an in-memory document of the given type ("json", "yaml" or
// "toml") without consulting the environment.
func Parse(data []byte, configType string) (*PipelineConfig, error) {
	v := viper.New()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, ewrap.Wrapf(err, "failed to read %s configuration", configType)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*PipelineConfig, error) {
	// Environment values are only visible to Unmarshal once they are
	// promoted into the settings map.
	for _, key := range allKeys() {
		if v.IsSet(key) {
			v.Set(key, v.Get(key))
		}
	}

	cfg := EmptyPipelineConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, ewrap.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, ewrap.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func bindEnvironment(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for _, key := range allKeys() {
		if err := v.BindEnv(key); err != nil {
			return ewrap.Wrap(err, "failed to bind environment key").
				WithMetadata("key", key).
				WithMetadata("prefix", EnvPrefix)
		}
	}
	return nil
}
