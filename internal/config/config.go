// Package config loads the agent's serial-port and runtime settings
// from an optional .ini file, layered under CLI-flag overrides, the
// way the original implementation's hand-rolled .ini reader did —
// except here the layering (flag > file > default) is Viper's job.
package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved set of settings SPEC_FULL.md §6 names.
type Config struct {
	Port     string `mapstructure:"port"`
	BaudRate int    `mapstructure:"baudrate"`
	ByteSize int    `mapstructure:"bytesize"`
	Parity   int    `mapstructure:"parity"`
	StopBits int    `mapstructure:"stopbits"`

	CommandTimeout time.Duration `mapstructure:"command_timeout_seconds"`
	RootDir        string        `mapstructure:"root_dir"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
}

// defaults mirrors the [serial]/[agent] sections of the .ini file
// shape documented in SPEC_FULL.md §6.
func defaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyS1")
	v.SetDefault("serial.baudrate", 57600)
	v.SetDefault("serial.bytesize", 8)
	v.SetDefault("serial.parity", 0)
	v.SetDefault("serial.stopbits", 1)
	v.SetDefault("agent.command_timeout_seconds", 20)
	v.SetDefault("agent.root_dir", "/opt/serclient")
	v.SetDefault("agent.metrics_addr", "")
}

// Load builds a Config from, in ascending precedence: built-in
// defaults, the .ini file at configPath (if non-empty and present),
// and flags, which win when explicitly set.
func Load(configPath string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	defaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("ini")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return Config{}, err
			}
		}
	}

	// CLI flags are flat (--port, --baudrate, ...) while the .ini file
	// is sectioned ([serial]/[agent]); bind each by name explicitly
	// rather than relying on BindPFlags' key-name matching.
	bindings := map[string]string{
		"port":            "serial.port",
		"baudrate":        "serial.baudrate",
		"bytesize":        "serial.bytesize",
		"parity":          "serial.parity",
		"stopbits":        "serial.stopbits",
		"command-timeout": "agent.command_timeout_seconds",
		"root-dir":        "agent.root_dir",
		"metrics-addr":    "agent.metrics_addr",
	}
	if flags != nil {
		for flagName, key := range bindings {
			if f := flags.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	cfg := Config{
		Port:        v.GetString("serial.port"),
		BaudRate:    v.GetInt("serial.baudrate"),
		ByteSize:    v.GetInt("serial.bytesize"),
		Parity:      v.GetInt("serial.parity"),
		StopBits:    v.GetInt("serial.stopbits"),
		RootDir:     v.GetString("agent.root_dir"),
		MetricsAddr: v.GetString("agent.metrics_addr"),
	}
	cfg.CommandTimeout = time.Duration(v.GetInt("agent.command_timeout_seconds")) * time.Second
	return cfg, nil
}
