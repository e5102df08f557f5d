// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package main

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/prismmud/prism/internal/xdg"
)

// Config is the startup configuration. Everything that can change at
// runtime lives in the settings store instead.
type Config struct {
	MudAddr      string   `koanf:"mud-addr"`
	ListenAddr   string   `koanf:"listen-addr"`
	Password     string   `koanf:"password"`
	ViewPassword string   `koanf:"view-password"`
	Banner       []string `koanf:"banner"`
	DataDir      string   `koanf:"data-dir"`
	PluginDirs   []string `koanf:"plugin-dirs"`
	LogFormat    string   `koanf:"log-format"`
	LogLevel     string   `koanf:"log-level"`
	MetricsAddr  string   `koanf:"metrics-addr"`
	WatchPlugins bool     `koanf:"watch-plugins"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:   ":9999",
		Banner:       []string{"prism proxy"},
		DataDir:      "",
		LogFormat:    "json",
		LogLevel:     "info",
		WatchPlugins: true,
	}
}

// loadConfig layers the yaml config file under any explicitly set flags.
func loadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
		return cfg, fmt.Errorf("load flags: %w", err)
	}
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if cfg.MudAddr == "" {
		return cfg, fmt.Errorf("a mud address is required (--mud-addr)")
	}
	if cfg.Password == "" {
		return cfg, fmt.Errorf("a client password is required (--password)")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = xdg.DataDir()
	}
	return cfg, nil
}
