package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"qmcpu/internal/cpuconfig"
	"qmcpu/internal/cpus"
	"qmcpu/internal/store"
	"qmcpu/internal/util"

	"gopkg.in/yaml.v2"
)

// DefaultConfigPath is read when no --config flag is given. It is optional.
const DefaultConfigPath = "~/.qmcpu/config.yaml"

var storeBackends = []string{store.BackendFile, store.BackendBadger, store.BackendMemory}

type StoreConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// Config is the optional YAML configuration file, e.g.,
//
//	store:
//	  backend: badger
//	  dir: /var/lib/qmcpu
//	arch: x86_64
//	emulator-build: 9.2.0
//	listen: localhost:9300
type Config struct {
	Store StoreConfig `yaml:"store"`
	Arch  string      `yaml:"arch"`
	// EmulatorBuild is the installed emulator version, used for unversioned machine types
	EmulatorBuild string `yaml:"emulator-build"`
	Listen        string `yaml:"listen"`
}

func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend: store.BackendFile,
			Dir:     "~/.qmcpu/store",
		},
		Arch:   cpus.X86Architecture,
		Listen: "localhost:9300",
	}
}

// LoadConfig reads the configuration file over the defaults. A missing file is only an
// error when the path was given explicitly.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}
	path = util.ExpandUser(path)
	exists, err := util.FileExists(path)
	if err != nil {
		return config, err
	}
	if !exists {
		if explicit {
			return config, fmt.Errorf("config file %s does not exist", path)
		}
		return config, nil
	}
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return config, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	slog.Debug("loaded config file", slog.String("path", path))
	return config, nil
}

// Validate checks the enumerated settings
func (c Config) Validate() error {
	if !slices.Contains(storeBackends, c.Store.Backend) {
		return fmt.Errorf("store backend options are: %s", strings.Join(storeBackends, ", "))
	}
	if c.Store.Backend != store.BackendMemory && c.Store.Dir == "" {
		return fmt.Errorf("store directory is required for the %s backend", c.Store.Backend)
	}
	return cpus.ValidateArchitecture(c.Arch)
}

// StoreDir returns the store directory with the home directory expanded
func (c Config) StoreDir() (string, error) {
	if c.Store.Backend == store.BackendMemory {
		return "", nil
	}
	return util.AbsPath(c.Store.Dir)
}

// LoadVMConfig reads the CPU relevant properties of a VM configuration file. Other
// properties of the file are ignored.
func LoadVMConfig(path string) (cpuconfig.VMConfig, error) {
	var conf cpuconfig.VMConfig
	data, err := os.ReadFile(util.ExpandUser(path)) // #nosec G304
	if err != nil {
		return conf, fmt.Errorf("failed to read VM config: %w", err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("failed to parse VM config %s: %w", path, err)
	}
	return conf, nil
}
