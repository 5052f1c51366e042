package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Flash   FlashConfig   `yaml:"flash"`
	Vendors VendorsConfig `yaml:"vendors"`
}

// ---- BRIDGE ----

type BridgeConfig struct {
	// sim, ft232h or jms578
	Type string `yaml:"type"`

	// jms578: block device or VVVV:PPPP; ft232h: product id (empty = any)
	Device string `yaml:"device"`

	ClockHz uint64 `yaml:"clock_hz"`
	CS      string `yaml:"cs"`
	WP      string `yaml:"wp"`
	Hold    string `yaml:"hold"`

	// sim only: name of the simulated part
	Profile string `yaml:"profile"`
}

// ---- FLASH ----

type FlashConfig struct {
	// Overrides the mode in the boot image header: qio, qout, dio, dout.
	Mode string `yaml:"mode"`
}

// ---- VENDORS ----

type VendorsConfig struct {
	// Built-in rules to drop, "default" drops the fallback strategy.
	Disable []string     `yaml:"disable"`
	Rules   []RuleConfig `yaml:"rules"`
}

type RuleConfig struct {
	Name   string `yaml:"name"`
	Vendor uint8  `yaml:"vendor"`

	IDMask          uint32 `yaml:"id_mask"`
	IDMatch         uint32 `yaml:"id_match"`
	SFDPFingerprint uint32 `yaml:"sfdp_fingerprint"`

	Attempts    []AttemptConfig `yaml:"attempts"`
	PreserveSR3 bool            `yaml:"preserve_sr3"`
}

type AttemptConfig struct {
	Location    string `yaml:"location"`
	Width       int    `yaml:"width"`
	Persistence string `yaml:"persistence"`
}

// Load reads a YAML file. An empty path yields the zero configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
