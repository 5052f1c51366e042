package config

import (
	"strings"
)

const (
	DefaultBridge    = "jms578"
	DefaultJMSDevice = "152d:0578"
	DefaultClockHz   = 1000000
	DefaultProfile   = "winbond"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	b := &cfg.Bridge
	b.Type = strings.ToLower(b.Type)
	if b.Type == "" {
		b.Type = DefaultBridge
	}

	switch b.Type {
	case "jms578":
		if b.Device == "" {
			b.Device = DefaultJMSDevice
		}
	case "ft232h":
		if b.ClockHz == 0 {
			b.ClockHz = DefaultClockHz
		}
	case "sim":
		if b.Profile == "" {
			b.Profile = DefaultProfile
		}
	}

	cfg.Flash.Mode = strings.ToLower(cfg.Flash.Mode)

	for i := range cfg.Vendors.Disable {
		cfg.Vendors.Disable[i] = strings.ToLower(cfg.Vendors.Disable[i])
	}
}
