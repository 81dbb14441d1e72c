// Package config loads the local node's configuration from a TOML file,
// in the style of the teacher's mailproxy.toml (mailproxy/mailproxy.go):
// bracketed sections, loaded with github.com/BurntSushi/toml rather than
// hand-rolled flag parsing.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk node configuration (spec §6 "Symmetric cipher",
// §4.2 "Transceiver").
type Config struct {
	Node struct {
		// Name is the peer's display name. If empty, the operator is
		// prompted for one at startup (spec §6 "Startup prompts").
		Name string

		// Debug enables verbose/debug-level logging (spec §6 "Startup
		// prompts", §7 "malformed frame ... logged under debug").
		Debug bool
	}

	Radio struct {
		// Interface is the monitor-mode wireless interface name used by
		// internal/dot11 (spec §4.2).
		Interface string
	}

	Crypto struct {
		// PreSharedKeyHex is the hex-encoded 32-byte AES-256 key shared
		// out of band by all peers (spec §6 "Symmetric cipher"). Key
		// rotation/distribution is explicitly out of scope.
		PreSharedKeyHex string
	}

	Logging struct {
		// Level is a charmbracelet/log level name: "debug", "info",
		// "warn", "error".
		Level string
	}
}

// Load decodes a TOML file at path into a Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return &cfg, nil
}

// Default returns a Config with the interface and logging defaults this
// module ships with; Name and PreSharedKeyHex must still be supplied by
// the operator.
func Default() *Config {
	var cfg Config
	cfg.Radio.Interface = "wlan0mon"
	cfg.Logging.Level = "info"
	return &cfg
}
