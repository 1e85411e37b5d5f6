// Package config loads gorent's runtime configuration: tracker/peer
// timeouts and the peer wire message-size limit, layered over built-in
// defaults. Grounded on the applyDefaults() pattern used
// throughout the pack's own per-component Config structs (e.g.
// uber-kraken/lib/torrent/scheduler/conn.Config), with YAML decoding and
// struct-tag validation lifted from uber-kraken's
// utils/configutil/gopkg.in/validator.v2 usage.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v2"
)

// TrackerConfig holds the tracker timeout settings. cmd/gorent loads and
// validates them but does not pass them to internal/trackerclient, which
// dials with net.Dial and times each attempt on the fixed BEP-15 schedule.
type TrackerConfig struct {
	// DialTimeout is the UDP socket dial timeout setting.
	DialTimeout time.Duration `yaml:"dial_timeout"`
	// ResponseTimeout is the per-attempt connect/announce timeout setting.
	ResponseTimeout time.Duration `yaml:"response_timeout" validate:"min=1"`
}

func (c TrackerConfig) applyDefaults() TrackerConfig {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = 15 * time.Second
	}
	return c
}

// PeerConfig configures internal/peer sessions.
type PeerConfig struct {
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	// MaxMessageSize is the cap setting for a peer wire message's declared
	// length. cmd/gorent does not pass it to internal/peer, whose sessions
	// always use peerwire.DefaultMaxMessageSize (also 1 MiB).
	MaxMessageSize uint32 `yaml:"max_message_size" validate:"nonzero"`
}

func (c PeerConfig) applyDefaults() PeerConfig {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 1 << 20
	}
	return c
}

// Config is gorent's top-level configuration.
type Config struct {
	Tracker TrackerConfig `yaml:"tracker"`
	Peer    PeerConfig    `yaml:"peer"`
}

func (c Config) applyDefaults() Config {
	c.Tracker = c.Tracker.applyDefaults()
	c.Peer = c.Peer.applyDefaults()
	return c
}

// Default returns a Config with every field at its built-in default.
func Default() Config {
	return Config{}.applyDefaults()
}

// Load reads YAML configuration from path, validates the fields as read,
// then applies defaults to any field left at zero, and returns it. Since
// validation comes first, a file that omits a validated field
// (response_timeout, max_message_size) is rejected rather than defaulted.
// A missing path is not an error: it returns Default().
func Load(path string) (Config, error) {
	const op = "config.Load"

	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("%s: open %s: %w", op, path, err)
	}
	defer f.Close()

	return decode(op, f)
}

func decode(op string, r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("%s: read config: %w", op, err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("%s: parse yaml: %w", op, err)
	}

	// Validate before filling in defaults: applyDefaults treats a zero
	// value as "unset", so validating afterward would let a config that
	// explicitly zeroes a nonzero/min-bounded field slip through
	// unnoticed.
	if err := validator.Validate(c); err != nil {
		return Config{}, fmt.Errorf("%s: validate: %w", op, err)
	}
	return c.applyDefaults(), nil
}
