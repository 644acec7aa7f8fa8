// Package config parses the YAML document describing how to construct and
// dial/listen the ws, h2, and pg engines, grounded on the teacher's
// internal/config/{types,parser}.go YAML-over-struct-tags approach (same
// gopkg.in/yaml.v3 dependency, same Validate()-returns-error convention).
// This is ambient engine-construction tooling, not the CLI/TOML migration
// runner spec.md §1 excludes as a Non-goal.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is the root of a protocore engine configuration file.
type Document struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
	HTTP2     HTTP2Config     `yaml:"http2"`
	Postgres  PostgresConfig  `yaml:"postgres"`
}

// WebSocketConfig configures ws.Conn construction.
type WebSocketConfig struct {
	MaxMessageBytes int64  `yaml:"max_message_bytes"`
	Compression     string `yaml:"compression"` // "none" or "permessage-deflate"
}

// HTTP2Config carries SETTINGS overrides applied at handshake.
type HTTP2Config struct {
	HeaderTableSize      uint32 `yaml:"header_table_size"`
	MaxConcurrentStreams uint32 `yaml:"max_concurrent_streams"`
	InitialWindowSize    uint32 `yaml:"initial_window_size"`
	MaxFrameSize         uint32 `yaml:"max_frame_size"`
	MaxHeaderListSize    uint32 `yaml:"max_header_list_size"`
}

// PostgresConfig carries DSN and pool parameters for pg.Connect / pg.Pool.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`

	PoolSize                    int     `yaml:"pool_size"`
	StatementCacheSize          int     `yaml:"statement_cache_size"`
	StatementCacheEvictFraction float64 `yaml:"statement_cache_evict_fraction"`

	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Validate applies the same "return a descriptive error, don't panic"
// convention as the teacher's ServerConfig.Validate.
func (d *Document) Validate() error {
	if d.WebSocket.MaxMessageBytes < 0 {
		return fmt.Errorf("config: websocket.max_message_bytes must be non-negative")
	}
	switch d.WebSocket.Compression {
	case "", "none", "permessage-deflate":
	default:
		return fmt.Errorf("config: unsupported websocket.compression %q", d.WebSocket.Compression)
	}
	if d.Postgres.Host != "" {
		if d.Postgres.Port <= 0 || d.Postgres.Port > 65535 {
			return fmt.Errorf("config: invalid postgres.port %d", d.Postgres.Port)
		}
		if d.Postgres.User == "" {
			return fmt.Errorf("config: postgres.user is required")
		}
	}
	return nil
}

// Load reads and parses a YAML document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Parse parses an in-memory YAML document, used by tests and embedded
// configuration.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
