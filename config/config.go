// Package config handles armjit.toml engine and runner configuration.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// MinimumCodeCacheSize is the space the engine keeps free in the code
// buffer before compiling a block. A configured cache must be larger.
const MinimumCodeCacheSize = 1 << 20

// Defaults.
const (
	DefaultCodeCacheSize        = 32 << 20
	DefaultMaxBlockInstructions = 32
)

// Config represents an armjit.toml file.
type Config struct {
	Engine Engine `toml:"engine" json:"engine"`
	Image  Image  `toml:"image" json:"image"`
	Trace  Trace  `toml:"trace" json:"trace"`
	Log    Log    `toml:"log" json:"log"`
}

// Engine configures a translation engine.
type Engine struct {
	// CodeCacheSize is the capacity of the host code buffer in bytes.
	CodeCacheSize int `toml:"code-cache-size" json:"codeCacheSize"`
	// MaxBlockInstructions ends a block after this many guest instructions.
	MaxBlockInstructions int `toml:"max-block-instructions" json:"maxBlockInstructions"`
	// Disassembler enables listing host code in Disassemble.
	Disassembler bool `toml:"disassembler" json:"disassembler"`
}

// Image describes a raw guest image for the runner.
type Image struct {
	File     string `toml:"file" json:"file"`
	Base     uint32 `toml:"base" json:"base"`
	Entry    uint32 `toml:"entry" json:"entry"`
	ReadOnly bool   `toml:"read-only" json:"readOnly"`
	// Size is the guest memory mapped at Base. Zero maps just the image.
	Size int `toml:"size" json:"size"`
}

// Trace configures the compile trace store.
type Trace struct {
	// DB is a SQLite database path. Empty disables tracing.
	DB string `toml:"db" json:"db"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Engine: Engine{
			CodeCacheSize:        DefaultCodeCacheSize,
			MaxBlockInstructions: DefaultMaxBlockInstructions,
			Disassembler:         true,
		},
	}
}

// Load parses the configuration file at path. Keys the file leaves out
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse decodes TOML configuration data. name is used in error messages.
func Parse(name string, data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", name, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", name, undecoded[0])
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", name, err)
	}
	return &c, nil
}
