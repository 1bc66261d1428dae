// Package config holds the analysis settings that are threaded explicitly
// through the demangler, symbol index, decoder and block classifier.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"bite/internal/tokens"
)

// BytesBlockSize is the chunk size used for sections without a finer layout.
const BytesBlockSize = 256

var ErrInvalid = errors.New("config: invalid")

// Config is the configuration struct
type Config struct {
	Colors            tokens.Palette `json:"colors" mapstructure:"colors" jsonschema:"title=Colors,description=Token colors keyed by role"`
	BytesBlockSize    int            `json:"bytesBlockSize" mapstructure:"bytes_block_size" jsonschema:"title=Bytes Block Size,description=Chunk size for sections without a known layout,default=256"`
	StrictPDB         bool           `json:"strictPdb" mapstructure:"strict_pdb" jsonschema:"title=Strict PDB,description=Fail symbol loading when a present PDB file cannot be parsed"`
	PDBSearchPaths    []string       `json:"pdbSearchPaths,omitempty" mapstructure:"pdb_search_paths" jsonschema:"title=PDB Search Paths,description=Extra directories searched for PDB files"`
	DemangleCacheSize int            `json:"demangleCacheSize" mapstructure:"demangle_cache_size" jsonschema:"title=Demangle Cache Size,default=4096"`
	MaxWorkers        int            `json:"maxWorkers" mapstructure:"max_workers" jsonschema:"title=Max Workers,description=Limit on concurrent section workers (0 means one per section)"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Colors:            tokens.DefaultPalette(),
		BytesBlockSize:    BytesBlockSize,
		DemangleCacheSize: 4096,
	}
}

// Validate fills unset colors and rejects unusable values.
func (c *Config) Validate() error {
	c.Colors = c.Colors.Fill()
	for _, col := range c.Colors.Colors() {
		if !col.Valid() {
			return fmt.Errorf("%w: color %q is not #rrggbb", ErrInvalid, col)
		}
	}
	if c.BytesBlockSize <= 0 {
		return fmt.Errorf("%w: bytes_block_size must be positive, got %d", ErrInvalid, c.BytesBlockSize)
	}
	if c.DemangleCacheSize <= 0 {
		c.DemangleCacheSize = Default().DemangleCacheSize
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("%w: max_workers must not be negative", ErrInvalid)
	}
	return nil
}

// Load reads a yaml, toml or json file on top of the defaults.
// An empty path looks for bite.{yaml,toml,json} in the user config directory
// and falls back to the defaults when none exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	c := Default()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return c, c.Validate()
		}
		v.SetConfigName("bite")
		v.AddConfigPath(filepath.Join(dir, "bite"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return c, c.Validate()
		}
		return nil, fmt.Errorf("config: failed to read: %w", err)
	}

	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
