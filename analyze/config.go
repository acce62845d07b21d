package analyze

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gnolang/dfa/internal"
	"github.com/gnolang/dfa/internal/analysis/interp"
	tt "github.com/gnolang/dfa/internal/types"
)

// DefaultConfigFile is the configuration file looked up when none is given.
const DefaultConfigFile = ".dfa.yaml"

// Config represents the overall configuration: the rules to report, the
// analysis limits and where results are cached.
type Config struct {
	Name     string                   `yaml:"name"`
	Rules    map[string]tt.ConfigRule `yaml:"rules"`
	Analysis interp.Config            `yaml:"analysis"`
	// CacheDir enables the result cache when set.
	CacheDir string   `yaml:"cache_dir,omitempty"`
	Ignore   []string `yaml:"ignore,omitempty"`
}

// DefaultConfig returns every rule at its default severity and the default
// analysis limits.
func DefaultConfig() Config {
	return Config{
		Name:     "dfa",
		Rules:    internal.DefaultRules(),
		Analysis: interp.DefaultConfig(),
	}
}

// LoadConfig reads the configuration file at path. A missing file yields
// the defaults; settings absent from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("error opening configuration file: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("error parsing configuration file %s: %w", path, err)
	}

	return config, nil
}

// Write encodes the configuration as YAML.
func (c Config) Write(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("error encoding configuration: %w", err)
	}
	return encoder.Close()
}
