package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/websoft9/trop/internal/errs"
)

// LoadYAML parses a single configuration source from raw YAML bytes.
// Unknown fields are rejected: a typo in a config file fails loudly
// rather than being silently ignored.
func LoadYAML(data []byte) (Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Config
	if err := dec.Decode(&c); err != nil {
		return Config{}, errs.IOf("parsing configuration: %v", err)
	}
	return c, nil
}

// LoadYAMLFile reads and parses a configuration file. A missing file
// is reported as errs.NotFound so callers can treat an absent layer as
// "contributes nothing" rather than a hard failure.
func LoadYAMLFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, errs.NotFoundf("configuration file %s", path)
		}
		return Config{}, errs.IOf("reading %s: %v", path, err)
	}
	return LoadYAML(data)
}

// Load resolves the final engine configuration from a set of file
// paths (lowest precedence first) plus the process environment. A
// missing file is skipped; a malformed one is a hard failure.
func Load(paths []string) (Resolved, error) {
	sources := make([]Config, 0, len(paths))
	for _, p := range paths {
		c, err := LoadYAMLFile(p)
		if err != nil {
			if kind, ok := errs.KindOf(err); ok && kind == errs.NotFound {
				continue
			}
			return Resolved{}, fmt.Errorf("loading %s: %w", p, err)
		}
		sources = append(sources, c)
	}

	merged := Merge(sources...)

	withEnv, err := ApplyEnvironment(merged, OSLookup)
	if err != nil {
		return Resolved{}, err
	}

	return Validate(withEnv)
}
