package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/butterflysys/butterfly/internal/resource"
)

// Load reads and validates a broker configuration file. Missing fields
// keep their defaults.
func Load(path string) (*BrokerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// catalog is the on-disk shape of a definition file.
type catalog struct {
	Definitions []*resource.Definition `yaml:"definitions"`
}

// LoadDefinitions reads a resource definition catalog and validates
// every entry, so a malformed policy is rejected before it can be
// registered.
func LoadDefinitions(path string) ([]*resource.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions %s: %w", path, err)
	}

	var cat catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse definitions %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(cat.Definitions))
	for _, def := range cat.Definitions {
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("definitions %s: %w", path, err)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("definitions %s: duplicate resource %q", path, def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	return cat.Definitions, nil
}
