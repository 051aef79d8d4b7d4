package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk layout of a schema file:
//
//	tables:
//	  orders: [order_id, user_id, amount, status]
//	  users: [user_id, name, email]
type schemaFile struct {
	Tables map[string][]string `yaml:"tables"`
}

// LoadFile reads a YAML schema file into a MapProvider.
func LoadFile(path string) (*MapProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}

	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing schema file %s: %w", path, err)
	}

	return NewMapProvider(f.Tables), nil
}
