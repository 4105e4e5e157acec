package description

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads, parses and validates a slave description file
func Load(path string) (*SlaveDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("slave description not found: %s", path)
		}
		return nil, fmt.Errorf("read slave description %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse parses and validates a YAML slave description
func Parse(data []byte) (*SlaveDescription, error) {
	var d SlaveDescription
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Marshal renders d as YAML
func Marshal(d *SlaveDescription) ([]byte, error) {
	return yaml.Marshal(d)
}
