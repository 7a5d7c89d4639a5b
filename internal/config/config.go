// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the default config file location
const DefaultPath = "kiln.yml"

// Printer is one known device. Authorization codes are deliberately not
// stored here: pairing credentials stay with the user, addresses with the
// tool.
type Printer struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
}

// Config is the kiln configuration file
type Config struct {
	Printers []Printer `yaml:"printers"`
}

// Load reads and validates a configuration file. A missing file yields an
// empty config rather than an error so first use needs no setup step.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that every printer entry is usable
func (c *Config) Validate() error {
	names := make(map[string]bool)
	for i, p := range c.Printers {
		if p.Name == "" {
			return fmt.Errorf("printer[%d].name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("duplicate printer name: %s", p.Name)
		}
		names[p.Name] = true

		if p.Host == "" {
			return fmt.Errorf("printer[%d].host is required", i)
		}
	}
	return nil
}

// Get returns a printer by name
func (c *Config) Get(name string) (*Printer, error) {
	for i := range c.Printers {
		if c.Printers[i].Name == name {
			return &c.Printers[i], nil
		}
	}
	return nil, fmt.Errorf("printer not found: %s", name)
}

// Add appends a printer, rejecting duplicate names
func (c *Config) Add(p Printer) error {
	for _, existing := range c.Printers {
		if existing.Name == p.Name {
			return fmt.Errorf("printer with name '%s' already exists", p.Name)
		}
	}
	c.Printers = append(c.Printers, p)
	return c.Validate()
}

// Remove deletes a printer by name
func (c *Config) Remove(name string) error {
	for i, p := range c.Printers {
		if p.Name == name {
			c.Printers = append(c.Printers[:i], c.Printers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("printer not found: %s", name)
}
