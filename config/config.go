// Package config holds the small set of values that must exist before the
// settings store (see package settings) can even be opened, plus the
// TemperatureScale enum shared across the engine.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TemperatureScale selects the unit returned to clients and used for
// default setpoints.
type TemperatureScale int

const (
	Celsius TemperatureScale = iota
	Fahrenheit
)

func (s TemperatureScale) String() string {
	if s == Fahrenheit {
		return "F"
	}
	return "C"
}

// Bootstrap is read once at startup, before the settings store is opened.
// Everything else is owned by settings.Store.
type Bootstrap struct {
	DatabasePath string `yaml:"database_path"`
	HTTPAddr     string `yaml:"http_addr"`
	DefaultScale TemperatureScale
	Scale        string `yaml:"scale"`
}

// Default returns sane defaults for a first boot with no config file.
func Default() *Bootstrap {
	return &Bootstrap{
		DatabasePath: "./brewengine.db",
		HTTPAddr:     ":80",
		DefaultScale: Celsius,
		Scale:        "C",
	}
}

// Load reads a YAML bootstrap file. A missing file is not an error; it
// returns the defaults instead, matching the settings store's own
// "absent key seeds a default" contract.
func Load(filename string) (*Bootstrap, error) {
	b := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read bootstrap config: %w", err)
	}

	if err := yaml.Unmarshal(data, b); err != nil {
		return nil, fmt.Errorf("parse bootstrap config: %w", err)
	}

	b.ensureDefaults()
	return b, nil
}

func (b *Bootstrap) ensureDefaults() {
	def := Default()
	if b.DatabasePath == "" {
		b.DatabasePath = def.DatabasePath
	}
	if b.HTTPAddr == "" {
		b.HTTPAddr = def.HTTPAddr
	}
	switch b.Scale {
	case "F":
		b.DefaultScale = Fahrenheit
	default:
		b.DefaultScale = Celsius
	}
}
