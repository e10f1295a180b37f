// Package config loads the cobot.json workcell configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/gwillem/cobot/pkg/acquire"
	"github.com/gwillem/cobot/pkg/locator"
	"github.com/gwillem/cobot/pkg/robot"
	"github.com/gwillem/cobot/pkg/sim"
)

const DefaultConfigFile = "cobot.json"

// Environment overrides, also read from .env.
const (
	EnvMongoURI = "COBOT_MONGO_URI"
	EnvToolPort = "COBOT_TOOL_PORT"
)

// Locator kinds.
const (
	LocatorSim   = "sim"
	LocatorMongo = "mongo"
)

// Config holds the workcell configuration
type Config struct {
	Tool        robot.ToolConfig `json:"tool"`
	Acquisition acquire.Config   `json:"acquisition"`
	Locator     LocatorConfig    `json:"locator"`
	Sim         SimConfig        `json:"sim"`
}

// SimConfig describes the simulated table used when no arm is attached
type SimConfig struct {
	Objects []sim.Object `json:"objects"`
	// Realtime makes simulated moves take as long as they would at speed.
	Realtime bool `json:"realtime"`
}

// LocatorConfig selects where detections come from
type LocatorConfig struct {
	Kind       string `json:"kind"`
	MongoURI   string `json:"mongo_uri,omitempty"`
	Database   string `json:"database,omitempty"`
	Collection string `json:"collection,omitempty"`
	// MaxAge hides detections older than this. Zero disables the check.
	MaxAge acquire.Duration `json:"max_age"`
}

// Default returns a configuration for the simulated workcell
func Default() *Config {
	return &Config{
		Tool:        robot.DefaultToolConfig(),
		Acquisition: acquire.DefaultConfig(),
		Locator: LocatorConfig{
			Kind:       LocatorSim,
			Database:   locator.DefaultDatabase,
			Collection: locator.DefaultCollection,
		},
		Sim: SimConfig{
			Objects: []sim.Object{
				{Label: "ball", X: 320, Y: 40, Height: 30, Radius: 20},
				{Label: "cube", X: 250, Y: -70, Height: 25, Radius: 15},
				{Label: "apple", X: 180, Y: 90, Height: 45, Radius: 30},
			},
			Realtime: true,
		},
	}
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their defaults; environment overrides are applied last.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadEnv reads .env style files into the process environment. Missing
// files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides settings from the environment
func (c *Config) ApplyEnv() {
	if uri := os.Getenv(EnvMongoURI); uri != "" {
		c.Locator.MongoURI = uri
		if c.Locator.Kind == "" {
			c.Locator.Kind = LocatorMongo
		}
	}
	if port := os.Getenv(EnvToolPort); port != "" {
		c.Tool.Port = port
	}
}

// Validate checks the locator settings and the acquisition parameters
func (c *Config) Validate() error {
	switch c.Locator.Kind {
	case LocatorSim:
	case LocatorMongo:
		if c.Locator.MongoURI == "" {
			return fmt.Errorf("locator %q needs mongo_uri or %s", LocatorMongo, EnvMongoURI)
		}
	default:
		return fmt.Errorf("unknown locator kind %q", c.Locator.Kind)
	}
	if c.Locator.MaxAge < 0 {
		return fmt.Errorf("locator max_age must not be negative")
	}
	return c.Acquisition.Validate()
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	return Exists(DefaultConfigFile)
}

// Exists returns true if path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
