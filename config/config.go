// Package config loads the server configuration from an HJSON file. The
// file is optional; every field has a working default.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hjson/hjson-go/v4"
)

type Config struct {
	// Listen is the TCP address of the wire protocol.
	Listen string `json:"listen"`
	// HTTPListen, when set, serves the same protocol to WebSocket clients
	// at /ws on this address.
	HTTPListen string `json:"httpListen"`
	// Dir holds the .sht sheet files and is scanned at boot.
	Dir string `json:"dir"`
	// Postgres, when set, selects the Postgres store instead of the file
	// store. Dir is still watched when Watch is on.
	Postgres string `json:"postgres"`
	// Feed, when set, publishes every broadcast on a ZeroMQ PUB socket
	// bound to this endpoint, e.g. tcp://127.0.0.1:5570.
	Feed string `json:"feed"`
	// RequestRate caps each session's requests per second. 0 means
	// unlimited.
	RequestRate float64 `json:"requestRate"`
	// Watch installs .sht files that appear in Dir while the server runs.
	Watch bool `json:"watch"`
}

func Default() *Config {
	return &Config{
		Listen: ":1100",
		Dir:    "./spreadsheets",
	}
}

// Load reads the config at path. HJSON is parsed to an intermediate map,
// converted to JSON, and unmarshaled into the struct for type safety;
// defaults are applied to fields the file leaves empty.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var raw map[string]interface{}
	if err := hjson.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse hjson: %w", err)
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert to json: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
}
