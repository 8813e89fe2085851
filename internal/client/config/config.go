// Package config holds runtime settings for syncctl.
package config

import "time"

// Config holds runtime settings for the syncctl CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the cabinetsync gRPC endpoint.
//   - AccessToken: JWT sent as access_token metadata. When empty the CLI
//     prompts for it.
//   - Timeout: per-call deadline.
type Config struct {
	ServerEndpointAddr string
	AccessToken        string
	Timeout            time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.Timeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
