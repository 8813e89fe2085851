package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cabinetsync/internal/flagx"
	"github.com/dmitrijs2005/cabinetsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Timeout may
// be given as "5s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AccessToken        string         `json:"access_token"`
	Timeout            timex.Duration `json:"timeout"`
}

// parseJson overlays cfg with the JSON file named by -c/-config. Absent
// fields keep their current value.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.AccessToken != "" {
		cfg.AccessToken = jc.AccessToken
	}
	if jc.Timeout.Duration != 0 {
		cfg.Timeout = jc.Timeout.Duration
	}
	return nil
}
