package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cabinetsync/internal/flagx"
	"github.com/dmitrijs2005/cabinetsync/internal/timex"
)

// JsonConfig is the on-disk form of Config. Durations accept strings such
// as "24h" or integer nanoseconds. Absent fields keep their current value.
type JsonConfig struct {
	EndpointAddrGRPC string         `json:"endpoint_addr_grpc"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	VaultMasterKey   string         `json:"vault_master_key"`
	PackageTTL       timex.Duration `json:"package_ttl"`
	MaxPackageTTL    timex.Duration `json:"max_package_ttl"`
	BlobBackend      string         `json:"blob_backend"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Bucket         string         `json:"s3_bucket"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	StatsdAddr       string         `json:"statsd_addr"`
	LogFormat        string         `json:"log_format"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// parseJson overlays the JSON file named by -c/-config onto config. Without
// such a flag it does nothing.
func parseJson(config *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.VaultMasterKey, c.VaultMasterKey)
	if c.PackageTTL.Duration != 0 {
		config.PackageTTL = c.PackageTTL.Duration
	}
	if c.MaxPackageTTL.Duration != 0 {
		config.MaxPackageTTL = c.MaxPackageTTL.Duration
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.StatsdAddr, c.StatsdAddr)
	setString(&config.LogFormat, c.LogFormat)
	return nil
}
