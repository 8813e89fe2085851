package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/cabinetsync/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-k string     vault master key, hex
//	-t duration   default package TTL (e.g., "24h")
//	-x duration   maximum package TTL a share may request
//	-o string     blob backend: s3 or memory
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint
//	-m string     statsd address
//	-l string     log format: json or pretty
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-k", "-t", "-x", "-o", "-u", "-p", "-b", "-g", "-e", "-m", "-l"})

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.VaultMasterKey, "k", config.VaultMasterKey, "vault master key (hex)")
	fs.DurationVar(&config.PackageTTL, "t", config.PackageTTL, "default sync package TTL")
	fs.DurationVar(&config.MaxPackageTTL, "x", config.MaxPackageTTL, "maximum sync package TTL")
	fs.StringVar(&config.BlobBackend, "o", config.BlobBackend, "blob backend (s3|memory)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.StatsdAddr, "m", config.StatsdAddr, "statsd address")
	fs.StringVar(&config.LogFormat, "l", config.LogFormat, "log format (json|pretty)")

	return fs.Parse(args)
}
