package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/cabinetsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     address and port of the backend server
//	-t string     access token
//	-w duration   per-call timeout (e.g., "5s")
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-w"})

	fs := flag.NewFlagSet("syncctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "access token")
	fs.DurationVar(&cfg.Timeout, "w", cfg.Timeout, "per-call timeout")

	return fs.Parse(args)
}
