// Package cli implements the syncctl command line: share, retrieve, list
// and revoke sync packages against a cabinetsync server.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cabinetsync/internal/client/client"
	"github.com/dmitrijs2005/cabinetsync/internal/client/config"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/syncapi"
)

var ErrUsage = errors.New("usage")

type syncClient interface {
	Ping(ctx context.Context) error
	Share(ctx context.Context, in client.ShareInput) (*syncapi.ShareResponse, error)
	Retrieve(ctx context.Context, id string) (payload.Payload, error)
	List(ctx context.Context) ([]syncapi.PackageInfo, error)
	Revoke(ctx context.Context, id string) error
	SetAccessToken(token string)
	Close() error
}

type App struct {
	config    *config.Config
	client    syncClient
	reader    *bufio.Reader
	out       io.Writer
	readToken func(w io.Writer) (string, error)
}

func NewApp(c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr, c.AccessToken)
	if err != nil {
		return nil, err
	}
	return newApp(c, apiClient, in, out), nil
}

func newApp(c *config.Config, sc syncClient, in io.Reader, out io.Writer) *App {
	return &App{config: c, client: sc, reader: bufio.NewReader(in), out: out, readToken: GetToken}
}

// SplitArgs separates the global flags from the command and its own
// arguments.
func SplitArgs(args []string) (global []string, cmd string, rest []string, err error) {
	fs := flag.NewFlagSet("syncctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("c", "", "")
	fs.String("config", "", "")
	fs.String("a", "", "")
	fs.String("t", "", "")
	fs.String("w", "", "")
	if err := fs.Parse(args); err != nil {
		return nil, "", nil, fmt.Errorf("%w: %w", ErrUsage, err)
	}

	tail := fs.Args()
	global = args[:len(args)-len(tail)]
	if len(tail) == 0 {
		return global, "", nil, nil
	}
	return global, tail[0], tail[1:], nil
}

func (a *App) Close() error {
	return a.client.Close()
}

func (a *App) ensureToken() error {
	if a.config.AccessToken != "" {
		return nil
	}
	tok, err := a.readToken(a.out)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	if tok == "" {
		return client.ErrUnauthenticated
	}
	a.config.AccessToken = tok
	a.client.SetAccessToken(tok)
	return nil
}

func (a *App) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.Timeout)
}

// Execute runs one command.
func (a *App) Execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "", "help":
		a.usage()
		return nil
	case "token":
		return a.token(args)
	case "ping":
		ctx, cancel := a.callContext(ctx)
		defer cancel()
		if err := a.client.Ping(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "OK")
		return nil
	}

	if err := a.ensureToken(); err != nil {
		return err
	}

	switch cmd {
	case "share":
		return a.share(ctx, args)
	case "retrieve", "get":
		return a.retrieve(ctx, args)
	case "list", "ls":
		return a.list(ctx)
	case "revoke":
		return a.revoke(ctx, args)
	default:
		a.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `usage: syncctl [-c config.json] [-a addr] [-t token] [-w timeout] <command> [args]

commands:
  share -cabinet ID -to USER -patient LOCAL_ID -file PAYLOAD.json [-perm read|write|full] [-ttl 24h] [-key IDEMPOTENCY_KEY]
  retrieve ID
  list
  revoke [-y] ID
  ping
  token -u USER -s SECRET [-v 24h]`)
}
