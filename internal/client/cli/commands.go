package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/cabinetsync/internal/client/client"
	"github.com/dmitrijs2005/cabinetsync/internal/payload"
	"github.com/dmitrijs2005/cabinetsync/internal/server/auth"
)

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *App) readPayload(path string) (payload.Payload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(a.reader)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return payload.Unmarshal(data)
}

func (a *App) share(ctx context.Context, args []string) error {
	var in client.ShareInput
	var file string

	fs := newFlagSet("share")
	fs.StringVar(&in.CabinetID, "cabinet", "", "cabinet id")
	fs.StringVar(&in.TargetID, "to", "", "target practitioner id")
	fs.StringVar(&in.PatientLocalID, "patient", "", "local patient id")
	fs.StringVar(&file, "file", "", "payload JSON file, - for stdin")
	fs.StringVar(&in.Permission, "perm", "read", "permission: read, write or full")
	fs.DurationVar(&in.TTL, "ttl", 0, "package lifetime (server default when 0)")
	fs.StringVar(&in.IdempotencyKey, "key", "", "idempotency key")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if in.CabinetID == "" || in.TargetID == "" || in.PatientLocalID == "" || file == "" {
		return fmt.Errorf("%w: share needs -cabinet, -to, -patient and -file", ErrUsage)
	}

	p, err := a.readPayload(file)
	if err != nil {
		return err
	}
	in.Payload = p

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	res, err := a.client.Share(ctx, in)
	if err != nil {
		return err
	}

	if res.Reused {
		fmt.Fprintf(a.out, "Already shared: %s (expires %s)\n", res.ID, res.ExpiresAt.Local().Format(time.RFC3339))
		return nil
	}
	fmt.Fprintf(a.out, "Shared: %s (expires %s)\n", res.ID, res.ExpiresAt.Local().Format(time.RFC3339))
	return nil
}

func (a *App) retrieve(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: retrieve ID", ErrUsage)
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	p, err := a.client.Retrieve(ctx, args[0])
	if err != nil {
		return err
	}

	raw, err := payload.Marshal(p)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = buf.WriteTo(a.out)
	return err
}

func (a *App) list(ctx context.Context) error {
	ctx, cancel := a.callContext(ctx)
	defer cancel()

	pkgs, err := a.client.List(ctx)
	if err != nil {
		return err
	}
	if len(pkgs) == 0 {
		fmt.Fprintln(a.out, "Nothing shared with you.")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tFROM\tCABINET\tPERMISSION\tEXPIRES\tLAST SYNCED")
	for _, p := range pkgs {
		last := "-"
		if p.LastSyncedAt != nil {
			last = p.LastSyncedAt.Local().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.SyncType, p.OwnerID, p.CabinetID, p.Permission, p.ExpiresAt.Local().Format(time.RFC3339), last)
	}
	return tw.Flush()
}

func (a *App) revoke(ctx context.Context, args []string) error {
	fs := newFlagSet("revoke")
	yes := fs.Bool("y", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: revoke [-y] ID", ErrUsage)
	}
	id := fs.Arg(0)

	if !*yes && !Confirm(a.reader, fmt.Sprintf("Revoke %s?", id), a.out) {
		fmt.Fprintln(a.out, "Cancelled.")
		return nil
	}

	ctx, cancel := a.callContext(ctx)
	defer cancel()

	if err := a.client.Revoke(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Revoked: %s\n", id)
	return nil
}

// token mints a development access token with the server's secret.
func (a *App) token(args []string) error {
	fs := newFlagSet("token")
	user := fs.String("u", "", "user id")
	secret := fs.String("s", "", "server JWT secret")
	validity := fs.Duration("v", 24*time.Hour, "token validity")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	if *user == "" || *secret == "" {
		return fmt.Errorf("%w: token -u USER -s SECRET", ErrUsage)
	}

	tok, err := auth.GenerateToken(*user, []byte(*secret), *validity)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, tok)
	return nil
}
