package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
	"github.com/dmitrijs2005/cabinetsync/internal/server/models"
)

// Admin commands run once against the configured database instead of
// starting the gRPC endpoint.
const (
	CommandRotateKey = "rotate-key"
	CommandAddMember = "add-member"
)

// ErrUnknownCommand is returned for an admin command the server does not know.
var ErrUnknownCommand = errors.New("unknown admin command")

type keyRotator interface {
	Rotate(ctx context.Context, cabinetID string) (*models.CabinetKey, error)
}

type memberProvisioner interface {
	Add(ctx context.Context, cabinetID, userID string) error
}

// SplitCommand returns the admin command and its positional operands when
// args start with one. Flags are left to the config loader, which ignores
// the operands.
func SplitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "", nil
	}
	var operands []string
	for _, a := range args[1:] {
		if strings.HasPrefix(a, "-") {
			break
		}
		operands = append(operands, a)
	}
	return args[0], operands
}

// RunCommand executes one admin command and reports the outcome to out.
func (app *App) RunCommand(ctx context.Context, name string, operands []string, out io.Writer) error {
	defer app.close(context.WithoutCancel(ctx))

	switch name {
	case CommandRotateKey:
		if len(operands) != 1 {
			return fmt.Errorf("%w: usage: %s <cabinet-id>", common.ErrValidation, CommandRotateKey)
		}
		k, err := app.keys.Rotate(ctx, operands[0])
		if err != nil {
			return err
		}
		common.WipeByteArray(k.Key)
		fmt.Fprintf(out, "cabinet %s now uses key version %d\n", k.CabinetID, k.Version)
		return nil

	case CommandAddMember:
		if len(operands) != 2 {
			return fmt.Errorf("%w: usage: %s <cabinet-id> <user-id>", common.ErrValidation, CommandAddMember)
		}
		if err := app.members.Add(ctx, operands[0], operands[1]); err != nil {
			return fmt.Errorf("add member: %w", err)
		}
		app.logger.Info(ctx, "cabinet member added", "cabinet_id", operands[0], "user_id", operands[1])
		fmt.Fprintf(out, "%s added to cabinet %s\n", operands[1], operands[0])
		return nil
	}

	return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}
