package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/cabinetsync/internal/client/cli"
	"github.com/dmitrijs2005/cabinetsync/internal/client/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global, cmd, rest, err := cli.SplitArgs(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.LoadConfig(global)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	app, err := cli.NewApp(cfg, os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer app.Close()

	if err := app.Execute(context.Background(), cmd, rest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
