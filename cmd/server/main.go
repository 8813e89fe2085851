package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/cabinetsync/internal/server"
	"github.com/dmitrijs2005/cabinetsync/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if cmd, operands := server.SplitCommand(os.Args[1:]); cmd != "" {
		if err := app.RunCommand(ctx, cmd, operands, os.Stdout); err != nil {
			log.Fatalf("%s: %v", cmd, err)
		}
		return
	}

	app.Run(ctx)

}
