package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "saber-api",
		Usage: "Authentication and question bank API",
		Commands: []*cli.Command{
			serveCmd(),
			migrateCmd(),
			reconcileCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatalf("saber-api: %v", err)
	}
}
