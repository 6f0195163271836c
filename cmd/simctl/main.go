// Command simctl is a terminal client for the stock trading simulator.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"

	"github.com/google/subcommands"
)

func main() {
	server := flag.String("server", envOr("SIMCTL_SERVER", "http://localhost:8080"), "simulator base URL")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&marketCmd{server: server}, "")
	commander.Register(&portfolioCmd{server: server}, "")
	commander.Register(&tradeCmd{server: server}, "")
	commander.Register(&updatePricesCmd{server: server}, "")
	commander.Register(&watchCmd{server: server}, "")
	commander.ImportantFlag("server")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(int(commander.Execute(ctx)))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
