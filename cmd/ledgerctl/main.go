// Command ledgerctl runs administrative tasks against the ledger database.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func newCommander(fs *flag.FlagSet, name string, e *env) *subcommands.Commander {
	commander := subcommands.NewCommander(fs, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&migrateCmd{env: e}, "database")
	commander.Register(&seedCmd{env: e}, "database")
	commander.Register(&sharesCmd{env: e}, "catalog")
	commander.Register(&refreshCmd{env: e}, "catalog")
	return commander
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	commander := newCommander(flag.CommandLine, path.Base(os.Args[0]), defaultEnv(os.Stdout))
	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
