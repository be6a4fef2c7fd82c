package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
)

// As a short lived CLI, global flags are fine.
var (
	configPath = flag.String("config", "", "Path to folio.toml (default: $FOLIO_CONFIG, then next to the binary, then config/folio.toml)")
	inMemory   = flag.Bool("memory", false, "Use in-memory storage; nothing is persisted")
	currency   = flag.String("currency", "USD", "ISO currency code used to format money")
	jsonOutput = flag.Bool("json", false, "Print JSON instead of tables")
	logLevel   = flag.String("log-level", "warn", "Log level (trace, debug, info, warn, error)")
)

// openApp loads configuration and wires the application for one command.
func openApp(ctx context.Context) (*app.App, error) {
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(app.ResolveConfigPath(*configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if *inMemory {
		config.Storage.Backend = common.BackendMemory
	}
	config.Logging.Level = *logLevel

	return app.NewAppFromConfig(ctx, config)
}

// withApp runs fn against a freshly opened App and closes it afterwards.
func withApp(ctx context.Context, fn func(*app.App) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
