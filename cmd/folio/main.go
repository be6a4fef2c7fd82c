// Command folio manages the position ledger and prints portfolio views
// from the command line.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// Register adds the folio subcommands to c.
func Register(c *subcommands.Commander) {
	c.Register(&addCmd{}, "ledger")
	c.Register(&updateCmd{}, "ledger")
	c.Register(&rmCmd{}, "ledger")
	c.Register(&importCmd{}, "ledger")
	c.Register(&listCmd{}, "ledger")
	c.Register(&clearCmd{}, "ledger")

	c.Register(&summaryCmd{}, "portfolio")
	c.Register(&holdingsCmd{}, "portfolio")
	c.Register(&accountsCmd{}, "portfolio")
	c.Register(&refreshCmd{}, "portfolio")
}
