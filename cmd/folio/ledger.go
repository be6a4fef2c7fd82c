package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/models"
)

// addCmd appends one position and consolidates it with its (ticker, account) group.
type addCmd struct {
	ticker    string
	account   string
	quantity  string
	costBasis string
	typ       string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "add a position, merging it with existing lots of the same ticker and account" }
func (*addCmd) Usage() string {
	return `folio add -t <ticker> -a <account> -q <quantity> -c <cost-basis> [-type stock|etf|cash]

  Appends a position to the ledger. Existing records with the same ticker
  and account are merged into one at the weighted-average cost basis.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "t", "", "ticker symbol")
	f.StringVar(&c.account, "a", "", "account name")
	f.StringVar(&c.quantity, "q", "", "quantity held")
	f.StringVar(&c.costBasis, "c", "", "per-unit cost basis")
	f.StringVar(&c.typ, "type", "", "position type: stock, etf or cash")
}

func (c *addCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	qty, err := parseDecimalFlag("q", c.quantity)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	cost, err := parseDecimalFlag("c", c.costBasis)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	p := models.Position{
		Ticker:    c.ticker,
		Account:   c.account,
		Quantity:  qty,
		CostBasis: cost,
		Type:      models.PositionType(c.typ),
	}
	return withApp(ctx, func(a *app.App) error {
		res, err := a.Portfolio.AddPosition(ctx, p)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(res)
		}
		writeMutation(os.Stdout, "Added", res, *currency)
		return nil
	})
}

// updateCmd changes fields of one ledger record.
type updateCmd struct {
	ticker    string
	account   string
	quantity  string
	costBasis string
	typ       string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "update fields of a position by id" }
func (*updateCmd) Usage() string {
	return `folio update [-t <ticker>] [-a <account>] [-q <quantity>] [-c <cost-basis>] [-type <type>] <id>

  Only the flags given are changed. Updates never merge records.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "t", "", "new ticker symbol")
	f.StringVar(&c.account, "a", "", "new account name")
	f.StringVar(&c.quantity, "q", "", "new quantity")
	f.StringVar(&c.costBasis, "c", "", "new per-unit cost basis")
	f.StringVar(&c.typ, "type", "", "new position type")
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "update requires exactly one position id")
		return subcommands.ExitUsageError
	}
	upd, err := c.buildUpdate(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	id := f.Arg(0)
	return withApp(ctx, func(a *app.App) error {
		res, err := a.Portfolio.UpdatePosition(ctx, id, upd)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(res)
		}
		writeMutation(os.Stdout, "Updated", res, *currency)
		return nil
	})
}

// buildUpdate sets only the fields whose flags were passed.
func (c *updateCmd) buildUpdate(f *flag.FlagSet) (models.PositionUpdate, error) {
	var upd models.PositionUpdate
	var err error
	f.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "t":
			upd.Ticker = &c.ticker
		case "a":
			upd.Account = &c.account
		case "type":
			t := models.PositionType(c.typ)
			upd.Type = &t
		case "q":
			var d decimal.Decimal
			if d, err = parseDecimalFlag("q", c.quantity); err == nil {
				upd.Quantity = &d
			}
		case "c":
			var d decimal.Decimal
			if d, err = parseDecimalFlag("c", c.costBasis); err == nil {
				upd.CostBasis = &d
			}
		}
	})
	return upd, err
}

// rmCmd removes ledger records by id.
type rmCmd struct{}

func (*rmCmd) Name() string     { return "rm" }
func (*rmCmd) Synopsis() string { return "remove positions by id" }
func (*rmCmd) Usage() string {
	return `folio rm <id>...
`
}

func (*rmCmd) SetFlags(f *flag.FlagSet) {}

func (*rmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "rm requires at least one position id")
		return subcommands.ExitUsageError
	}
	ids := f.Args()
	return withApp(ctx, func(a *app.App) error {
		for _, id := range ids {
			res, err := a.Portfolio.RemovePosition(ctx, id)
			if err != nil {
				return err
			}
			if *jsonOutput {
				if err := printJSON(res); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("Removed %s %s in %s (%s)\n", res.Position.Quantity.String(), res.Position.Ticker, res.Position.Account, id)
		}
		return nil
	})
}

// importCmd bulk-loads records from a JSON file as separate lots.
type importCmd struct{}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import positions from a JSON file, keeping each record as a lot" }
func (*importCmd) Usage() string {
	return `folio import <file.json>

  The file holds a JSON array of {ticker, account, quantity, cost_basis, type}
  records, or {"positions": [...]}. Either every row is imported or none is.
`
}

func (*importCmd) SetFlags(f *flag.FlagSet) {}

func (*importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "import requires exactly one file")
		return subcommands.ExitUsageError
	}
	positions, err := app.LoadPositionsFile(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	return withApp(ctx, func(a *app.App) error {
		res, err := a.Portfolio.ImportPositions(ctx, positions)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(res)
		}
		writeMutation(os.Stdout, "Imported", res, *currency)
		return nil
	})
}

// listCmd prints the raw ledger.
type listCmd struct{}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list every ledger record" }
func (*listCmd) Usage() string {
	return `folio list
`
}

func (*listCmd) SetFlags(f *flag.FlagSet) {}

func (*listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		ps, err := a.Portfolio.ListPositions(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(ps)
		}
		writePositions(os.Stdout, ps, *currency)
		return nil
	})
}

// clearCmd deletes the whole ledger.
type clearCmd struct {
	yes bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "remove every ledger record" }
func (*clearCmd) Usage() string {
	return `folio clear -yes
`
}

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "confirm deletion of the whole ledger")
}

func (c *clearCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to clear the ledger without -yes")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app.App) error {
		res, err := a.Portfolio.ClearPositions(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(res)
		}
		fmt.Printf("Removed %d positions\n", res.Removed)
		return nil
	})
}

// parseDecimalFlag parses a required decimal flag value.
func parseDecimalFlag(name, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, fmt.Errorf("flag -%s is required", name)
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("flag -%s: %q is not a number", name, value)
	}
	return d, nil
}
