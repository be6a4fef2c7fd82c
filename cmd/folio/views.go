package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/services/portfolio"
)

// summaryCmd prints holdings, totals and price freshness.
type summaryCmd struct {
	force bool
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show holdings, totals and allocation" }
func (*summaryCmd) Usage() string {
	return `folio summary [-f]

  Prices older than the staleness window are refreshed first. With -f the
  refresh always runs.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "f", false, "force a price refresh")
}

func (c *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		s, err := a.Portfolio.GetSummary(ctx, portfolio.SummaryOptions{Force: c.force})
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(s)
		}
		writeSummary(os.Stdout, s, *currency)
		return nil
	})
}

// holdingsCmd prints the per-ticker rollup.
type holdingsCmd struct {
	search string
	sort   string
	desc   bool
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "show holdings consolidated across accounts" }
func (*holdingsCmd) Usage() string {
	return `folio holdings [-q <search>] [-sort ticker|value|pnl|pnl_percent|weight] [-desc]
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.search, "q", "", "only tickers containing this text")
	f.StringVar(&c.sort, "sort", "ticker", "sort key: ticker, value, pnl, pnl_percent or weight")
	f.BoolVar(&c.desc, "desc", false, "sort descending")
}

func (c *holdingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		holdings, err := a.Portfolio.GetHoldings(ctx, portfolio.HoldingsQuery{
			Search:     c.search,
			Sort:       c.sort,
			Descending: c.desc,
		})
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(holdings)
		}
		writeHoldings(os.Stdout, holdings, *currency)
		return nil
	})
}

// accountsCmd prints positions grouped by account.
type accountsCmd struct{}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "show positions grouped by account" }
func (*accountsCmd) Usage() string {
	return `folio accounts
`
}

func (*accountsCmd) SetFlags(f *flag.FlagSet) {}

func (*accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		accounts, err := a.Portfolio.GetAccounts(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(accounts)
		}
		writeAccounts(os.Stdout, accounts, *currency)
		return nil
	})
}

// refreshCmd forces a price refresh, or prints the coordinator state.
type refreshCmd struct {
	status bool
}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "refresh prices now" }
func (*refreshCmd) Usage() string {
	return `folio refresh [-status]
`
}

func (c *refreshCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.status, "status", false, "print refresh state instead of refreshing")
}

func (c *refreshCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app.App) error {
		if c.status {
			st := a.Portfolio.RefreshStatus()
			if *jsonOutput {
				return printJSON(st)
			}
			fmt.Printf("State: %s  window: %s  last refresh: %s\n", st.State, st.StalenessWindow, formatTime(st.LastRefreshedAt))
			return nil
		}

		s, err := a.Portfolio.Refresh(ctx)
		if err != nil {
			return err
		}
		if *jsonOutput {
			return printJSON(s.Freshness)
		}
		writeFreshness(os.Stdout, s.Freshness)
		return nil
	})
}
