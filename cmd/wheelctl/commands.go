package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"
	"gorm.io/gorm"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/brokerage"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/database"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/holdings"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/orders"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/portfolio"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

// openDB loads the configuration and opens the migrated ledger
func openDB() (*gorm.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return database.NewDatabase(cfg.DBPath)
}

// openPortfolio builds the portfolio service over a fresh holdings cache
func openPortfolio() (*portfolio.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cache := holdings.New(brokerage.NewClient(cfg.SnapTrade), cfg.Holdings())
	return portfolio.NewService(cache), nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

// migrateCmd applies the schema migrations
type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the order ledger schema" }
func (*migrateCmd) Usage() string {
	return `wheelctl migrate

  Creates the orders table, or upgrades an existing one. Upgrading a ledger
  without the rollover flag also pairs its historical rollovers.
`
}

func (*migrateCmd) SetFlags(f *flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB(db)

	var count int64
	if err := db.WithContext(ctx).Model(&types.Order{}).Count(&count).Error; err != nil {
		fmt.Fprintf(os.Stderr, "Error counting orders: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("ledger is up to date, %d orders\n", count)
	return subcommands.ExitSuccess
}

// pairRolloversCmd flags rollover pairs among existing orders
type pairRolloversCmd struct {
	window time.Duration
}

func (*pairRolloversCmd) Name() string { return "pair-rollovers" }
func (*pairRolloversCmd) Synopsis() string {
	return "flag BUY/SELL pairs recorded close together as rollovers"
}
func (*pairRolloversCmd) Usage() string {
	return `wheelctl pair-rollovers [-window <duration>]

  Pairs every BUY with the SELLs of the same ticker and option type recorded
  within the window, and flags both legs as a rollover. Flagged orders are
  never paired again.
`
}

func (c *pairRolloversCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.window, "window", orders.RolloverWindow, "maximum time between the two legs")
}

func (c *pairRolloversCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.window < 0 {
		fmt.Fprintln(os.Stderr, "Error: -window must not be negative")
		return subcommands.ExitUsageError
	}

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB(db)

	pairs, err := orders.NewDatabase(db).MarkRollovers(ctx, c.window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error pairing rollovers: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d rollover pairs flagged\n", pairs)
	return subcommands.ExitSuccess
}

// ordersCmd lists the ledger
type ordersCmd struct {
	output
	status   string
	ticker   string
	rollover string
	limit    int
}

func (*ordersCmd) Name() string     { return "orders" }
func (*ordersCmd) Synopsis() string { return "list orders from the ledger" }
func (*ordersCmd) Usage() string {
	return `wheelctl orders [-status pending,processing] [-ticker <symbol>] [-rollover true|false] [-n 50] [-json]

  Lists orders, newest first.
`
}

func (c *ordersCmd) SetFlags(f *flag.FlagSet) {
	c.output.setFlags(f)
	f.StringVar(&c.status, "status", "", "comma separated statuses to keep")
	f.StringVar(&c.ticker, "ticker", "", "only orders for this ticker")
	f.StringVar(&c.rollover, "rollover", "", "only rollover legs (true) or only other orders (false)")
	f.IntVar(&c.limit, "n", orders.DefaultListLimit, "maximum number of orders")
}

func (c *ordersCmd) filter() (orders.Filter, error) {
	filter := orders.Filter{
		Ticker: strings.ToUpper(strings.TrimSpace(c.ticker)),
		Limit:  c.limit,
	}

	if c.status != "" {
		for _, s := range strings.Split(c.status, ",") {
			status, ok := types.ParseOrderStatus(s)
			if !ok {
				return filter, fmt.Errorf("unknown status %q", s)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	if c.rollover != "" {
		only, err := strconv.ParseBool(c.rollover)
		if err != nil {
			return filter, fmt.Errorf("-rollover: %w", err)
		}
		filter.IsRollover = &only
	}
	return filter, nil
}

func (c *ordersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	filter, err := c.filter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeDB(db)

	list, err := orders.NewDatabase(db).List(ctx, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing orders: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := c.emit(list, ordersMarkdown(list)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// holdingsCmd shows the brokerage positions
type holdingsCmd struct {
	output
	secType string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "display the account summary and positions" }
func (*holdingsCmd) Usage() string {
	return `wheelctl holdings [-type STK|OPT] [-json]

  Fetches the holdings of the primary brokerage account and displays them.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	c.output.setFlags(f)
	f.StringVar(&c.secType, "type", "", "only positions of this security type (STK or OPT)")
}

func (c *holdingsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	secType := strings.ToUpper(strings.TrimSpace(c.secType))
	if err := portfolio.ValidateSecurityType(secType); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	service, err := openPortfolio()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	summary, err := service.Summary(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching holdings: %v\n", err)
		return subcommands.ExitFailure
	}
	list, err := service.Positions(ctx, secType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching positions: %v\n", err)
		return subcommands.ExitFailure
	}

	out := struct {
		Summary   *portfolio.Summary `json:"summary"`
		Positions []types.Position   `json:"positions"`
	}{summary, list}
	if err := c.emit(out, holdingsMarkdown(summary, list)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// weeklyIncomeCmd projects this week's option income
type weeklyIncomeCmd struct {
	output
}

func (*weeklyIncomeCmd) Name() string     { return "weekly-income" }
func (*weeklyIncomeCmd) Synopsis() string { return "display the premium of short options expiring this week" }
func (*weeklyIncomeCmd) Usage() string {
	return `wheelctl weekly-income [-json]

  Lists the short option positions expiring by this Friday, with the premium
  they bring in and the cash securing the puts.
`
}

func (c *weeklyIncomeCmd) SetFlags(f *flag.FlagSet) {
	c.output.setFlags(f)
}

func (c *weeklyIncomeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	service, err := openPortfolio()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	report, err := service.WeeklyIncome(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error computing weekly income: %v\n", err)
		return subcommands.ExitFailure
	}

	if err := c.emit(report, incomeMarkdown(report)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
