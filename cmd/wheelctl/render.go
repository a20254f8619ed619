package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/portfolio"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

// output holds the rendering flags shared by the report commands
type output struct {
	json bool
	raw  bool
}

func (o *output) setFlags(f *flag.FlagSet) {
	f.BoolVar(&o.json, "json", false, "print JSON instead of a report")
	f.BoolVar(&o.raw, "raw", false, "print the report as plain markdown")
}

// emit prints v as JSON, or the markdown report
func (o *output) emit(v interface{}, md string) error {
	if o.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if o.raw {
		fmt.Print(md)
		return nil
	}
	printMarkdown(md)
	return nil
}

// printMarkdown renders md for the terminal, falling back to the raw text
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// usd formats an amount in dollars, rounded to cents
func usd(d decimal.Decimal) string {
	cur := money.New(0, money.USD).Currency()
	cents := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(cents, money.USD).Display()
}

func ordersMarkdown(list []types.Order) string {
	var b strings.Builder
	b.WriteString("# Orders\n\n")
	if len(list) == 0 {
		b.WriteString("No orders.\n")
		return b.String()
	}

	b.WriteString("| ID | Recorded | Ticker | Leg | Strike | Expiration | Qty | Premium | Status | Rollover |\n")
	b.WriteString("|---:|---|---|---|---:|---|---:|---:|---|:---:|\n")
	for _, o := range list {
		rollover := ""
		if o.IsRollover {
			rollover = "yes"
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s %s | %s | %s | %d | %s | %s | %s |\n",
			o.ID,
			o.Timestamp.Format("2006-01-02 15:04"),
			o.Ticker,
			o.Action, o.OptionType,
			o.Strike.StringFixed(2),
			o.Expiration,
			o.Quantity,
			usd(o.Premium),
			o.Status,
			rollover,
		)
	}
	fmt.Fprintf(&b, "\n%d orders\n", len(list))
	return b.String()
}

func holdingsMarkdown(summary *portfolio.Summary, list []types.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Account %s\n\n", summary.AccountID)
	fmt.Fprintf(&b, "- Cash: %s\n", usd(summary.CashBalance))
	fmt.Fprintf(&b, "- Account value: %s\n", usd(summary.AccountValue))
	fmt.Fprintf(&b, "- As of: %s", summary.FetchedAt.Local().Format("2006-01-02 15:04"))
	if summary.Stale {
		b.WriteString(" (stale, provider unavailable)")
	}
	b.WriteString("\n\n## Positions\n\n")

	if len(list) == 0 {
		b.WriteString("No positions.\n")
		return b.String()
	}

	b.WriteString("| Symbol | Type | Contract | Quantity | Price | Value | Avg cost | Unrealized |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|---:|\n")
	for _, p := range list {
		contract := ""
		if p.SecurityType == types.SecurityOption {
			contract = fmt.Sprintf("%s %s %s", p.Expiration, p.Strike.String(), p.OptionType)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			p.Symbol,
			p.SecurityType,
			contract,
			p.Quantity.String(),
			usd(p.MarketPrice),
			usd(p.MarketValue),
			usd(p.AvgCost),
			usd(p.UnrealizedPnL),
		)
	}
	return b.String()
}

func incomeMarkdown(report *portfolio.IncomeReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Weekly income through %s\n\n", report.ThisFriday)
	if report.PositionsCount == 0 {
		b.WriteString("No short options expire this week.\n")
		return b.String()
	}

	b.WriteString("| Symbol | Type | Strike | Expiration | Position | Premium | Income | Put notional |\n")
	b.WriteString("|---|---|---:|---|---:|---:|---:|---:|\n")
	for _, p := range report.Positions {
		notional := ""
		if p.NotionalValue != nil {
			notional = usd(*p.NotionalValue)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			p.Symbol,
			p.OptionType,
			p.Strike.String(),
			p.Expiration,
			p.Position.String(),
			usd(p.PremiumPerContract),
			usd(p.Income),
			notional,
		)
	}

	fmt.Fprintf(&b, "\n- Positions: %d\n", report.PositionsCount)
	fmt.Fprintf(&b, "- Total income: %s\n", usd(report.TotalIncome))
	fmt.Fprintf(&b, "- Put notional: %s\n", usd(report.TotalPutNotional))
	return b.String()
}
