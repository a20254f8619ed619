// Package positions turns raw brokerage holdings into canonical positions
package positions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/gval"
	"github.com/PaesslerAG/jsonpath"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Field locations inside a raw holdings entry
var (
	pathStockSymbolData = MustCompile("$.symbol.symbol")
	pathStockSymbol     = MustCompile("$.symbol.symbol.symbol")
	pathStockTypeDesc   = MustCompile("$.symbol.symbol.type.description")

	pathOptionSymbolData = MustCompile("$.symbol.option_symbol")
	pathUnderlying       = MustCompile("$.symbol.option_symbol.underlying_symbol.symbol")
	pathExpiration       = MustCompile("$.symbol.option_symbol.expiration_date")
	pathStrike           = MustCompile("$.symbol.option_symbol.strike_price")
	pathOptionType       = MustCompile("$.symbol.option_symbol.option_type")

	pathUnits    = MustCompile("$.units")
	pathPrice    = MustCompile("$.price")
	pathAvgPrice = MustCompile("$.average_purchase_price")
	pathOpenPnL  = MustCompile("$.open_pnl")
)

// Path is a JSONPath expression compiled once and evaluated per entry
type Path struct {
	expr string
	eval gval.Evaluable
}

// MustCompile compiles expr and panics when it is malformed
func MustCompile(expr string) Path {
	eval, err := jsonpath.New(expr)
	if err != nil {
		panic(fmt.Sprintf("positions: compile %q: %v", expr, err))
	}
	return Path{expr: expr, eval: eval}
}

func (p Path) String() string { return p.expr }

// Normalize converts the stock and option entries of holdings into positions,
// stocks first. Malformed entries are logged and skipped one by one.
func Normalize(holdings *types.Holdings) []types.Position {
	if holdings == nil {
		return nil
	}

	logger := log.With().Str("component", "positions").Logger()
	positions := make([]types.Position, 0, len(holdings.Positions)+len(holdings.OptionPositions))

	for i, raw := range holdings.Positions {
		pos, err := Stock(raw)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("skipping stock position")
			metrics.PositionsSkipped.Inc()
			continue
		}
		positions = append(positions, pos)
	}

	for i, raw := range holdings.OptionPositions {
		pos, err := Option(raw)
		if err != nil {
			logger.Warn().Err(err).Int("index", i).Msg("skipping option position")
			metrics.PositionsSkipped.Inc()
			continue
		}
		positions = append(positions, pos)
	}

	logger.Debug().
		Int("stocks", len(holdings.Positions)).
		Int("options", len(holdings.OptionPositions)).
		Int("normalized", len(positions)).
		Msg("positions normalized")
	return positions
}

// Stock normalizes one entry of the positions list
func Stock(raw interface{}) (types.Position, error) {
	if !present(raw, pathStockSymbolData) {
		return types.Position{}, fmt.Errorf("missing %s", pathStockSymbolData)
	}

	pos := types.Position{
		Symbol:       "N/A",
		SecurityType: types.SecurityUnknown,
	}
	if symbol, ok := Lookup(raw, pathStockSymbol).(string); ok && symbol != "" {
		pos.Symbol = symbol
	}
	if desc, ok := Lookup(raw, pathStockTypeDesc).(string); ok && strings.Contains(desc, "Stock") {
		pos.SecurityType = types.SecurityStock
	}

	if err := fillAmounts(raw, &pos); err != nil {
		return types.Position{}, err
	}
	return pos, nil
}

// Option normalizes one entry of the option_positions list
func Option(raw interface{}) (types.Position, error) {
	if !present(raw, pathOptionSymbolData) {
		return types.Position{}, fmt.Errorf("missing %s", pathOptionSymbolData)
	}
	underlying, ok := Lookup(raw, pathUnderlying).(string)
	if !ok || underlying == "" {
		return types.Position{}, fmt.Errorf("missing %s", pathUnderlying)
	}

	pos := types.Position{
		Symbol:       underlying,
		SecurityType: types.SecurityOption,
		OptionType:   "N/A",
	}

	if exp, ok := Lookup(raw, pathExpiration).(string); ok {
		pos.Expiration = compactDate(exp)
	}
	if ot, ok := Lookup(raw, pathOptionType).(string); ok && ot != "" {
		pos.OptionType = types.OptionType(strings.ToUpper(ot))
	}

	strike, err := ToDecimal(Lookup(raw, pathStrike))
	if err != nil {
		return types.Position{}, fmt.Errorf("strike_price: %w", err)
	}
	pos.Strike = strike

	if err := fillAmounts(raw, &pos); err != nil {
		return types.Position{}, err
	}
	return pos, nil
}

// fillAmounts reads the quantity and price fields shared by stocks and options
func fillAmounts(raw interface{}, pos *types.Position) error {
	fields := []struct {
		path Path
		dst  *decimal.Decimal
	}{
		{pathUnits, &pos.Quantity},
		{pathPrice, &pos.MarketPrice},
		{pathAvgPrice, &pos.AvgCost},
		{pathOpenPnL, &pos.UnrealizedPnL},
	}
	for _, f := range fields {
		v, err := ToDecimal(Lookup(raw, f.path))
		if err != nil {
			return fmt.Errorf("%s: %w", strings.TrimPrefix(f.path.String(), "$."), err)
		}
		*f.dst = v
	}

	pos.MarketValue = pos.Quantity.Mul(pos.MarketPrice)
	return nil
}

// Lookup returns the value at path, or nil when any step of it is missing
func Lookup(raw interface{}, path Path) interface{} {
	v, err := path.eval(context.Background(), raw)
	if err != nil {
		return nil
	}
	return v
}

// present reports whether path holds a non-empty value
func present(raw interface{}, path Path) bool {
	switch v := Lookup(raw, path).(type) {
	case nil:
		return false
	case map[string]interface{}:
		return len(v) > 0
	case string:
		return v != ""
	}
	return true
}

// ToDecimal converts a decoded JSON number. Absent values are zero.
func ToDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		if n == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(n)
	}
	return decimal.Zero, fmt.Errorf("not a number: %v", v)
}

// compactDate turns "2024-05-10" or "2024-05-10T00:00:00Z" into "20240510"
func compactDate(s string) string {
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "-", "")
}
