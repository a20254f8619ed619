package portfolio

import (
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of shares one option contract covers
const ContractMultiplier = 100

// IncomePosition is a short option that expires by the end of the week
type IncomePosition struct {
	Symbol             string           `json:"symbol"`
	OptionType         types.OptionType `json:"option_type"`
	Strike             decimal.Decimal  `json:"strike"`
	Expiration         string           `json:"expiration"`
	Position           decimal.Decimal  `json:"position"`
	PremiumPerContract decimal.Decimal  `json:"premium_per_contract"`
	AvgCost            decimal.Decimal  `json:"avg_cost"`
	Income             decimal.Decimal  `json:"income"`
	Commission         decimal.Decimal  `json:"commission"`
	NotionalValue      *decimal.Decimal `json:"notional_value"` // puts only
}

// IncomeReport is the projected option income for the current week
type IncomeReport struct {
	Positions        []IncomePosition `json:"positions"`
	TotalIncome      decimal.Decimal  `json:"total_income"`
	TotalCommission  decimal.Decimal  `json:"total_commission"`
	PositionsCount   int              `json:"positions_count"`
	ThisFriday       string           `json:"this_friday"`
	TotalPutNotional decimal.Decimal  `json:"total_put_notional"`
}

// NextFriday returns midnight of the nearest Friday on or after now, in now's
// location. On a Friday it is today, on a weekend the following Friday.
func NextFriday(now time.Time) time.Time {
	days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	y, m, d := now.Date()
	return time.Date(y, m, d+days, 0, 0, 0, 0, now.Location())
}

// WeeklyIncome projects the premium kept from short options that expire on or
// before this week's Friday. Expired contracts that are still held count too.
func WeeklyIncome(positions []types.Position, now time.Time) IncomeReport {
	friday := NextFriday(now)
	cutoff := friday.Format(types.ExpirationLayout)

	report := IncomeReport{
		Positions:        []IncomePosition{},
		TotalIncome:      decimal.Zero,
		TotalCommission:  decimal.Zero,
		ThisFriday:       friday.Format("2006-01-02"),
		TotalPutNotional: decimal.Zero,
	}

	for _, pos := range positions {
		if pos.SecurityType != types.SecurityOption || !pos.Quantity.IsNegative() {
			continue
		}
		if pos.Expiration == "" || pos.Expiration > cutoff {
			continue
		}

		contracts := pos.Quantity.Abs()
		income := pos.AvgCost.Mul(contracts)

		entry := IncomePosition{
			Symbol:             pos.Symbol,
			OptionType:         pos.OptionType,
			Strike:             pos.Strike,
			Expiration:         pos.Expiration,
			Position:           pos.Quantity,
			PremiumPerContract: pos.AvgCost,
			AvgCost:            pos.AvgCost,
			Income:             income,
			Commission:         decimal.Zero,
		}
		if pos.OptionType == types.OptionTypePut {
			notional := pos.Strike.Mul(decimal.NewFromInt(ContractMultiplier)).Mul(contracts)
			entry.NotionalValue = &notional
			report.TotalPutNotional = report.TotalPutNotional.Add(notional)
		}

		report.TotalIncome = report.TotalIncome.Add(income)
		report.Positions = append(report.Positions, entry)
	}

	report.PositionsCount = len(report.Positions)
	return report
}
