package orders

import (
	"reflect"
	"testing"
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

func TestPairRollovers(t *testing.T) {
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	leg := func(id uint, ticker string, ot types.OptionType, action types.Action, offset time.Duration) types.Order {
		return types.Order{ID: id, Ticker: ticker, OptionType: ot, Action: action, Timestamp: t0.Add(offset)}
	}

	tests := []struct {
		name   string
		orders []types.Order
		want   []types.RolloverPair
	}{
		{
			name: "within window",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, 0),
				leg(2, "AAPL", types.OptionTypePut, types.ActionSell, 90*time.Second),
			},
			want: []types.RolloverPair{{BuyID: 1, SellID: 2}},
		},
		{
			name: "window is inclusive and symmetric",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, 2*time.Minute),
				leg(2, "AAPL", types.OptionTypePut, types.ActionSell, 0),
			},
			want: []types.RolloverPair{{BuyID: 1, SellID: 2}},
		},
		{
			name: "outside window",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, 0),
				leg(2, "AAPL", types.OptionTypePut, types.ActionSell, 2*time.Minute+time.Second),
			},
		},
		{
			name: "option type must match",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, 0),
				leg(2, "AAPL", types.OptionTypeCall, types.ActionSell, time.Second),
			},
		},
		{
			name: "ticker must match",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, 0),
				leg(2, "MSFT", types.OptionTypePut, types.ActionSell, time.Second),
			},
		},
		{
			name: "one buy near two sells pairs with both",
			orders: []types.Order{
				leg(1, "AAPL", types.OptionTypePut, types.ActionBuy, time.Minute),
				leg(2, "AAPL", types.OptionTypePut, types.ActionSell, 0),
				leg(3, "AAPL", types.OptionTypePut, types.ActionSell, 2*time.Minute),
			},
			want: []types.RolloverPair{{BuyID: 1, SellID: 2}, {BuyID: 1, SellID: 3}},
		},
		{
			name: "flagged orders are ignored",
			orders: []types.Order{
				{ID: 1, Ticker: "AAPL", OptionType: types.OptionTypePut, Action: types.ActionBuy, Timestamp: t0, IsRollover: true},
				leg(2, "AAPL", types.OptionTypePut, types.ActionSell, 0),
			},
		},
		{
			name: "keys are visited in a stable order",
			orders: []types.Order{
				leg(1, "TSLA", types.OptionTypeCall, types.ActionBuy, 0),
				leg(2, "TSLA", types.OptionTypeCall, types.ActionSell, 0),
				leg(3, "AAPL", types.OptionTypePut, types.ActionBuy, 0),
				leg(4, "AAPL", types.OptionTypePut, types.ActionSell, 0),
			},
			want: []types.RolloverPair{{BuyID: 3, SellID: 4}, {BuyID: 1, SellID: 2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PairRollovers(tt.orders, RolloverWindow)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("PairRollovers() = %v, want %v", got, tt.want)
			}
		})
	}
}
