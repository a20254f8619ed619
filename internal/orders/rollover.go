package orders

import (
	"sort"
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

// RolloverWindow is the largest gap between the two legs of an inferred rollover
const RolloverWindow = 2 * time.Minute

type legKey struct {
	ticker     string
	optionType types.OptionType
}

// PairRollovers infers rollover pairs in historical orders: a BUY and a SELL of
// the same ticker and option type placed within window of each other. Orders
// already flagged are ignored. A BUY close to several SELLs is paired with
// each of them, so one order may appear in more than one pair.
func PairRollovers(orders []types.Order, window time.Duration) []types.RolloverPair {
	buys := make(map[legKey][]*types.Order)
	sells := make(map[legKey][]*types.Order)
	for i := range orders {
		o := &orders[i]
		if o.IsRollover {
			continue
		}
		key := legKey{ticker: o.Ticker, optionType: o.OptionType}
		switch o.Action {
		case types.ActionBuy:
			buys[key] = append(buys[key], o)
		case types.ActionSell:
			sells[key] = append(sells[key], o)
		}
	}

	keys := make([]legKey, 0, len(buys))
	for key := range buys {
		if len(sells[key]) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ticker != keys[j].ticker {
			return keys[i].ticker < keys[j].ticker
		}
		return keys[i].optionType < keys[j].optionType
	})

	var pairs []types.RolloverPair
	for _, key := range keys {
		for _, buy := range buys[key] {
			for _, sell := range sells[key] {
				gap := buy.Timestamp.Sub(sell.Timestamp)
				if gap < 0 {
					gap = -gap
				}
				if gap <= window {
					pairs = append(pairs, types.RolloverPair{BuyID: buy.ID, SellID: sell.ID})
				}
			}
		}
	}
	return pairs
}
