package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/orders"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
)

var (
	tickers     = []string{"AAPL", "NVDA", "MSFT", "AMD", "TSLA"}
	optionTypes = []types.OptionType{types.OptionTypePut, types.OptionTypeCall}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	mu        sync.Mutex
	name      string
	durations []time.Duration
	failures  int
}

func (rs *routeStats) record(d time.Duration, err error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	if err != nil {
		rs.failures++
	}
}

// calculate computes min, max, mean, median, p95 and p99 of the recorded durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sorted := append([]time.Duration(nil), rs.durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	min = sorted[0]
	max = sorted[len(sorted)-1]

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	mean = sum / time.Duration(len(sorted))
	median = sorted[len(sorted)/2]

	p95 = sorted[int(math.Ceil(float64(len(sorted))*0.95))-1]
	p99 = sorted[int(math.Ceil(float64(len(sorted))*0.99))-1]
	return
}

// simulationClient drives the options API of a running server
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"create":   {name: "Save Order"},
			"get":      {name: "Get Order"},
			"execute":  {name: "Execute Order"},
			"check":    {name: "Check Orders"},
			"rollover": {name: "Create Rollover"},
			"cancel":   {name: "Cancel Order"},
		},
	}
}

// call sends one request and decodes the data field of the response envelope
func (sc *simulationClient) call(ctx context.Context, route, method, path string, in, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		sc.stats[route].record(time.Since(start), err)
	}()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, respBody)
	}
	return json.Unmarshal(envelope.Data, out)
}

func (sc *simulationClient) saveOrder(ctx context.Context, order *types.Order) (uint, error) {
	var result struct {
		OrderID uint `json:"order_id"`
	}
	if err := sc.call(ctx, "create", http.MethodPost, "/api/options/order", order, &result); err != nil {
		return 0, err
	}
	if result.OrderID == 0 {
		return 0, fmt.Errorf("no order ID in response")
	}
	return result.OrderID, nil
}

func (sc *simulationClient) getOrder(ctx context.Context, id uint) (*types.Order, error) {
	var order types.Order
	err := sc.call(ctx, "get", http.MethodGet, fmt.Sprintf("/api/options/order/%d", id), nil, &order)
	return &order, err
}

func (sc *simulationClient) executeOrder(ctx context.Context, id uint) (*types.Order, error) {
	var order types.Order
	err := sc.call(ctx, "execute", http.MethodPost, fmt.Sprintf("/api/options/execute/%d", id), nil, &order)
	return &order, err
}

func (sc *simulationClient) checkOrders(ctx context.Context) (*orders.CheckResult, error) {
	var result orders.CheckResult
	err := sc.call(ctx, "check", http.MethodPost, "/api/options/check-orders", nil, &result)
	return &result, err
}

func (sc *simulationClient) rollover(ctx context.Context, req orders.RolloverRequest) (*orders.RolloverResult, error) {
	var result orders.RolloverResult
	err := sc.call(ctx, "rollover", http.MethodPost, "/api/options/rollover", req, &result)
	return &result, err
}

func (sc *simulationClient) cancelOrder(ctx context.Context, id uint) error {
	return sc.call(ctx, "cancel", http.MethodPost, fmt.Sprintf("/api/options/cancel/%d", id), nil, &orders.CancelResult{})
}

// randomOrder builds a short option leg a few weeks out
func randomOrder(rng *rand.Rand) *types.Order {
	strike := decimal.NewFromInt(int64(50 + rng.Intn(400)))
	premium := decimal.NewFromFloat(0.5 + rng.Float64()*5).Round(2)
	return &types.Order{
		Ticker:     tickers[rng.Intn(len(tickers))],
		OptionType: optionTypes[rng.Intn(len(optionTypes))],
		Action:     types.ActionSell,
		Strike:     strike,
		Expiration: time.Now().AddDate(0, 0, 7*(1+rng.Intn(6))).Format(types.ExpirationLayout),
		Premium:    premium,
		Bid:        premium.Sub(decimal.NewFromFloat(0.05)),
		Ask:        premium.Add(decimal.NewFromFloat(0.05)),
		Quantity:   1 + rng.Intn(5),
		OrderType:  "LIMIT",
		LimitPrice: premium,
	}
}

// runScenario walks one order through the wheel: save, execute, reconcile and
// either roll it forward or cancel it
func (sc *simulationClient) runScenario(ctx context.Context, rng *rand.Rand) error {
	order := randomOrder(rng)

	id, err := sc.saveOrder(ctx, order)
	if err != nil {
		return err
	}
	if _, err := sc.getOrder(ctx, id); err != nil {
		return err
	}

	switch rng.Intn(3) {
	case 0:
		return sc.cancelOrder(ctx, id)
	case 1:
		next, _ := time.Parse(types.ExpirationLayout, order.Expiration)
		_, err := sc.rollover(ctx, orders.RolloverRequest{
			Ticker:            order.Ticker,
			CurrentOptionType: string(order.OptionType),
			CurrentStrike:     order.Strike,
			CurrentExpiration: order.Expiration,
			NewStrike:         order.Strike.Sub(decimal.NewFromInt(5)),
			NewExpiration:     next.AddDate(0, 0, 7).Format(types.ExpirationLayout),
			Quantity:          order.Quantity,
			NewLimitPrice:     order.Premium,
		})
		return err
	}

	executed, err := sc.executeOrder(ctx, id)
	if err != nil {
		return err
	}
	log.Debug().
		Uint("order_id", id).
		Str("external_order_id", executed.ExternalOrderID).
		Msg("order sent to venue")

	_, err = sc.checkOrders(ctx)
	return err
}

func (sc *simulationClient) printStats() {
	fmt.Println("\nPerformance statistics:")
	fmt.Printf("%-16s %7s %7s %10s %10s %10s %10s %10s %10s\n",
		"Route", "Calls", "Failed", "Min", "Max", "Mean", "Median", "P95", "P99")

	keys := make([]string, 0, len(sc.stats))
	for k := range sc.stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rs := sc.stats[k]
		min, max, mean, median, p95, p99 := rs.calculate()
		rs.mu.Lock()
		calls, failures := len(rs.durations), rs.failures
		rs.mu.Unlock()
		fmt.Printf("%-16s %7d %7d %10s %10s %10s %10s %10s %10s\n",
			rs.name, calls, failures,
			min.Round(time.Microsecond), max.Round(time.Microsecond),
			mean.Round(time.Microsecond), median.Round(time.Microsecond),
			p95.Round(time.Microsecond), p99.Round(time.Microsecond))
	}
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "wheel API base URL")
	scenarios := flag.Int("n", 50, "number of scenarios to run")
	workers := flag.Int("workers", 5, "concurrent workers")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	sc := newSimulationClient(*addr)
	log.Info().
		Str("addr", *addr).
		Int("scenarios", *scenarios).
		Int("workers", *workers).
		Msg("starting simulation")

	jobs := make(chan int)
	var failed sync.Map
	start := time.Now()

	g, ctx := errgroup.WithContext(context.Background())
	for w := 0; w < *workers; w++ {
		rng := rand.New(rand.NewSource(*seed + int64(w)))
		g.Go(func() error {
			for n := range jobs {
				if err := sc.runScenario(ctx, rng); err != nil {
					log.Warn().Err(err).Int("scenario", n).Msg("scenario failed")
					failed.Store(n, err)
				}
			}
			return nil
		})
	}

	for n := 0; n < *scenarios; n++ {
		jobs <- n
	}
	close(jobs)
	g.Wait()

	failures := 0
	failed.Range(func(_, _ interface{}) bool {
		failures++
		return true
	})

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("failed", failures).
		Msg("simulation finished")
	sc.printStats()
}
