package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/venue"
	"github.com/shopspring/decimal"
)

// stubVenue accepts every order and fails every cancel
type stubVenue struct {
	cancels int
}

func (v *stubVenue) Place(ctx context.Context, order *types.Order) (*venue.Ticket, error) {
	return &venue.Ticket{ExternalID: "STUB-1", Status: venue.StatusSubmitted, Remaining: order.Quantity}, nil
}

func (v *stubVenue) Status(ctx context.Context, externalID string) (*venue.Ticket, error) {
	return nil, errors.New("status unavailable")
}

func (v *stubVenue) Cancel(ctx context.Context, externalID string) error {
	v.cancels++
	return errors.New("connection refused")
}

func (v *stubVenue) IsMock() bool { return false }

func newTestService(t *testing.T, v venue.Venue) *Service {
	t.Helper()
	return NewService(newTestDB(t), v)
}

func paperVenue() *venue.PaperVenue {
	return venue.NewPaperVenue(venue.PaperConfig{SuccessRate: 1, Seed: 1})
}

func TestServiceDeleteAndQuantityRules(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	id, err := s.Submit(ctx, newOrder("AAPL", types.OptionTypePut))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if err := s.UpdateQuantity(ctx, id, 0); !errors.Is(err, types.ErrValidation) {
		t.Errorf("UpdateQuantity(0) error = %v, want ErrValidation", err)
	}
	if err := s.UpdateQuantity(ctx, 999, 2); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("UpdateQuantity(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.UpdateQuantity(ctx, id, 4); err != nil {
		t.Fatalf("UpdateQuantity() error = %v", err)
	}

	if _, err := s.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if err := s.UpdateQuantity(ctx, id, 2); !errors.Is(err, types.ErrConflict) {
		t.Errorf("UpdateQuantity(canceled) error = %v, want ErrConflict", err)
	}

	// Cancel marks the order executed, which protects it from deletion
	if err := s.Delete(ctx, id); !errors.Is(err, types.ErrConflict) {
		t.Errorf("Delete(executed) error = %v, want ErrConflict", err)
	}

	other, _ := s.Submit(ctx, newOrder("MSFT", types.OptionTypeCall))
	if err := s.Delete(ctx, other); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, other); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
}

func TestServiceExecuteAndCheck(t *testing.T) {
	s := newTestService(t, paperVenue())
	ctx := context.Background()

	order := newOrder("AAPL", types.OptionTypePut)
	order.Quantity = 2
	order.LimitPrice = decimal.RequireFromString("1.50")
	id, err := s.Submit(ctx, order)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	executed, err := s.Execute(ctx, id)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if executed.Status != types.StatusProcessing || executed.Executed {
		t.Errorf("status/executed = %s/%v, want processing/false", executed.Status, executed.Executed)
	}
	if executed.ExternalOrderID == "" || !executed.IsMock || executed.Remaining != 2 {
		t.Errorf("execution fields = %+v", executed)
	}

	if _, err := s.Execute(ctx, id); !errors.Is(err, types.ErrConflict) {
		t.Errorf("second Execute() error = %v, want ErrConflict", err)
	}

	result, err := s.CheckOrders(ctx)
	if err != nil {
		t.Fatalf("CheckOrders() error = %v", err)
	}
	if result.Checked != 1 || len(result.Completed) != 1 || result.Completed[0] != id {
		t.Errorf("CheckOrders() = %+v, want order %d completed", result, id)
	}

	got, _ := s.Get(ctx, id)
	if got.Status != types.StatusCompleted || !got.Executed {
		t.Errorf("status/executed = %s/%v, want completed/true", got.Status, got.Executed)
	}
	if got.Filled != 2 || got.Remaining != 0 || got.AvgFillPrice.IsZero() {
		t.Errorf("fill = %d/%d@%s", got.Filled, got.Remaining, got.AvgFillPrice)
	}

	if _, err := s.Cancel(ctx, id); !errors.Is(err, types.ErrConflict) {
		t.Errorf("Cancel(completed) error = %v, want ErrConflict", err)
	}
}

func TestServiceCheckOrdersContinuesPastFailures(t *testing.T) {
	s := newTestService(t, &stubVenue{})
	ctx := context.Background()

	for _, ticker := range []string{"AAPL", "MSFT"} {
		id, _ := s.Submit(ctx, newOrder(ticker, types.OptionTypePut))
		if _, err := s.Execute(ctx, id); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	result, err := s.CheckOrders(ctx)
	if err != nil {
		t.Fatalf("CheckOrders() error = %v", err)
	}
	if result.Checked != 2 || len(result.Errors) != 2 {
		t.Errorf("CheckOrders() = %+v, want two reported failures", result)
	}
}

func TestServiceCancelWhenVenueFails(t *testing.T) {
	v := &stubVenue{}
	s := newTestService(t, v)
	ctx := context.Background()

	id, _ := s.Submit(ctx, newOrder("AAPL", types.OptionTypePut))
	if _, err := s.Execute(ctx, id); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	result, err := s.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if v.cancels != 1 {
		t.Errorf("venue cancels = %d, want 1", v.cancels)
	}
	if result.VenueCanceled {
		t.Error("VenueCanceled = true, want false")
	}

	got, _ := s.Get(ctx, id)
	if got.Status != types.StatusCanceled || !got.Executed {
		t.Errorf("status/executed = %s/%v, want canceled/true", got.Status, got.Executed)
	}
}

// racingVenue runs onPlace while the order is at the venue
type racingVenue struct {
	*stubVenue
	onPlace func()
}

func (v *racingVenue) Place(ctx context.Context, order *types.Order) (*venue.Ticket, error) {
	v.onPlace()
	return v.stubVenue.Place(ctx, order)
}

func TestServiceExecuteCancelsTicketWhenLedgerMovedOn(t *testing.T) {
	v := &racingVenue{stubVenue: &stubVenue{}}
	s := newTestService(t, v)
	ctx := context.Background()

	id, _ := s.Submit(ctx, newOrder("AAPL", types.OptionTypePut))
	v.onPlace = func() {
		if _, err := s.Cancel(ctx, id); err != nil {
			t.Errorf("Cancel() error = %v", err)
		}
	}

	if _, err := s.Execute(ctx, id); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("Execute() error = %v, want ErrConflict", err)
	}
	if v.cancels != 1 {
		t.Errorf("venue cancels = %d, want the placed ticket canceled", v.cancels)
	}

	got, _ := s.Get(ctx, id)
	if got.Status != types.StatusCanceled || got.ExternalOrderID != "" {
		t.Errorf("order = %s/%q, want canceled without a ticket", got.Status, got.ExternalOrderID)
	}
}

func TestServiceCreateRollover(t *testing.T) {
	s := newTestService(t, nil)
	ctx := context.Background()

	req := RolloverRequest{
		Ticker:            "AAPL",
		CurrentOptionType: "PUT",
		CurrentStrike:     decimal.NewFromInt(150),
		CurrentExpiration: "20240510",
		NewStrike:         decimal.NewFromInt(145),
		NewExpiration:     "2024-05-17",
		Quantity:          2,
		CurrentLimitPrice: decimal.RequireFromString("35"),
		NewLimitPrice:     decimal.RequireFromString("0.5"),
	}

	result, err := s.CreateRollover(ctx, req)
	if err != nil {
		t.Fatalf("CreateRollover() error = %v", err)
	}

	buy, _ := s.Get(ctx, result.BuyOrderID)
	sell, _ := s.Get(ctx, result.SellOrderID)

	if buy.Action != types.ActionBuy || buy.OrderType != "MARKET" || !buy.IsRollover {
		t.Errorf("buy leg = %s/%s/rollover=%v", buy.Action, buy.OrderType, buy.IsRollover)
	}
	if !buy.Strike.Equal(decimal.NewFromInt(150)) || buy.Expiration != "20240510" {
		t.Errorf("buy leg strike/expiration = %s/%s", buy.Strike, buy.Expiration)
	}
	if !buy.LimitPrice.Equal(decimal.NewFromInt(35)) {
		t.Errorf("buy limit = %s, want 35", buy.LimitPrice)
	}

	if sell.Action != types.ActionSell || sell.OrderType != "LIMIT" || !sell.IsRollover {
		t.Errorf("sell leg = %s/%s/rollover=%v", sell.Action, sell.OrderType, sell.IsRollover)
	}
	if !sell.Strike.Equal(decimal.NewFromInt(145)) || sell.Expiration != "20240517" {
		t.Errorf("sell leg strike/expiration = %s/%s", sell.Strike, sell.Expiration)
	}
	if !sell.LimitPrice.Equal(decimal.NewFromInt(50)) {
		t.Errorf("sell limit = %s, want 50 (per contract)", sell.LimitPrice)
	}
	if buy.Quantity != 2 || sell.Quantity != 2 {
		t.Errorf("quantities = %d/%d, want 2/2", buy.Quantity, sell.Quantity)
	}

	req.NewStrike = decimal.Zero
	if _, err := s.CreateRollover(ctx, req); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing new_strike error = %v, want ErrValidation", err)
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewGinHandlers(s)

	router := gin.New()
	api := router.Group("/api/options")
	api.POST("/order", h.SaveOrderHandler())
	api.GET("/pending-orders", h.PendingOrdersHandler())
	api.GET("/order/:id", h.GetOrderHandler())
	api.DELETE("/order/:id", h.DeleteOrderHandler())
	api.PUT("/order/:id/quantity", h.UpdateQuantityHandler())
	api.POST("/execute/:id", h.ExecuteOrderHandler())
	api.POST("/cancel/:id", h.CancelOrderHandler())
	api.POST("/check-orders", h.CheckOrdersHandler())
	api.POST("/rollover", h.RolloverHandler())
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
	}
	return w, env
}

func TestHandlers(t *testing.T) {
	router := newTestRouter(newTestService(t, paperVenue()))

	w, env := do(t, router, http.MethodPost, "/api/options/order",
		`{"ticker":"AAPL","option_type":"PUT","strike":150,"expiration":"20240510","premium":1.25}`)
	if w.Code != http.StatusCreated || !env.Success {
		t.Fatalf("POST /order = %d %s", w.Code, w.Body.String())
	}
	var created struct {
		OrderID uint `json:"order_id"`
	}
	json.Unmarshal(env.Data, &created)
	if created.OrderID == 0 {
		t.Fatalf("POST /order returned no id: %s", w.Body.String())
	}

	w, env = do(t, router, http.MethodPost, "/api/options/order", `{"ticker":"AAPL","option_type":"PUT"}`)
	if w.Code != http.StatusBadRequest || env.Error == nil {
		t.Errorf("POST /order missing fields = %d, want 400", w.Code)
	}

	w, env = do(t, router, http.MethodGet, "/api/options/pending-orders", "")
	var pending struct {
		Orders []types.Order `json:"orders"`
	}
	json.Unmarshal(env.Data, &pending)
	if w.Code != http.StatusOK || len(pending.Orders) != 1 {
		t.Errorf("GET /pending-orders = %d with %d orders", w.Code, len(pending.Orders))
	}

	w, _ = do(t, router, http.MethodPut, "/api/options/order/1/quantity", `{"quantity":0}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("PUT quantity 0 = %d, want 400", w.Code)
	}
	w, _ = do(t, router, http.MethodPut, "/api/options/order/1/quantity", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("PUT quantity missing = %d, want 400", w.Code)
	}
	w, _ = do(t, router, http.MethodPut, "/api/options/order/99/quantity", `{"quantity":3}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("PUT quantity unknown order = %d, want 404", w.Code)
	}
	w, _ = do(t, router, http.MethodPut, "/api/options/order/1/quantity", `{"quantity":3}`)
	if w.Code != http.StatusOK {
		t.Errorf("PUT quantity = %d, want 200", w.Code)
	}

	w, _ = do(t, router, http.MethodGet, "/api/options/order/abc", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("GET /order/abc = %d, want 400", w.Code)
	}

	w, _ = do(t, router, http.MethodPost, "/api/options/execute/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("POST /execute/1 = %d %s", w.Code, w.Body.String())
	}
	w, _ = do(t, router, http.MethodPut, "/api/options/order/1/quantity", `{"quantity":5}`)
	if w.Code != http.StatusConflict {
		t.Errorf("PUT quantity on processing order = %d, want 409", w.Code)
	}

	w, _ = do(t, router, http.MethodPost, "/api/options/check-orders", "")
	if w.Code != http.StatusOK {
		t.Errorf("POST /check-orders = %d", w.Code)
	}

	w, env = do(t, router, http.MethodGet, "/api/options/order/1", "")
	var order types.Order
	json.Unmarshal(env.Data, &order)
	if w.Code != http.StatusOK || order.Status != types.StatusCompleted {
		t.Errorf("GET /order/1 = %d status %s, want completed", w.Code, order.Status)
	}

	w, _ = do(t, router, http.MethodDelete, "/api/options/order/1", "")
	if w.Code != http.StatusConflict {
		t.Errorf("DELETE executed order = %d, want 409", w.Code)
	}
	w, _ = do(t, router, http.MethodDelete, "/api/options/order/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("DELETE unknown order = %d, want 404", w.Code)
	}

	w, env = do(t, router, http.MethodPost, "/api/options/rollover",
		`{"ticker":"AAPL","current_option_type":"PUT","current_strike":150,"current_expiration":"20240510","new_strike":145,"new_expiration":"20240517","quantity":1,"new_limit_price":0.45}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /rollover = %d %s", w.Code, w.Body.String())
	}

	w, env = do(t, router, http.MethodGet, "/api/options/pending-orders?isRollover=true", "")
	pending.Orders = nil
	json.Unmarshal(env.Data, &pending)
	if len(pending.Orders) != 2 {
		t.Errorf("GET /pending-orders?isRollover=true returned %d orders, want 2", len(pending.Orders))
	}

	w, _ = do(t, router, http.MethodPost, "/api/options/cancel/99", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("POST /cancel/99 = %d, want 404", w.Code)
	}
}
