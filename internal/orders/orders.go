package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/venue"
	"github.com/punkice3407/AllYouNeedIsWheel/pkg/response"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultCancelTimeout bounds the venue call made while canceling an order
const DefaultCancelTimeout = 10 * time.Second

const checkBatchLimit = 1000

// Service handles the order ledger and its execution lifecycle
type Service struct {
	db            *Database
	states        *StateMachine
	venue         venue.Venue
	cancelTimeout time.Duration
	logger        zerolog.Logger
}

// NewService creates an order service. v may be nil, in which case orders can
// be recorded and canceled but not executed.
func NewService(gormDB *gorm.DB, v venue.Venue) *Service {
	db := NewDatabase(gormDB)
	return &Service{
		db:            db,
		states:        NewStateMachine(db),
		venue:         v,
		cancelTimeout: DefaultCancelTimeout,
		logger:        log.With().Str("component", "orders").Logger(),
	}
}

// DB exposes the order store for maintenance tasks
func (s *Service) DB() *Database {
	return s.db
}

// Submit records a new pending order and returns its id
func (s *Service) Submit(ctx context.Context, order *types.Order) (uint, error) {
	id, err := s.db.Create(ctx, order)
	if err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint("order_id", id).
		Str("ticker", order.Ticker).
		Str("option_type", string(order.OptionType)).
		Str("action", string(order.Action)).
		Str("strike", order.Strike.String()).
		Str("expiration", order.Expiration).
		Int("quantity", order.Quantity).
		Msg("order saved")
	return id, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*types.Order, error) {
	return s.db.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]types.Order, error) {
	return s.db.List(ctx, f)
}

// ListPending returns open orders, or executed ones when executed is true
func (s *Service) ListPending(ctx context.Context, executed bool, isRollover *bool) ([]types.Order, error) {
	return s.db.ListPending(ctx, executed, isRollover, DefaultListLimit)
}

// Delete removes an order that has not been executed
func (s *Service) Delete(ctx context.Context, id uint) error {
	order, err := s.db.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Executed {
		return fmt.Errorf("%w: order %d has been executed and cannot be deleted", types.ErrConflict, id)
	}

	deleted, err := s.db.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: order %d", types.ErrNotFound, id)
	}

	s.logger.Info().Uint("order_id", id).Msg("order deleted")
	return nil
}

// UpdateQuantity changes the quantity of a pending order
func (s *Service) UpdateQuantity(ctx context.Context, id uint, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than 0", types.ErrValidation)
	}

	order, err := s.db.Get(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != types.StatusPending {
		return fmt.Errorf("%w: cannot update quantity for order %d with status %s", types.ErrConflict, id, order.Status)
	}

	updated, err := s.db.UpdateQuantity(ctx, id, quantity)
	if err != nil {
		return err
	}
	if !updated {
		// The order left pending between the read and the write
		return fmt.Errorf("%w: order %d is no longer pending", types.ErrConflict, id)
	}

	s.logger.Info().Uint("order_id", id).Int("quantity", quantity).Msg("order quantity updated")
	return nil
}

// UpdateStatus applies a status transition, see StateMachine.UpdateStatus
func (s *Service) UpdateStatus(ctx context.Context, id uint, status types.OrderStatus, executed bool, patch *types.ExecutionPatch) (bool, error) {
	return s.states.UpdateStatus(ctx, id, status, executed, patch)
}

// Cancel marks an order canceled. An order already working at the venue is
// canceled there first; a failed venue cancel is noted but does not block the
// local transition.
func (s *Service) Cancel(ctx context.Context, id uint) (*CancelResult, error) {
	order, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order %d is already %s", types.ErrConflict, id, order.Status)
	}

	result := &CancelResult{OrderID: id, Status: types.StatusCanceled, Note: "order canceled"}
	patch := &types.ExecutionPatch{}

	if order.Status == types.StatusProcessing && order.ExternalOrderID != "" && s.venue != nil {
		cctx, cancel := context.WithTimeout(ctx, s.cancelTimeout)
		err := s.venue.Cancel(cctx, order.ExternalOrderID)
		cancel()

		if err != nil {
			s.logger.Warn().
				Err(err).
				Uint("order_id", id).
				Str("external_order_id", order.ExternalOrderID).
				Msg("venue cancel failed, canceling locally")
			result.Note = fmt.Sprintf("order canceled locally, venue cancel failed: %v", err)
		} else {
			status := venue.StatusCancelled
			patch.ExternalStatus = &status
			result.VenueCanceled = true
			result.Note = "order canceled at venue"
		}
	}
	patch.Note = result.Note

	if _, err := s.states.UpdateStatus(ctx, id, types.StatusCanceled, true, patch); err != nil {
		return nil, err
	}
	return result, nil
}

// Execute sends a pending order to the venue and moves it to processing
func (s *Service) Execute(ctx context.Context, id uint) (*types.Order, error) {
	if s.venue == nil {
		return nil, fmt.Errorf("%w: no execution venue configured", types.ErrVenueUnavailable)
	}

	order, err := s.db.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status != types.StatusPending {
		return nil, fmt.Errorf("%w: order %d is %s, only pending orders can be executed", types.ErrConflict, id, order.Status)
	}

	ticket, err := s.venue.Place(ctx, order)
	if err != nil {
		if !errors.Is(err, types.ErrVenueUnavailable) {
			err = fmt.Errorf("%w: %w", types.ErrVenueUnavailable, err)
		}
		return nil, err
	}

	isMock := s.venue.IsMock()
	patch := &types.ExecutionPatch{
		ExternalOrderID: &ticket.ExternalID,
		ExternalStatus:  &ticket.Status,
		Filled:          &ticket.Filled,
		Remaining:       &ticket.Remaining,
		IsMock:          &isMock,
		Note:            "sent to venue",
	}
	if _, err := s.states.UpdateStatus(ctx, id, types.StatusProcessing, false, patch); err != nil {
		// the ledger no longer tracks the ticket, so pull it from the venue
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cancelTimeout)
		cerr := s.venue.Cancel(cctx, ticket.ExternalID)
		cancel()
		if cerr != nil {
			s.logger.Error().
				Err(cerr).
				Uint("order_id", id).
				Str("external_order_id", ticket.ExternalID).
				Msg("failed to cancel untracked venue ticket")
		}
		return nil, err
	}

	return s.db.Get(ctx, id)
}

// CheckOrders polls the venue for every processing order and records fills
// and cancellations. A failing order is reported and the others still run.
func (s *Service) CheckOrders(ctx context.Context) (*CheckResult, error) {
	working, err := s.db.List(ctx, Filter{
		Statuses: []types.OrderStatus{types.StatusProcessing},
		Limit:    checkBatchLimit,
	})
	if err != nil {
		return nil, err
	}

	result := &CheckResult{}
	if s.venue == nil {
		if len(working) > 0 {
			return nil, fmt.Errorf("%w: no execution venue configured", types.ErrVenueUnavailable)
		}
		return result, nil
	}

	for _, order := range working {
		if order.ExternalOrderID == "" {
			continue
		}
		result.Checked++

		status, err := s.checkOrder(ctx, &order)
		if err != nil {
			s.logger.Error().Err(err).Uint("order_id", order.ID).Msg("failed to check order")
			result.Errors = append(result.Errors, CheckError{OrderID: order.ID, Error: err.Error()})
			continue
		}

		switch status {
		case types.StatusCompleted:
			result.Completed = append(result.Completed, order.ID)
		case types.StatusCanceled:
			result.Canceled = append(result.Canceled, order.ID)
		default:
			result.Open = append(result.Open, order.ID)
		}
	}

	s.logger.Info().
		Int("checked", result.Checked).
		Int("completed", len(result.Completed)).
		Int("canceled", len(result.Canceled)).
		Int("errors", len(result.Errors)).
		Msg("order check finished")
	return result, nil
}

func (s *Service) checkOrder(ctx context.Context, order *types.Order) (types.OrderStatus, error) {
	ticket, err := s.venue.Status(ctx, order.ExternalOrderID)
	if err != nil {
		return "", err
	}

	patch := &types.ExecutionPatch{
		ExternalStatus: &ticket.Status,
		Filled:         &ticket.Filled,
		Remaining:      &ticket.Remaining,
	}
	if !ticket.AvgFillPrice.IsZero() {
		patch.AvgFillPrice = &ticket.AvgFillPrice
	}

	next, executed := types.StatusProcessing, false
	switch ticket.Status {
	case venue.StatusFilled:
		next, executed = types.StatusCompleted, true
		patch.Note = "filled at venue"
	case venue.StatusCancelled:
		next, executed = types.StatusCanceled, true
		patch.Note = "canceled at venue"
	}

	if _, err := s.states.UpdateStatus(ctx, order.ID, next, executed, patch); err != nil {
		return "", err
	}
	return next, nil
}

// CreateRollover writes the two legs of a rollover: a BUY closing the current
// option and a SELL opening the new one. Both legs are written or neither is.
func (s *Service) CreateRollover(ctx context.Context, req RolloverRequest) (*RolloverResult, error) {
	var missing []string
	if strings.TrimSpace(req.Ticker) == "" {
		missing = append(missing, "ticker")
	}
	if req.CurrentOptionType == "" {
		missing = append(missing, "current_option_type")
	}
	if req.CurrentStrike.IsZero() {
		missing = append(missing, "current_strike")
	}
	if req.CurrentExpiration == "" {
		missing = append(missing, "current_expiration")
	}
	if req.NewStrike.IsZero() {
		missing = append(missing, "new_strike")
	}
	if req.NewExpiration == "" {
		missing = append(missing, "new_expiration")
	}
	if req.Quantity == 0 {
		missing = append(missing, "quantity")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required field(s): %s", types.ErrValidation, strings.Join(missing, ", "))
	}

	buy := &types.Order{
		Ticker:     req.Ticker,
		OptionType: types.OptionType(req.CurrentOptionType),
		Strike:     req.CurrentStrike,
		Expiration: req.CurrentExpiration,
		Action:     types.ActionBuy,
		Quantity:   req.Quantity,
		OrderType:  orderTypeOr(req.CurrentOrderType, "MARKET"),
		LimitPrice: req.CurrentLimitPrice,
		Bid:        req.CurrentBid,
		Ask:        req.CurrentAsk,
		IsRollover: true,
	}
	sell := &types.Order{
		Ticker:     req.Ticker,
		OptionType: types.OptionType(req.CurrentOptionType),
		Strike:     req.NewStrike,
		Expiration: req.NewExpiration,
		Action:     types.ActionSell,
		Quantity:   req.Quantity,
		OrderType:  orderTypeOr(req.NewOrderType, "LIMIT"),
		LimitPrice: req.NewLimitPrice.Mul(decimal.NewFromInt(100)),
		Bid:        req.NewBid,
		Ask:        req.NewAsk,
		IsRollover: true,
	}

	if err := s.db.CreatePair(ctx, buy, sell); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("ticker", buy.Ticker).
		Uint("buy_order_id", buy.ID).
		Uint("sell_order_id", sell.ID).
		Msg("rollover orders created")

	return &RolloverResult{
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		Message:     "Rollover orders created successfully",
	}, nil
}

func orderTypeOr(orderType, fallback string) string {
	if orderType = strings.ToUpper(strings.TrimSpace(orderType)); orderType != "" {
		return orderType
	}
	return fallback
}

// GinHandlers contains HTTP handlers for order endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SaveOrderHandler handles POST requests that record a new order
func (h *GinHandlers) SaveOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var order types.Order
		if err := c.ShouldBindJSON(&order); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		id, err := h.service.Submit(c.Request.Context(), &order)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Created(c, gin.H{"order_id": id})
	}
}

// PendingOrdersHandler lists open orders.
// Query parameters: executed (default false), isRollover (optional)
func (h *GinHandlers) PendingOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		executed := strings.EqualFold(c.DefaultQuery("executed", "false"), "true")

		var isRollover *bool
		if v, ok := c.GetQuery("isRollover"); ok {
			flag := strings.EqualFold(v, "true")
			isRollover = &flag
		}

		orders, err := h.service.ListPending(c.Request.Context(), executed, isRollover)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		if orders == nil {
			orders = []types.Order{}
		}

		response.Success(c, gin.H{"orders": orders})
	}
}

func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		order, err := h.service.Get(c.Request.Context(), id)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) DeleteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		if err := h.service.Delete(c.Request.Context(), id); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"order_id": id,
			"message":  fmt.Sprintf("Order with ID %d deleted", id),
		})
	}
}

// UpdateQuantityHandler handles PUT requests with a body of {"quantity": n}
func (h *GinHandlers) UpdateQuantityHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		var req quantityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid quantity value")
			return
		}
		if req.Quantity == nil {
			response.BadRequest(c, "Missing quantity in request")
			return
		}

		if err := h.service.UpdateQuantity(c.Request.Context(), id, *req.Quantity); err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, gin.H{
			"order_id": id,
			"quantity": *req.Quantity,
			"message":  fmt.Sprintf("Order quantity updated to %d", *req.Quantity),
		})
	}
}

func (h *GinHandlers) ExecuteOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		order, err := h.service.Execute(c.Request.Context(), id)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}

		result, err := h.service.Cancel(c.Request.Context(), id)
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) CheckOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.CheckOrders(c.Request.Context())
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) RolloverHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RolloverRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.CreateRollover(c.Request.Context(), req)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Created(c, result)
	}
}

// orderID parses the :id path parameter, answering 400 when it is not a number
func orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.BadRequest(c, "Order ID must be a positive integer")
		return 0, false
	}
	return uint(id), true
}
