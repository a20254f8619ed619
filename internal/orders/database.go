package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-sqlite3"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultListLimit bounds List when the caller gives no limit
const DefaultListLimit = 50

// busyRetries is the number of attempts made when SQLite reports the
// database as busy or locked.
const busyRetries = 5

// Filter narrows List. Every field is optional and the set fields are ANDed.
type Filter struct {
	Statuses   []types.OrderStatus
	Executed   *bool
	Ticker     string
	IsRollover *bool
	Limit      int
}

// Database is the order store. Every write is committed before the call returns.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Create validates the order, stamps it as a new pending order and inserts it
func (d *Database) Create(ctx context.Context, order *types.Order) (uint, error) {
	if err := prepareNew(order, time.Now().UTC()); err != nil {
		return 0, err
	}

	err := d.retryBusy(ctx, func() error {
		return d.db.WithContext(ctx).Create(order).Error
	})
	if err != nil {
		return 0, storageError("create order", err)
	}
	metrics.OrdersCreated.Inc()
	return order.ID, nil
}

// CreatePair inserts both legs of a rollover in a single transaction
func (d *Database) CreatePair(ctx context.Context, buy, sell *types.Order) error {
	now := time.Now().UTC()
	if err := prepareNew(buy, now); err != nil {
		return fmt.Errorf("buy leg: %w", err)
	}
	if err := prepareNew(sell, now); err != nil {
		return fmt.Errorf("sell leg: %w", err)
	}

	err := d.retryBusy(ctx, func() error {
		buy.ID, sell.ID = 0, 0
		return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(buy).Error; err != nil {
				return fmt.Errorf("buy leg: %w", err)
			}
			if err := tx.Create(sell).Error; err != nil {
				return fmt.Errorf("sell leg: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		buy.ID, sell.ID = 0, 0
		return storageError("create rollover", err)
	}
	metrics.OrdersCreated.Add(2)
	return nil
}

// Get returns the order with the given id or types.ErrNotFound
func (d *Database) Get(ctx context.Context, id uint) (*types.Order, error) {
	var order types.Order
	if err := d.db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", types.ErrNotFound, id)
		}
		return nil, storageError("get order", err)
	}
	return &order, nil
}

// List returns the orders matching the filter, newest first
func (d *Database) List(ctx context.Context, f Filter) ([]types.Order, error) {
	query := d.db.WithContext(ctx).Model(&types.Order{})

	switch len(f.Statuses) {
	case 0:
	case 1:
		query = query.Where("status = ?", f.Statuses[0])
	default:
		query = query.Where("status IN ?", f.Statuses)
	}
	if f.Executed != nil {
		query = query.Where("executed = ?", *f.Executed)
	}
	if f.Ticker != "" {
		query = query.Where("ticker = ?", f.Ticker)
	}
	if f.IsRollover != nil {
		query = query.Where("is_rollover = ?", *f.IsRollover)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var orders []types.Order
	if err := query.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, storageError("list orders", err)
	}
	return orders, nil
}

// ListPending returns open orders (pending or processing) when executed is
// false, and orders carrying the executed flag otherwise.
func (d *Database) ListPending(ctx context.Context, executed bool, isRollover *bool, limit int) ([]types.Order, error) {
	if executed {
		return d.List(ctx, Filter{Executed: &executed, IsRollover: isRollover, Limit: limit})
	}
	return d.List(ctx, Filter{
		Statuses:   []types.OrderStatus{types.StatusPending, types.StatusProcessing},
		IsRollover: isRollover,
		Limit:      limit,
	})
}

// Delete hard-deletes an order. It reports false when no row had that id.
func (d *Database) Delete(ctx context.Context, id uint) (bool, error) {
	var affected int64
	err := d.retryBusy(ctx, func() error {
		result := d.db.WithContext(ctx).Delete(&types.Order{}, id)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, storageError("delete order", err)
	}
	return affected > 0, nil
}

// UpdateQuantity changes the quantity of a pending order and refreshes its
// timestamp. It reports false when the order is missing, not pending, or the
// quantity is not positive.
func (d *Database) UpdateQuantity(ctx context.Context, id uint, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, nil
	}

	var affected int64
	err := d.retryBusy(ctx, func() error {
		result := d.db.WithContext(ctx).Model(&types.Order{}).
			Where("id = ? AND status = ?", id, types.StatusPending).
			Updates(map[string]interface{}{
				"quantity":  quantity,
				"timestamp": time.Now().UTC(),
			})
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, storageError("update quantity", err)
	}
	return affected > 0, nil
}

// MarkRollovers runs the pairing heuristic over every order not yet flagged
// and flags both legs of each pair found. It returns the number of pairs.
func (d *Database) MarkRollovers(ctx context.Context, window time.Duration) (int, error) {
	var candidates []types.Order
	err := d.db.WithContext(ctx).
		Where("is_rollover = ? AND action IN ?", false, []types.Action{types.ActionBuy, types.ActionSell}).
		Order("timestamp ASC").Order("id ASC").
		Find(&candidates).Error
	if err != nil {
		return 0, storageError("load rollover candidates", err)
	}

	pairs := PairRollovers(candidates, window)
	if len(pairs) == 0 {
		return 0, nil
	}

	seen := make(map[uint]bool)
	var ids []uint
	for _, p := range pairs {
		for _, id := range []uint{p.BuyID, p.SellID} {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	err = d.retryBusy(ctx, func() error {
		return d.db.WithContext(ctx).Model(&types.Order{}).
			Where("id IN ?", ids).
			Update("is_rollover", true).Error
	})
	if err != nil {
		return 0, storageError("mark rollovers", err)
	}
	metrics.RolloversPaired.Add(float64(len(pairs)))
	return len(pairs), nil
}

// transaction runs fn in a transaction, retrying while SQLite is busy
func (d *Database) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.retryBusy(ctx, func() error {
		return d.db.WithContext(ctx).Transaction(fn)
	})
}

// retryBusy retries op with exponential backoff while SQLite reports
// SQLITE_BUSY or SQLITE_LOCKED. A busy statement has not been applied, so
// retrying it cannot duplicate a write. Any other error is returned at once.
func (d *Database) retryBusy(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && !isBusy(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(busyRetries),
	)
	return err
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// storageError wraps err in types.ErrStorage unless it already belongs to
// the error taxonomy.
func storageError(op string, err error) error {
	for _, known := range []error{types.ErrValidation, types.ErrNotFound, types.ErrConflict, types.ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", types.ErrStorage, op, err)
}

// prepareNew validates a new order and applies the creation defaults
func prepareNew(order *types.Order, now time.Time) error {
	var missing []string
	if strings.TrimSpace(order.Ticker) == "" {
		missing = append(missing, "ticker")
	}
	if order.OptionType == "" {
		missing = append(missing, "option_type")
	}
	if order.Strike.IsZero() {
		missing = append(missing, "strike")
	}
	if order.Expiration == "" {
		missing = append(missing, "expiration")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", types.ErrValidation, strings.Join(missing, ", "))
	}

	optionType, ok := types.ParseOptionType(string(order.OptionType))
	if !ok {
		return fmt.Errorf("%w: invalid option_type %q, must be CALL or PUT", types.ErrValidation, order.OptionType)
	}
	order.OptionType = optionType

	if order.Action == "" {
		order.Action = types.ActionSell
	}
	action, ok := types.ParseAction(string(order.Action))
	if !ok {
		return fmt.Errorf("%w: invalid action %q, must be BUY or SELL", types.ErrValidation, order.Action)
	}
	order.Action = action

	if order.Strike.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: strike must be positive, got %s", types.ErrValidation, order.Strike)
	}

	expiration := NormalizeExpiration(order.Expiration)
	if _, err := time.Parse(types.ExpirationLayout, expiration); err != nil {
		return fmt.Errorf("%w: invalid expiration %q, expected YYYYMMDD", types.ErrValidation, order.Expiration)
	}
	order.Expiration = expiration

	if order.Quantity == 0 {
		order.Quantity = 1
	}
	if order.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", types.ErrValidation, order.Quantity)
	}

	order.Ticker = strings.ToUpper(strings.TrimSpace(order.Ticker))
	order.ID = 0
	order.Timestamp = now
	order.Status = types.StatusPending
	order.Executed = false
	return nil
}

// NormalizeExpiration turns "2024-05-10", "2024/05/10" or an RFC 3339
// timestamp into "20240510". Other input is returned without separators.
func NormalizeExpiration(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	return strings.NewReplacer("-", "", "/", "", ".", "").Replace(s)
}
