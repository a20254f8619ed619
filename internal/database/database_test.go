package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// legacyOrder is the orders table as it was before rollovers were tracked
type legacyOrder struct {
	ID         uint              `gorm:"primaryKey;autoIncrement"`
	Timestamp  time.Time         `gorm:"not null;index"`
	Ticker     string            `gorm:"not null;index"`
	OptionType types.OptionType  `gorm:"not null"`
	Action     types.Action      `gorm:"not null"`
	Strike     decimal.Decimal   `gorm:"type:numeric;not null"`
	Expiration string            `gorm:"not null"`
	Quantity   int               `gorm:"default:1"`
	Status     types.OrderStatus `gorm:"default:pending;index"`
	Executed   bool              `gorm:"default:false"`
}

func (legacyOrder) TableName() string {
	return "orders"
}

func seedLegacy(t *testing.T, path string, rows []legacyOrder) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open legacy db: %v", err)
	}
	if err := db.AutoMigrate(&legacyOrder{}); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("seed legacy rows: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("legacy sql db: %v", err)
	}
	sqlDB.Close()
}

func TestMigrationPairsLegacyRollovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.db")
	t0 := time.Date(2024, 5, 6, 14, 30, 0, 0, time.UTC)
	strike := decimal.NewFromInt(150)

	seedLegacy(t, path, []legacyOrder{
		{Timestamp: t0, Ticker: "AAPL", OptionType: types.OptionTypePut, Action: types.ActionBuy, Strike: strike, Expiration: "20240510", Status: types.StatusCompleted, Executed: true},
		{Timestamp: t0.Add(90 * time.Second), Ticker: "AAPL", OptionType: types.OptionTypePut, Action: types.ActionSell, Strike: strike, Expiration: "20240517", Status: types.StatusCompleted, Executed: true},
		{Timestamp: t0, Ticker: "MSFT", OptionType: types.OptionTypeCall, Action: types.ActionBuy, Strike: strike, Expiration: "20240510", Status: types.StatusPending},
		{Timestamp: t0.Add(3 * time.Minute), Ticker: "MSFT", OptionType: types.OptionTypeCall, Action: types.ActionSell, Strike: strike, Expiration: "20240517", Status: types.StatusPending},
		{Timestamp: t0, Ticker: "TSLA", OptionType: types.OptionTypePut, Action: types.ActionSell, Strike: strike, Expiration: "20240510", Status: "cancelled", Executed: true},
	})

	db, err := NewDatabase(path)
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}

	var orders []types.Order
	if err := db.Order("id").Find(&orders).Error; err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(orders) != 5 {
		t.Fatalf("got %d orders, want 5", len(orders))
	}

	wantRollover := []bool{true, true, false, false, false}
	for i, o := range orders {
		if o.IsRollover != wantRollover[i] {
			t.Errorf("order %d (%s %s) is_rollover = %v, want %v", o.ID, o.Ticker, o.Action, o.IsRollover, wantRollover[i])
		}
	}
	if orders[4].Status != types.StatusCanceled {
		t.Errorf("legacy status = %q, want %q", orders[4].Status, types.StatusCanceled)
	}

	sqlDB, _ := db.DB()
	sqlDB.Close()

	// Reopening finds the column and leaves the flags alone
	db, err = NewDatabase(path)
	if err != nil {
		t.Fatalf("reopen NewDatabase() error = %v", err)
	}
	var flagged int64
	if err := db.Model(&types.Order{}).Where("is_rollover = ?", true).Count(&flagged).Error; err != nil {
		t.Fatalf("count rollovers: %v", err)
	}
	if flagged != 2 {
		t.Errorf("flagged = %d after reopen, want 2", flagged)
	}
}

func TestNewDatabaseFresh(t *testing.T) {
	db, err := NewDatabase(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}

	if !db.Migrator().HasColumn(&types.Order{}, "is_rollover") {
		t.Error("expected is_rollover column on a fresh database")
	}
	if !db.Migrator().HasIndex(&types.Order{}, "idx_orders_status_executed") {
		t.Error("expected idx_orders_status_executed index")
	}
}
