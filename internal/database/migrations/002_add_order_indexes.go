package migrations

import (
	"gorm.io/gorm"
)

// AddOrderIndexes creates the indexes used by the order listing queries
func AddOrderIndexes(db *gorm.DB) error {
	indexes := []string{
		// Pending orders filtered by status and executed flag
		`CREATE INDEX IF NOT EXISTS idx_orders_status_executed
		 ON orders(status, executed)`,

		// Newest first listing
		`CREATE INDEX IF NOT EXISTS idx_orders_timestamp_id
		 ON orders(timestamp DESC, id DESC)`,

		// Rollover pairing scans legs by ticker and option type
		`CREATE INDEX IF NOT EXISTS idx_orders_ticker_option_type
		 ON orders(ticker, option_type)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
