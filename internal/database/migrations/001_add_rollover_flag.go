package migrations

import (
	"context"
	"fmt"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/orders"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AddRolloverFlag adds the is_rollover column to an existing orders table and
// flags the rollover pairs already present in its history. It does nothing
// when the table is new or already has the column, so the pairing runs once.
func AddRolloverFlag(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&types.Order{}) || m.HasColumn(&types.Order{}, "is_rollover") {
		return nil
	}

	if err := m.AddColumn(&types.Order{}, "IsRollover"); err != nil {
		return fmt.Errorf("add is_rollover column: %w", err)
	}

	pairs, err := orders.NewDatabase(db).MarkRollovers(context.Background(), orders.RolloverWindow)
	if err != nil {
		return fmt.Errorf("pair historical rollovers: %w", err)
	}

	log.Info().
		Str("component", "migrations").
		Int("pairs", pairs).
		Msg("added is_rollover column and flagged historical rollovers")
	return nil
}
