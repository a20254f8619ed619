package migrations

import (
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// NormalizeCanceledStatus rewrites the "cancelled" spelling found in older
// rows to the canonical "canceled".
func NormalizeCanceledStatus(db *gorm.DB) error {
	result := db.Model(&types.Order{}).
		Where("status = ?", "cancelled").
		Update("status", types.StatusCanceled)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Info().
			Str("component", "migrations").
			Int64("rows", result.RowsAffected).
			Msg("normalized canceled status spelling")
	}
	return nil
}
