package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/punkice3407/AllYouNeedIsWheel/internal/metrics"
	"github.com/punkice3407/AllYouNeedIsWheel/internal/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// transitions lists the statuses reachable from each non-terminal status.
// Self-transitions refresh execution details without changing the state.
var transitions = map[types.OrderStatus][]types.OrderStatus{
	types.StatusPending:    {types.StatusPending, types.StatusProcessing, types.StatusCanceled},
	types.StatusProcessing: {types.StatusProcessing, types.StatusCompleted, types.StatusCanceled},
}

// CanTransition reports whether an order may move from one status to another
func CanTransition(from, to types.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine applies status transitions to stored orders
type StateMachine struct {
	db     *Database
	logger zerolog.Logger
}

func NewStateMachine(db *Database) *StateMachine {
	return &StateMachine{
		db:     db,
		logger: log.With().Str("component", "order_state").Logger(),
	}
}

// UpdateStatus moves an order to status, sets the executed flag and merges the
// execution fields present in patch. The status check and the write share one
// transaction so a concurrent transition cannot slip in between.
func (m *StateMachine) UpdateStatus(ctx context.Context, id uint, status types.OrderStatus, executed bool, patch *types.ExecutionPatch) (bool, error) {
	to, ok := types.ParseOrderStatus(string(status))
	if !ok {
		return false, fmt.Errorf("%w: invalid status %q", types.ErrValidation, status)
	}

	var (
		from     types.OrderStatus
		affected int64
	)
	err := m.db.transaction(ctx, func(tx *gorm.DB) error {
		var current types.Order
		if err := tx.Select("id", "status").First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: order %d", types.ErrNotFound, id)
			}
			return err
		}

		// Rows written before the spelling was fixed may still say "cancelled"
		from = current.Status
		if parsed, ok := types.ParseOrderStatus(string(from)); ok {
			from = parsed
		}
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: order %d cannot move from %s to %s", types.ErrConflict, id, from, to)
		}

		cols := patch.Columns()
		cols["status"] = to
		cols["executed"] = executed

		result := tx.Model(&types.Order{}).Where("id = ?", id).Updates(cols)
		affected = result.RowsAffected
		return result.Error
	})
	if err != nil {
		return false, storageError("update status", err)
	}

	event := m.logger.Info().
		Uint("order_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Bool("executed", executed)
	if patch != nil && patch.Note != "" {
		event = event.Str("note", patch.Note)
	}
	event.Msg("order status updated")

	if from != to {
		metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	}
	return affected > 0, nil
}
