package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"riskcore/internal/profit"
	"riskcore/internal/trailing"
)

// ExecutionAdapter carries risk decisions to whatever places orders.
// The core never talks to an exchange itself; it hands instructions to
// the adapter and trusts the answer.
type ExecutionAdapter interface {
	ApplyStop(ctx context.Context, ins trailing.Instruction) error
	ApplyExit(ctx context.Context, act profit.Action) error
}

// LogAdapter is the dry-run adapter: it logs every instruction and
// reports success. Useful for shadowing a live account.
type LogAdapter struct{}

func (LogAdapter) ApplyStop(_ context.Context, ins trailing.Instruction) error {
	log.Info().
		Str("action", ins.Action).
		Int64("user", ins.UserID).
		Str("symbol", ins.Symbol).
		Float64("new_stop", ins.NewStop).
		Str("reason", ins.Reason).
		Msg("dry-run stop update")
	return nil
}

func (LogAdapter) ApplyExit(_ context.Context, act profit.Action) error {
	log.Info().
		Str("action", act.Type).
		Int64("user", act.UserID).
		Str("symbol", act.Symbol).
		Str("quantity", act.Quantity.String()).
		Str("reason", act.Reason).
		Msg("dry-run exit")
	return nil
}
