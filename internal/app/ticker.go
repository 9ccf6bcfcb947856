package app

import (
	"context"
)

// Run drives the advancement loop until the context ends: every tick it
// snapshots which sessions have an expired question, then performs the
// review transitions with no table lock held across the broadcasts.
func (e *Engine) Run(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.log.Info().Dur("interval", e.cfg.TickInterval).Msg("advancement loop started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("advancement loop stopped")
			return
		case <-ticker.Chan():
			e.SweepExpired(ctx)
		}
	}
}

// SweepExpired runs one advancement pass. A session that disappears
// between the scan and its transition is skipped, not an error.
func (e *Engine) SweepExpired(ctx context.Context) {
	for _, code := range e.sessions.ExpiredQuestionCodes(e.clock.Now()) {
		if err := e.FinishQuestion(ctx, code); err != nil {
			e.log.Error().Err(err).Str("game_code", code).Msg("finish expired question")
		}
	}
}
