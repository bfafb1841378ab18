package event

import (
	"context"
	"log/slog"
)

// Log writes every event from ch to logger until ctx is done or ch is closed.
// Payloads are not logged; they may carry account fields.
func Log(ctx context.Context, logger *slog.Logger, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			logger.Info("auth event", "event_id", e.ID, "type", string(e.Type), "actor", e.ActorID, "at", e.Timestamp)
		}
	}
}
