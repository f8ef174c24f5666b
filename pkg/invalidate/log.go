package invalidate

import (
	"context"

	"github.com/hashicorp/go-hclog"
)

// LogBackend records every invalidation in the log for auditing and local
// development.
type LogBackend struct {
	logger hclog.Logger
}

// NewLogBackend creates a new log backend.
func NewLogBackend(logger hclog.Logger) *LogBackend {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogBackend{logger: logger.Named("audit")}
}

func (b *LogBackend) Name() string {
	return "log"
}

func (b *LogBackend) Invalidate(ctx context.Context, ev Event) error {
	b.logger.Info("invalidate",
		"event_id", ev.ID,
		"collection", ev.Collection,
		"reason", ev.Reason,
		"ids", ev.IDs,
		"timestamp", ev.Timestamp,
	)
	return nil
}
