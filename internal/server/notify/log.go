package notify

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/marksync/internal/logging"
)

// LogNotifier only logs events. The server uses it when no Redis address is
// configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

func (n *LogNotifier) NotifyCreated(ctx context.Context, owner, urlID uuid.UUID) error {
	e := NewBookmarkCreated(owner, urlID)
	n.logger.Info(ctx, TypeBookmarkCreated, "event_id", e.EventID.String(), "user_uuid", e.UserID.String(), "url_uuid", e.URLID.String())
	return nil
}
