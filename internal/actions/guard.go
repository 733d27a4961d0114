package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mailgate/internal/logger"
)

// ResyncGuard remembers which messages a resync has already replayed so
// overlapping or repeated runs do not double-append ledger events.
type ResyncGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewResyncGuard(client *redis.Client, ttl time.Duration, log logger.Logger) *ResyncGuard {
	return &ResyncGuard{
		client: client,
		ttl:    ttl,
		logger: log,
	}
}

// FirstSeen claims the message for this resync run. It fails open: when
// Redis is unreachable the message is treated as unseen, trading a
// possible duplicate event for not silently dropping messages.
func (g *ResyncGuard) FirstSeen(ctx context.Context, messageID string) bool {
	if g.client == nil {
		return true
	}

	ok, err := g.client.SetNX(ctx, g.key(messageID), "1", g.ttl).Result()
	if err != nil {
		g.logger.WarnwCtx(ctx, "Resync guard unavailable, processing message anyway",
			"message_id", messageID,
			"error", err,
		)
		return true
	}
	return ok
}

// Release drops the claim so a later resync can retry the message.
func (g *ResyncGuard) Release(ctx context.Context, messageID string) {
	if g.client == nil {
		return
	}

	if err := g.client.Del(ctx, g.key(messageID)).Err(); err != nil {
		g.logger.WarnwCtx(ctx, "Failed to release resync guard claim",
			"message_id", messageID,
			"error", err,
		)
	}
}

func (g *ResyncGuard) key(messageID string) string {
	return fmt.Sprintf("resync:seen:%s", messageID)
}
