package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/LuminariMUD/Intermud3-sub000/internal/session"
)

// drainInterval is how often a session's queue is polled while it has a
// live transport. The queue itself carries no wake channel (§4.10's
// put/get are plain calls), so polling is the simplest faithful
// rendering of "while session has a live transport and the queue is
// non-empty, pop and send".
const drainInterval = 50 * time.Millisecond

// drainQueue runs pumpOnce on a tick until ctx is canceled (connection
// closed) or the session loses its transport.
func drainQueue(ctx context.Context, sess *session.Session, log *slog.Logger) {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sess.HasTransport() {
				return
			}
			pumpOnce(sess, log)
		}
	}
}

// pumpOnce drains sess's queue until it's empty, a send fails, or the
// transport is gone. On failure the message is requeued at the head of
// its band and retried next tick, per §4.10's delivery loop; a message
// that has exhausted max_retries is dropped and logged instead.
func pumpOnce(sess *session.Session, log *slog.Logger) {
	for sess.HasTransport() {
		msg := sess.Queue().Get()
		if msg == nil {
			return
		}
		payload, ok := msg.Content.([]byte)
		if !ok {
			continue
		}
		if err := sess.Transport().WriteMessage(payload); err != nil {
			msg.RetryCount++
			if msg.MaxRetries > 0 && msg.RetryCount > msg.MaxRetries {
				log.Warn("dropping queued message after max retries", "session", sess.ID, "retries", msg.RetryCount)
				return
			}
			sess.Queue().Requeue(msg)
			return
		}
	}
}
