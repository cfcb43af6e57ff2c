package cache

import (
	"context"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/rag/internal/convo"
)

// SessionTTL is the sliding session-history TTL (spec.md 4.L: ~2h),
// reset on every append.
const SessionTTL = 2 * time.Hour

// SessionHistory is an ordered, role-tagged message list per session,
// stored as a Redis list with a sliding TTL.
type SessionHistory struct {
	ops RedisOps
	ttl time.Duration
}

// NewSessionHistory builds a SessionHistory.
func NewSessionHistory(ops RedisOps, ttl time.Duration) *SessionHistory {
	return &SessionHistory{ops: ops, ttl: ttl}
}

// Append adds msg to the tail of (userID, sessionID)'s history and resets
// the TTL.
func (h *SessionHistory) Append(ctx context.Context, userID, sessionID string, msg convo.Message) error {
	raw, err := sonic.MarshalString(msg)
	if err != nil {
		return err
	}
	key := sessionKey(userID, sessionID)
	if err := h.ops.RPush(ctx, key, raw); err != nil {
		return err
	}
	return h.ops.Expire(ctx, key, h.ttl)
}

// History returns the full ordered message list for (userID, sessionID).
func (h *SessionHistory) History(ctx context.Context, userID, sessionID string) ([]convo.Message, error) {
	raws, err := h.ops.LRange(ctx, sessionKey(userID, sessionID), 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeAll(raws)
}

// Trim retains only the last keepLast messages of (userID, sessionID)'s
// history.
func (h *SessionHistory) Trim(ctx context.Context, userID, sessionID string, keepLast int64) error {
	return h.ops.LTrimToTail(ctx, sessionKey(userID, sessionID), keepLast)
}

// Replace atomically overwrites (userID, sessionID)'s history with
// messages (delete-then-rpush under one pipeline) and resets the TTL.
func (h *SessionHistory) Replace(ctx context.Context, userID, sessionID string, messages []convo.Message) error {
	raws := make([]string, len(messages))
	for i, m := range messages {
		raw, err := sonic.MarshalString(m)
		if err != nil {
			return err
		}
		raws[i] = raw
	}
	key := sessionKey(userID, sessionID)
	if err := h.ops.ReplaceList(ctx, key, raws); err != nil {
		return err
	}
	if len(raws) == 0 {
		return nil
	}
	return h.ops.Expire(ctx, key, h.ttl)
}

func decodeAll(raws []string) ([]convo.Message, error) {
	messages := make([]convo.Message, len(raws))
	for i, raw := range raws {
		var m convo.Message
		if err := sonic.UnmarshalString(raw, &m); err != nil {
			return nil, err
		}
		messages[i] = m
	}
	return messages, nil
}
