package redisclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

func sessionKey(sid string) string {
	return fmt.Sprintf("session:%s", sid)
}

func userSessionsKey(userID int64) string {
	return fmt.Sprintf("user:%d:sessions", userID)
}

func resetTokenKey(token string) string {
	return fmt.Sprintf("reset:%s", token)
}

// SaveSession records a refresh session for a user
func (c *Client) SaveSession(ctx context.Context, sid string, userID int64, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(sid), userID, ttl)
		pipe.SAdd(ctx, userSessionsKey(userID), sid)
		pipe.Expire(ctx, userSessionsKey(userID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ConsumeSession atomically removes a live session and returns its user.
// Of several concurrent calls for one sid only the first finds it; the rest
// get ErrNotFound.
func (c *Client) ConsumeSession(ctx context.Context, sid string) (int64, error) {
	v, err := c.rdb.GetDel(ctx, sessionKey(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.SRem(ctx, userSessionsKey(userID), sid).Err(); err != nil {
		return 0, fmt.Errorf("failed to unlink session: %w", err)
	}
	return userID, nil
}

// DeleteSession revokes one session
func (c *Client) DeleteSession(ctx context.Context, sid string, userID int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(sid))
		pipe.SRem(ctx, userSessionsKey(userID), sid)
		return nil
	})
	return err
}

// DeleteUserSessions revokes every session of a user
func (c *Client) DeleteUserSessions(ctx context.Context, userID int64) error {
	sids, err := c.rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(sids)+1)
	for _, sid := range sids {
		keys = append(keys, sessionKey(sid))
	}
	keys = append(keys, userSessionsKey(userID))
	return c.rdb.Del(ctx, keys...).Err()
}

// SaveResetToken stores a one-time password reset token
func (c *Client) SaveResetToken(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return c.rdb.Set(ctx, resetTokenKey(token), userID, ttl).Err()
}

// ConsumeResetToken returns the token's user and deletes the token
func (c *Client) ConsumeResetToken(ctx context.Context, token string) (int64, error) {
	v, err := c.rdb.GetDel(ctx, resetTokenKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
