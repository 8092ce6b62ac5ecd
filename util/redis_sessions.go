package util

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ariebrainware/kinesio-turnos/config"
	"github.com/redis/go-redis/v9"
)

// SessionInfo is the identity cached for a session token.
type SessionInfo struct {
	UserID         uint
	RoleID         uint32
	OrganizationID uint
}

// ErrMalformedSession is returned when a cached session value cannot be parsed.
var ErrMalformedSession = errors.New("malformed session value")

// forgetSessionScript removes a token from the user set and deletes the set once empty.
const forgetSessionScript = `
local removed = redis.call('SREM', KEYS[1], ARGV[1])
if removed > 0 and redis.call('SCARD', KEYS[1]) == 0 then
	redis.call('DEL', KEYS[1])
end
return removed
`

func sessionKey(token string) string {
	return "session:" + token
}

func userSessionsKey(userID uint) string {
	return fmt.Sprintf("user_sessions:%d", userID)
}

func (s SessionInfo) encode() string {
	return fmt.Sprintf("%d:%d:%d", s.UserID, s.RoleID, s.OrganizationID)
}

func decodeSession(raw string) (SessionInfo, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return SessionInfo{}, ErrMalformedSession
	}
	uid, err1 := strconv.ParseUint(parts[0], 10, 64)
	rid, err2 := strconv.ParseUint(parts[1], 10, 32)
	oid, err3 := strconv.ParseUint(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || uid == 0 {
		return SessionInfo{}, ErrMalformedSession
	}
	return SessionInfo{UserID: uint(uid), RoleID: uint32(rid), OrganizationID: uint(oid)}, nil
}

// CacheSession stores token -> identity with the given ttl and records the
// token in the user's session set. A nil Redis client makes this a no-op.
func CacheSession(ctx context.Context, token string, info SessionInfo, ttl time.Duration) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return nil
	}
	pipe := rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(token), info.encode(), ttl)
	pipe.SAdd(ctx, userSessionsKey(info.UserID), token)
	pipe.Expire(ctx, userSessionsKey(info.UserID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// LookupSession returns the cached identity for token. found is false on a
// cache miss or when Redis is not configured.
func LookupSession(ctx context.Context, token string) (info SessionInfo, found bool, err error) {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return SessionInfo{}, false, nil
	}
	raw, err := rdb.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return SessionInfo{}, false, nil
	}
	if err != nil {
		return SessionInfo{}, false, err
	}
	info, err = decodeSession(raw)
	if err != nil {
		return SessionInfo{}, false, err
	}
	return info, true, nil
}

// ForgetSession drops a single session token from the cache and from the
// user's set, deleting the set when it becomes empty.
func ForgetSession(ctx context.Context, userID uint, token string) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return nil
	}
	if err := rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return err
	}
	return rdb.Eval(ctx, forgetSessionScript, []string{userSessionsKey(userID)}, token).Err()
}

// InvalidateUserSessions deletes every cached session of a user, e.g. after a
// password change or when the user is deactivated.
func InvalidateUserSessions(ctx context.Context, userID uint) error {
	rdb := config.GetRedisClient()
	if rdb == nil {
		return nil
	}
	members, err := rdb.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := make([]string, 0, len(members)+1)
	for _, tok := range members {
		keys = append(keys, sessionKey(tok))
	}
	keys = append(keys, userSessionsKey(userID))
	return rdb.Del(ctx, keys...).Err()
}
