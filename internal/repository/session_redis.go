package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"adminpanel/api/internal/models"
	"adminpanel/api/internal/session"
)

// revokedRetention keeps revoked and expired session hashes readable for a
// while after their absolute expiry so late requests still resolve them.
const revokedRetention = 24 * time.Hour

// revokeFn is shared by every script that revokes. It marks the hash,
// drops the jti pointer, the user index entry and the expiry index entry.
const revokeFn = `
local function revoke(skey, id, now, jti_prefix, user_prefix, expiry_key)
  if redis.call("EXISTS", skey) == 0 then
    return 0
  end
  if redis.call("HGET", skey, "revoked") == "1" then
    return 0
  end
  local jti = redis.call("HGET", skey, "jti")
  local uid = redis.call("HGET", skey, "user_id")
  redis.call("HSET", skey, "revoked", "1", "revoked_at", now)
  if jti then
    redis.call("DEL", jti_prefix .. jti)
  end
  if uid then
    redis.call("SREM", user_prefix .. uid, id)
  end
  redis.call("ZREM", expiry_key, id)
  return 1
end
`

var createSessionLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
local fields = {}
for i = 5, #ARGV do
  fields[#fields + 1] = ARGV[i]
end
redis.call("HSET", KEYS[1], unpack(fields))
redis.call("PEXPIREAT", KEYS[1], ARGV[3])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("PEXPIREAT", KEYS[2], ARGV[3])
redis.call("SADD", KEYS[3], ARGV[1])
local keep = tonumber(ARGV[3]) - tonumber(ARGV[4])
if redis.call("PTTL", KEYS[3]) < keep then
  redis.call("PEXPIRE", KEYS[3], keep)
end
redis.call("ZADD", KEYS[4], ARGV[2], ARGV[1])
return 1
`)

var touchSessionLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
local last = tonumber(redis.call("HGET", KEYS[1], "last_activity") or "0")
if tonumber(ARGV[1]) > last then
  redis.call("HSET", KEYS[1], "last_activity", ARGV[1])
end
return 1
`)

var rotateSessionLua = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
if redis.call("HGET", KEYS[1], "revoked") == "1" then
  return 0
end
if redis.call("HGET", KEYS[1], "jti") ~= ARGV[1] then
  return 0
end
if redis.call("EXISTS", KEYS[3]) == 1 then
  return -1
end
redis.call("HSET", KEYS[1], "jti", ARGV[2], "digest", ARGV[3])
local last = tonumber(redis.call("HGET", KEYS[1], "last_activity") or "0")
if tonumber(ARGV[4]) > last then
  redis.call("HSET", KEYS[1], "last_activity", ARGV[4])
end
redis.call("DEL", KEYS[2])
redis.call("SET", KEYS[3], ARGV[5])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
  redis.call("PEXPIRE", KEYS[3], ttl)
end
return 1
`)

var revokeSessionLua = redis.NewScript(revokeFn + `
return revoke(KEYS[1], ARGV[1], ARGV[2], ARGV[3], ARGV[4], KEYS[2])
`)

var revokeUserSessionsLua = redis.NewScript(revokeFn + `
local count = 0
local ids = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(ids) do
  count = count + revoke(ARGV[2] .. id, id, ARGV[1], ARGV[3], ARGV[4], KEYS[2])
end
redis.call("DEL", KEYS[1])
return count
`)

var sweepSessionsLua = redis.NewScript(revokeFn + `
local count = 0
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
for _, id in ipairs(ids) do
  local skey = ARGV[2] .. id
  if redis.call("EXISTS", skey) == 0 then
    redis.call("ZREM", KEYS[1], id)
  else
    count = count + revoke(skey, id, ARGV[1], ARGV[3], ARGV[4], KEYS[1])
  end
end
return count
`)

// RedisSessionStore keeps sessions in redis hashes:
//
//	<prefix>:session:<id>      hash with the session fields
//	<prefix>:jti:<jti>         id of the active session owning the jti
//	<prefix>:user:<user id>    set of active session ids, kept alive as long as
//	                           its newest session hash
//	<prefix>:sessions:expiry   zset of active session ids by absolute expiry (ms)
//
// Every mutation runs as one Lua script.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
}

var _ session.Store = (*RedisSessionStore)(nil)

func NewRedisSessionStore(client redis.UniversalClient, prefix string) *RedisSessionStore {
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) sessionPrefix() string { return s.prefix + ":session:" }
func (s *RedisSessionStore) jtiPrefix() string     { return s.prefix + ":jti:" }
func (s *RedisSessionStore) userPrefix() string    { return s.prefix + ":user:" }
func (s *RedisSessionStore) expiryKey() string     { return s.prefix + ":sessions:expiry" }

func (s *RedisSessionStore) sessionKey(id string) string { return s.sessionPrefix() + id }
func (s *RedisSessionStore) jtiKey(jti string) string    { return s.jtiPrefix() + jti }
func (s *RedisSessionStore) userKey(userID int64) string {
	return s.userPrefix() + strconv.FormatInt(userID, 10)
}

func (s *RedisSessionStore) Create(ctx context.Context, sess models.Session) error {
	keys := []string{
		s.sessionKey(sess.ID),
		s.jtiKey(sess.RefreshJTI),
		s.userKey(sess.UserID),
		s.expiryKey(),
	}
	args := []interface{}{
		sess.ID,
		sess.ExpiresAtAbsolute.UnixMilli(),
		sess.ExpiresAtAbsolute.Add(revokedRetention).UnixMilli(),
		sess.CreatedAt.UnixMilli(),
		"id", sess.ID,
		"user_id", sess.UserID,
		"role_id", sess.RoleID,
		"policy_id", sess.PolicyID,
		"jti", sess.RefreshJTI,
		"digest", sess.RefreshDigest,
		"created_at", sess.CreatedAt.UnixMilli(),
		"last_activity", sess.LastActivityAt.UnixMilli(),
		"expires_at", sess.ExpiresAtAbsolute.UnixMilli(),
		"revoked", "0",
		"ip", sess.IPAddress,
		"user_agent", sess.UserAgent,
		"device", string(sess.DeviceInfo),
	}

	created, err := createSessionLua.Run(ctx, s.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return session.ErrConflict
	}
	return nil
}

func (s *RedisSessionStore) FindByID(ctx context.Context, id string) (models.Session, error) {
	fields, err := s.client.HGetAll(ctx, s.sessionKey(id)).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return models.Session{}, session.ErrNotFound
	}
	return decodeSession(fields)
}

func (s *RedisSessionStore) FindActiveByRefreshID(ctx context.Context, jti string) (models.Session, error) {
	id, err := s.client.Get(ctx, s.jtiKey(jti)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Session{}, session.ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("lookup jti: %w", err)
	}

	sess, err := s.FindByID(ctx, id)
	if err != nil {
		return models.Session{}, err
	}
	// the pointer may be stale if a rotation or revocation landed in between
	if sess.Revoked || sess.RefreshJTI != jti {
		return models.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (s *RedisSessionStore) ListByUser(ctx context.Context, userID int64) ([]models.Session, error) {
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}

	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			cmds = append(cmds, pipe.HGetAll(ctx, s.sessionKey(id)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}

	sessions := make([]models.Session, 0, len(cmds))
	var gone []interface{}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			gone = append(gone, ids[i])
			continue
		}
		sess, err := decodeSession(fields)
		if err != nil {
			return nil, err
		}
		if !sess.Revoked {
			sessions = append(sessions, sess)
		}
	}
	// hashes redis already expired leave their id behind in the user set
	if len(gone) > 0 {
		if err := s.client.SRem(ctx, s.userKey(userID), gone...).Err(); err != nil {
			return nil, fmt.Errorf("prune session ids: %w", err)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.After(sessions[j].LastActivityAt)
	})
	return sessions, nil
}

func (s *RedisSessionStore) TouchActivity(ctx context.Context, id string, now time.Time) error {
	ok, err := touchSessionLua.Run(ctx, s.client, []string{s.sessionKey(id)}, now.UnixMilli()).Int64()
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if ok == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *RedisSessionStore) RotateRefreshToken(ctx context.Context, id, currentJTI, newJTI, newDigest string, now time.Time) error {
	keys := []string{s.sessionKey(id), s.jtiKey(currentJTI), s.jtiKey(newJTI)}
	res, err := rotateSessionLua.Run(ctx, s.client, keys, currentJTI, newJTI, newDigest, now.UnixMilli(), id).Int64()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	switch res {
	case 1:
		return nil
	case -1:
		return session.ErrConflict
	default:
		return session.ErrNotFound
	}
}

func (s *RedisSessionStore) Revoke(ctx context.Context, id string, now time.Time) error {
	keys := []string{s.sessionKey(id), s.expiryKey()}
	err := revokeSessionLua.Run(ctx, s.client, keys, id, now.UnixMilli(), s.jtiPrefix(), s.userPrefix()).Err()
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) RevokeAllForUser(ctx context.Context, userID int64, now time.Time) (int64, error) {
	keys := []string{s.userKey(userID), s.expiryKey()}
	n, err := revokeUserSessionsLua.Run(ctx, s.client, keys,
		now.UnixMilli(), s.sessionPrefix(), s.jtiPrefix(), s.userPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}
	return n, nil
}

func (s *RedisSessionStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := sweepSessionsLua.Run(ctx, s.client, []string{s.expiryKey()},
		now.UnixMilli(), s.sessionPrefix(), s.jtiPrefix(), s.userPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return n, nil
}

func decodeSession(f map[string]string) (models.Session, error) {
	var (
		sess models.Session
		err  error
	)
	parseInt := func(key string) int64 {
		if err != nil {
			return 0
		}
		var v int64
		v, err = strconv.ParseInt(f[key], 10, 64)
		if err != nil {
			err = fmt.Errorf("decode session field %s: %w", key, err)
		}
		return v
	}

	sess.ID = f["id"]
	sess.UserID = parseInt("user_id")
	sess.RoleID = parseInt("role_id")
	sess.PolicyID = parseInt("policy_id")
	sess.CreatedAt = time.UnixMilli(parseInt("created_at")).UTC()
	sess.LastActivityAt = time.UnixMilli(parseInt("last_activity")).UTC()
	sess.ExpiresAtAbsolute = time.UnixMilli(parseInt("expires_at")).UTC()
	if err != nil {
		return models.Session{}, err
	}

	sess.RefreshJTI = f["jti"]
	sess.RefreshDigest = f["digest"]
	sess.Revoked = f["revoked"] == "1"
	if raw := f["revoked_at"]; raw != "" {
		ms, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return models.Session{}, fmt.Errorf("decode session field revoked_at: %w", perr)
		}
		at := time.UnixMilli(ms).UTC()
		sess.RevokedAt = &at
	}
	sess.IPAddress = f["ip"]
	sess.UserAgent = f["user_agent"]
	if d := f["device"]; d != "" {
		sess.DeviceInfo = []byte(d)
	}
	return sess, nil
}
