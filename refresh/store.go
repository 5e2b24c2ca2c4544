package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no record exists for the token hash.
var ErrNotFound = errors.New("refresh record not found")

// ErrAlreadyRevoked is returned when the record was consumed or revoked
// before this call; the caller treats it as a reuse signal.
var ErrAlreadyRevoked = errors.New("refresh record already revoked")

// ErrExpired is returned when the record is past its expiry.
var ErrExpired = errors.New("refresh record expired")

// ErrCorrupt is returned when a stored record cannot be decoded.
var ErrCorrupt = errors.New("refresh record corrupt")

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Record is the stored state of one refresh token, keyed in Redis by the
// token's SHA-256 hash. Revocation is soft: RevokedAt and RevokedReason
// are set and the record stays until its natural TTL, which is what makes
// reuse detection attributable to a user.
type Record struct {
	UserID        string `json:"user_id"`
	IssuedAt      int64  `json:"issued_at"`
	ExpiresAt     int64  `json:"expires_at"`
	IP            string `json:"ip,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	RevokedAt     int64  `json:"revoked_at"`
	RevokedReason string `json:"revoked_reason,omitempty"`
}

const (
	consumeStatusNotFound       int64 = 0
	consumeStatusAlreadyRevoked int64 = 1
	consumeStatusExpired        int64 = 2
	consumeStatusConsumed       int64 = 3
)

// Fetch-and-mark CAS. The decision (missing / revoked / expired / live)
// and the soft-revoke write happen in one script execution, so exactly
// one of N concurrent callers observes status 3 for the same token.
// The pre-mutation record is returned so callers can attribute reuse.
const consumeScript = `
local data = redis.call("GET", KEYS[1])
if not data then
  return {0}
end

local ok, rec = pcall(cjson.decode, data)
if not ok or not rec.user_id then
  return {4}
end

if rec.revoked_at and rec.revoked_at > 0 then
  return {1, data}
end

local now = tonumber(ARGV[1])
local ttl = redis.call("PTTL", KEYS[1])
local user_key = ARGV[3] .. rec.user_id

rec.revoked_at = now

if rec.expires_at <= now then
  rec.revoked_reason = "expired"
  if ttl > 0 then
    redis.call("SET", KEYS[1], cjson.encode(rec), "PX", ttl)
  end
  redis.call("SREM", user_key, ARGV[4])
  return {2, data}
end

rec.revoked_reason = ARGV[2]
if ttl > 0 then
  redis.call("SET", KEYS[1], cjson.encode(rec), "PX", ttl)
else
  redis.call("SET", KEYS[1], cjson.encode(rec))
end
redis.call("SREM", user_key, ARGV[4])
return {3, data}
`

var consumeLua = redis.NewScript(consumeScript)

// Store is the Redis-backed refresh-token ledger: persistence, per-user
// indexing, and atomic consume-on-rotation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a refresh [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  rdb,
		prefix: prefix,
	}
}

func (s *Store) key(tokenHash string) string {
	return s.prefix + ":" + tokenHash
}

func (s *Store) userPrefix() string {
	return s.prefix + ":u:"
}

func (s *Store) userKey(userID string) string {
	return s.userPrefix() + userID
}

// Save persists a new record under the token hash and indexes it on the
// user's live-token set.
//
//	Performance: 2 Redis commands in one MULTI/EXEC.
func (s *Store) Save(ctx context.Context, tokenHash string, rec *Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(tokenHash), data, ttl)
		pipe.SAdd(ctx, s.userKey(rec.UserID), tokenHash)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Consume atomically fetches the record and soft-revokes it with the
// given reason. On [ErrAlreadyRevoked] and [ErrExpired] the stored
// record is still returned so the caller can attribute the event.
//
//	Performance: 1 Lua EVALSHA (atomic fetch-and-mark).
func (s *Store) Consume(ctx context.Context, tokenHash, reason string) (*Record, error) {
	result, err := consumeLua.Run(
		ctx,
		s.redis,
		[]string{s.key(tokenHash)},
		time.Now().Unix(),
		reason,
		s.userPrefix(),
		tokenHash,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) == 0 {
		return nil, fmt.Errorf("%w: invalid consume script response", ErrRedisUnavailable)
	}

	code, ok := parts[0].(int64)
	if !ok {
		return nil, fmt.Errorf("%w: invalid consume script status", ErrRedisUnavailable)
	}

	switch code {
	case consumeStatusNotFound:
		return nil, ErrNotFound
	case consumeStatusAlreadyRevoked:
		rec, decErr := decodePart(parts)
		if decErr != nil {
			return nil, decErr
		}
		return rec, ErrAlreadyRevoked
	case consumeStatusExpired:
		rec, decErr := decodePart(parts)
		if decErr != nil {
			return nil, decErr
		}
		return rec, ErrExpired
	case consumeStatusConsumed:
		return decodePart(parts)
	default:
		return nil, ErrCorrupt
	}
}

func decodePart(parts []interface{}) (*Record, error) {
	if len(parts) < 2 {
		return nil, ErrCorrupt
	}

	var blob []byte
	switch v := parts[1].(type) {
	case string:
		blob = []byte(v)
	case []byte:
		blob = v
	default:
		return nil, ErrCorrupt
	}

	var rec Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return &rec, nil
}

// Revoke soft-revokes a single token. Missing and already-revoked
// records are treated as success: revocation is idempotent.
func (s *Store) Revoke(ctx context.Context, tokenHash, reason string) error {
	_, err := s.Consume(ctx, tokenHash, reason)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRevoked) || errors.Is(err, ErrExpired) {
			return nil
		}
		return err
	}
	return nil
}

// RevokeAllForUser soft-revokes every live token indexed for a user and
// returns how many were revoked.
//
// ATOMICITY NOTE: This operation is NOT fully atomic. It reads the
// user's token set (SMembers), then revokes each member with the consume
// script. A token issued between the read and revoke phases will not be
// captured by this call. The final cleanup removes only the members that
// were enumerated (SRem, never DEL), so a record saved mid-call keeps
// its index entry and the stray token is caught by the next rotation or
// RevokeAllForUser invocation.
func (s *Store) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	userKey := s.userKey(userID)

	hashes, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	revoked := 0
	for _, hash := range hashes {
		if _, err := s.Consume(ctx, hash, reason); err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyRevoked) || errors.Is(err, ErrExpired) {
				continue
			}
			return revoked, err
		}
		revoked++
	}

	// The consume script SREMs each hash it processed; this sweep clears
	// leftovers whose records already expired out of Redis.
	if len(hashes) > 0 {
		members := make([]interface{}, len(hashes))
		for i, hash := range hashes {
			members[i] = hash
		}
		if err := s.redis.SRem(ctx, userKey, members...).Err(); err != nil {
			return revoked, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return revoked, nil
}

// ActiveTokenCount returns the number of live tokens indexed for a user.
func (s *Store) ActiveTokenCount(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(count), nil
}

// GetReadOnly fetches a record without mutating any Redis state.
func (s *Store) GetReadOnly(ctx context.Context, tokenHash string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return &rec, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
