package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"taskhost/internal/pkg/redis/keys"

	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on Redis. Message ids live in a sorted set
// scored by the unix-millisecond instant they become visible; each message
// body and its bookkeeping live in a hash.
type RedisQueue struct {
	client  *redisv9.Client
	name    string
	visible string
	msgPre  string
	now     func() time.Time
}

// fetchScript hides up to ARGV[2] visible messages until ARGV[3] and bumps
// their dequeue count. Expired or orphaned ids are dropped on the way.
var fetchScript = redisv9.NewScript(`
	local now = tonumber(ARGV[1])
	local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, tonumber(ARGV[2]))
	local out = {}
	local n = 0
	for _, id in ipairs(ids) do
		local key = ARGV[4] .. id
		if redis.call('EXISTS', key) == 0 then
			redis.call('ZREM', KEYS[1], id)
		else
			local expires = tonumber(redis.call('HGET', key, 'expires_at') or '0')
			if expires > 0 and expires <= now then
				redis.call('ZREM', KEYS[1], id)
				redis.call('DEL', key)
			else
				n = n + 1
				local receipt = ARGV[4 + n]
				redis.call('ZADD', KEYS[1], ARGV[3], id)
				local count = redis.call('HINCRBY', key, 'dequeue_count', 1)
				redis.call('HSET', key, 'receipt', receipt)
				local body = redis.call('HGET', key, 'body')
				local inserted = redis.call('HGET', key, 'inserted_at')
				table.insert(out, {id, body, tostring(count), receipt, inserted, tostring(expires)})
			end
		end
	end
	return out
`)

// deleteScript removes a message if the receipt still matches (or none was given)
var deleteScript = redisv9.NewScript(`
	local key = ARGV[2] .. ARGV[1]
	if ARGV[3] ~= '' then
		local receipt = redis.call('HGET', key, 'receipt')
		if receipt ~= ARGV[3] then
			return 0
		end
	end
	redis.call('ZREM', KEYS[1], ARGV[1])
	return redis.call('DEL', key)
`)

// NewRedisQueue creates a new Redis-backed queue; prefix namespaces its keys
func NewRedisQueue(client *redisv9.Client, prefix, name string) *RedisQueue {
	return &RedisQueue{
		client:  client,
		name:    name,
		visible: keys.QueueVisibleKey(prefix, name),
		msgPre:  keys.QueueMessagePrefix(prefix, name),
		now:     time.Now,
	}
}

// Name returns the queue name
func (q *RedisQueue) Name() string {
	return q.name
}

// Peek returns up to max visible messages without hiding them
func (q *RedisQueue) Peek(ctx context.Context, max int) ([]Message, error) {
	now := q.now()
	ids, err := q.client.ZRangeByScore(ctx, q.visible, &redisv9.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(max),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.Pipeline()
	cmds := make([]*redisv9.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, q.msgPre+id)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redisv9.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]Message, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		msg := Message{
			ID:           id,
			Body:         fields["body"],
			DequeueCount: atoi(fields["dequeue_count"]),
			InsertedAt:   fromMillis(fields["inserted_at"]),
			ExpiresAt:    fromMillis(fields["expires_at"]),
		}
		if !msg.ExpiresAt.IsZero() && !msg.ExpiresAt.After(now) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Fetch returns up to max visible messages and hides them for visibility
func (q *RedisQueue) Fetch(ctx context.Context, max int, visibility time.Duration) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}
	now := q.now()

	args := make([]interface{}, 0, 4+max)
	args = append(args, now.UnixMilli(), max, now.Add(visibility).UnixMilli(), q.msgPre)
	for i := 0; i < max; i++ {
		args = append(args, uuid.NewString())
	}

	res, err := fetchScript.Run(ctx, q.client, []string{q.visible}, args...).Slice()
	if err != nil {
		if errors.Is(err, redisv9.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]interface{})
		if !ok || len(fields) < 6 {
			return nil, fmt.Errorf("%w: unexpected fetch reply %T", ErrBackendUnavailable, row)
		}
		out = append(out, Message{
			ID:           str(fields[0]),
			Body:         str(fields[1]),
			DequeueCount: atoi(str(fields[2])),
			Receipt:      str(fields[3]),
			InsertedAt:   fromMillis(str(fields[4])),
			ExpiresAt:    fromMillis(str(fields[5])),
		})
	}
	return out, nil
}

// Delete removes a fetched message
func (q *RedisQueue) Delete(ctx context.Context, msg Message) error {
	n, err := deleteScript.Run(ctx, q.client, []string{q.visible}, msg.ID, q.msgPre, msg.Receipt).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrMessageNotFound, q.name, msg.ID)
	}
	return nil
}

// Put enqueues a new, immediately visible message
func (q *RedisQueue) Put(ctx context.Context, body string, ttl time.Duration) (Message, error) {
	now := q.now()
	msg := Message{
		ID:         uuid.NewString(),
		Body:       body,
		InsertedAt: now,
	}
	var expiresAt int64
	if ttl > 0 {
		msg.ExpiresAt = now.Add(ttl)
		expiresAt = msg.ExpiresAt.UnixMilli()
	}

	key := q.msgPre + msg.ID
	_, err := q.client.TxPipelined(ctx, func(pipe redisv9.Pipeliner) error {
		pipe.HSet(ctx, key,
			"body", body,
			"dequeue_count", 0,
			"inserted_at", now.UnixMilli(),
			"expires_at", expiresAt,
		)
		if ttl > 0 {
			pipe.PExpire(ctx, key, ttl)
		}
		pipe.ZAdd(ctx, q.visible, redisv9.Z{Score: float64(now.UnixMilli()), Member: msg.ID})
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return msg, nil
}

func str(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
