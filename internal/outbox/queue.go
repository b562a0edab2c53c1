package outbox

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const queueKey = "outbox:queue"

// popDueScript removes and returns the earliest member whose score is due.
// KEYS[1] = queue key, ARGV[1] = now in unix milliseconds
var popDueScript = redis.NewScript(`
local items = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #items == 0 then
    return false
end
redis.call("ZREM", KEYS[1], items[1])
return items[1]
`)

// RedisQueue is a delayed queue of outbox task ids scored by due time. It is
// only a dispatch hint: Postgres holds the task state.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// Push schedules ids at the given time, moving them if already queued.
func (q *RedisQueue) Push(ctx context.Context, at time.Time, ids ...string) error {
	return q.client.ZAdd(ctx, queueKey, members(at, ids)...).Err()
}

// PushMissing schedules ids that are not queued yet and leaves others alone.
func (q *RedisQueue) PushMissing(ctx context.Context, at time.Time, ids ...string) (int64, error) {
	return q.client.ZAddNX(ctx, queueKey, members(at, ids)...).Result()
}

// Pop returns the next due id, or "" when nothing is due.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	id, err := popDueScript.Run(ctx, q.client, []string{queueKey}, now).Text()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, queueKey).Result()
}

func members(at time.Time, ids []string) []redis.Z {
	score := float64(at.UnixMilli())
	out := make([]redis.Z, len(ids))
	for i, id := range ids {
		out[i] = redis.Z{Score: score, Member: id}
	}
	return out
}
