package cart

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketplace-orders/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	offerFieldPrefix = "offer:"
	couponField      = "coupon"
)

// addCappedScript increments an entry only if the result stays within a cap.
// KEYS[1] = cart key
// ARGV[1] = field, ARGV[2] = delta, ARGV[3] = cap, ARGV[4] = ttl seconds
// Returns {1, qty} on success and {0, current} when the cap would be exceeded.
var addCappedScript = redis.NewScript(`
local current = tonumber(redis.call("HGET", KEYS[1], ARGV[1]) or "0")
local updated = current + tonumber(ARGV[2])
if updated > tonumber(ARGV[3]) then
    return {0, current}
end
redis.call("HSET", KEYS[1], ARGV[1], updated)
redis.call("EXPIRE", KEYS[1], tonumber(ARGV[4]))
return {1, updated}
`)

type redisRepo struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewRedis(client *redis.Client, ttl time.Duration, logger *log.Logger) Repository {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &redisRepo{client: client, ttl: ttl, logger: logger}
}

func key(userID string) string {
	return "cart:" + userID
}

func (r *redisRepo) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	fields, err := r.client.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		r.logger.Printf("cart repo: get user_id=%s error=%v", userID, err)
		return nil, err
	}

	c := &domain.Cart{UserID: userID}
	for f, v := range fields {
		if f == couponField {
			c.AppliedCoupon = v
			continue
		}
		offerID, ok := strings.CutPrefix(f, offerFieldPrefix)
		if !ok {
			continue
		}
		qty, err := strconv.Atoi(v)
		if err != nil || qty <= 0 {
			r.logger.Printf("cart repo: ignoring bad entry user_id=%s field=%s value=%q", userID, f, v)
			continue
		}
		c.Entries = append(c.Entries, domain.CartEntry{OfferID: offerID, Quantity: qty})
	}
	sort.Slice(c.Entries, func(i, j int) bool { return c.Entries[i].OfferID < c.Entries[j].OfferID })
	return c, nil
}

func (r *redisRepo) AddCapped(ctx context.Context, userID, offerID string, delta, limit int) (int, bool, error) {
	res, err := addCappedScript.Run(ctx, r.client, []string{key(userID)},
		offerFieldPrefix+offerID, delta, limit, int(r.ttl.Seconds())).Int64Slice()
	if err != nil {
		r.logger.Printf("cart repo: add user_id=%s offer_id=%s error=%v", userID, offerID, err)
		return 0, false, err
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("cart repo: unexpected script reply %v", res)
	}
	return int(res[1]), res[0] == 1, nil
}

func (r *redisRepo) SetQuantity(ctx context.Context, userID, offerID string, qty int) error {
	if qty <= 0 {
		return r.Remove(ctx, userID, offerID)
	}
	return r.write(ctx, userID, "set quantity", func(p redis.Pipeliner) {
		p.HSet(ctx, key(userID), offerFieldPrefix+offerID, qty)
	})
}

func (r *redisRepo) Remove(ctx context.Context, userID string, offerIDs ...string) error {
	if len(offerIDs) == 0 {
		return nil
	}
	fields := make([]string, len(offerIDs))
	for i, id := range offerIDs {
		fields[i] = offerFieldPrefix + id
	}
	return r.write(ctx, userID, "remove", func(p redis.Pipeliner) {
		p.HDel(ctx, key(userID), fields...)
	})
}

func (r *redisRepo) SetCoupon(ctx context.Context, userID, code string) error {
	return r.write(ctx, userID, "set coupon", func(p redis.Pipeliner) {
		p.HSet(ctx, key(userID), couponField, code)
	})
}

func (r *redisRepo) ClearCoupon(ctx context.Context, userID string) error {
	return r.write(ctx, userID, "clear coupon", func(p redis.Pipeliner) {
		p.HDel(ctx, key(userID), couponField)
	})
}

func (r *redisRepo) Clear(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		r.logger.Printf("cart repo: clear user_id=%s error=%v", userID, err)
		return err
	}
	return nil
}

// write applies a mutation and refreshes the TTL in one round trip.
func (r *redisRepo) write(ctx context.Context, userID, action string, fn func(redis.Pipeliner)) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(p)
		p.Expire(ctx, key(userID), r.ttl)
		return nil
	})
	if err != nil {
		r.logger.Printf("cart repo: %s user_id=%s error=%v", action, userID, err)
	}
	return err
}
