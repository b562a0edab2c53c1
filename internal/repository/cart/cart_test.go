package cart

import (
	"context"
	"testing"
	"time"

	"marketplace-orders/internal/testdb"
)

func TestRedis_AddCappedAndGet(t *testing.T) {
	ctx := context.Background()
	client := testdb.Redis(ctx, t)
	repo := NewRedis(client, time.Hour, nil)

	qty, ok, err := repo.AddCapped(ctx, "u1", "offer-a", 2, 3)
	if err != nil || !ok || qty != 2 {
		t.Fatalf("first add: qty=%d ok=%v err=%v", qty, ok, err)
	}
	qty, ok, err = repo.AddCapped(ctx, "u1", "offer-a", 2, 3)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if ok || qty != 2 {
		t.Fatalf("expected capped add to be rejected with current qty 2, got qty=%d ok=%v", qty, ok)
	}

	if err := repo.SetCoupon(ctx, "u1", "SAVE10"); err != nil {
		t.Fatalf("SetCoupon: %v", err)
	}
	c, err := repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(c.Entries) != 1 || c.Entries[0].Quantity != 2 || c.AppliedCoupon != "SAVE10" {
		t.Fatalf("unexpected cart %+v", c)
	}

	ttl, err := client.TTL(ctx, key("u1")).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within an hour, got %s", ttl)
	}
}

func TestRedis_SetQuantityRemoveClear(t *testing.T) {
	ctx := context.Background()
	client := testdb.Redis(ctx, t)
	repo := NewRedis(client, time.Hour, nil)

	if err := repo.SetQuantity(ctx, "u1", "a", 4); err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if err := repo.SetQuantity(ctx, "u1", "b", 1); err != nil {
		t.Fatalf("SetQuantity: %v", err)
	}
	if err := repo.SetQuantity(ctx, "u1", "a", 0); err != nil {
		t.Fatalf("SetQuantity zero: %v", err)
	}
	c, _ := repo.Get(ctx, "u1")
	if len(c.Entries) != 1 || c.Entries[0].OfferID != "b" {
		t.Fatalf("expected only b to remain, got %+v", c.Entries)
	}

	if err := repo.Clear(ctx, "u1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	c, _ = repo.Get(ctx, "u1")
	if len(c.Entries) != 0 {
		t.Fatalf("expected empty cart, got %+v", c)
	}
}
