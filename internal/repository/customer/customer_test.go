package customer

import (
	"context"
	"errors"
	"testing"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/testdb"
)

func TestPostgres_EnsureAndAddresses(t *testing.T) {
	ctx := context.Background()
	pool := testdb.Pool(ctx, t)
	repo := NewPostgres(pool, nil)

	id, err := repo.Ensure(ctx, "Asha@Example.com", "Asha")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	again, err := repo.Ensure(ctx, "asha@example.com", "Asha R")
	if err != nil {
		t.Fatalf("Ensure again: %v", err)
	}
	if again != id {
		t.Fatalf("expected same customer id, got %s and %s", id, again)
	}

	addr, err := repo.AddAddress(ctx, id, domain.Address{FullName: "Asha", Line1: "4 Park St", City: "Kolkata", PostalCode: "700016"})
	if err != nil {
		t.Fatalf("AddAddress: %v", err)
	}
	if addr.Country != "IN" {
		t.Fatalf("expected default country IN, got %q", addr.Country)
	}

	got, err := repo.GetAddress(ctx, id, addr.ID)
	if err != nil {
		t.Fatalf("GetAddress: %v", err)
	}
	if got.City != "Kolkata" || got.PostalCode != "700016" {
		t.Fatalf("unexpected address %+v", got)
	}

	other, err := repo.Ensure(ctx, "other@example.com", "Other")
	if err != nil {
		t.Fatalf("Ensure other: %v", err)
	}
	if _, err := repo.GetAddress(ctx, other, addr.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another customer's address, got %v", err)
	}
}
