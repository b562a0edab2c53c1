package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"marketplace-orders/internal/domain"
	offerrepo "marketplace-orders/internal/repository/offer"
)

type stubOfferRepo struct {
	known map[string]bool
	items []offerrepo.StockUpdate
	err   error
}

func (s *stubOfferRepo) UpdateBySKU(_ context.Context, in offerrepo.StockUpdate) (*domain.Offer, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.known[in.SKU] {
		return nil, domain.ErrNotFound
	}
	s.items = append(s.items, in)
	return &domain.Offer{SKU: in.SKU, Price: in.Price, StockQuantity: in.StockQuantity, Status: in.Status}, nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `sku,price,mrp,stock_quantity,status
KETTLE-1,499.50,799,12,active
,,,,
KETTLE-2,1200,1500,0,INACTIVE
GHOST-9,10,10,1,active
MUG-1,99,99,3,`

	repo := &stubOfferRepo{known: map[string]bool{"KETTLE-1": true, "KETTLE-2": true, "MUG-1": true}}
	res, err := NewCSVImporter(strings.NewReader(csvData), repo, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if res.Updated != 3 {
		t.Fatalf("expected 3 offers updated, got %d", res.Updated)
	}
	if len(res.Unknown) != 1 || res.Unknown[0] != "GHOST-9" {
		t.Fatalf("expected GHOST-9 reported unknown, got %v", res.Unknown)
	}

	first := repo.items[0]
	if first.Price != 49950 || first.MRP != 79900 || first.StockQuantity != 12 || first.Status != domain.OfferActive {
		t.Fatalf("unexpected first update: %+v", first)
	}
	if repo.items[1].Status != domain.OfferInactive {
		t.Fatalf("expected status lowercased, got %q", repo.items[1].Status)
	}
	if repo.items[2].Status != domain.OfferActive {
		t.Fatalf("expected empty status to default to active, got %q", repo.items[2].Status)
	}
}

func TestCSVImporter_RejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"missing column":   "sku,price,mrp,status\nA,1,1,active",
		"fractional paise": "sku,price,mrp,stock_quantity,status\nA,1.005,2,1,active",
		"negative stock":   "sku,price,mrp,stock_quantity,status\nA,1,1,-1,active",
		"mrp below price":  "sku,price,mrp,stock_quantity,status\nA,10,9,1,active",
		"unknown status":   "sku,price,mrp,stock_quantity,status\nA,1,1,1,archived",
		"missing sku":      "sku,price,mrp,stock_quantity,status\n,1,1,1,active",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &stubOfferRepo{known: map[string]bool{"A": true}}
			if _, err := NewCSVImporter(strings.NewReader(data), repo, nil).Run(context.Background()); err == nil {
				t.Fatalf("expected error")
			}
			if len(repo.items) != 0 {
				t.Fatalf("expected no updates, got %d", len(repo.items))
			}
		})
	}
}

func TestCSVImporter_StopsOnStoreError(t *testing.T) {
	boom := errors.New("db down")
	repo := &stubOfferRepo{err: boom}
	_, err := NewCSVImporter(strings.NewReader("sku,price,mrp,stock_quantity,status\nA,1,1,1,active"), repo, nil).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}
