package discount

import (
	"context"
	"errors"
	"strings"
	"time"

	"marketplace-orders/internal/domain"
	discountrepo "marketplace-orders/internal/repository/discount"
)

type discountRepo interface {
	GetByCode(ctx context.Context, code string) (*domain.Discount, error)
	CountUsage(ctx context.Context, discountID, userID string) (discountrepo.Usage, error)
}

type Service struct {
	repo discountRepo
	now  func() time.Time
}

func New(repo discountRepo) *Service {
	return &Service{repo: repo, now: time.Now}
}

type Result struct {
	DiscountID string `json:"discountId"`
	Code       string `json:"code"`
	Amount     int64  `json:"discountAmount"`
}

// ValidateAndCalculate checks a coupon for userID against subtotal. Usage is
// counted from recorded order discounts.
func (s *Service) ValidateAndCalculate(ctx context.Context, code string, subtotal int64, userID string) (*Result, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.Validationf("coupon code required")
	}

	d, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("coupon %s not found", code)
		}
		return nil, err
	}

	usage, err := s.repo.CountUsage(ctx, d.ID, userID)
	if err != nil {
		return nil, err
	}

	amount, err := d.Evaluate(subtotal, usage.Total, usage.ForUser, s.now())
	if err != nil {
		return nil, err
	}
	return &Result{DiscountID: d.ID, Code: d.Code, Amount: amount}, nil
}
