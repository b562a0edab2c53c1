// Package ordertest provides an in-memory order repository for service tests.
// It applies changes with the same rules as the Postgres repository: item
// transitions are checked, restocks are recorded and the order status is
// re-derived.
package ordertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"marketplace-orders/internal/domain"
	"marketplace-orders/internal/orderstate"
	orderrepo "marketplace-orders/internal/repository/order"
)

type Memory struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
	seq    int

	// Prices backs Create; lines for unknown offers fail with a conflict.
	Prices map[string]int64
	// Stock is debited by Create and credited by restocks when set.
	Stock map[string]int

	Restocked  map[string]int
	Tasks      []domain.OutboxTask
	LastCreate orderrepo.CreateInput
	CreateErr  error
}

var _ orderrepo.Repository = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		orders:    map[string]*domain.Order{},
		Prices:    map[string]int64{},
		Restocked: map[string]int{},
	}
}

// Put stores o as is. Item ids and the order id must already be set.
func (m *Memory) Put(o *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = clone(o)
}

func (m *Memory) Create(_ context.Context, in orderrepo.CreateInput) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastCreate = in
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if _, ok := m.orders[in.OrderID]; ok {
		return nil, domain.Conflictf("order id %s already exists", in.OrderID)
	}
	o := &domain.Order{
		ID:              in.OrderID,
		UserID:          in.UserID,
		Currency:        in.Currency,
		ShippingAddress: in.ShippingAddress,
		Status:          domain.OrderPending,
		CreatedAt:       in.Now,
		UpdatedAt:       in.Now,
	}
	for _, l := range in.Lines {
		price, ok := m.Prices[l.OfferID]
		if !ok {
			return nil, domain.Conflictf("insufficient stock for %s", l.ProductName)
		}
		if m.Stock != nil {
			if m.Stock[l.OfferID] < l.Quantity {
				return nil, domain.Conflictf("insufficient stock for %s", l.ProductName)
			}
		}
		m.seq++
		o.Items = append(o.Items, domain.OrderItem{
			ID:                    fmt.Sprintf("item-%d", m.seq),
			OrderID:               o.ID,
			OfferID:               l.OfferID,
			ProductName:           l.ProductName,
			Quantity:              l.Quantity,
			PriceAtTimeOfPurchase: price,
			Status:                domain.OrderPending,
		})
		o.SubtotalAmount += price * int64(l.Quantity)
	}
	if m.Stock != nil {
		for _, l := range in.Lines {
			m.Stock[l.OfferID] -= l.Quantity
		}
	}
	o.MRP = o.SubtotalAmount
	o.TotalAmount = o.SubtotalAmount
	m.orders[o.ID] = o
	return clone(o), nil
}

func (m *Memory) Get(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(o), nil
}

func (m *Memory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ItemOwner(_ context.Context, itemID string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		for _, it := range o.Items {
			if it.ID == itemID {
				return o.ID, it.SellerProfileID, nil
			}
		}
	}
	return "", "", domain.ErrNotFound
}

func (m *Memory) Update(_ context.Context, orderID string, fn orderrepo.Mutation) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	work := clone(stored)
	change, err := fn(work)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return clone(stored), nil
	}
	restock, err := m.applyOrder(work, change)
	if err != nil {
		return nil, err
	}
	m.commit(work, restock, change.Tasks)
	return clone(work), nil
}

func (m *Memory) UpdatePayment(_ context.Context, orderID string, fn orderrepo.PaymentMutation) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatePayment(orderID, fn)
}

func (m *Memory) UpdatePaymentByTransaction(_ context.Context, transactionID string, fn orderrepo.PaymentMutation) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, o := range m.orders {
		if o.Payment != nil && o.Payment.GatewayTransactionID == transactionID {
			return m.updatePayment(id, fn)
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) RederiveStatus(_ context.Context, orderID string, derive func([]domain.OrderStatus) domain.OrderStatus) (domain.OrderStatus, domain.OrderStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return "", "", domain.ErrNotFound
	}
	stored, derived := o.Status, derive(o.ItemStatuses())
	o.Status = derived
	return stored, derived, nil
}

// SetStatus overwrites the stored order status without touching items.
func (m *Memory) SetStatus(orderID string, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderID].Status = status
}

func (m *Memory) TaskKinds() []domain.TaskKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TaskKind, 0, len(m.Tasks))
	for _, t := range m.Tasks {
		out = append(out, t.Kind)
	}
	return out
}

func (m *Memory) updatePayment(orderID string, fn orderrepo.PaymentMutation) (*domain.Order, error) {
	stored, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	work := clone(stored)
	change, err := fn(work)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return clone(stored), nil
	}
	if err := applyPayment(work, change); err != nil {
		return nil, err
	}
	var restock []domain.OrderItem
	tasks := append([]domain.OutboxTask(nil), change.Tasks...)
	if change.Order != nil {
		restock, err = m.applyOrder(work, change.Order)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, change.Order.Tasks...)
	}
	m.commit(work, restock, tasks)
	return clone(work), nil
}

func (m *Memory) commit(o *domain.Order, restock []domain.OrderItem, tasks []domain.OutboxTask) {
	for _, it := range restock {
		m.Restocked[it.OfferID] += it.Quantity
		if m.Stock != nil {
			m.Stock[it.OfferID] += it.Quantity
		}
	}
	for _, t := range tasks {
		m.seq++
		t.ID = fmt.Sprintf("task-%d", m.seq)
		m.Tasks = append(m.Tasks, t)
	}
	o.UpdatedAt = time.Now()
	m.orders[o.ID] = o
}

func (m *Memory) applyOrder(o *domain.Order, c *domain.OrderChange) ([]domain.OrderItem, error) {
	index := make(map[string]int, len(o.Items))
	for i, it := range o.Items {
		index[it.ID] = i
	}
	for id, next := range c.Items {
		i, ok := index[id]
		if !ok {
			return nil, domain.NotFoundf("order item %s not found", id)
		}
		if err := domain.CheckItemTransition(o.Items[i].Status, next); err != nil {
			return nil, err
		}
	}
	var restock []domain.OrderItem
	for _, id := range c.Restock {
		i, ok := index[id]
		if !ok {
			return nil, domain.NotFoundf("order item %s not found", id)
		}
		restock = append(restock, o.Items[i])
	}
	for id, next := range c.Items {
		o.Items[index[id]].Status = next
	}
	if c.Shipment != nil {
		s := *c.Shipment
		s.OrderID = o.ID
		m.seq++
		s.ID = fmt.Sprintf("shipment-%d", m.seq)
		o.Shipments = append(o.Shipments, s)
	}
	if c.CancellationReason != "" {
		o.CancellationReason = c.CancellationReason
	}
	if c.ReturnReason != "" {
		o.ReturnReason = c.ReturnReason
	}
	o.Status = orderstate.DeriveOrder(o)
	return restock, nil
}

func applyPayment(o *domain.Order, c *domain.PaymentChange) error {
	if o.Payment == nil {
		if c.Status != domain.PaymentPending {
			return domain.Consistencyf("order %s has no payment to move to %s", o.ID, c.Status)
		}
		o.Payment = &domain.Payment{
			ID:                   "pay-" + o.ID,
			OrderID:              o.ID,
			Amount:               o.TotalAmount,
			Currency:             o.Currency,
			Status:               domain.PaymentPending,
			GatewayTransactionID: c.GatewayTransactionID,
			ClientSecret:         c.ClientSecret,
		}
		return nil
	}
	p := o.Payment
	next := c.Status
	if next == "" {
		next = p.Status
	}
	if err := domain.CheckPaymentTransition(p.Status, next); err != nil {
		return err
	}
	refunded := p.RefundAmount + c.RefundDelta
	if c.RefundDelta < 0 || refunded > p.Amount {
		return domain.Consistencyf("refund of %d exceeds payment %s amount %d", refunded, p.ID, p.Amount)
	}
	p.Status = next
	p.RefundAmount = refunded
	p.FailureCode, p.FailureMessage = "", ""
	if next == domain.PaymentFailed {
		p.FailureCode, p.FailureMessage = c.FailureCode, c.FailureMessage
	}
	if c.GatewayTransactionID != "" {
		p.GatewayTransactionID = c.GatewayTransactionID
	}
	if c.ClientSecret != "" {
		p.ClientSecret = c.ClientSecret
	}
	return nil
}

func clone(o *domain.Order) *domain.Order {
	c := *o
	c.Items = append([]domain.OrderItem(nil), o.Items...)
	c.Shipments = append([]domain.Shipment(nil), o.Shipments...)
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	if o.Discount != nil {
		d := *o.Discount
		c.Discount = &d
	}
	return &c
}
