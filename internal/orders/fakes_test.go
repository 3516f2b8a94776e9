package orders

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-saga/internal/domain"
)

// fakeStore is an in-memory order database shared by every scope created
// from it. Writes staged on a scope only land on Commit.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	vouchers  map[string]domain.Voucher
	forwarded map[string]time.Time
	commits   int
	commitErr error
	loadErr   error
	markErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[string]domain.Order),
		vouchers:  make(map[string]domain.Voucher),
		forwarded: make(map[string]time.Time),
	}
}

func (s *fakeStore) scopes() ScopeFactory {
	return func() Scope { return &fakeScope{store: s} }
}

func (s *fakeStore) putOrder(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
}

func (s *fakeStore) putVoucher(v domain.Voucher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vouchers[v.Code] = v
}

func (s *fakeStore) order(id string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *fakeStore) voucher(code string) domain.Voucher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vouchers[code]
}

func (s *fakeStore) NextAuthorized(_ context.Context, forwardedBefore time.Time) (*AuthorizedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}

	var candidates []domain.Order
	for id, o := range s.orders {
		if o.Status != domain.OrderStatusPaymentAuthorized {
			continue
		}
		if at, ok := s.forwarded[id]; ok && !at.Before(forwardedBefore) {
			continue
		}
		candidates = append(candidates, o)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })

	o := candidates[0]
	out := &AuthorizedOrder{OrderID: o.ID, CustomerID: o.CustomerID, CreatedAt: o.CreatedAt}
	for _, item := range o.Items {
		out.Items = append(out.Items, AuthorizedItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out, nil
}

func (s *fakeStore) MarkForwarded(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.forwarded[orderID] = at
	return nil
}

type fakeScope struct {
	store  *fakeStore
	orders []domain.Order
	vouchs []domain.Voucher
}

func (s *fakeScope) Orders() Repository          { return fakeOrders{s} }
func (s *fakeScope) Vouchers() VoucherRepository { return fakeVouchers{s} }

func (s *fakeScope) Commit(context.Context) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	s.store.commits++
	orders, vouchers := s.orders, s.vouchs
	s.orders, s.vouchs = nil, nil
	if s.store.commitErr != nil {
		return s.store.commitErr
	}
	for _, o := range orders {
		s.store.orders[o.ID] = o
	}
	for _, v := range vouchers {
		s.store.vouchers[v.Code] = v
	}
	return nil
}

type fakeOrders struct{ scope *fakeScope }

func (r fakeOrders) GetByID(_ context.Context, id string) (*domain.Order, error) {
	o, ok := r.scope.store.order(id)
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r fakeOrders) ListByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	r.scope.store.mu.Lock()
	defer r.scope.store.mu.Unlock()
	var out []domain.Order
	for _, o := range r.scope.store.orders {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r fakeOrders) Add(o *domain.Order)    { r.scope.orders = append(r.scope.orders, *o) }
func (r fakeOrders) Update(o *domain.Order) { r.scope.orders = append(r.scope.orders, *o) }
func (r fakeOrders) UnitOfWork() UnitOfWork { return r.scope }

type fakeVouchers struct{ scope *fakeScope }

func (r fakeVouchers) GetByCode(_ context.Context, code string) (*domain.Voucher, error) {
	r.scope.store.mu.Lock()
	defer r.scope.store.mu.Unlock()
	v, ok := r.scope.store.vouchers[code]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (r fakeVouchers) Update(v *domain.Voucher) { r.scope.vouchs = append(r.scope.vouchs, *v) }
func (r fakeVouchers) UnitOfWork() UnitOfWork   { return r.scope }

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCard() domain.Card {
	return domain.Card{Holder: "Maria Silva", Number: "4111111111111111", Expiry: "12/30", CVV: "123"}
}

func testAddress() domain.Address {
	return domain.Address{
		Street:   "Rua das Flores",
		Number:   "100",
		District: "Centro",
		City:     "São Paulo",
		State:    "SP",
		ZipCode:  "01001-000",
	}
}

func testItems() []domain.OrderItem {
	return []domain.OrderItem{
		{ProductID: "p1", Name: "Camiseta", Quantity: 2, UnitPrice: decimal.NewFromInt(30)},
		{ProductID: "p2", Name: "Caneca", Quantity: 1, UnitPrice: decimal.NewFromInt(40)},
	}
}

// authorizedOrder stores an order already in PaymentAuthorized.
func authorizedOrder(store *fakeStore, id string, createdAt time.Time) *domain.Order {
	order := domain.NewOrder(id, "c1", testItems(), testAddress(), testCard().Reference(), createdAt)
	if err := order.TransitionTo(domain.OrderStatusPaymentAuthorized, createdAt); err != nil {
		panic(err)
	}
	store.putOrder(order)
	return order
}
