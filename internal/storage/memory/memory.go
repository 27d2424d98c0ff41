// Package memory implements the domain repositories on plain maps behind a
// single mutex. It backs unit tests and local runs without PostgreSQL; the
// one lock stands in for the database's row locking, so the atomic cart
// drain and compare-and-set semantics match the SQL implementation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/valyxa/storefront/internal/domain/cart"
	"github.com/valyxa/storefront/internal/domain/order"
	"github.com/valyxa/storefront/internal/domain/product"
)

var (
	_ order.Repository   = (*Store)(nil)
	_ cart.Repository    = (*Store)(nil)
	_ product.Repository = (*Store)(nil)
)

// Store holds products, cart lines, and orders in memory.
type Store struct {
	mu       sync.Mutex
	products map[string]product.Product
	carts    map[string]map[string]int // userID -> productID -> quantity
	orders   map[string]*order.Order
	byRef    map[string]string // payment ref -> order ID
	seq      []string          // order IDs in creation order
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]product.Product),
		carts:    make(map[string]map[string]int),
		orders:   make(map[string]*order.Order),
		byRef:    make(map[string]string),
	}
}

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutCartLine sets the quantity of a product in the user's cart.
func (s *Store) PutCartLine(userID, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = make(map[string]int)
		s.carts[userID] = c
	}
	c[productID] = quantity
}

// GetByID returns a single product by its identifier.
func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs, sorted by ID.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Snapshot returns the user's cart lines joined against live catalog prices.
func (s *Store) Snapshot(_ context.Context, userID string) ([]cart.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.snapshotLocked(userID)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) snapshotLocked(userID string) ([]cart.Line, error) {
	c := s.carts[userID]
	if len(c) == 0 {
		return nil, cart.ErrEmptyCart
	}

	lines := make([]cart.Line, 0, len(c))
	for productID, qty := range c {
		p := s.products[productID]
		lines = append(lines, cart.Line{
			ProductID:   productID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    qty,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

// CreateFromCart drains the cart and persists the pending order under the
// store lock, mirroring the single-transaction semantics of the SQL
// implementation.
func (s *Store) CreateFromCart(_ context.Context, userID string, method order.PaymentMethod) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.snapshotLocked(userID)
	if err != nil {
		return nil, err
	}

	o, err := order.NewFromSnapshot(userID, method, snapshot)
	if err != nil {
		return nil, err
	}

	delete(s.carts, userID)
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	return clone(o), nil
}

// Get returns a single order by ID.
func (s *Store) Get(_ context.Context, id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(o), nil
}

// GetByPaymentRef returns the order carrying the external payment reference.
func (s *Store) GetByPaymentRef(_ context.Context, ref string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byRef[ref]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(s.orders[id]), nil
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(_ context.Context, userID string) ([]order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order.Order, 0)
	for i := len(s.seq) - 1; i >= 0; i-- {
		if o := s.orders[s.seq[i]]; o.UserID == userID {
			out = append(out, *clone(o))
		}
	}
	return out, nil
}

// AttachPaymentRef sets the external payment reference at most once.
func (s *Store) AttachPaymentRef(_ context.Context, orderID, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	switch o.PaymentIntentID {
	case "":
		o.PaymentIntentID = ref
		o.UpdatedAt = now()
		s.byRef[ref] = orderID
		return nil
	case ref:
		return nil
	default:
		return order.ErrPaymentRefConflict
	}
}

// UpdateStatusIf performs a compare-and-set status transition by order ID.
func (s *Store) UpdateStatusIf(_ context.Context, orderID string, from []order.Status, to order.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return false, order.ErrNotFound
	}
	for _, f := range from {
		if o.Status == f {
			o.Status = to
			o.UpdatedAt = now()
			return true, nil
		}
	}
	return false, nil
}

// UpdateStatusByPaymentRef performs a compare-and-set status transition
// keyed by the external payment reference.
func (s *Store) UpdateStatusByPaymentRef(_ context.Context, ref string, from, to order.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRef[ref]
	if !ok {
		return false, order.ErrNotFound
	}
	o := s.orders[id]
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = now()
	return true, nil
}

func now() time.Time { return time.Now().UTC() }

func clone(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = append([]order.Line(nil), o.Lines...)
	return &cp
}
