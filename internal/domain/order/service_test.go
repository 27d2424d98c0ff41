package order

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valyxa/storefront/internal/domain/cart"
)

// --- Mock implementations ---

// fakeRepo implements Repository over maps with the same conditional-update
// semantics as the real storage backends.
type fakeRepo struct {
	snapshot  []cart.Line
	orders    map[string]*Order
	byRef     map[string]string
	createErr error
}

func newFakeRepo(snapshot ...cart.Line) *fakeRepo {
	return &fakeRepo{
		snapshot: snapshot,
		orders:   make(map[string]*Order),
		byRef:    make(map[string]string),
	}
}

func (f *fakeRepo) CreateFromCart(_ context.Context, userID string, method PaymentMethod) (*Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	o, err := NewFromSnapshot(userID, method, f.snapshot)
	if err != nil {
		return nil, err
	}
	f.snapshot = nil // cart drained
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByPaymentRef(_ context.Context, ref string) (*Order, error) {
	id, ok := f.byRef[ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *f.orders[id]
	return &cp, nil
}

func (f *fakeRepo) AttachPaymentRef(_ context.Context, orderID, ref string) error {
	o, ok := f.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	switch o.PaymentIntentID {
	case "":
		o.PaymentIntentID = ref
		f.byRef[ref] = orderID
		return nil
	case ref:
		return nil
	default:
		return ErrPaymentRefConflict
	}
}

func (f *fakeRepo) UpdateStatusIf(_ context.Context, orderID string, from []Status, to Status) (bool, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	for _, src := range from {
		if o.Status == src {
			o.Status = to
			o.UpdatedAt = time.Now().UTC()
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) UpdateStatusByPaymentRef(_ context.Context, ref string, from, to Status) (bool, error) {
	id, ok := f.byRef[ref]
	if !ok {
		return false, ErrNotFound
	}
	o := f.orders[id]
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

// recordingSink counts emitted events per type.
type recordingSink struct {
	created       int
	paid          int
	statusChanged int
}

func (s *recordingSink) OrderCreated(context.Context, *Order)       { s.created++ }
func (s *recordingSink) OrderPaid(context.Context, *Order)          { s.paid++ }
func (s *recordingSink) OrderStatusChanged(context.Context, *Order) { s.statusChanged++ }

// --- Helpers ---

func testLine(id, price string, qty int) cart.Line {
	return cart.Line{
		ProductID:   id,
		ProductName: id,
		UnitPrice:   decimal.RequireFromString(price),
		Quantity:    qty,
	}
}

// checkout creates a card order and attaches the given payment reference.
func checkout(t *testing.T, svc *Service, repo *fakeRepo, userID, ref string) *Order {
	t.Helper()
	o, err := svc.Checkout(context.Background(), userID, "card")
	require.NoError(t, err)
	if ref != "" {
		require.NoError(t, repo.AttachPaymentRef(context.Background(), o.ID, ref))
	}
	return o
}

// --- Tests ---

func TestCheckout_InvalidPaymentMethod(t *testing.T) {
	svc := NewService(newFakeRepo(testLine("p1", "10.00", 1)), nil)

	_, err := svc.Checkout(context.Background(), "u1", "crypto")
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	_, err := svc.Checkout(context.Background(), "u1", "cash")
	assert.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestCheckout_CreatesPendingOrder(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(newFakeRepo(
		testLine("p1", "10.00", 2),
		testLine("p2", "5.00", 1),
	), sink)

	o, err := svc.Checkout(context.Background(), "u1", "cash")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("25.00").Equal(o.TotalAmount))
	assert.Equal(t, 1, sink.created)
}

func TestGet_OwnershipScoped(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "")

	got, err := svc.Get(context.Background(), "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	// Another user's lookup is indistinguishable from a missing order.
	_, err = svc.Get(context.Background(), "u2", o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachPaymentRef_Idempotent(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "")

	got, err := svc.AttachPaymentRef(context.Background(), "u1", o.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.PaymentIntentID)

	// Same value again is a no-op.
	got, err = svc.AttachPaymentRef(context.Background(), "u1", o.ID, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", got.PaymentIntentID)

	// A different value conflicts.
	_, err = svc.AttachPaymentRef(context.Background(), "u1", o.ID, "pi_2")
	assert.ErrorIs(t, err, ErrPaymentRefConflict)
}

func TestApplyPaymentSucceeded_MovesToPaidOnce(t *testing.T) {
	sink := &recordingSink{}
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, sink)
	o := checkout(t, svc, repo, "u1", "pi_1")

	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_1"))

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, 1, sink.paid)

	// Redelivery converges with no duplicate side effects.
	firstUpdate := got.UpdatedAt
	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_1"))

	got, err = repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, firstUpdate, got.UpdatedAt)
	assert.Equal(t, 1, sink.paid)
}

func TestApplyPaymentSucceeded_UnknownRefIsNoOp(t *testing.T) {
	sink := &recordingSink{}
	svc := NewService(newFakeRepo(), sink)

	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_unknown"))
	assert.Zero(t, sink.paid)
}

func TestApplyPaymentSucceeded_CancelledOrderStaysCancelled(t *testing.T) {
	sink := &recordingSink{}
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, sink)
	o := checkout(t, svc, repo, "u1", "pi_1")

	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "cancelled"))
	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_1"))

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Zero(t, sink.paid)
}

func TestApplyPaymentFailed_OrderStaysPending(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "pi_1")

	require.NoError(t, svc.ApplyPaymentFailed(context.Background(), "pi_1"))

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	// Unknown reference is also a logged no-op.
	require.NoError(t, svc.ApplyPaymentFailed(context.Background(), "pi_unknown"))
}

func TestApplyStatusChange_HappyPath(t *testing.T) {
	sink := &recordingSink{}
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, sink)
	o := checkout(t, svc, repo, "u1", "pi_1")
	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_1"))

	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "shipped"))
	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "delivered"))

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, 2, sink.statusChanged)
}

func TestApplyStatusChange_UnknownStatusRejected(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "")

	err := svc.ApplyStatusChange(context.Background(), o.ID, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}

func TestApplyStatusChange_InvalidFromCurrent(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "")

	// pending cannot go straight to shipped.
	err := svc.ApplyStatusChange(context.Background(), o.ID, "shipped")
	var itErr *InvalidTransitionError
	require.ErrorAs(t, err, &itErr)
	assert.Equal(t, StatusPending, itErr.From)
	assert.Equal(t, StatusShipped, itErr.To)
}

func TestApplyStatusChange_TerminalStateRejectsExit(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "pi_1")
	require.NoError(t, svc.ApplyPaymentSucceeded(context.Background(), "pi_1"))
	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "shipped"))
	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "delivered"))

	for _, target := range []string{"pending", "paid", "shipped", "cancelled"} {
		err := svc.ApplyStatusChange(context.Background(), o.ID, target)
		require.Error(t, err, "delivered -> %s must fail", target)
	}

	got, err := repo.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
}

func TestApplyStatusChange_AlreadyAtTargetIsNoOp(t *testing.T) {
	repo := newFakeRepo(testLine("p1", "10.00", 1))
	svc := NewService(repo, nil)
	o := checkout(t, svc, repo, "u1", "")

	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "cancelled"))
	// A racing caller requesting the same end state succeeds as a no-op.
	require.NoError(t, svc.ApplyStatusChange(context.Background(), o.ID, "cancelled"))
}

func TestApplyStatusChange_NotFound(t *testing.T) {
	svc := NewService(newFakeRepo(), nil)

	err := svc.ApplyStatusChange(context.Background(), "missing", "cancelled")
	assert.ErrorIs(t, err, ErrNotFound)
}
