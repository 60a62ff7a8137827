package purchase

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/database"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/messaging"
	"github.com/Additional-Code/handoff/internal/observability"
	orderrepo "github.com/Additional-Code/handoff/internal/repository/order"
	productrepo "github.com/Additional-Code/handoff/internal/repository/product"
)

// fakeDB keeps every table in memory. InTx holds one mutex for the whole
// unit of work, standing in for row locks, and restores a snapshot when the
// work fails.
type fakeDB struct {
	mu        sync.Mutex
	nextID    int64
	orders    map[int64]entity.Order
	products  map[int64]entity.Product
	sales     map[int64]decimal.Decimal
	purchases map[int64]decimal.Decimal
	failSales bool
	// collisions makes the next n order inserts fail as duplicate codes.
	collisions int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		orders:    map[int64]entity.Order{},
		products:  map[int64]entity.Product{},
		sales:     map[int64]decimal.Decimal{},
		purchases: map[int64]decimal.Decimal{},
	}
}

func (db *fakeDB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	orders := clone(db.orders)
	products := clone(db.products)
	sales := clone(db.sales)
	purchases := clone(db.purchases)

	if err := fn(ctx); err != nil {
		db.orders, db.products, db.sales, db.purchases = orders, products, sales, purchases
		return err
	}
	return nil
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type fakeOrders struct{ db *fakeDB }

func (f fakeOrders) Create(_ context.Context, o *entity.Order) error {
	if f.db.collisions > 0 {
		f.db.collisions--
		return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
	}
	f.db.nextID++
	o.ID = f.db.nextID
	f.db.orders[o.ID] = *o
	return nil
}

func (f fakeOrders) GetByID(_ context.Context, id int64) (*entity.Order, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	o, ok := f.db.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return &o, nil
}

func (f fakeOrders) LockByID(_ context.Context, id int64) (*entity.Order, error) {
	o, ok := f.db.orders[id]
	if !ok {
		return nil, orderrepo.ErrNotFound
	}
	return &o, nil
}

func (f fakeOrders) UpdateStatus(_ context.Context, o *entity.Order, from ...entity.OrderStatus) error {
	stored := f.db.orders[o.ID]
	for _, s := range from {
		if stored.Status == s {
			f.db.orders[o.ID] = *o
			return nil
		}
	}
	return orderrepo.ErrStatusChanged
}

type fakeProducts struct{ db *fakeDB }

func (f fakeProducts) GetByID(_ context.Context, id int64) (*entity.Product, error) {
	p, ok := f.db.products[id]
	if !ok {
		return nil, productrepo.ErrNotFound
	}
	return &p, nil
}

func (f fakeProducts) LockByID(ctx context.Context, id int64) (*entity.Product, error) {
	return f.GetByID(ctx, id)
}

func (f fakeProducts) Reserve(_ context.Context, id int64, qty int) error {
	p := f.db.products[id]
	if p.Inventory < qty {
		return productrepo.ErrInsufficientInventory
	}
	p.Inventory -= qty
	p.PurchaseCount += qty
	f.db.products[id] = p
	return nil
}

type fakeLedger struct{ db *fakeDB }

func (f fakeLedger) AddSales(_ context.Context, id int64, amount decimal.Decimal) error {
	if f.db.failSales {
		return errors.New("ledger unavailable")
	}
	f.db.sales[id] = f.db.sales[id].Add(amount)
	return nil
}

func (f fakeLedger) AddPurchases(_ context.Context, id int64, amount decimal.Decimal) error {
	f.db.purchases[id] = f.db.purchases[id].Add(amount)
	return nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []messaging.Message
}

func (r *recordingPublisher) Publish(_ context.Context, msg messaging.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}
func (r *recordingPublisher) Consume(context.Context, messaging.Handler) error { return nil }
func (r *recordingPublisher) Topic() string                                    { return "handoff.events" }

const (
	sellerID = int64(100)
	buyerID  = int64(200)
	agentID  = int64(300)
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newService(t *testing.T) (*Service, *fakeDB, *recordingPublisher) {
	t.Helper()
	db := newFakeDB()
	db.products[1] = entity.Product{ID: 1, SellerID: sellerID, Title: "Lamp", Price: d("25.50"), Inventory: 5}
	pub := &recordingPublisher{}
	svc := New(fakeOrders{db}, fakeProducts{db}, fakeLedger{db}, db, pub, "handoff.events", d("5.00"),
		observability.NopMetrics(), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return svc, db, pub
}

func seedOrder(db *fakeDB, status entity.OrderStatus, price, fee string) int64 {
	db.nextID++
	db.orders[db.nextID] = entity.Order{
		ID:             db.nextID,
		Code:           "ORD-SEEDED01",
		BuyerID:        buyerID,
		ProductID:      1,
		Quantity:       1,
		UnitPrice:      d(price),
		PurchasePrice:  d(price),
		DeliveryMethod: entity.DeliveryPickup,
		DeliveryFee:    d(fee),
		Status:         status,
	}
	return db.nextID
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name       string
		in         CreateInput
		wantStatus entity.OrderStatus
		wantFee    string
		wantPrice  string
	}{
		{
			name:       "pickup",
			in:         CreateInput{BuyerID: buyerID, ProductID: 1, Quantity: 2, DeliveryMethod: entity.DeliveryPickup},
			wantStatus: entity.StatusAwaitingPickup,
			wantFee:    "0",
			wantPrice:  "51.00",
		},
		{
			name:       "delivery",
			in:         CreateInput{BuyerID: buyerID, ProductID: 1, Quantity: 1, DeliveryMethod: entity.DeliveryDelivery, DeliveryAddress: "12 Hill Rd"},
			wantStatus: entity.StatusAwaitingDelivery,
			wantFee:    "5.00",
			wantPrice:  "25.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newService(t)

			order, err := svc.Create(context.Background(), tt.in)
			require.NoError(t, err)

			assert.Regexp(t, regexp.MustCompile(`^ORD-[0-9A-F]{8}$`), order.Code)
			assert.Equal(t, tt.wantStatus, order.Status)
			assert.True(t, order.DeliveryFee.Equal(d(tt.wantFee)), "fee %s", order.DeliveryFee)
			assert.True(t, order.PurchasePrice.Equal(d(tt.wantPrice)), "price %s", order.PurchasePrice)
			assert.True(t, order.UnitPrice.Equal(d("25.50")))
			assert.False(t, order.Settled())

			assert.Equal(t, 5-tt.in.Quantity, db.products[1].Inventory)
			assert.Equal(t, tt.wantStatus, db.orders[order.ID].Status)
		})
	}
}

func TestCreate_RetriesOrderCodeCollision(t *testing.T) {
	svc, db, _ := newService(t)
	db.collisions = 1

	order, err := svc.Create(context.Background(), CreateInput{BuyerID: buyerID, ProductID: 1, Quantity: 1, DeliveryMethod: entity.DeliveryPickup})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAwaitingPickup, order.Status)
	assert.Equal(t, 4, db.products[1].Inventory)
	assert.Len(t, db.orders, 1)
}

func TestCreate_GivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, db, _ := newService(t)
	db.collisions = codeAttempts

	_, err := svc.Create(context.Background(), CreateInput{BuyerID: buyerID, ProductID: 1, Quantity: 1, DeliveryMethod: entity.DeliveryPickup})
	assert.True(t, database.IsUniqueViolation(err))
	assert.Equal(t, 5, db.products[1].Inventory)
	assert.Empty(t, db.orders)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{"zero_quantity", CreateInput{ProductID: 1, Quantity: 0, DeliveryMethod: entity.DeliveryPickup}, ErrInvalidQuantity},
		{"unknown_method", CreateInput{ProductID: 1, Quantity: 1, DeliveryMethod: "drone"}, ErrInvalidDeliveryMethod},
		{"delivery_without_address", CreateInput{ProductID: 1, Quantity: 1, DeliveryMethod: entity.DeliveryDelivery}, ErrAddressRequired},
		{"out_of_stock", CreateInput{ProductID: 1, Quantity: 6, DeliveryMethod: entity.DeliveryPickup}, ErrInsufficientInventory},
		{"unknown_product", CreateInput{ProductID: 9, Quantity: 1, DeliveryMethod: entity.DeliveryPickup}, ErrProductNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newService(t)
			tt.in.BuyerID = buyerID

			_, err := svc.Create(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, db.orders)
			assert.Equal(t, 5, db.products[1].Inventory)
		})
	}
}

func TestComplete_SettlesAndCredits(t *testing.T) {
	svc, db, pub := newService(t)
	id := seedOrder(db, entity.StatusAwaitingPickup, "10000", "500")

	got, err := svc.Complete(context.Background(), id, agentID)
	require.NoError(t, err)

	assert.Equal(t, "8000.00", got.SellerAmount.StringFixed(2))
	assert.Equal(t, "2500.00", got.PlatformAmount.StringFixed(2))

	stored := db.orders[id]
	assert.Equal(t, entity.StatusCompleted, stored.Status)
	require.NotNil(t, stored.AgentID)
	assert.Equal(t, agentID, *stored.AgentID)
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.SellerAmount.Decimal.Equal(d("8000")))

	assert.True(t, db.sales[sellerID].Equal(d("8000")))
	assert.True(t, db.purchases[buyerID].Equal(d("10000")))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, EventOrderCompleted, pub.msgs[0].EventType())
	assert.Equal(t, "handoff.events", pub.msgs[0].Topic)
}

func TestComplete_SecondCallIsRejected(t *testing.T) {
	svc, db, pub := newService(t)
	id := seedOrder(db, entity.StatusAwaitingPickup, "100", "0")
	ctx := context.Background()

	_, err := svc.Complete(ctx, id, agentID)
	require.NoError(t, err)
	first := db.orders[id]

	_, err = svc.Complete(ctx, id, agentID+1)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, entity.StatusCompleted, te.From)

	assert.Equal(t, first, db.orders[id])
	assert.True(t, db.sales[sellerID].Equal(d("80")))
	assert.True(t, db.purchases[buyerID].Equal(d("100")))
	assert.Len(t, pub.msgs, 1)
}

func TestComplete_ConcurrentAgents(t *testing.T) {
	svc, db, _ := newService(t)
	id := seedOrder(db, entity.StatusAwaitingPickup, "40", "0")

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(agent int64) {
			defer wg.Done()
			_, err := svc.Complete(context.Background(), id, agent)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, ErrInvalidTransition):
				rejected.Add(1)
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(9), rejected.Load())
	assert.True(t, db.sales[sellerID].Equal(d("32")))
	assert.True(t, db.purchases[buyerID].Equal(d("40")))
}

func TestComplete_KeepsExistingSettlement(t *testing.T) {
	svc, db, _ := newService(t)
	id := seedOrder(db, entity.StatusAwaitingPickup, "100", "0")
	o := db.orders[id]
	o.SellerAmount = decimal.NewNullDecimal(d("70"))
	o.PlatformAmount = decimal.NewNullDecimal(d("30"))
	db.orders[id] = o

	got, err := svc.Complete(context.Background(), id, agentID)
	require.NoError(t, err)
	assert.True(t, got.SellerAmount.Equal(d("70")))
	assert.True(t, got.PlatformAmount.Equal(d("30")))
}

func TestComplete_FailureRollsBack(t *testing.T) {
	svc, db, pub := newService(t)
	id := seedOrder(db, entity.StatusAwaitingPickup, "100", "0")
	db.failSales = true

	_, err := svc.Complete(context.Background(), id, agentID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)

	stored := db.orders[id]
	assert.Equal(t, entity.StatusAwaitingPickup, stored.Status)
	assert.False(t, stored.Settled())
	assert.Nil(t, stored.CompletedAt)
	assert.Empty(t, pub.msgs)
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    entity.OrderStatus
		action  func(*Service, int64) error
		wantErr bool
		want    entity.OrderStatus
	}{
		{"out_for_delivery", entity.StatusAwaitingDelivery, markOut, false, entity.StatusOutForDelivery},
		{"out_for_delivery_from_pickup", entity.StatusAwaitingPickup, markOut, true, entity.StatusAwaitingPickup},
		{"complete_out_for_delivery", entity.StatusOutForDelivery, complete, false, entity.StatusCompleted},
		{"complete_pending", entity.StatusPending, complete, true, entity.StatusPending},
		{"complete_cancelled", entity.StatusCancelled, complete, true, entity.StatusCancelled},
		{"cancel_awaiting", entity.StatusAwaitingPickup, cancel, false, entity.StatusCancelled},
		{"cancel_completed", entity.StatusCompleted, cancel, true, entity.StatusCompleted},
		{"cancel_twice", entity.StatusCancelled, cancel, true, entity.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newService(t)
			id := seedOrder(db, tt.from, "10", "0")

			err := tt.action(svc, id)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, db.orders[id].Status)
		})
	}
}

func TestCancel_DoesNotRestoreInventory(t *testing.T) {
	svc, db, _ := newService(t)
	order, err := svc.Create(context.Background(), CreateInput{BuyerID: buyerID, ProductID: 1, Quantity: 3, DeliveryMethod: entity.DeliveryPickup})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, db.products[1].Inventory)
}

func TestCanTransition_TerminalStates(t *testing.T) {
	all := []entity.OrderStatus{
		entity.StatusPending, entity.StatusAwaitingPickup, entity.StatusAwaitingDelivery,
		entity.StatusOutForDelivery, entity.StatusCompleted, entity.StatusCancelled,
	}
	for _, s := range []entity.OrderStatus{entity.StatusCompleted, entity.StatusCancelled} {
		for _, to := range all {
			assert.False(t, CanTransition(s, to), "%s -> %s", s, to)
		}
	}
	assert.True(t, CanTransition(entity.StatusPending, entity.StatusCancelled))
}

func TestMarkOutThenCancel_LeavesNoFulfillmentAgent(t *testing.T) {
	svc, db, _ := newService(t)
	id := seedOrder(db, entity.StatusAwaitingDelivery, "10", "5")

	require.NoError(t, markOut(svc, id))
	require.NoError(t, cancel(svc, id))

	stored := db.orders[id]
	assert.Equal(t, entity.StatusCancelled, stored.Status)
	assert.Nil(t, stored.AgentID)
	assert.Nil(t, stored.CompletedAt)
	require.NotNil(t, stored.DispatchedBy)
	assert.Equal(t, agentID, *stored.DispatchedBy)
}

func TestMarkOutThenComplete_RecordsBothAgents(t *testing.T) {
	svc, db, _ := newService(t)
	id := seedOrder(db, entity.StatusAwaitingDelivery, "10", "5")

	require.NoError(t, markOut(svc, id))
	assert.Nil(t, db.orders[id].AgentID)

	const courierID = int64(301)
	_, err := svc.Complete(context.Background(), id, courierID)
	require.NoError(t, err)

	stored := db.orders[id]
	require.NotNil(t, stored.AgentID)
	assert.Equal(t, courierID, *stored.AgentID)
	require.NotNil(t, stored.DispatchedBy)
	assert.Equal(t, agentID, *stored.DispatchedBy)
}

func markOut(s *Service, id int64) error {
	_, err := s.MarkOutForDelivery(context.Background(), id, agentID)
	return err
}

func complete(s *Service, id int64) error {
	_, err := s.Complete(context.Background(), id, agentID)
	return err
}

func cancel(s *Service, id int64) error {
	_, err := s.Cancel(context.Background(), id)
	return err
}
