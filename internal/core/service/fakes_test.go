package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/vinostock/internal/core/domain"
)

// In-memory StockRepository
type mockStockRepo struct {
	mu        sync.Mutex
	items     map[int64]domain.StockItem
	movements []domain.Movement
	nextID    int64
	// conflicts makes the next N UpdateMinimum calls fail with a version conflict
	conflicts int
}

func newMockStockRepo() *mockStockRepo {
	return &mockStockRepo{items: make(map[int64]domain.StockItem)}
}

func (m *mockStockRepo) appendMovement(itemID int64, typ domain.MovementType, qty int, at time.Time) {
	m.nextID++
	m.movements = append(m.movements, domain.Movement{ID: m.nextID, ItemID: itemID, Type: typ, Quantity: qty, Date: at})
}

func (m *mockStockRepo) Create(ctx context.Context, item domain.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.ItemID]; ok {
		return fmt.Errorf("stock item %d: %w", item.ItemID, domain.ErrAlreadyExists)
	}
	m.items[item.ItemID] = item
	if item.Quantity > 0 {
		m.appendMovement(item.ItemID, domain.MovementIncrease, item.Quantity, item.CreatedAt)
	}
	return nil
}

func (m *mockStockRepo) Get(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *mockStockRepo) List(ctx context.Context) ([]domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]domain.StockItem, 0, len(m.items))
	for _, it := range m.items {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

func (m *mockStockRepo) Increase(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error) {
	return m.mutate(itemID, amount, domain.MovementIncrease, at)
}

func (m *mockStockRepo) Decrease(ctx context.Context, itemID int64, amount int, at time.Time) (*domain.StockItem, error) {
	return m.mutate(itemID, amount, domain.MovementDecrease, at)
}

func (m *mockStockRepo) mutate(itemID int64, amount int, typ domain.MovementType, at time.Time) (*domain.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemID]
	if !ok {
		return nil, fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	}
	if typ == domain.MovementDecrease {
		if item.Quantity < amount {
			return nil, &domain.InsufficientStockError{ItemID: itemID, Available: item.Quantity, Requested: amount}
		}
		item.Quantity -= amount
	} else {
		if amount > domain.MaxStockQuantity-item.Quantity {
			return nil, fmt.Errorf("%w: stock of item %d would exceed %d", domain.ErrInvalidArgument, itemID, domain.MaxStockQuantity)
		}
		item.Quantity += amount
	}
	item.Version++
	item.UpdatedAt = at
	m.items[itemID] = item
	m.appendMovement(itemID, typ, amount, at)
	return &item, nil
}

func (m *mockStockRepo) UpdateMinimum(ctx context.Context, item domain.StockItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[item.ItemID]
	if !ok || m.conflicts > 0 || current.Version != item.Version {
		if m.conflicts > 0 {
			m.conflicts--
		}
		return domain.ErrOptimisticLock
	}
	current.MinimumQuantity = item.MinimumQuantity
	current.Version++
	m.items[item.ItemID] = current
	return nil
}

func (m *mockStockRepo) Delete(ctx context.Context, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[itemID]; !ok {
		return fmt.Errorf("stock item %d: %w", itemID, domain.ErrNotFound)
	}
	delete(m.items, itemID)
	return nil
}

func (m *mockStockRepo) ListMovements(ctx context.Context, itemID int64) ([]domain.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Movement{}
	for _, mv := range m.movements {
		if mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *mockStockRepo) quantity(itemID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[itemID].Quantity
}

func (m *mockStockRepo) movementCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.movements)
}

// Mock CatalogClient
type mockCatalog struct {
	mu    sync.Mutex
	items map[int64]domain.CatalogItem
	err   error
}

func newMockCatalog(ids ...int64) *mockCatalog {
	c := &mockCatalog{items: make(map[int64]domain.CatalogItem)}
	for _, id := range ids {
		c.items[id] = domain.CatalogItem{ID: id, Name: fmt.Sprintf("wine-%d", id), Price: decimal.NewFromInt(10)}
	}
	return c
}

func (c *mockCatalog) GetItem(ctx context.Context, itemID int64) (*domain.CatalogItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return nil, c.err
	}
	item, ok := c.items[itemID]
	if !ok {
		return nil, fmt.Errorf("catalog item %d: %w", itemID, domain.ErrNotFound)
	}
	return &item, nil
}

// Mock AlertPublisher
type mockPublisher struct {
	mu     sync.Mutex
	events []domain.LowStockEvent
	err    error
}

func (p *mockPublisher) PublishLowStock(ctx context.Context, event domain.LowStockEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)
	return p.err
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	locks          map[string]string
	idempotencySet map[string]string
	err            error
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		locks:          make(map[string]string),
		idempotencySet: make(map[string]string),
	}
}

func (m *mockCacheRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", false, m.err
	}
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	token := fmt.Sprintf("token-%d", len(m.locks)+1)
	m.locks[key] = token
	return token, true, nil
}

func (m *mockCacheRepo) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", false, m.err
	}
	if claimed, ok := m.idempotencySet[key]; ok {
		return claimed, false, nil
	}
	m.idempotencySet[key] = value
	return value, true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotencySet, key)
	return nil
}

// In-memory CartRepository with the single-open-cart constraint
type mockCartRepo struct {
	mu              sync.Mutex
	carts           map[int64]*domain.Cart
	openByUser      map[int64]int64
	nextCartID      int64
	nextItemID      int64
	reconciliations []domain.Reconciliation
	createCalls     int
	markErr         error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{
		carts:      make(map[int64]*domain.Cart),
		openByUser: make(map[int64]int64),
	}
}

func copyCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = append([]domain.CartItem{}, c.Items...)
	return &out
}

func (m *mockCartRepo) FindOpen(ctx context.Context, userID int64) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.openByUser[userID]
	if !ok {
		return nil, nil
	}
	return copyCart(m.carts[id]), nil
}

func (m *mockCartRepo) CreateOpen(ctx context.Context, userID int64, at time.Time) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.createCalls++
	if _, ok := m.openByUser[userID]; ok {
		return nil, fmt.Errorf("open cart for user %d: %w", userID, domain.ErrAlreadyExists)
	}
	m.nextCartID++
	cart := &domain.Cart{ID: m.nextCartID, UserID: userID, Items: []domain.CartItem{}, CreatedAt: at, UpdatedAt: at}
	m.carts[cart.ID] = cart
	m.openByUser[userID] = cart.ID
	return copyCart(cart), nil
}

// editable mirrors the row check the MySQL store runs before touching items.
func (m *mockCartRepo) editable(cartID int64) (*domain.Cart, error) {
	cart, ok := m.carts[cartID]
	if !ok || cart.CheckedOut {
		return nil, fmt.Errorf("open cart %d: %w", cartID, domain.ErrNotFound)
	}
	if cart.CheckoutPending {
		return nil, fmt.Errorf("cart %d: %w", cartID, domain.ErrCheckoutInProgress)
	}
	return cart, nil
}

func (m *mockCartRepo) UpsertItem(ctx context.Context, cartID, itemID int64, quantity int) (*domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, err := m.editable(cartID)
	if err != nil {
		return nil, err
	}
	cart.Version++
	for i := range cart.Items {
		if cart.Items[i].ItemID == itemID {
			cart.Items[i].Quantity += quantity
			item := cart.Items[i]
			return &item, nil
		}
	}
	m.nextItemID++
	item := domain.CartItem{ID: m.nextItemID, CartID: cartID, ItemID: itemID, Quantity: quantity}
	cart.Items = append(cart.Items, item)
	return &item, nil
}

func (m *mockCartRepo) UpdateItemQuantity(ctx context.Context, cartID, cartItemID int64, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, err := m.editable(cartID)
	if err != nil {
		return err
	}
	for i := range cart.Items {
		if cart.Items[i].ID == cartItemID {
			cart.Items[i].Quantity = quantity
			cart.Version++
			return nil
		}
	}
	return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
}

func (m *mockCartRepo) RemoveItem(ctx context.Context, cartID, cartItemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, err := m.editable(cartID)
	if err != nil {
		return err
	}
	for i := range cart.Items {
		if cart.Items[i].ID == cartItemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.Version++
			return nil
		}
	}
	return fmt.Errorf("cart item %d: %w", cartItemID, domain.ErrNotFound)
}

func (m *mockCartRepo) FreezeForCheckout(ctx context.Context, cartID, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[cartID]
	if !ok || cart.CheckedOut || cart.CheckoutPending || cart.Version != version {
		return fmt.Errorf("cart %d: %w", cartID, domain.ErrCartChanged)
	}
	cart.CheckoutPending = true
	cart.Version++
	return nil
}

func (m *mockCartRepo) Unfreeze(ctx context.Context, cartID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cart, ok := m.carts[cartID]; ok && !cart.CheckedOut {
		cart.CheckoutPending = false
		cart.Version++
	}
	return nil
}

func (m *mockCartRepo) MarkCheckedOut(ctx context.Context, cartID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}
	cart, ok := m.carts[cartID]
	if !ok || cart.CheckedOut {
		return fmt.Errorf("open cart %d: %w", cartID, domain.ErrNotFound)
	}
	cart.CheckedOut = true
	cart.CheckoutPending = false
	cart.CheckoutDate = &at
	delete(m.openByUser, cart.UserID)
	return nil
}

func (m *mockCartRepo) ListCheckedOut(ctx context.Context, userID int64) ([]domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []domain.Cart{}
	for _, c := range m.carts {
		if c.UserID == userID && c.CheckedOut {
			out = append(out, *copyCart(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockCartRepo) SaveReconciliation(ctx context.Context, rec domain.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconciliations = append(m.reconciliations, rec)
	return nil
}

func (m *mockCartRepo) cartCount(userID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.carts {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// inProcessLedger serves LedgerClient straight from a StockService.
type inProcessLedger struct {
	stock *StockService

	mu sync.Mutex
	// failDecrease injects an error for the given item's decrement
	failDecrease map[int64]error
	getErr       error
	// beforeGet and beforeDecrease run once, on the next call of that kind
	beforeGet      func()
	beforeDecrease func()
	requestIDs     []string
}

func (l *inProcessLedger) GetStock(ctx context.Context, itemID int64) (*domain.StockItem, error) {
	l.mu.Lock()
	err := l.getErr
	hook := l.beforeGet
	l.beforeGet = nil
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return l.stock.Get(ctx, itemID)
}

func (l *inProcessLedger) DecreaseStock(ctx context.Context, requestID string, itemID int64, amount int) (*domain.StockItem, error) {
	l.mu.Lock()
	err := l.failDecrease[itemID]
	hook := l.beforeDecrease
	l.beforeDecrease = nil
	l.requestIDs = append(l.requestIDs, requestID)
	l.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	item, _, err := l.stock.DecreaseOnce(ctx, requestID, itemID, amount)
	return item, err
}

// Mock AlertRepository
type mockAlertRepo struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
	err    error
}

func (r *mockAlertRepo) Save(ctx context.Context, alert domain.StockAlert) (*domain.StockAlert, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, false, r.err
	}
	for _, a := range r.alerts {
		if a.EventID == alert.EventID {
			existing := a
			return &existing, false, nil
		}
	}
	alert.ID = int64(len(r.alerts) + 1)
	r.alerts = append(r.alerts, alert)
	return &alert, true, nil
}

func (r *mockAlertRepo) List(ctx context.Context, limit int) ([]domain.StockAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.StockAlert{}
	for i := len(r.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.alerts[i])
	}
	return out, nil
}

// Mock AlertBroadcaster / AlertNotifier
type mockSink struct {
	mu     sync.Mutex
	alerts []domain.StockAlert
	err    error
}

func (s *mockSink) Broadcast(ctx context.Context, alert domain.StockAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.alerts = append(s.alerts, alert)
	return s.err
}

func (s *mockSink) Notify(ctx context.Context, alert domain.StockAlert) error {
	return s.Broadcast(ctx, alert)
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}
