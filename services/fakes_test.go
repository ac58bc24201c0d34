package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"sales-service/models"
	"sales-service/repository"

	"gorm.io/gorm"
)

// --- In-memory unit of work ---

type lineKey struct{ orderID, productID int }

type memStore struct {
	mu           sync.Mutex
	customers    map[int]models.Customer
	orders       map[int]models.Order
	lines        map[lineKey]models.OrderProduct
	nextCustomer int
	nextOrder    int
	commits      int
	rollbacks    int

	// failLine makes AddOrIncrement fail for that product id
	failLine int
}

func newMemStore() *memStore {
	return &memStore{
		customers:    map[int]models.Customer{},
		orders:       map[int]models.Order{},
		lines:        map[lineKey]models.OrderProduct{},
		nextCustomer: 1,
		nextOrder:    1,
	}
}

func (s *memStore) addCustomer(name string) models.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := models.Customer{CustomerID: s.nextCustomer, Name: name}
	s.nextCustomer++
	s.customers[c.CustomerID] = c
	return c
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) lineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

type memUOW struct{ s *memStore }

func (u memUOW) Customers() repository.CustomerRepository         { return memCustomers(u) }
func (u memUOW) Orders() repository.OrderRepository               { return memOrders(u) }
func (u memUOW) OrderProducts() repository.OrderProductRepository { return memLines(u) }

func (u memUOW) Transaction(_ context.Context, fn func(tx repository.UnitOfWork) error) error {
	u.s.mu.Lock()
	customers := make(map[int]models.Customer, len(u.s.customers))
	for k, v := range u.s.customers {
		customers[k] = v
	}
	orders := make(map[int]models.Order, len(u.s.orders))
	for k, v := range u.s.orders {
		orders[k] = v
	}
	lines := make(map[lineKey]models.OrderProduct, len(u.s.lines))
	for k, v := range u.s.lines {
		lines[k] = v
	}
	u.s.mu.Unlock()

	if err := fn(u); err != nil {
		u.s.mu.Lock()
		u.s.customers, u.s.orders, u.s.lines = customers, orders, lines
		u.s.rollbacks++
		u.s.mu.Unlock()
		return err
	}
	u.s.mu.Lock()
	u.s.commits++
	u.s.mu.Unlock()
	return nil
}

type memCustomers memUOW

func (r memCustomers) Create(_ context.Context, c *models.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c.CustomerID = r.s.nextCustomer
	r.s.nextCustomer++
	r.s.customers[c.CustomerID] = *c
	return nil
}

func (r memCustomers) FindByID(_ context.Context, id int) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &c, nil
}

func (r memCustomers) FindAll(_ context.Context) ([]models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Customer, 0, len(r.s.customers))
	for _, c := range r.s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out, nil
}

func (r memCustomers) Update(_ context.Context, c *models.Customer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[c.CustomerID]; !ok {
		return gorm.ErrRecordNotFound
	}
	r.s.customers[c.CustomerID] = *c
	return nil
}

func (r memCustomers) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	for _, o := range r.s.orders {
		if o.CustomerID == id {
			return gorm.ErrForeignKeyViolated
		}
	}
	delete(r.s.customers, id)
	return nil
}

type memOrders memUOW

func (r memOrders) Create(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.customers[o.CustomerID]; !ok {
		return gorm.ErrForeignKeyViolated
	}
	o.OrderID = r.s.nextOrder
	r.s.nextOrder++
	stored := *o
	stored.OrderProducts = nil
	r.s.orders[o.OrderID] = stored
	return nil
}

// loadLocked attaches the order's lines sorted by product id.
func (r memOrders) loadLocked(o models.Order) models.Order {
	o.OrderProducts = []models.OrderProduct{}
	for k, line := range r.s.lines {
		if k.orderID == o.OrderID {
			o.OrderProducts = append(o.OrderProducts, line)
		}
	}
	sort.Slice(o.OrderProducts, func(i, j int) bool {
		return o.OrderProducts[i].ProductID < o.OrderProducts[j].ProductID
	})
	return o
}

func (r memOrders) FindByID(_ context.Context, id int) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	loaded := r.loadLocked(o)
	return &loaded, nil
}

func (r memOrders) list(open bool) []models.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Order{}
	for _, o := range r.s.orders {
		if open && o.IsCheckedOut {
			continue
		}
		out = append(out, r.loadLocked(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

func (r memOrders) FindAll(_ context.Context) ([]models.Order, error)  { return r.list(false), nil }
func (r memOrders) FindOpen(_ context.Context) ([]models.Order, error) { return r.list(true), nil }

func (r memOrders) LockByID(_ context.Context, id int) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (r memOrders) MarkCheckedOut(_ context.Context, id int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok || o.IsCheckedOut {
		return false, nil
	}
	o.IsCheckedOut = true
	r.s.orders[id] = o
	return true, nil
}

func (r memOrders) Delete(_ context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.orders[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.orders, id)
	for k := range r.s.lines {
		if k.orderID == id {
			delete(r.s.lines, k)
		}
	}
	return nil
}

type memLines memUOW

var errInjected = errors.New("injected storage failure")

func (r memLines) AddOrIncrement(_ context.Context, line *models.OrderProduct) (*models.OrderProduct, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failLine != 0 && line.ProductID == r.s.failLine {
		return nil, errInjected
	}
	key := lineKey{line.OrderID, line.ProductID}
	stored, ok := r.s.lines[key]
	if line.Quantity < 1 || line.Quantity > models.MaxLineQuantity-stored.Quantity {
		return nil, repository.ErrQuantityOutOfRange
	}
	if ok {
		stored.Quantity += line.Quantity
	} else {
		stored = *line
	}
	stored.RecomputeTotal()
	r.s.lines[key] = stored
	return &stored, nil
}

func (r memLines) SetQuantity(_ context.Context, orderID, productID, quantity int) (*models.OrderProduct, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := lineKey{orderID, productID}
	stored, ok := r.s.lines[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if quantity > models.MaxLineQuantity {
		return nil, repository.ErrQuantityOutOfRange
	}
	if quantity <= 0 {
		delete(r.s.lines, key)
		return nil, nil
	}
	stored.Quantity = quantity
	stored.RecomputeTotal()
	r.s.lines[key] = stored
	return &stored, nil
}

func (r memLines) Remove(_ context.Context, orderID, productID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := lineKey{orderID, productID}
	if _, ok := r.s.lines[key]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.lines, key)
	return nil
}

func (r memLines) Find(_ context.Context, orderID, productID int) (*models.OrderProduct, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.lines[lineKey{orderID, productID}]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &stored, nil
}

func (r memLines) FindByOrder(ctx context.Context, orderID int) ([]models.OrderProduct, error) {
	o, err := memOrders(r).FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return o.OrderProducts, nil
}

func (r memLines) FindOpen(_ context.Context) ([]models.OrderProduct, error) {
	var out []models.OrderProduct
	for _, o := range memOrders(r).list(true) {
		out = append(out, o.OrderProducts...)
	}
	return out, nil
}

// --- Collaborator fakes ---

type fakeStock map[int]int

func (f fakeStock) AvailableStock(productID int) int { return f[productID] }

type sentCommand struct {
	ProductID int
	Quantity  int
	Action    string
}

type fakeCommander struct {
	mu   sync.Mutex
	sent []sentCommand
	// errFor returns the error for a product id, nil for success
	errFor func(productID int) error
}

func (f *fakeCommander) SendCommand(_ context.Context, productID, quantity int, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{productID, quantity, action})
	if f.errFor != nil {
		return f.errFor(productID)
	}
	return nil
}

func (f *fakeCommander) commands() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentCommand(nil), f.sent...)
}

type published struct {
	Topic   string
	Payload interface{}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
}

func (f *fakePublisher) Publish(topic string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{topic, payload})
}

func (f *fakePublisher) all() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.events...)
}

type fakeQueue struct {
	mu      sync.Mutex
	items   []models.StockCommand
	pushErr error
	popErr  error
}

func (q *fakeQueue) Push(_ context.Context, cmd models.StockCommand) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pushErr != nil {
		return q.pushErr
	}
	q.items = append(q.items, cmd)
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context, timeout time.Duration) (*models.StockCommand, error) {
	q.mu.Lock()
	if q.popErr != nil {
		err := q.popErr
		q.mu.Unlock()
		return nil, err
	}
	if len(q.items) > 0 {
		cmd := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		return &cmd, nil
	}
	q.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, nil
	}
}

func (q *fakeQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}

func (q *fakeQueue) snapshot() []models.StockCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.StockCommand(nil), q.items...)
}

type fakeMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[name]++
	return nil
}

func (f *fakeMetrics) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}
