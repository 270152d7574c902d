package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/cache"
	"github.com/pcforge/storefront/internal/cartrepo"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

type mockProducts struct {
	m        sync.RWMutex
	products map[int64]*domain.Product
	nextID   int64
	tags     map[int64]domain.Tag
	err      error
}

func newMockProducts(products ...*domain.Product) *mockProducts {
	m := &mockProducts{products: map[int64]*domain.Product{}, tags: map[int64]domain.Tag{}, nextID: 100}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProducts) ListProducts(_ context.Context, f domain.ProductFilter) ([]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []*domain.Product{}
	for _, p := range m.products {
		if p.Archived || (f.Category != "" && p.Category != f.Category) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, m.err
}

func (m *mockProducts) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProducts) GetProductBySlug(_ context.Context, slug string) (*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, p := range m.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (m *mockProducts) SetProductTags(_ context.Context, id int64, tagIDs []int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	tags := []domain.Tag{}
	for _, tid := range tagIDs {
		t, ok := m.tags[tid]
		if !ok {
			return repository.ErrTagNotFound
		}
		tags = append(tags, t)
	}
	p.Tags = tags
	return nil
}

func (m *mockProducts) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]*domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[int64]*domain.Product{}
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *mockProducts) CreateProduct(_ context.Context, p *domain.Product, tagIDs []int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	for _, existing := range m.products {
		if existing.Slug == p.Slug {
			return repository.ErrConflict
		}
	}
	for _, id := range tagIDs {
		if _, ok := m.tags[id]; !ok {
			return repository.ErrTagNotFound
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.products[p.ID] = p
	return nil
}

func (m *mockProducts) UpdateProduct(_ context.Context, p *domain.Product, _ []int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return repository.ErrProductNotFound
	}
	m.products[p.ID] = p
	return nil
}

func (m *mockProducts) ArchiveProduct(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Archived = true
	return nil
}

func (m *mockProducts) ListTags(context.Context) ([]domain.Tag, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []domain.Tag{}
	for _, t := range m.tags {
		out = append(out, t)
	}
	return out, nil
}

func (m *mockProducts) CreateTag(_ context.Context, name string) (*domain.Tag, error) {
	m.m.Lock()
	defer m.m.Unlock()
	for _, t := range m.tags {
		if t.Name == name {
			return nil, repository.ErrConflict
		}
	}
	t := domain.Tag{ID: int64(len(m.tags) + 1), Name: name}
	m.tags[t.ID] = t
	return &t, nil
}

func (m *mockProducts) DeleteTag(_ context.Context, id int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.tags[id]; !ok {
		return repository.ErrTagNotFound
	}
	delete(m.tags, id)
	return nil
}

type mockCartRepo struct {
	m     sync.RWMutex
	carts map[int64]*domain.Cart
	seq   int
	err   error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: map[int64]*domain.Cart{}}
}

func (m *mockCartRepo) GetCart(_ context.Context, userID int64) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		return nil, cartrepo.ErrCartNotFound
	}
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp, nil
}

func (m *mockCartRepo) AddItems(_ context.Context, userID int64, lines []domain.NewLine) (*domain.Cart, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.carts[userID]
	if !ok {
		c = &domain.Cart{UserID: userID}
		m.carts[userID] = c
	}
	for _, l := range lines {
		merged := false
		for i := range c.Items {
			if c.Items[i].ProductID == l.ProductID {
				c.Items[i].Quantity = domain.ClampQuantity(c.Items[i].Quantity + l.Quantity)
				if l.CustomBuildName != "" {
					c.Items[i].CustomBuildName = l.CustomBuildName
				}
				merged = true
			}
		}
		if !merged {
			m.seq++
			c.Items = append(c.Items, domain.CartItem{
				ID:              "line-" + strconv.Itoa(m.seq),
				ProductID:       l.ProductID,
				Quantity:        domain.ClampQuantity(l.Quantity),
				CustomBuildName: l.CustomBuildName,
				AddedAt:         time.Now(),
			})
		}
	}
	return c, nil
}

func (m *mockCartRepo) UpdateLineQuantity(_ context.Context, userID int64, lineID string, quantity int) error {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return cartrepo.ErrCartNotFound
	}
	for i := range c.Items {
		if c.Items[i].ID == lineID {
			c.Items[i].Quantity = quantity
			return nil
		}
	}
	return cartrepo.ErrItemNotFound
}

func (m *mockCartRepo) RemoveLine(_ context.Context, userID int64, lineID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	c, ok := m.carts[userID]
	if !ok {
		return cartrepo.ErrCartNotFound
	}
	for i, item := range c.Items {
		if item.ID == lineID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return cartrepo.ErrItemNotFound
}

func (m *mockCartRepo) DeleteCart(_ context.Context, userID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.carts[userID]; !ok {
		return cartrepo.ErrCartNotFound
	}
	delete(m.carts, userID)
	return nil
}

func (m *mockCartRepo) OwnerOfLine(_ context.Context, lineID string) (int64, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	for userID, c := range m.carts {
		for _, item := range c.Items {
			if item.ID == lineID {
				return userID, nil
			}
		}
	}
	return 0, cartrepo.ErrItemNotFound
}

type mockCache struct {
	m         sync.RWMutex
	carts     map[int64]*domain.Cart
	beforeSet func()
}

func newMockCache() *mockCache {
	return &mockCache{carts: map[int64]*domain.Cart{}}
}

func (m *mockCache) Get(_ context.Context, userID int64) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	c, ok := m.carts[userID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c, nil
}

func (m *mockCache) Set(_ context.Context, userID int64, cart *domain.Cart) error {
	if m.beforeSet != nil {
		m.beforeSet()
	}
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[userID] = cart
	return nil
}

func (m *mockCache) Delete(_ context.Context, userID int64) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, userID)
	return nil
}

// nopCache always misses so reads hit the repository deterministically.
type nopCache struct{}

func (nopCache) Get(context.Context, int64) (*domain.Cart, error) { return nil, cache.ErrCacheMiss }
func (nopCache) Set(context.Context, int64, *domain.Cart) error { return nil }
func (nopCache) Delete(context.Context, int64) error { return nil }

type mockOrders struct {
	m         sync.RWMutex
	orders    map[uuid.UUID]*domain.Order
	createErr error
	events    []string
}

func newMockOrders() *mockOrders {
	return &mockOrders{orders: map[uuid.UUID]*domain.Order{}}
}

func (m *mockOrders) CreateOrder(_ context.Context, o *domain.Order) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if o.IdempotencyKey != "" {
		for _, existing := range m.orders {
			if existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
				return repository.ErrDuplicateIdempotencyKey
			}
		}
	}
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	m.events = append(m.events, domain.EventOrderCreated)
	return nil
}

func (m *mockOrders) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockOrders) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, o := range m.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrders) GetOrderByExternalID(_ context.Context, externalID string) (*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, o := range m.orders {
		if o.ExternalPaymentOrderID != nil && *o.ExternalPaymentOrderID == externalID {
			return o, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *mockOrders) ListOrdersByUserID(_ context.Context, userID int64) ([]*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []*domain.Order{}
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrders) ListOrders(_ context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []*domain.Order{}
	for _, o := range m.orders {
		if f.Status == "" || o.Status == f.Status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockOrders) SetExternalPaymentOrder(_ context.Context, id uuid.UUID, externalID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	o.ExternalPaymentOrderID = &externalID
	return nil
}

func (m *mockOrders) MarkOrderPaid(_ context.Context, id uuid.UUID, paymentID string, paidAt time.Time) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	if o.Status == domain.OrderStatusPending && o.PaymentStatus == domain.PaymentStatusPending {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Status = domain.OrderStatusConfirmed
		o.ExternalPaymentID = &paymentID
		o.PaidAt = &paidAt
		m.events = append(m.events, domain.EventOrderPaid)
	}
	return o, nil
}

func (m *mockOrders) UpdateOrderStatus(_ context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	m.m.Lock()
	defer m.m.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	o.Status = status
	m.events = append(m.events, domain.EventOrderStatus)
	return o, nil
}

func (m *mockOrders) ExpireAbandonedOrders(_ context.Context, olderThan time.Time) ([]uuid.UUID, error) {
	m.m.Lock()
	defer m.m.Unlock()
	var ids []uuid.UUID
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusPending && o.PaymentStatus == domain.PaymentStatusPending && o.CreatedAt.Before(olderThan) {
			o.Status = domain.OrderStatusCancelled
			o.PaymentStatus = domain.PaymentStatusFailed
			ids = append(ids, o.ID)
			m.events = append(m.events, domain.EventOrderExpired)
		}
	}
	return ids, nil
}

func (m *mockOrders) OrderStats(context.Context) (*domain.OrderStats, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	stats := &domain.OrderStats{ByStatus: map[domain.OrderStatus]int{}, Revenue: decimal.Zero}
	for _, o := range m.orders {
		stats.ByStatus[o.Status]++
		stats.Total++
	}
	return stats, nil
}

func (m *mockOrders) only() *domain.Order {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, o := range m.orders {
		return o
	}
	return nil
}

type mockBuilds struct {
	m         sync.RWMutex
	builds    map[string]*domain.Build
	conflicts int
}

func newMockBuilds() *mockBuilds {
	return &mockBuilds{builds: map[string]*domain.Build{}}
}

func (m *mockBuilds) CreateBuild(_ context.Context, b *domain.Build) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrConflict
	}
	m.builds[b.ShareID] = b
	return nil
}

func (m *mockBuilds) GetBuildByShareID(_ context.Context, shareID string) (*domain.Build, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	b, ok := m.builds[shareID]
	if !ok {
		return nil, repository.ErrBuildNotFound
	}
	return b, nil
}

func (m *mockBuilds) UpdateBuild(_ context.Context, b *domain.Build) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.builds[b.ShareID]; !ok {
		return repository.ErrBuildNotFound
	}
	m.builds[b.ShareID] = b
	return nil
}

func (m *mockBuilds) DeleteBuild(_ context.Context, shareID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if _, ok := m.builds[shareID]; !ok {
		return repository.ErrBuildNotFound
	}
	delete(m.builds, shareID)
	return nil
}

func (m *mockBuilds) ListBuildsByUserID(_ context.Context, userID int64) ([]*domain.Build, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	out := []*domain.Build{}
	for _, b := range m.builds {
		if b.OwnedBy(userID) {
			out = append(out, b)
		}
	}
	return out, nil
}

type mockUsers struct {
	m     sync.RWMutex
	users map[string]*domain.User
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: map[string]*domain.User{}}
}

func (m *mockUsers) UpsertUserByPhone(_ context.Context, phone string) (*domain.User, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if u, ok := m.users[phone]; ok {
		return u, nil
	}
	u := &domain.User{ID: int64(len(m.users) + 1), Phone: phone, CreatedAt: time.Now()}
	m.users[phone] = u
	return u, nil
}

func (m *mockUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type mockCodes struct {
	m      sync.RWMutex
	codes  map[string]string
	issued int
	err    error
}

func newMockCodes() *mockCodes {
	return &mockCodes{codes: map[string]string{}}
}

func (m *mockCodes) Issue(_ context.Context, phone string) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.issued++
	m.codes[phone] = "123456"
	return "123456", nil
}

func (m *mockCodes) Check(_ context.Context, phone, code string) error {
	m.m.Lock()
	defer m.m.Unlock()
	stored, ok := m.codes[phone]
	if !ok {
		return errors.New("code expired")
	}
	if stored != code {
		return errors.New("invalid code")
	}
	delete(m.codes, phone)
	return nil
}

type mockSender struct {
	m    sync.RWMutex
	sent map[string]string
}

func (m *mockSender) SendOTP(_ context.Context, phone, code string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.sent == nil {
		m.sent = map[string]string{}
	}
	m.sent[phone] = code
	return nil
}

func price(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func testProduct(id int64, category domain.Category, regular int64) *domain.Product {
	return &domain.Product{
		ID:           id,
		Slug:         "part-" + uuid.NewString()[:6],
		Name:         string(category) + " part",
		Category:     category,
		RegularPrice: price(regular),
		Images:       []string{},
	}
}
