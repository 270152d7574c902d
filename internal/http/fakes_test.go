package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/auth"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/localcart"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/pcforge/storefront/internal/service"
	"github.com/shopspring/decimal"
)

type fakeAuth struct {
	tokens map[string]int64
}

func (f fakeAuth) Authenticate(token string) (int64, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return 0, service.ErrUnauthenticated
}

func (f fakeAuth) RequestOTP(_ context.Context, req service.OTPRequest) error {
	if req.Phone == "" {
		return &service.ValidationError{Fields: map[string]string{"phone": "is required"}}
	}
	return nil
}

func (f fakeAuth) VerifyOTP(_ context.Context, req service.OTPVerifyRequest) (*service.Session, error) {
	if req.Code != "123456" {
		return nil, auth.ErrInvalidCode
	}
	return &service.Session{
		Token:     "tok-new",
		ExpiresAt: time.Now().Add(time.Hour),
		User:      &domain.User{ID: 7, Phone: req.Phone},
	}, nil
}

func (f fakeAuth) Me(_ context.Context, userID int64) (*domain.User, error) {
	return &domain.User{ID: userID, Phone: "9876543210"}, nil
}

type fakeAdmin struct {
	m      sync.RWMutex
	logged bool
}

func (f *fakeAdmin) IsAdmin(*http.Request) bool {
	f.m.RLock()
	defer f.m.RUnlock()
	return f.logged
}

func (f *fakeAdmin) Login(_ http.ResponseWriter, _ *http.Request, password string) error {
	f.m.Lock()
	defer f.m.Unlock()
	if password != "hunter2" {
		return auth.ErrInvalidCredentials
	}
	f.logged = true
	return nil
}

func (f *fakeAdmin) Logout(http.ResponseWriter, *http.Request) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.logged = false
	return nil
}

type fakeCatalog struct {
	products map[int64]*domain.Product
	filter   domain.ProductFilter
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[int64]*domain.Product{
		1: {ID: 1, Slug: "rtx-4070", Name: "RTX 4070", Category: domain.CategoryGPU, RegularPrice: decimal.NewFromInt(55000)},
		2: {ID: 2, Slug: "ryzen-5", Name: "Ryzen 5", Category: domain.CategoryCPU, RegularPrice: decimal.NewFromInt(15000)},
	}}
}

func (f *fakeCatalog) ListProducts(_ context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	f.filter = filter
	return []*domain.Product{f.products[1], f.products[2]}, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	if p, ok := f.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeCatalog) GetProductBySlug(_ context.Context, slug string) (*domain.Product, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, repository.ErrProductNotFound
}

func (f *fakeCatalog) ListTags(context.Context) ([]domain.Tag, error) { return nil, nil }

func (f *fakeCatalog) CreateProduct(_ context.Context, in service.ProductInput) (*domain.Product, error) {
	return &domain.Product{ID: 3, Slug: in.Slug, Name: in.Name}, nil
}

func (f *fakeCatalog) UpdateProduct(_ context.Context, id int64, in service.ProductInput) (*domain.Product, error) {
	return &domain.Product{ID: id, Slug: in.Slug, Name: in.Name}, nil
}

func (f *fakeCatalog) DeleteProduct(context.Context, int64) error { return nil }

func (f *fakeCatalog) SetProductTags(_ context.Context, id int64, _ []int64) (*domain.Product, error) {
	return f.GetProduct(context.Background(), id)
}

func (f *fakeCatalog) CreateTag(_ context.Context, name string) (*domain.Tag, error) {
	return &domain.Tag{ID: 1, Name: name}, nil
}

func (f *fakeCatalog) DeleteTag(context.Context, int64) error { return nil }

// fakeCarts keeps one line per product for each user.
type fakeCarts struct {
	m       sync.RWMutex
	catalog *fakeCatalog
	lines   map[int64][]domain.CartLine
}

func newFakeCarts(catalog *fakeCatalog) *fakeCarts {
	return &fakeCarts{catalog: catalog, lines: map[int64][]domain.CartLine{}}
}

func (f *fakeCarts) View(_ context.Context, userID int64) (domain.CartView, error) {
	f.m.RLock()
	defer f.m.RUnlock()
	return domain.NewCartView(append([]domain.CartLine(nil), f.lines[userID]...)), nil
}

func (f *fakeCarts) AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (domain.CartView, error) {
	f.m.Lock()
	for _, l := range lines {
		p, ok := f.catalog.products[l.ProductID]
		if !ok {
			f.m.Unlock()
			return domain.CartView{}, &service.ValidationError{Fields: map[string]string{"items[0].id": "product not available"}}
		}
		f.lines[userID] = append(f.lines[userID], domain.CartLine{
			ID: uuid.NewString(), ProductID: p.ID, Product: p.Snapshot(), Quantity: domain.ClampQuantity(l.Quantity),
		})
	}
	f.m.Unlock()
	return f.View(ctx, userID)
}

func (f *fakeCarts) UpdateQuantity(ctx context.Context, userID int64, lineID string, quantity int) (domain.CartView, error) {
	f.m.Lock()
	found := false
	for i := range f.lines[userID] {
		if f.lines[userID][i].ID == lineID {
			f.lines[userID][i].Quantity = domain.ClampQuantity(quantity)
			found = true
		}
	}
	f.m.Unlock()
	if !found {
		return domain.CartView{}, service.ErrForbidden
	}
	return f.View(ctx, userID)
}

func (f *fakeCarts) RemoveLine(ctx context.Context, userID int64, lineID string) (domain.CartView, error) {
	f.m.Lock()
	kept := f.lines[userID][:0]
	for _, l := range f.lines[userID] {
		if l.ID != lineID {
			kept = append(kept, l)
		}
	}
	f.lines[userID] = kept
	f.m.Unlock()
	return f.View(ctx, userID)
}

func (f *fakeCarts) ForUser(userID int64) reconcile.ServerCart {
	return fakeServerCart{carts: f, userID: userID}
}

type fakeServerCart struct {
	carts  *fakeCarts
	userID int64
}

func (s fakeServerCart) FetchCart(ctx context.Context) (domain.CartView, error) {
	return s.carts.View(ctx, s.userID)
}

func (s fakeServerCart) AddLines(ctx context.Context, lines []domain.NewLine) error {
	_, err := s.carts.AddItems(ctx, s.userID, lines)
	return err
}

type fakeCheckout struct {
	m       sync.RWMutex
	lastReq service.CheckoutRequest
	err     error
}

func (f *fakeCheckout) PlaceOrder(_ context.Context, userID int64, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusCOD,
		PaymentMethod: req.PaymentMethod,
		FinalAmount:   decimal.NewFromInt(5500),
	}
	res := &service.CheckoutResult{PaymentMethod: req.PaymentMethod, Order: service.OrderPayload{Order: order}}
	if req.PaymentMethod == domain.PaymentMethodOnline {
		order.Status = domain.OrderStatusPending
		order.PaymentStatus = domain.PaymentStatusPending
		res.Order.Razorpay = &service.RazorpayHandle{OrderID: "order_fake_000001", Amount: 550000, Currency: "INR", KeyID: "rzp_test"}
	}
	return res, nil
}

func (f *fakeCheckout) VerifyPayment(_ context.Context, userID int64, cb service.PaymentCallback) (*domain.Order, error) {
	if cb.Signature != "good" {
		return nil, service.ErrSignatureMismatch
	}
	return &domain.Order{ID: uuid.New(), UserID: userID, Status: domain.OrderStatusConfirmed, PaymentStatus: domain.PaymentStatusPaid}, nil
}

func (f *fakeCheckout) ListOrders(context.Context, int64) ([]*domain.Order, error) { return nil, nil }

func (f *fakeCheckout) GetOrder(context.Context, int64, uuid.UUID) (*domain.Order, error) {
	return nil, repository.ErrOrderNotFound
}

type fakeBuilds struct{}

func (fakeBuilds) Create(_ context.Context, owner *int64, in service.BuildInput) (*domain.BuildView, error) {
	return &domain.BuildView{Build: domain.Build{ShareID: "abcd1234", UserID: owner, Name: in.Name}, Compatible: true, Issues: []string{}}, nil
}

func (fakeBuilds) Get(_ context.Context, shareID string) (*domain.BuildView, error) {
	if shareID != "abcd1234" {
		return nil, repository.ErrBuildNotFound
	}
	return &domain.BuildView{Build: domain.Build{ShareID: shareID}}, nil
}

func (fakeBuilds) Update(context.Context, int64, string, service.BuildInput) (*domain.BuildView, error) {
	return nil, service.ErrForbidden
}

func (fakeBuilds) Delete(context.Context, int64, string) error { return service.ErrForbidden }

func (fakeBuilds) ListMine(context.Context, int64) ([]*domain.BuildView, error) {
	return []*domain.BuildView{}, nil
}

func (fakeBuilds) AddToCart(context.Context, int64, string) (domain.CartView, error) {
	return domain.NewCartView(nil), nil
}

type fakeAdminService struct{}

func (fakeAdminService) ListOrders(context.Context, domain.OrderFilter) ([]*domain.Order, error) {
	return nil, nil
}

func (fakeAdminService) GetOrder(context.Context, uuid.UUID) (*domain.Order, error) {
	return nil, repository.ErrOrderNotFound
}

func (fakeAdminService) UpdateOrderStatus(_ context.Context, id uuid.UUID, upd service.StatusUpdate) (*domain.Order, error) {
	if !upd.Status.Valid() {
		return nil, &service.ValidationError{Fields: map[string]string{"status": "unknown order status"}}
	}
	return &domain.Order{ID: id, Status: upd.Status}, nil
}

func (fakeAdminService) Stats(context.Context) (*domain.OrderStats, error) {
	return &domain.OrderStats{ByStatus: map[domain.OrderStatus]int{}, Revenue: decimal.Zero}, nil
}

// guestBackends hands out one in-memory backend per guest id.
type guestBackends struct {
	m        sync.Mutex
	backends map[string]*localcart.MemoryBackend
}

func (g *guestBackends) stores() GuestStores {
	return func(id string) *localcart.Store {
		g.m.Lock()
		defer g.m.Unlock()
		if g.backends == nil {
			g.backends = map[string]*localcart.MemoryBackend{}
		}
		b, ok := g.backends[id]
		if !ok {
			b = localcart.NewMemoryBackend()
			g.backends[id] = b
		}
		return localcart.NewStore(b, nil)
	}
}
