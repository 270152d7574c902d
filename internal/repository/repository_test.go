package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	repo, err := NewRepository(creds)
	require.NoError(t, err)

	err = repo.RunMigrations(creds)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}

	return repo, cleanup
}

func newTestProduct(slug string, category domain.Category, price int64) *domain.Product {
	return &domain.Product{
		Slug:         slug,
		Name:         "Product " + slug,
		Brand:        "Acme",
		Category:     category,
		RegularPrice: decimal.NewFromInt(price),
		Stock:        5,
		Images:       []string{"https://img.example/" + slug + ".png"},
	}
}

func newTestOrder(userID int64) *domain.Order {
	order := &domain.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: domain.PaymentMethodOnline,
		Currency:      "INR",
		ShippingAddress: domain.ShippingAddress{
			FullName:     "Asha Rao",
			Phone:        "9876543210",
			Email:        "asha@example.com",
			AddressLine1: "12 MG Road",
			City:         "Bengaluru",
			State:        "KA",
			Pincode:      "560001",
		},
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "Ryzen 7", Quantity: 2, RegularPrice: decimal.NewFromInt(1000), UnitPrice: decimal.NewFromInt(900)},
		},
	}
	order.PriceItems()
	return order
}

func TestProducts_CreateGetArchive(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	tag, err := repo.CreateTag(ctx, "gaming")
	require.NoError(t, err)

	p := newTestProduct("ryzen-7", domain.CategoryCPU, 25000)
	discounted := decimal.NewFromInt(22000)
	p.DiscountedPrice = &discounted
	p.IsOnSale = true
	p.Specs = domain.ComponentSpec{Category: domain.CategoryCPU, CPU: &domain.CPUSpec{Socket: "AM5", Cores: 8, Threads: 16}}
	require.NoError(t, repo.CreateProduct(ctx, p, []int64{tag.ID}))
	assert.NotZero(t, p.ID)

	fetched, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, fetched.EffectivePrice().Equal(discounted))
	require.NotNil(t, fetched.Specs.CPU)
	assert.Equal(t, "AM5", fetched.Specs.CPU.Socket)
	require.Len(t, fetched.Tags, 1)
	assert.Equal(t, "gaming", fetched.Tags[0].Name)

	listed, err := repo.ListProducts(ctx, domain.ProductFilter{Tag: "gaming"})
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, repo.ArchiveProduct(ctx, p.ID))
	listed, err = repo.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Empty(t, listed)

	// archived products still resolve by id
	_, err = repo.GetProduct(ctx, p.ID)
	assert.NoError(t, err)
}

func TestProducts_DuplicateSlug(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.CreateProduct(ctx, newTestProduct("rtx-4070", domain.CategoryGPU, 55000), nil))
	err := repo.CreateProduct(ctx, newTestProduct("rtx-4070", domain.CategoryGPU, 55000), nil)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestProducts_UnknownTag(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	err := repo.CreateProduct(context.Background(), newTestProduct("b650", domain.CategoryMotherboard, 18000), []int64{999})
	assert.ErrorIs(t, err, ErrTagNotFound)
}

func TestProducts_SlugAndTags(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	p := newTestProduct("ddr5-32gb", domain.CategoryRAM, 9000)
	require.NoError(t, repo.CreateProduct(ctx, p, nil))

	bySlug, err := repo.GetProductBySlug(ctx, "ddr5-32gb")
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySlug.ID)
	_, err = repo.GetProductBySlug(ctx, "missing")
	assert.ErrorIs(t, err, ErrProductNotFound)

	rgb, err := repo.CreateTag(ctx, "rgb")
	require.NoError(t, err)
	require.NoError(t, repo.SetProductTags(ctx, p.ID, []int64{rgb.ID}))

	fetched, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, fetched.Tags, 1)
	assert.Equal(t, "rgb", fetched.Tags[0].Name)

	require.NoError(t, repo.SetProductTags(ctx, p.ID, nil))
	fetched, err = repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, fetched.Tags)

	assert.ErrorIs(t, repo.SetProductTags(ctx, 424242, nil), ErrProductNotFound)
}

func TestCreateOrder_WritesOutboxEvent(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)

	order := newTestOrder(user.ID)
	require.NoError(t, repo.CreateOrder(ctx, order))

	fetched, err := repo.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, fetched.FinalAmount.Equal(decimal.NewFromInt(1800)))
	assert.True(t, fetched.DiscountAmount.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, "560001", fetched.ShippingAddress.Pincode)
	assert.Nil(t, fetched.ExternalPaymentOrderID)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderCreated, events[0].EventType)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))
	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCreateOrder_DuplicateIdempotencyKey(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)

	first := newTestOrder(user.ID)
	first.IdempotencyKey = "key-1"
	require.NoError(t, repo.CreateOrder(ctx, first))

	second := newTestOrder(user.ID)
	second.IdempotencyKey = "key-1"
	assert.ErrorIs(t, repo.CreateOrder(ctx, second), ErrDuplicateIdempotencyKey)

	existing, err := repo.GetOrderByIdempotencyKey(ctx, user.ID, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, existing.ID)

	// orders without a key never collide
	require.NoError(t, repo.CreateOrder(ctx, newTestOrder(user.ID)))
	require.NoError(t, repo.CreateOrder(ctx, newTestOrder(user.ID)))
}

func TestMarkOrderPaid(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)
	order := newTestOrder(user.ID)
	require.NoError(t, repo.CreateOrder(ctx, order))
	require.NoError(t, repo.SetExternalPaymentOrder(ctx, order.ID, "order_ext_1"))

	byExt, err := repo.GetOrderByExternalID(ctx, "order_ext_1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, byExt.ID)

	paidAt := time.Now().UTC().Truncate(time.Second)
	paid, err := repo.MarkOrderPaid(ctx, order.ID, "pay_1", paidAt)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, paid.Status)
	require.NotNil(t, paid.PaidAt)
	require.NotNil(t, paid.ExternalPaymentID)
	assert.Equal(t, "pay_1", *paid.ExternalPaymentID)

	// second callback leaves the order untouched
	again, err := repo.MarkOrderPaid(ctx, order.ID, "pay_2", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "pay_1", *again.ExternalPaymentID)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestExpireAbandonedOrders(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)

	pending := newTestOrder(user.ID)
	require.NoError(t, repo.CreateOrder(ctx, pending))

	cod := newTestOrder(user.ID)
	cod.PaymentMethod = domain.PaymentMethodCOD
	cod.PaymentStatus = domain.PaymentStatusCOD
	cod.Status = domain.OrderStatusConfirmed
	require.NoError(t, repo.CreateOrder(ctx, cod))

	none, err := repo.ExpireAbandonedOrders(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)

	expired, err := repo.ExpireAbandonedOrders(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pending.ID}, expired)

	fetched, err := repo.GetOrderByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, fetched.Status)
	assert.Equal(t, domain.PaymentStatusFailed, fetched.PaymentStatus)

	// a late callback does not revive the expired order
	late, err := repo.MarkOrderPaid(ctx, pending.ID, "pay_late", time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, late.Status)
	assert.Equal(t, domain.PaymentStatusFailed, late.PaymentStatus)
	assert.Nil(t, late.ExternalPaymentID)
	assert.Nil(t, late.PaidAt)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, domain.EventOrderPaid, e.EventType)
	}
}

func TestOrderStatusAndStats(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)

	cod := newTestOrder(user.ID)
	cod.PaymentMethod = domain.PaymentMethodCOD
	cod.PaymentStatus = domain.PaymentStatusCOD
	cod.Status = domain.OrderStatusConfirmed
	require.NoError(t, repo.CreateOrder(ctx, cod))
	require.NoError(t, repo.CreateOrder(ctx, newTestOrder(user.ID)))

	updated, err := repo.UpdateOrderStatus(ctx, cod.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)

	_, err = repo.UpdateOrderStatus(ctx, uuid.New(), domain.OrderStatusShipped)
	assert.ErrorIs(t, err, ErrOrderNotFound)

	stats, err := repo.OrderStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.OrderStatusShipped])
	assert.Equal(t, 1, stats.ByStatus[domain.OrderStatusPending])
	assert.True(t, stats.Revenue.Equal(decimal.NewFromInt(1800)))

	shipped, err := repo.ListOrders(ctx, domain.OrderFilter{Status: domain.OrderStatusShipped})
	require.NoError(t, err)
	assert.Len(t, shipped, 1)

	mine, err := repo.ListOrdersByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestBuilds_CRUD(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	user, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)

	b := &domain.Build{
		ID:         uuid.New(),
		ShareID:    "ab12cd34",
		UserID:     &user.ID,
		Name:       "Streaming rig",
		Components: map[domain.Category]int64{domain.CategoryCPU: 1},
	}
	require.NoError(t, repo.CreateBuild(ctx, b))

	fetched, err := repo.GetBuildByShareID(ctx, "ab12cd34")
	require.NoError(t, err)
	assert.True(t, fetched.OwnedBy(user.ID))
	assert.Equal(t, int64(1), fetched.Components[domain.CategoryCPU])

	b.Name = "Renamed"
	b.Components[domain.CategoryGPU] = 2
	require.NoError(t, repo.UpdateBuild(ctx, b))

	mine, err := repo.ListBuildsByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Renamed", mine[0].Name)
	assert.Len(t, mine[0].Components, 2)

	require.NoError(t, repo.DeleteBuild(ctx, "ab12cd34"))
	_, err = repo.GetBuildByShareID(ctx, "ab12cd34")
	assert.ErrorIs(t, err, ErrBuildNotFound)
}

func TestUsers_UpsertIsStable(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)
	second, err := repo.UpsertUserByPhone(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = repo.GetUser(ctx, 4242)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
