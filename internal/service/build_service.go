package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

const (
	shareIDLength   = 8
	shareIDAttempts = 3
)

type BuildInput struct {
	Name       string                    `json:"name" validate:"required,max=120"`
	Components map[domain.Category]int64 `json:"components"`
}

// CartAdder puts lines into a user's server cart.
type CartAdder interface {
	AddItems(ctx context.Context, userID int64, lines []domain.NewLine) (domain.CartView, error)
}

type BuildService struct {
	builds   repository.BuildRepository
	products ProductReader
	carts    CartAdder
	log      *slog.Logger
}

func NewBuildService(builds repository.BuildRepository, products ProductReader, carts CartAdder, log *slog.Logger) *BuildService {
	if log == nil {
		log = slog.Default()
	}
	return &BuildService{builds: builds, products: products, carts: carts, log: log.With("component", "builder")}
}

// Create saves a build. Anonymous builds (nil owner) can be shared but are
// never listed.
func (s *BuildService) Create(ctx context.Context, owner *int64, in BuildInput) (*domain.BuildView, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	b := &domain.Build{
		ID:         uuid.New(),
		UserID:     owner,
		Name:       strings.TrimSpace(in.Name),
		Components: in.Components,
	}

	var err error
	for attempt := 0; attempt < shareIDAttempts; attempt++ {
		b.ShareID = newShareID()
		err = s.builds.CreateBuild(ctx, b)
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "build saved", "share_id", b.ShareID)
	return s.view(ctx, b)
}

func (s *BuildService) Get(ctx context.Context, shareID string) (*domain.BuildView, error) {
	b, err := s.builds.GetBuildByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, b)
}

func (s *BuildService) Update(ctx context.Context, userID int64, shareID string, in BuildInput) (*domain.BuildView, error) {
	b, err := s.owned(ctx, userID, shareID)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	b.Name = strings.TrimSpace(in.Name)
	b.Components = in.Components
	if err := s.builds.UpdateBuild(ctx, b); err != nil {
		return nil, err
	}
	return s.view(ctx, b)
}

func (s *BuildService) Delete(ctx context.Context, userID int64, shareID string) error {
	if _, err := s.owned(ctx, userID, shareID); err != nil {
		return err
	}
	return s.builds.DeleteBuild(ctx, shareID)
}

func (s *BuildService) ListMine(ctx context.Context, userID int64) ([]*domain.BuildView, error) {
	builds, err := s.builds.ListBuildsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*domain.BuildView, 0, len(builds))
	for _, b := range builds {
		v, err := s.view(ctx, b)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// AddToCart puts one of every component into the user's cart, labelled with
// the build name.
func (s *BuildService) AddToCart(ctx context.Context, userID int64, shareID string) (domain.CartView, error) {
	b, err := s.builds.GetBuildByShareID(ctx, shareID)
	if err != nil {
		return domain.CartView{}, err
	}
	if len(b.Components) == 0 {
		return domain.CartView{}, fieldError("components", "build has no components")
	}

	lines := make([]domain.NewLine, 0, len(b.Components))
	for _, c := range domain.Categories {
		id, ok := b.Components[c]
		if !ok {
			continue
		}
		lines = append(lines, domain.NewLine{ProductID: id, Quantity: 1, CustomBuildName: b.Name})
	}
	return s.carts.AddItems(ctx, userID, lines)
}

func (s *BuildService) owned(ctx context.Context, userID int64, shareID string) (*domain.Build, error) {
	b, err := s.builds.GetBuildByShareID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !b.OwnedBy(userID) {
		return nil, ErrForbidden
	}
	return b, nil
}

// validate checks that every slot holds an existing product of the slot's
// category.
func (s *BuildService) validate(ctx context.Context, in BuildInput) error {
	if err := validateStruct(in); err != nil {
		return err
	}

	fields := map[string]string{}
	ids := make([]int64, 0, len(in.Components))
	for c, id := range in.Components {
		if !c.Valid() {
			fields["components."+string(c)] = "unknown category"
			continue
		}
		ids = append(ids, id)
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}

	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("resolve build products: %w", err)
	}
	for c, id := range in.Components {
		p, ok := products[id]
		switch {
		case !ok || p.Archived:
			fields["components."+string(c)] = "product not available"
		case p.Category != c:
			fields["components."+string(c)] = fmt.Sprintf("product is a %s, not a %s", p.Category, c)
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// view resolves component products and prices the build. Slots whose
// product has disappeared are skipped.
func (s *BuildService) view(ctx context.Context, b *domain.Build) (*domain.BuildView, error) {
	ids := make([]int64, 0, len(b.Components))
	for _, id := range b.Components {
		ids = append(ids, id)
	}
	products, err := s.products.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve build products: %w", err)
	}

	v := &domain.BuildView{
		Build:      *b,
		Parts:      []domain.BuildComponent{},
		TotalPrice: decimal.Zero,
		Compatible: true,
		Issues:     []string{},
	}
	for _, c := range domain.Categories {
		id, ok := b.Components[c]
		if !ok {
			continue
		}
		p, ok := products[id]
		if !ok {
			continue
		}
		v.Parts = append(v.Parts, domain.BuildComponent{Category: c, Product: p.Snapshot()})
		v.TotalPrice = v.TotalPrice.Add(p.EffectivePrice())
	}
	return v, nil
}

func newShareID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:shareIDLength]
}
