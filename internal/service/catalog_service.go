package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

// ProductInput is the admin form for creating or replacing a product.
type ProductInput struct {
	Slug            string               `json:"slug" validate:"required,max=120,slug"`
	Name            string               `json:"name" validate:"required,max=200"`
	Brand           string               `json:"brand" validate:"max=80"`
	Category        domain.Category      `json:"category" validate:"required"`
	Description     string               `json:"description" validate:"max=5000"`
	RegularPrice    decimal.Decimal      `json:"regularPrice"`
	DiscountedPrice *decimal.Decimal     `json:"discountedPrice,omitempty"`
	IsOnSale        bool                 `json:"isOnSale"`
	Stock           int                  `json:"stock" validate:"min=0"`
	Images          []string             `json:"images" validate:"max=10,dive,url"`
	TagIDs          []int64              `json:"tagIds"`
	Specs           domain.ComponentSpec `json:"specs"`
}

type CatalogService struct {
	repo repository.ProductRepository
	log  *slog.Logger
}

func NewCatalogService(repo repository.ProductRepository, log *slog.Logger) *CatalogService {
	if log == nil {
		log = slog.Default()
	}
	return &CatalogService{repo: repo, log: log.With("component", "catalog")}
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fieldError("category", "unknown category")
	}
	filter.Search = strings.TrimSpace(filter.Search)
	products, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, nil
}

// GetProduct returns a listed product. Archived products are not found.
func (s *CatalogService) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Archived {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

// GetProductBySlug is GetProduct keyed by slug.
func (s *CatalogService) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	p, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if p.Archived {
		return nil, repository.ErrProductNotFound
	}
	return p, nil
}

func (s *CatalogService) SetProductTags(ctx context.Context, id int64, tagIDs []int64) (*domain.Product, error) {
	if err := s.repo.SetProductTags(ctx, id, tagIDs); err != nil {
		return nil, mapCatalogError(err)
	}
	return s.repo.GetProduct(ctx, id)
}

func (s *CatalogService) ListTags(ctx context.Context) ([]domain.Tag, error) {
	return s.repo.ListTags(ctx)
}

func (s *CatalogService) CreateProduct(ctx context.Context, in ProductInput) (*domain.Product, error) {
	p, err := productFromInput(in)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateProduct(ctx, p, in.TagIDs); err != nil {
		return nil, mapCatalogError(err)
	}
	s.log.InfoContext(ctx, "product created", "product_id", p.ID, "slug", p.Slug)
	return s.repo.GetProduct(ctx, p.ID)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*domain.Product, error) {
	p, err := productFromInput(in)
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.repo.UpdateProduct(ctx, p, in.TagIDs); err != nil {
		return nil, mapCatalogError(err)
	}
	s.log.InfoContext(ctx, "product updated", "product_id", id)
	return s.repo.GetProduct(ctx, id)
}

// DeleteProduct archives the product so past orders keep resolving it.
func (s *CatalogService) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.ArchiveProduct(ctx, id); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "product archived", "product_id", id)
	return nil
}

func (s *CatalogService) CreateTag(ctx context.Context, name string) (*domain.Tag, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fieldError("name", "is required")
	}
	if len(name) > 50 {
		return nil, fieldError("name", "must be at most 50 characters")
	}
	return s.repo.CreateTag(ctx, name)
}

func (s *CatalogService) DeleteTag(ctx context.Context, id int64) error {
	return s.repo.DeleteTag(ctx, id)
}

func productFromInput(in ProductInput) (*domain.Product, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	fields := map[string]string{}
	if !in.Category.Valid() {
		fields["category"] = "unknown category"
	}
	if !in.RegularPrice.IsPositive() {
		fields["regularPrice"] = "must be greater than 0"
	}
	if in.DiscountedPrice != nil {
		switch {
		case in.DiscountedPrice.IsNegative():
			fields["discountedPrice"] = "must not be negative"
		case in.DiscountedPrice.GreaterThan(in.RegularPrice):
			fields["discountedPrice"] = "must not exceed the regular price"
		}
	}
	if in.Specs.Category != "" {
		if err := in.Specs.CheckCategory(in.Category); err != nil {
			fields["specs"] = err.Error()
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	images := in.Images
	if images == nil {
		images = []string{}
	}
	return &domain.Product{
		Slug:            in.Slug,
		Name:            in.Name,
		Brand:           in.Brand,
		Category:        in.Category,
		Description:     in.Description,
		RegularPrice:    in.RegularPrice,
		DiscountedPrice: in.DiscountedPrice,
		IsOnSale:        in.IsOnSale,
		Stock:           in.Stock,
		Images:          images,
		Specs:           in.Specs,
	}, nil
}

func mapCatalogError(err error) error {
	if errors.Is(err, repository.ErrTagNotFound) {
		return fieldError("tagIds", "unknown tag")
	}
	return err
}
