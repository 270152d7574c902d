package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryCPU         Category = "CPU"
	CategoryGPU         Category = "GPU"
	CategoryMotherboard Category = "MOTHERBOARD"
	CategoryRAM         Category = "RAM"
	CategoryStorage     Category = "STORAGE"
	CategoryPSU         Category = "PSU"
	CategoryCase        Category = "CASE"
	CategoryCooler      Category = "COOLER"
)

// Categories lists every component slot in PC builder order.
var Categories = []Category{
	CategoryCPU,
	CategoryMotherboard,
	CategoryRAM,
	CategoryGPU,
	CategoryStorage,
	CategoryPSU,
	CategoryCase,
	CategoryCooler,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Product struct {
	ID              int64            `json:"id"`
	Slug            string           `json:"slug"`
	Name            string           `json:"name"`
	Brand           string           `json:"brand"`
	Category        Category         `json:"category"`
	Description     string           `json:"description"`
	RegularPrice    decimal.Decimal  `json:"regularPrice"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	IsOnSale        bool             `json:"isOnSale"`
	Stock           int              `json:"stock"`
	Images          []string         `json:"images"`
	Tags            []Tag            `json:"tags"`
	Specs           ComponentSpec    `json:"specs"`
	Archived        bool             `json:"archived"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// EffectivePrice is the unit price a buyer pays right now.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.IsOnSale && p.DiscountedPrice != nil && p.DiscountedPrice.IsPositive() {
		return *p.DiscountedPrice
	}
	return p.RegularPrice
}

// Snapshot captures the price fields carried by a cart line.
func (p *Product) Snapshot() ProductSnapshot {
	s := ProductSnapshot{
		ID:           p.ID,
		Slug:         p.Slug,
		Name:         p.Name,
		Category:     p.Category,
		RegularPrice: p.RegularPrice,
		IsOnSale:     p.IsOnSale,
	}
	if p.DiscountedPrice != nil {
		d := *p.DiscountedPrice
		s.DiscountedPrice = &d
	}
	if len(p.Images) > 0 {
		s.ImageURL = p.Images[0]
	}
	return s
}

// ProductSnapshot is the denormalized product view embedded in cart lines.
type ProductSnapshot struct {
	ID              int64            `json:"id"`
	Slug            string           `json:"slug"`
	Name            string           `json:"name"`
	Category        Category         `json:"category"`
	ImageURL        string           `json:"imageUrl,omitempty"`
	RegularPrice    decimal.Decimal  `json:"regularPrice"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	IsOnSale        bool             `json:"isOnSale"`
}

func (s ProductSnapshot) EffectivePrice() decimal.Decimal {
	if s.IsOnSale && s.DiscountedPrice != nil && s.DiscountedPrice.IsPositive() {
		return *s.DiscountedPrice
	}
	return s.RegularPrice
}

type ProductFilter struct {
	Category Category
	Tag      string
	Search   string
	Limit    int
	Offset   int
}
