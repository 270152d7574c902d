package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pcforge/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type ProductRepository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product, tagIDs []int64) error
	UpdateProduct(ctx context.Context, p *domain.Product, tagIDs []int64) error
	ArchiveProduct(ctx context.Context, id int64) error
	SetProductTags(ctx context.Context, id int64, tagIDs []int64) error
	ListTags(ctx context.Context) ([]domain.Tag, error)
	CreateTag(ctx context.Context, name string) (*domain.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
}

const productColumns = `p.id, p.slug, p.name, p.brand, p.category, p.description, p.regular_price,
	p.discounted_price, p.is_on_sale, p.stock, p.images, p.specs, p.archived, p.created_at, p.updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p          domain.Product
		discounted decimal.NullDecimal
		imagesJSON []byte
		specsJSON  []byte
	)
	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&p.Brand,
		&p.Category,
		&p.Description,
		&p.RegularPrice,
		&discounted,
		&p.IsOnSale,
		&p.Stock,
		&imagesJSON,
		&specsJSON,
		&p.Archived,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if discounted.Valid {
		p.DiscountedPrice = &discounted.Decimal
	}
	if err := json.Unmarshal(imagesJSON, &p.Images); err != nil {
		return nil, fmt.Errorf("unmarshal images of product %d: %w", p.ID, err)
	}
	if len(specsJSON) > 0 {
		if err := json.Unmarshal(specsJSON, &p.Specs); err != nil {
			return nil, fmt.Errorf("unmarshal specs of product %d: %w", p.ID, err)
		}
	}
	p.Tags = []domain.Tag{}
	return &p, nil
}

func (r *Repository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "NOT p.archived")
	if filter.Category != "" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("p.category = $%d", len(args)))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		where = append(where, fmt.Sprintf(`EXISTS (SELECT 1 FROM product_tags pt JOIN tags t ON t.id = pt.tag_id
			WHERE pt.product_id = p.id AND t.name = $%d)`, len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where = append(where, fmt.Sprintf("(p.name ILIKE $%d OR p.brand ILIKE $%d)", len(args), len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM products p WHERE %s ORDER BY p.id LIMIT $%d OFFSET $%d`,
		productColumns, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.attachTags(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct also resolves archived products so old orders and carts keep
// their references.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products p WHERE p.id = $1`, productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by id: %w", err)
	}

	if err := r.attachTags(ctx, []*domain.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetProductBySlug(ctx context.Context, slug string) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products p WHERE p.slug = $1`, productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product by slug: %w", err)
	}

	if err := r.attachTags(ctx, []*domain.Product{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	result := make(map[int64]*domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM products p WHERE p.id = ANY($1)`, productColumns)
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query products by ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return result, nil
}

func (r *Repository) attachTags(ctx context.Context, products []*domain.Product) error {
	if len(products) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Product, len(products))
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT pt.product_id, t.id, t.name
		FROM product_tags pt JOIN tags t ON t.id = pt.tag_id
		WHERE pt.product_id = ANY($1) ORDER BY t.name`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query product tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var productID int64
		var tag domain.Tag
		if err := rows.Scan(&productID, &tag.ID, &tag.Name); err != nil {
			return fmt.Errorf("failed to scan product tag: %w", err)
		}
		if p, ok := byID[productID]; ok {
			p.Tags = append(p.Tags, tag)
		}
	}
	return rows.Err()
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product, tagIDs []int64) error {
	imagesJSON, specsJSON, err := encodeProductJSON(p)
	if err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO products (slug, name, brand, category, description, regular_price, discounted_price,
			is_on_sale, stock, images, specs, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
			RETURNING id, created_at, updated_at`
		err := tx.QueryRowContext(ctx, query,
			p.Slug,
			p.Name,
			p.Brand,
			p.Category,
			p.Description,
			p.RegularPrice,
			nullDecimal(p.DiscountedPrice),
			p.IsOnSale,
			p.Stock,
			imagesJSON,
			specsJSON,
		).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			if _, ok := isUniqueViolation(err); ok {
				return ErrConflict
			}
			return fmt.Errorf("insert product: %w", err)
		}
		return replaceProductTags(ctx, tx, p.ID, tagIDs)
	})
}

func (r *Repository) UpdateProduct(ctx context.Context, p *domain.Product, tagIDs []int64) error {
	imagesJSON, specsJSON, err := encodeProductJSON(p)
	if err != nil {
		return err
	}

	return r.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE products SET slug = $2, name = $3, brand = $4, category = $5, description = $6,
			regular_price = $7, discounted_price = $8, is_on_sale = $9, stock = $10, images = $11, specs = $12,
			updated_at = NOW()
			WHERE id = $1
			RETURNING created_at, updated_at`
		err := tx.QueryRowContext(ctx, query,
			p.ID,
			p.Slug,
			p.Name,
			p.Brand,
			p.Category,
			p.Description,
			p.RegularPrice,
			nullDecimal(p.DiscountedPrice),
			p.IsOnSale,
			p.Stock,
			imagesJSON,
			specsJSON,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		if err != nil {
			if _, ok := isUniqueViolation(err); ok {
				return ErrConflict
			}
			return fmt.Errorf("update product: %w", err)
		}
		return replaceProductTags(ctx, tx, p.ID, tagIDs)
	})
}

func (r *Repository) ArchiveProduct(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET archived = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive product: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("archive product: %w", err)
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// SetProductTags replaces the tag set of a product.
func (r *Repository) SetProductTags(ctx context.Context, id int64, tagIDs []int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("check product: %w", err)
		}
		if !exists {
			return ErrProductNotFound
		}
		return replaceProductTags(ctx, tx, id, tagIDs)
	})
}

func replaceProductTags(ctx context.Context, tx *sql.Tx, productID int64, tagIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_tags WHERE product_id = $1`, productID); err != nil {
		return fmt.Errorf("clear product tags: %w", err)
	}
	for _, tagID := range tagIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO product_tags (product_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			productID, tagID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23503" {
				return ErrTagNotFound
			}
			return fmt.Errorf("insert product tag: %w", err)
		}
	}
	return nil
}

// encodeProductJSON returns the JSONB arguments for images and specs.
// lib/pq sends []byte as bytea, so JSON goes over the wire as text.
func encodeProductJSON(p *domain.Product) (string, any, error) {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return "", nil, fmt.Errorf("marshal images: %w", err)
	}
	if p.Specs.Category == "" {
		return string(imagesJSON), nil, nil
	}
	specsJSON, err := json.Marshal(p.Specs)
	if err != nil {
		return "", nil, fmt.Errorf("marshal specs: %w", err)
	}
	return string(imagesJSON), string(specsJSON), nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r *Repository) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func (r *Repository) CreateTag(ctx context.Context, name string) (*domain.Tag, error) {
	tag := &domain.Tag{Name: name}
	err := r.db.QueryRowContext(ctx, `INSERT INTO tags (name) VALUES ($1) RETURNING id`, name).Scan(&tag.ID)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

func (r *Repository) DeleteTag(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	if n == 0 {
		return ErrTagNotFound
	}
	return nil
}
