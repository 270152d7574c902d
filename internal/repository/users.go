package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pcforge/storefront/internal/domain"
)

type UserRepository interface {
	UpsertUserByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetUser(ctx context.Context, id int64) (*domain.User, error)
}

// UpsertUserByPhone returns the user registered with phone, creating it on
// first login.
func (r *Repository) UpsertUserByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `INSERT INTO users (phone, created_at) VALUES ($1, NOW())
	          ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
	          RETURNING id, phone, name, created_at`

	var u domain.User
	err := r.db.QueryRowContext(ctx, query, phone).Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `SELECT id, phone, name, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Phone, &u.Name, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user by id: %w", err)
	}
	return &u, nil
}
