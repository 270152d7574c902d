package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pcforge/storefront/internal/domain"
)

type BuildRepository interface {
	CreateBuild(ctx context.Context, b *domain.Build) error
	GetBuildByShareID(ctx context.Context, shareID string) (*domain.Build, error)
	UpdateBuild(ctx context.Context, b *domain.Build) error
	DeleteBuild(ctx context.Context, shareID string) error
	ListBuildsByUserID(ctx context.Context, userID int64) ([]*domain.Build, error)
}

const buildColumns = `id, share_id, user_id, name, components, created_at, updated_at`

func scanBuild(row rowScanner) (*domain.Build, error) {
	var (
		b              domain.Build
		userID         sql.NullInt64
		componentsJSON []byte
	)
	if err := row.Scan(&b.ID, &b.ShareID, &userID, &b.Name, &componentsJSON, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		b.UserID = &id
	}
	if err := json.Unmarshal(componentsJSON, &b.Components); err != nil {
		return nil, fmt.Errorf("unmarshal build components: %w", err)
	}
	if b.Components == nil {
		b.Components = map[domain.Category]int64{}
	}
	return &b, nil
}

func encodeComponents(c map[domain.Category]int64) (string, error) {
	if c == nil {
		c = map[domain.Category]int64{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal build components: %w", err)
	}
	return string(data), nil
}

func nullUserID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func (r *Repository) CreateBuild(ctx context.Context, b *domain.Build) error {
	components, err := encodeComponents(b.Components)
	if err != nil {
		return err
	}

	query := `INSERT INTO builds (id, share_id, user_id, name, components, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	          RETURNING created_at, updated_at`
	err = r.db.QueryRowContext(ctx, query, b.ID, b.ShareID, nullUserID(b.UserID), b.Name, components).
		Scan(&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return ErrConflict
		}
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

func (r *Repository) GetBuildByShareID(ctx context.Context, shareID string) (*domain.Build, error) {
	query := fmt.Sprintf(`SELECT %s FROM builds WHERE share_id = $1`, buildColumns)
	b, err := scanBuild(r.db.QueryRowContext(ctx, query, shareID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBuildNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query build by share id: %w", err)
	}
	return b, nil
}

func (r *Repository) UpdateBuild(ctx context.Context, b *domain.Build) error {
	components, err := encodeComponents(b.Components)
	if err != nil {
		return err
	}

	query := `UPDATE builds SET name = $2, components = $3, updated_at = NOW()
	          WHERE share_id = $1 RETURNING updated_at`
	err = r.db.QueryRowContext(ctx, query, b.ShareID, b.Name, components).Scan(&b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBuildNotFound
	}
	if err != nil {
		return fmt.Errorf("update build: %w", err)
	}
	return nil
}

func (r *Repository) DeleteBuild(ctx context.Context, shareID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM builds WHERE share_id = $1`, shareID)
	if err != nil {
		return fmt.Errorf("delete build: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete build: %w", err)
	}
	if n == 0 {
		return ErrBuildNotFound
	}
	return nil
}

func (r *Repository) ListBuildsByUserID(ctx context.Context, userID int64) ([]*domain.Build, error) {
	query := fmt.Sprintf(`SELECT %s FROM builds WHERE user_id = $1 ORDER BY updated_at DESC`, buildColumns)
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query builds by user id: %w", err)
	}
	defer rows.Close()

	builds := []*domain.Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan build row: %w", err)
		}
		builds = append(builds, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return builds, nil
}
