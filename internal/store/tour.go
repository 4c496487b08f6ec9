package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trailtours/apiserver/types"
)

const tourColumns = `id, name, summary, description, duration, max_group_size,
		difficulty, price, cover_image_key, created_at, updated_at`

// TourFilter narrows and orders a tour listing. Zero values mean "no
// constraint". Sort keys are matched against a whitelist; anything else is
// rejected before it reaches SQL.
type TourFilter struct {
	Difficulty types.Difficulty
	MaxPrice   int64
	SortBy     string
	SortDesc   bool
}

var tourSortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"duration":   "duration",
	"created_at": "created_at",
}

// TourRepository handles persistence for tours.
type TourRepository struct {
	db *sql.DB
}

func NewTourRepository(db *sql.DB) *TourRepository {
	return &TourRepository{db: db}
}

func (r *TourRepository) List(ctx context.Context, filter TourFilter, offset, limit int) ([]types.Tour, int, error) {
	where := make([]string, 0, 2)
	args := make([]any, 0, 4)

	if filter.Difficulty != "" {
		args = append(args, filter.Difficulty)
		where = append(where, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	if filter.MaxPrice > 0 {
		args = append(args, filter.MaxPrice)
		where = append(where, fmt.Sprintf("price <= $%d", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tours %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderColumn, ok := tourSortColumns[filter.SortBy]
	if !ok {
		if filter.SortBy != "" {
			return nil, 0, fmt.Errorf("unknown sort key %q", filter.SortBy)
		}
		orderColumn = "id"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(
		"SELECT %s FROM tours %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		tourColumns, whereClause, orderColumn, direction, len(args)-1, len(args),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tours := make([]types.Tour, 0, limit)
	for rows.Next() {
		var tour types.Tour
		if err := rows.Scan(
			&tour.ID,
			&tour.Name,
			&tour.Summary,
			&tour.Description,
			&tour.Duration,
			&tour.MaxGroupSize,
			&tour.Difficulty,
			&tour.Price,
			&tour.CoverImageKey,
			&tour.CreatedAt,
			&tour.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		tours = append(tours, tour)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tours, total, nil
}

func (r *TourRepository) Get(ctx context.Context, id int) (types.Tour, error) {
	const query = `
		SELECT ` + tourColumns + `
		FROM tours
		WHERE id = $1`
	return scanTour(r.db.QueryRowContext(ctx, query, id))
}

func (r *TourRepository) Create(ctx context.Context, tour types.Tour) (types.Tour, error) {
	now := time.Now()
	tour.CreatedAt = now
	tour.UpdatedAt = now

	const query = `
		INSERT INTO tours (name, summary, description, duration, max_group_size,
			difficulty, price, cover_image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		tour.Name,
		tour.Summary,
		tour.Description,
		tour.Duration,
		tour.MaxGroupSize,
		tour.Difficulty,
		tour.Price,
		tour.CoverImageKey,
		tour.CreatedAt,
		tour.UpdatedAt,
	).Scan(&tour.ID); err != nil {
		return types.Tour{}, err
	}
	return tour, nil
}

func (r *TourRepository) Update(ctx context.Context, tour types.Tour) (types.Tour, error) {
	tour.UpdatedAt = time.Now()

	const query = `
		UPDATE tours
		SET name = $1,
			summary = $2,
			description = $3,
			duration = $4,
			max_group_size = $5,
			difficulty = $6,
			price = $7,
			cover_image_key = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		tour.Name,
		tour.Summary,
		tour.Description,
		tour.Duration,
		tour.MaxGroupSize,
		tour.Difficulty,
		tour.Price,
		tour.CoverImageKey,
		tour.UpdatedAt,
		tour.ID,
	)
	if err != nil {
		return types.Tour{}, err
	}
	if err := requireAffected(result); err != nil {
		return types.Tour{}, err
	}
	return tour, nil
}

func (r *TourRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM tours WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetCoverImageKey records the object-storage key of an uploaded cover.
func (r *TourRepository) SetCoverImageKey(ctx context.Context, id int, key string) error {
	const query = `
		UPDATE tours
		SET cover_image_key = $1,
			updated_at = NOW()
		WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, key, id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

func scanTour(row *sql.Row) (types.Tour, error) {
	var tour types.Tour
	err := row.Scan(
		&tour.ID,
		&tour.Name,
		&tour.Summary,
		&tour.Description,
		&tour.Duration,
		&tour.MaxGroupSize,
		&tour.Difficulty,
		&tour.Price,
		&tour.CoverImageKey,
		&tour.CreatedAt,
		&tour.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Tour{}, ErrNotFound
		}
		return types.Tour{}, err
	}
	return tour, nil
}
