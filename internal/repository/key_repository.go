package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-key-api/internal/models"
)

// ErrPreconditionNotMet is returned when a conditional transition matched no
// row because the key's status no longer satisfies the precondition. Callers
// translate it into the proper domain error (KeyNotAvailable / KeyNotTaken).
var ErrPreconditionNotMet = errors.New("key status precondition not met")

const keyColumns = `id, key_number, name, location, category, block, description,
        status, holder_id, holder_name, holder_email, taken_at, returned_at,
        frequently_used, created_at, updated_at`

// KeyRepository is the sole writer of key mutable state. Every transition is
// a single conditional UPDATE so two racing transitions on the same key can
// never both succeed.
type KeyRepository struct {
	db *sqlx.DB
}

// NewKeyRepository constructs the repository.
func NewKeyRepository(db *sqlx.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

// FindByID returns a key by its ID.
func (r *KeyRepository) FindByID(ctx context.Context, id string) (*models.Key, error) {
	query := fmt.Sprintf("SELECT %s FROM keys WHERE id = $1", keyColumns)
	var key models.Key
	if err := r.db.GetContext(ctx, &key, query, id); err != nil {
		return nil, err
	}
	return &key, nil
}

// List returns keys filtered by the provided criteria.
func (r *KeyRepository) List(ctx context.Context, filter models.KeyFilter) ([]models.Key, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Block != "" {
		conditions = append(conditions, fmt.Sprintf("block = $%d", len(args)+1))
		args = append(args, filter.Block)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(key_number ILIKE $%d OR name ILIKE $%d OR location ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"key_number": "key_number",
		"name":       "name",
		"taken_at":   "taken_at",
		"status":     "status",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "key_number"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM keys%s ORDER BY %s %s LIMIT %d OFFSET %d",
		keyColumns, clause, orderBy, order, size, offset)

	var keys []models.Key
	if err := r.db.SelectContext(ctx, &keys, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list keys: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM keys" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count keys: %w", err)
	}
	return keys, total, nil
}

// ListByHolder returns the keys currently held by a user. This is the
// authoritative source for the "taken by me" view.
func (r *KeyRepository) ListByHolder(ctx context.Context, userID string) ([]models.Key, error) {
	query := fmt.Sprintf("SELECT %s FROM keys WHERE holder_id = $1 AND status = $2 ORDER BY taken_at DESC", keyColumns)
	var keys []models.Key
	if err := r.db.SelectContext(ctx, &keys, query, userID, models.KeyStatusUnavailable); err != nil {
		return nil, fmt.Errorf("list keys by holder: %w", err)
	}
	return keys, nil
}

// Take flips an available key to unavailable and records the holder. The
// status precondition is part of the WHERE clause; zero rows means either
// the key is gone or another take committed first.
func (r *KeyRepository) Take(ctx context.Context, id string, holder models.KeyHolder, now time.Time) (*models.Key, error) {
	query := fmt.Sprintf(`UPDATE keys
        SET status = $2, holder_id = $3, holder_name = $4, holder_email = $5,
            taken_at = $6, returned_at = NULL, updated_at = $6
        WHERE id = $1 AND status = $7
        RETURNING %s`, keyColumns)

	var key models.Key
	err := r.db.GetContext(ctx, &key, query, id,
		models.KeyStatusUnavailable, holder.ID, holder.Name, holder.Email, now,
		models.KeyStatusAvailable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.preconditionFailure(ctx, id)
		}
		return nil, fmt.Errorf("take key: %w", err)
	}
	return &key, nil
}

// Release flips an unavailable key back to available. The CTE captures the
// holder pre-image in the same statement so collective returns can attribute
// the original holder without a racy prior read.
func (r *KeyRepository) Release(ctx context.Context, id string, now time.Time) (*models.ReleasedKey, error) {
	query := fmt.Sprintf(`WITH prev AS (
            SELECT id, holder_id, holder_name, holder_email FROM keys WHERE id = $1
        )
        UPDATE keys k
        SET status = $2, holder_id = NULL, holder_name = NULL, holder_email = NULL,
            taken_at = NULL, returned_at = $3, updated_at = $3
        FROM prev
        WHERE k.id = prev.id AND k.status = $4
        RETURNING %s, prev.holder_id AS prev_holder_id,
            prev.holder_name AS prev_holder_name, prev.holder_email AS prev_holder_email`,
		prefixColumns("k"))

	var released models.ReleasedKey
	err := r.db.GetContext(ctx, &released, query, id,
		models.KeyStatusAvailable, now, models.KeyStatusUnavailable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, r.preconditionFailure(ctx, id)
		}
		return nil, fmt.Errorf("release key: %w", err)
	}
	return &released, nil
}

// ToggleFrequent flips the per-key frequently-used flag.
func (r *KeyRepository) ToggleFrequent(ctx context.Context, id string, now time.Time) (*models.Key, error) {
	query := fmt.Sprintf(`UPDATE keys
        SET frequently_used = NOT frequently_used, updated_at = $2
        WHERE id = $1
        RETURNING %s`, keyColumns)

	var key models.Key
	if err := r.db.GetContext(ctx, &key, query, id, now); err != nil {
		return nil, err
	}
	return &key, nil
}

// Create persists a new key record (admin provisioning).
func (r *KeyRepository) Create(ctx context.Context, key *models.Key) error {
	if key.ID == "" {
		key.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if key.CreatedAt.IsZero() {
		key.CreatedAt = now
	}
	key.UpdatedAt = now
	if key.Status == "" {
		key.Status = models.KeyStatusAvailable
	}
	const query = `INSERT INTO keys (id, key_number, name, location, category, block, description,
            status, frequently_used, created_at, updated_at)
        VALUES (:id, :key_number, :name, :location, :category, :block, :description,
            :status, :frequently_used, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("create key: %w", err)
	}
	return nil
}

// Update mutates the descriptive attributes of a key; transition state is
// untouched.
func (r *KeyRepository) Update(ctx context.Context, key *models.Key) (*models.Key, error) {
	query := fmt.Sprintf(`UPDATE keys
        SET key_number = $2, name = $3, location = $4, category = $5, block = $6,
            description = $7, updated_at = $8
        WHERE id = $1
        RETURNING %s`, keyColumns)

	var updated models.Key
	err := r.db.GetContext(ctx, &updated, query, key.ID, key.KeyNumber, key.Name,
		key.Location, key.Category, key.Block, key.Description, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a key record.
func (r *KeyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM keys WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// preconditionFailure disambiguates a zero-row conditional update: the key
// either does not exist or its status changed under us.
func (r *KeyRepository) preconditionFailure(ctx context.Context, id string) error {
	var exists int
	err := r.db.GetContext(ctx, &exists, "SELECT 1 FROM keys WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("probe key existence: %w", err)
	}
	return ErrPreconditionNotMet
}

func prefixColumns(alias string) string {
	cols := strings.Split(keyColumns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
