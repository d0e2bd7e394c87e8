package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines target persistence.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Target, error)
	List(ctx context.Context) ([]Target, error)
	Create(ctx context.Context, t *Target) error
	Update(ctx context.Context, t *Target) error
	Delete(ctx context.Context, id string) error
}

const targetColumns = `id, name, host, port, password, created_at, updated_at`

// SQLiteRepository implements Repository on the targets table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed target repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a target by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Target, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+targetColumns+` FROM targets WHERE id = ?`, id)
	t, err := scanTarget(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying target by id: %w", err)
	}
	return t, nil
}

// List retrieves all targets ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Target, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying targets: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t, scanErr := scanTarget(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning target: %w", scanErr)
		}
		targets = append(targets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating targets: %w", err)
	}
	return targets, nil
}

// Create inserts a new target.
func (r *SQLiteRepository) Create(ctx context.Context, t *Target) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO targets (`+targetColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Host, t.Port, t.Password,
		t.CreatedAt.Format(time.RFC3339Nano),
		t.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrTargetExists
		}
		return fmt.Errorf("inserting target: %w", err)
	}
	return nil
}

// Update modifies an existing target.
func (r *SQLiteRepository) Update(ctx context.Context, t *Target) error {
	t.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE targets SET name = ?, host = ?, port = ?, password = ?, updated_at = ? WHERE id = ?`,
		t.Name, t.Host, t.Port, t.Password, t.UpdatedAt.Format(time.RFC3339Nano), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating target: %w", err)
	}
	return requireOneRow(result)
}

// Delete removes a target. Its trigger conditions cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting target: %w", err)
	}
	return requireOneRow(result)
}

func requireOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTarget(scanner rowScanner) (*Target, error) {
	var t Target
	var createdAt, updatedAt string
	if err := scanner.Scan(&t.ID, &t.Name, &t.Host, &t.Port, &t.Password, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	return &t, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
