package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/flashcue-core/internal/platform"
)

// Repository defines condition persistence. List methods return conditions
// in insertion order.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Condition, error)
	List(ctx context.Context) ([]Condition, error)
	ListBySessionCategory(ctx context.Context, sessionID string, category platform.Category) ([]Condition, error)
	Create(ctx context.Context, c *Condition) error
	Delete(ctx context.Context, id string) error
}

const conditionColumns = `seq, id, session_id, category, scene, element, fields, created_at`

// SQLiteRepository implements Repository on the trigger_conditions table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed condition repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a condition by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Condition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conditionColumns+` FROM trigger_conditions WHERE id = ?`, id)
	c, err := scanCondition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConditionNotFound
		}
		return nil, fmt.Errorf("querying condition by id: %w", err)
	}
	return c, nil
}

// List retrieves every condition.
func (r *SQLiteRepository) List(ctx context.Context) ([]Condition, error) {
	return r.query(ctx, `SELECT `+conditionColumns+` FROM trigger_conditions ORDER BY seq`)
}

// ListBySessionCategory retrieves the conditions of one (session, category).
func (r *SQLiteRepository) ListBySessionCategory(ctx context.Context, sessionID string, category platform.Category) ([]Condition, error) {
	return r.query(ctx,
		`SELECT `+conditionColumns+` FROM trigger_conditions WHERE session_id = ? AND category = ? ORDER BY seq`,
		sessionID, string(category),
	)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Condition, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying conditions: %w", err)
	}
	defer rows.Close()

	var conds []Condition
	for rows.Next() {
		c, scanErr := scanCondition(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning condition: %w", scanErr)
		}
		conds = append(conds, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conditions: %w", err)
	}
	return conds, nil
}

// Create inserts a new condition and sets its Seq and CreatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, c *Condition) error {
	fields := c.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshalling fields: %w", err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO trigger_conditions (id, session_id, category, scene, element, fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, string(c.Category), c.Scene, c.Element, string(fieldsJSON),
		c.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, c.SessionID)
		}
		return fmt.Errorf("inserting condition: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading condition seq: %w", err)
	}
	c.Seq = seq
	return nil
}

// Delete removes a condition.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trigger_conditions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting condition: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrConditionNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCondition(scanner rowScanner) (*Condition, error) {
	var (
		c          Condition
		category   string
		fieldsJSON string
		createdAt  string
	)
	if err := scanner.Scan(&c.Seq, &c.ID, &c.SessionID, &category, &c.Scene, &c.Element, &fieldsJSON, &createdAt); err != nil {
		return nil, err
	}
	c.Category = platform.Category(category)
	if err := json.Unmarshal([]byte(fieldsJSON), &c.Fields); err != nil {
		return nil, fmt.Errorf("unmarshalling fields of %s: %w", c.ID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		c.CreatedAt = ts
	}
	return &c, nil
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}
