package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
)

// SQLiteRepository implements Repository using SQLite.
//
// Values are stored as JSON text in the resource_history table; timestamps
// are unix nanoseconds so ordering and pruning are plain integer compares.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite history repository.
//
// Parameters:
//   - db: Open SQLite connection with the resource_history migration applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Record inserts one history entry.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - e: Entry to persist; ObservedAt defaults to now
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.Provider == "" || e.Service == "" || e.Resource == "" {
		return ErrPathRequired
	}
	if e.ObservedAt.IsZero() {
		e.ObservedAt = r.now()
	}

	var value sql.NullString
	if e.Value != nil {
		raw, err := json.Marshal(e.Value)
		if err != nil {
			return fmt.Errorf("marshalling value: %w", err)
		}
		value = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO resource_history
		 (provider, service, resource, model, value_kind, value, observed_at, event_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Provider, e.Service, e.Resource, e.Model, e.ValueKind, value,
		e.ObservedAt.UTC().UnixNano(), e.EventID,
	)
	if err != nil {
		return fmt.Errorf("inserting resource history: %w", err)
	}
	return nil
}

// Query returns history entries of one resource, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - provider, service, resource: Resource path
//   - rng: Optional time bounds and limit (default 50, max 1000)
//
// Returns:
//   - []Entry: History entries ordered by observed_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) Query(ctx context.Context, provider, service, resource string, rng Range) ([]Entry, error) {
	if provider == "" || service == "" || resource == "" {
		return nil, ErrPathRequired
	}
	limit := rng.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var (
		where = []string{"provider = ?", "service = ?", "resource = ?"}
		args  = []any{provider, service, resource}
	)
	if !rng.From.IsZero() {
		where = append(where, "observed_at >= ?")
		args = append(args, rng.From.UTC().UnixNano())
	}
	if !rng.To.IsZero() {
		where = append(where, "observed_at <= ?")
		args = append(args, rng.To.UTC().UnixNano())
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, provider, service, resource, model, value_kind, value, observed_at, event_id
		 FROM resource_history
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY observed_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying resource history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e        Entry
			value    sql.NullString
			observed int64
		)
		if err := rows.Scan(&e.ID, &e.Provider, &e.Service, &e.Resource, &e.Model, &e.ValueKind, &value, &observed, &e.EventID); err != nil {
			return nil, fmt.Errorf("scanning resource history: %w", err)
		}
		if value.Valid {
			if err := json.Unmarshal([]byte(value.String), &e.Value); err != nil {
				return nil, fmt.Errorf("unmarshalling value: %w", err)
			}
		}
		e.ObservedAt = time.Unix(0, observed).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating resource history: %w", err)
	}

	return entries, nil
}

// Prune deletes history entries observed before now-olderThan.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Duration to retain
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := r.now().UTC().Add(-olderThan).UnixNano()
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM resource_history WHERE observed_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting resource history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}
