package roster

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/rosterbridge/internal/model"
)

// DefaultQuery is used by SQLReader when no query is configured.
const DefaultQuery = `SELECT stable_id, display_name FROM roster`

// SQLReader reads the roster from a SQL table.
//
// The query's first column is the stable ID and the second the display
// name. Any further columns become attributes keyed by column name; NULLs
// are omitted.
type SQLReader struct {
	db    *sql.DB
	query string
	owned bool
}

// NewSQLReader wraps an existing connection. The caller keeps ownership of db.
func NewSQLReader(db *sql.DB, query string) *SQLReader {
	if query == "" {
		query = DefaultQuery
	}
	return &SQLReader{db: db, query: query}
}

// OpenSQLReader opens driver/dsn and returns a reader that closes the
// connection on Close.
func OpenSQLReader(driver, dsn, query string) (*SQLReader, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open roster database: %w", err)
	}
	r := NewSQLReader(db, query)
	r.owned = true
	return r, nil
}

// Close releases the connection if the reader opened it.
func (r *SQLReader) Close() error {
	if !r.owned || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// FetchRoster runs the query and returns rows in result order.
func (r *SQLReader) FetchRoster(ctx context.Context) ([]model.Employee, error) {
	rows, err := r.db.QueryContext(ctx, r.query)
	if err != nil {
		return nil, fmt.Errorf("query roster: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("roster columns: %w", err)
	}
	if len(cols) < 2 {
		return nil, fmt.Errorf("%w: roster query must return at least stable id and display name, got %d columns", ErrInvalidRoster, len(cols))
	}

	employees := []model.Employee{}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		if !values[0].Valid || values[0].String == "" {
			return nil, fmt.Errorf("%w: roster row %d: missing stable id", ErrInvalidRoster, len(employees)+1)
		}

		e := model.Employee{
			StableID:    values[0].String,
			DisplayName: values[1].String,
		}
		for i := 2; i < len(cols); i++ {
			if !values[i].Valid {
				continue
			}
			if e.Attributes == nil {
				e.Attributes = make(map[string]string, len(cols)-2)
			}
			e.Attributes[cols[i]] = values[i].String
		}
		employees = append(employees, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return employees, nil
}
