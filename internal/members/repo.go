package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConnection is returned when no database connection could be acquired.
var ErrConnection = errors.New("database connection failed")

const listMembersQuery = `SELECT * FROM members ORDER BY id ASC;`

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// List loads the whole members table. The connection is held only for the
// duration of the call and released on every path.
func (r *Repo) List(ctx context.Context) (*Table, error) {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, listMembersQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	table := emptyTable()
	for rows.Next() {
		if len(table.Columns) == 0 {
			table.Columns = columnNames(rows.FieldDescriptions())
		}

		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		member := make(Member, len(values))
		for i, value := range values {
			member[table.Columns[i]] = value
		}
		table.Rows = append(table.Rows, member)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(table.Columns) == 0 {
		table.Columns = columnNames(rows.FieldDescriptions())
	}

	return &table, nil
}

func columnNames(fields []pgconn.FieldDescription) []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}
