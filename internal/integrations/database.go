package integrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// maxResultRows caps the rows a query action copies into the data bag.
const maxResultRows = 1000

// DatabaseIntegration runs a SQL statement against the configured database.
//
// Config: query, params (positional arguments for $1, $2, ...). Run data
// reaches the statement only through params, which may use {{...}}
// placeholders; a query containing placeholders is rejected before it is
// resolved.
type DatabaseIntegration struct {
	DB *sql.DB
}

func (d *DatabaseIntegration) Type() string                    { return TypeDatabase }
func (d *DatabaseIntegration) RequiredFields() []string        { return []string{"query"} }
func (d *DatabaseIntegration) PlaceholderFreeFields() []string { return []string{"query"} }

func (d *DatabaseIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	if d.DB == nil {
		return nil, fmt.Errorf("database is not configured")
	}
	query := strings.TrimSpace(stringField(config, "query"))
	params := sliceField(config, "params")

	if returnsRows(query) {
		rows, err := d.DB.QueryContext(ctx, query, params...)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		result, err := scanRows(rows)
		if err != nil {
			return nil, err
		}
		return map[string]any{"rows": result, "rowCount": len(result)}, nil
	}

	res, err := d.DB.ExecContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("exec: %w", err)
	}
	affected, _ := res.RowsAffected()
	return map[string]any{"rowsAffected": affected}, nil
}

func returnsRows(query string) bool {
	q := strings.ToUpper(query)
	if strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH") {
		return true
	}
	return strings.Contains(q, " RETURNING ")
}

func scanRows(rows *sql.Rows) ([]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	out := []any{}
	for rows.Next() {
		if len(out) >= maxResultRows {
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
