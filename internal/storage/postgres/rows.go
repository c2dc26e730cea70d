package postgres

import (
	"database/sql"
)

// collectRows читает все строки через scan и закрывает rows. op попадает в PersistenceError.
func collectRows[T any](rows *sql.Rows, op string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, persistence("scan "+op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("iterate "+op, err)
	}
	return out, nil
}
