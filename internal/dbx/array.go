package dbx

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgtype"
)

// Array returns a sql.Scanner that decodes a PostgreSQL array column
// (text[], double precision[], ...) into dst, which must be a pointer to a
// slice type pgx knows about such as *[]string or *[]float64.
//
// Writing needs no helper: the pgx stdlib driver encodes Go slices natively.
func Array(dst any) sql.Scanner {
	// pgtype.Map caches scan plans and is not safe for concurrent use.
	return pgtype.NewMap().SQLScanner(dst)
}
