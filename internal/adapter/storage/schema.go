package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	SchemaInventory    = "inventory"
	SchemaCart         = "cart"
	SchemaNotification = "notification"
)

const mysqlDuplicateEntry = 1062

//go:embed schema/*.sql
var schemaFS embed.FS

// EnsureSchema applies the embedded DDL for name. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB, name string) error {
	raw, err := schemaFS.ReadFile("schema/" + name + ".sql")
	if err != nil {
		return fmt.Errorf("read schema %s: %w", name, err)
	}

	for _, stmt := range splitStatements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema %s: %w", name, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var stmts []string
	for _, part := range strings.Split(script, ";") {
		if s := strings.TrimSpace(part); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
