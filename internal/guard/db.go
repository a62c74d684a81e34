package guard

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"git.uuxo.net/uuxo/maxdiskusage/internal/policy"
)

// DefaultDriver is the database/sql driver used by OpenSQLite.
const DefaultDriver = "sqlite"

// DB runs every statement through a Guard before handing it to database/sql.
// The caller identity is taken from the context, see WithIdentity.
type DB struct {
	db    *sql.DB
	guard *Guard
}

// Wrap guards an existing handle.
func Wrap(db *sql.DB, g *Guard) *DB {
	return &DB{db: db, guard: g}
}

// OpenSQLite opens the SQLite database at path behind g.
func OpenSQLite(path string, g *Guard) (*DB, error) {
	db, err := sql.Open(DefaultDriver, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	log.Infof("Guarded SQLite database opened at %s", path)
	return Wrap(db, g), nil
}

// Exec admits query, executes it and returns the guard decision.
func (d *DB) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, policy.Decision, error) {
	dec, err := d.admit(ctx, query)
	if err != nil {
		return nil, dec, err
	}
	res, err := d.db.ExecContext(ctx, query, args...)
	return res, dec, err
}

// Query admits query, runs it and returns the guard decision.
func (d *DB) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, policy.Decision, error) {
	dec, err := d.admit(ctx, query)
	if err != nil {
		return nil, dec, err
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	return rows, dec, err
}

// ExecContext is Exec without the decision.
func (d *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, _, err := d.Exec(ctx, query, args...)
	return res, err
}

// QueryContext is Query without the decision.
func (d *DB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	rows, _, err := d.Query(ctx, query, args...)
	return rows, err
}

// Unguarded exposes the underlying handle, e.g. for schema setup by an
// administrator.
func (d *DB) Unguarded() *sql.DB {
	return d.db
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) admit(ctx context.Context, query string) (policy.Decision, error) {
	id, _ := IdentityFrom(ctx)
	return d.guard.Admit(ctx, id, query)
}
