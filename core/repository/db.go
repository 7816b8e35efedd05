package repository

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the sql connection pool shared by all repositories.
type DB struct {
	*sql.DB
}

// NewDB opens a Postgres connection pool and verifies connectivity.
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "repository: open database")
	}
	if err := db.Ping(); err != nil {
		return nil, eris.Wrap(err, "repository: ping database")
	}
	return &DB{DB: db}, nil
}

// Migrate applies the embedded schema migrations.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "repository: open migration source")
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return eris.Wrap(err, "repository: create migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return eris.Wrap(err, "repository: create migrator")
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return eris.Wrap(err, "repository: apply migrations")
	}
	return nil
}
