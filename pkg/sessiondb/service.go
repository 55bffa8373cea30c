// Package sessiondb keeps a registry of measurement sessions: who measured,
// with which device and probe, on which port, under which standard.
// Individual samples never land here; recordings live in the CSV log files.
package sessiondb

import (
	"database/sql"
	"embed"
	"sync"

	"github.com/NotCoffee418/dbmigrator"
	"github.com/sirupsen/logrus"

	"github.com/NotCoffee418/radman-monitor/pkg/pathing"

	_ "modernc.org/sqlite"
)

// Store runs the session queries against a database handle. Production code
// uses the shared handle from Open; tests inject their own.
type Store struct {
	db *sql.DB
}

var (
	defaultStore *Store
	once         sync.Once
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Initialize must be called manually on startup
func InitializeDatabase() {
	store := Open()
	if _, err := store.db.Exec("SELECT 1;"); err != nil {
		logrus.Warnf("Could not create session database: %v", err)
	}

	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		store.db,
		migrationFS,
		"migrations",
	)
}

// Open returns the store backed by the on-disk session database.
func Open() *Store {
	once.Do(func() {
		db, err := sql.Open("sqlite", pathing.GetSessionDbPath())
		if err != nil {
			logrus.Fatal(err)
		}
		// Verify connection
		if err = db.Ping(); err != nil {
			logrus.Fatal(err)
		}
		defaultStore = &Store{db: db}
	})
	return defaultStore
}

// NewStore wraps an existing database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
