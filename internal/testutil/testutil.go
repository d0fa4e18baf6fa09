package testutil

import (
	"fmt"
	"testing"

	"github.com/Baaaki/parley/internal/database"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// TestDatabase holds test database connection (in-memory SQLite)
type TestDatabase struct {
	DB  *gorm.DB
	DSN string
}

// TestRedis holds test Redis mock (miniredis)
type TestRedis struct {
	Server *miniredis.Miniredis
	URL    string
}

// SetupTestDatabase creates a private in-memory SQLite database with the
// production schema. One connection only: sqlite serializes writers anyway,
// and a single connection keeps the memory database alive and lock-free.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())

	db, err := database.Open(sqlite.Open(dsn))
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDatabase{
		DB:  db,
		DSN: dsn,
	}
}

// Teardown cleans up the test database (closes connection)
func (td *TestDatabase) Teardown(t *testing.T) {
	sqlDB, err := td.DB.DB()
	if err != nil {
		t.Logf("Warning: Failed to get underlying DB: %v", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		t.Logf("Warning: Failed to close database: %v", err)
	}
}

// SetupTestRedis creates an in-memory Redis mock (miniredis)
func SetupTestRedis(t *testing.T) *TestRedis {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	return &TestRedis{
		Server: server,
		URL:    fmt.Sprintf("redis://%s", server.Addr()),
	}
}

// Teardown cleans up the test Redis mock
func (tr *TestRedis) Teardown(t *testing.T) {
	tr.Server.Close()
}

// CleanDatabase deletes all records from tables (for test isolation)
func CleanDatabase(t *testing.T, db *gorm.DB) {
	// SQLite doesn't support TRUNCATE
	tables := []string{"conversation_messages", "conversation_participants", "conversations", "users"}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			t.Logf("Warning: Failed to clean table %s: %v", table, err)
		}
	}
}
