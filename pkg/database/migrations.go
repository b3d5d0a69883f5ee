package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents one schema migration step.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// builtinMigrations is the ordered schema history for the chat store. The
// migrations are compiled in rather than loaded from disk so the binary is
// self-contained.
var builtinMigrations = []Migration{
	{
		Version:     "001_create_chat_sessions",
		Description: "Conversation sessions between customers and agents",
		SQL: `
			CREATE TABLE IF NOT EXISTS chat_sessions (
				id          TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL,
				agent_id    TEXT,
				status      TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'closed')),
				created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				closed_at   DATETIME
			);
			CREATE INDEX IF NOT EXISTS idx_chat_sessions_customer ON chat_sessions(customer_id);
			CREATE INDEX IF NOT EXISTS idx_chat_sessions_agent ON chat_sessions(agent_id);
			CREATE INDEX IF NOT EXISTS idx_chat_sessions_status ON chat_sessions(status);
		`,
	},
	{
		Version:     "002_create_chat_messages",
		Description: "Ordered message log per session",
		SQL: `
			CREATE TABLE IF NOT EXISTS chat_messages (
				id            TEXT PRIMARY KEY,
				session_id    TEXT NOT NULL REFERENCES chat_sessions(id),
				sender_id     TEXT NOT NULL,
				sender_kind   TEXT NOT NULL CHECK (sender_kind IN ('customer', 'agent')),
				type          TEXT NOT NULL DEFAULT 'text',
				content       TEXT NOT NULL,
				is_auto_reply INTEGER NOT NULL DEFAULT 0,
				read          INTEGER NOT NULL DEFAULT 0,
				timestamp     DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_chat_messages_session_time ON chat_messages(session_id, timestamp);
			CREATE INDEX IF NOT EXISTS idx_chat_messages_unread ON chat_messages(session_id, read);
		`,
	},
	{
		Version:     "003_create_auto_reply_rules",
		Description: "Keyword-matched automated replies",
		SQL: `
			CREATE TABLE IF NOT EXISTS auto_reply_rules (
				id       INTEGER PRIMARY KEY AUTOINCREMENT,
				keyword  TEXT NOT NULL,
				reply    TEXT NOT NULL,
				enabled  INTEGER NOT NULL DEFAULT 1
			);
			CREATE INDEX IF NOT EXISTS idx_auto_reply_keyword ON auto_reply_rules(keyword);
		`,
	},
}

// MigrationManager applies pending migrations and tracks applied versions.
type MigrationManager struct {
	db         *sql.DB
	migrations []Migration
}

// NewMigrationManager creates a migration manager over the built-in history.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db, migrations: builtinMigrations}
}

// ApplyMigrations applies all pending migrations in version order. Each
// migration runs in its own transaction together with its tracking row.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	applied, err := m.appliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	migrations := make([]Migration, len(m.migrations))
	copy(migrations, m.migrations)
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}
		if err := m.apply(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (m *MigrationManager) appliedVersions() (map[string]bool, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (m *MigrationManager) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}
	return tx.Commit()
}
