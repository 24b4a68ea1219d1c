package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				tenant_id BIGINT NOT NULL,
				email VARCHAR(255) UNIQUE NOT NULL,
				name VARCHAR(255) NOT NULL,
				password_hash VARCHAR(255) NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
		Down: `
			DROP TABLE IF EXISTS users;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS students (
				id BIGSERIAL PRIMARY KEY,
				tenant_id BIGINT NOT NULL,
				nisn VARCHAR(20) NOT NULL,
				name VARCHAR(255) NOT NULL,
				gender VARCHAR(20),
				birth_date DATE,
				address TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(tenant_id, nisn)
			);

			CREATE TABLE IF NOT EXISTS teachers (
				id BIGSERIAL PRIMARY KEY,
				tenant_id BIGINT NOT NULL,
				nik VARCHAR(20),
				nuptk VARCHAR(20),
				name VARCHAR(255) NOT NULL,
				gender VARCHAR(20),
				birth_date DATE,
				subject VARCHAR(255),
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS institutions (
				id BIGSERIAL PRIMARY KEY,
				tenant_id BIGINT UNIQUE NOT NULL,
				npsn VARCHAR(20),
				name VARCHAR(255) NOT NULL,
				address TEXT,
				phone VARCHAR(50),
				email VARCHAR(255),
				principal VARCHAR(255),
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_students_tenant ON students(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_teachers_tenant ON teachers(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_teachers_nik ON teachers(tenant_id, nik);
			CREATE INDEX IF NOT EXISTS idx_teachers_nuptk ON teachers(tenant_id, nuptk);
		`,
		Down: `
			DROP TABLE IF EXISTS students;
			DROP TABLE IF EXISTS teachers;
			DROP TABLE IF EXISTS institutions;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE TABLE IF NOT EXISTS conversations (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				tenant_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT,
				type VARCHAR(20) NOT NULL DEFAULT 'direct',
				created_by BIGINT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_conversations_tenant ON conversations(tenant_id, updated_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS conversations;
		`,
	},
	{
		Version: 4,
		Up: `
			CREATE TABLE IF NOT EXISTS conversation_members (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL,
				role VARCHAR(50) NOT NULL DEFAULT 'member',
				is_active BOOLEAN NOT NULL DEFAULT true,
				is_muted BOOLEAN NOT NULL DEFAULT false,
				last_read_at TIMESTAMP,
				joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
				UNIQUE(conversation_id, user_id)
			);

			CREATE INDEX IF NOT EXISTS idx_conversation_members_conversation ON conversation_members(conversation_id);
			CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members(user_id);
		`,
		Down: `
			DROP TABLE IF EXISTS conversation_members;
		`,
	},
	{
		Version: 5,
		Up: `
			CREATE TABLE IF NOT EXISTS messages (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				tenant_id BIGINT NOT NULL,
				sender_id BIGINT NOT NULL,
				receiver_id BIGINT,
				conversation_id UUID REFERENCES conversations(id) ON DELETE SET NULL,
				parent_id UUID REFERENCES messages(id) ON DELETE SET NULL,
				subject VARCHAR(255) NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				type VARCHAR(20) NOT NULL DEFAULT 'direct',
				priority VARCHAR(20) NOT NULL DEFAULT 'medium',
				attachments JSONB NOT NULL DEFAULT '[]',
				is_read BOOLEAN NOT NULL DEFAULT false,
				read_at TIMESTAMP,
				is_archived BOOLEAN NOT NULL DEFAULT false,
				archived_at TIMESTAMP,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(tenant_id, receiver_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(tenant_id, sender_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS messages;
		`,
	},
	{
		Version: 6,
		Up: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INT PRIMARY KEY,
				applied_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS schema_migrations;
		`,
	},
	{
		Version: 7,
		Up: `
			CREATE TABLE IF NOT EXISTS integrations (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				tenant_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL DEFAULT 'inactive',
				description TEXT,
				config JSONB NOT NULL DEFAULT '{}',
				field_mapping JSONB,
				last_sync_at TIMESTAMP,
				last_error TEXT,
				created_at TIMESTAMP NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_integrations_tenant ON integrations(tenant_id);
			CREATE INDEX IF NOT EXISTS idx_integrations_status ON integrations(status);
		`,
		Down: `
			DROP TABLE IF EXISTS integrations;
		`,
	},
	{
		Version: 8,
		Up: `
			CREATE TABLE IF NOT EXISTS integration_logs (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				integration_id UUID NOT NULL REFERENCES integrations(id) ON DELETE CASCADE,
				type VARCHAR(50) NOT NULL,
				message TEXT NOT NULL,
				data JSONB,
				success BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_integration_logs_integration ON integration_logs(integration_id, created_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS integration_logs;
		`,
	},
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB) error {
	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	// Run pending migrations in ascending order by version
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, migration := range sorted {
		if migration.Version <= currentVersion {
			continue
		}

		fmt.Printf("Running migration %d...\n", migration.Version)

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Migration %d completed\n", migration.Version)
	}

	return nil
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
