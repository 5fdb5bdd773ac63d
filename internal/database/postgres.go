package database

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// ConnectPostgres opens a PostgreSQL connection pool and initializes tables.
// The caller owns the returned handle and closes it on shutdown.
func ConnectPostgres(postgresURI string) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresURI)
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("✅ Connected to PostgreSQL")

	if err = InitPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// InitPostgresTables creates the chat tables if they don't exist.
func InitPostgresTables(db *sql.DB) error {
	queries := []string{
		// Contacts table: public profile data for both roles.
		// Role-specific columns are nullable; `kind` discriminates.
		`CREATE TABLE IF NOT EXISTS contacts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			kind VARCHAR(10) NOT NULL CHECK (kind IN ('doctor', 'patient')),
			name VARCHAR(255) NOT NULL,
			specialty VARCHAR(255),
			condition VARCHAR(255)
		)`,

		// Direct messages. Immutable after insert except is_read, which only
		// ever moves FALSE → TRUE.
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sender_id UUID NOT NULL,
			recipient_id UUID NOT NULL,
			text TEXT,
			file_url TEXT,
			file_name VARCHAR(255),
			file_type VARCHAR(20),
			file_size BIGINT,
			mime_type VARCHAR(100),
			is_urgent BOOLEAN NOT NULL DEFAULT FALSE,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chat_messages_has_content CHECK (text IS NOT NULL OR file_url IS NOT NULL),
			CONSTRAINT chat_messages_distinct_parties CHECK (sender_id <> recipient_id)
		)`,

		// Indexes for conversation and inbox queries
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_sender_recipient ON chat_messages(sender_id, recipient_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_recipient_unread ON chat_messages(recipient_id, is_read)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_created_at ON chat_messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_contacts_kind ON contacts(kind)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	log.Println("✅ PostgreSQL tables initialized")
	return nil
}
