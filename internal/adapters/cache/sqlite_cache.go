package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// SQLiteCache is a SQLite implementation of the CacheRepository interface
type SQLiteCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewSQLiteCache creates a new SQLite cache
func NewSQLiteCache(dbPath string, logger *zap.Logger, cleanupFreq time.Duration) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS email_verdicts (
			email_hash TEXT PRIMARY KEY,
			verdict TEXT,
			created_at TIMESTAMP,
			expires_at TIMESTAMP
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	// Create index on expires_at for faster cleanup
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_expires_at ON email_verdicts(expires_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	cache := &SQLiteCache{
		db:          db,
		logger:      logger,
		cleanupFreq: cleanupFreq,
		stopCh:      make(chan struct{}),
	}

	// Start background cleanup
	go cache.startCleanupTask()

	return cache, nil
}

// Get retrieves a cached entry by address hash
func (c *SQLiteCache) Get(ctx context.Context, emailHash string) (*core.CacheEntry, error) {
	var verdictJSON, createdAt, expiresAt string

	err := c.db.QueryRowContext(ctx, `
		SELECT verdict, created_at, expires_at
		FROM email_verdicts
		WHERE email_hash = ? AND expires_at > ?
	`, emailHash, time.Now().Format(time.RFC3339)).Scan(&verdictJSON, &createdAt, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	entry := &core.CacheEntry{EmailHash: emailHash}
	if err := json.Unmarshal([]byte(verdictJSON), &entry.Verdict); err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}
	if entry.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	if entry.ExpiresAt, err = time.Parse(time.RFC3339, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse expires_at timestamp: %w", err)
	}

	return entry, nil
}

// Set stores a cache entry. The single-key upsert makes concurrent writers
// for the same address converge on the latest verdict.
func (c *SQLiteCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	verdictJSON, err := json.Marshal(entry.Verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO email_verdicts (email_hash, verdict, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, entry.EmailHash, string(verdictJSON),
		entry.CreatedAt.Format(time.RFC3339), entry.ExpiresAt.Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *SQLiteCache) Delete(ctx context.Context, emailHash string) error {
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM email_verdicts
		WHERE email_hash = ?
	`, emailHash)

	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}

	return nil
}

// Cleanup removes expired entries
func (c *SQLiteCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM email_verdicts
		WHERE expires_at <= ?
	`, time.Now().Format(time.RFC3339))

	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries", zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// startCleanupTask starts a background task to clean up expired entries
func (c *SQLiteCache) startCleanupTask() {
	ticker := time.NewTicker(c.cleanupFreq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Cleanup(context.Background()); err != nil {
				c.logger.Error("Failed to clean up cache", zap.Error(err))
			}
		case <-c.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (c *SQLiteCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close SQLite database", zap.Error(err))
	}
}
