package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/scorimmo/email-verifier/internal/core"
	"go.uber.org/zap"
)

// MySQLCache is a MySQL implementation of the CacheRepository interface
type MySQLCache struct {
	db          *sql.DB
	logger      *zap.Logger
	cleanupFreq time.Duration
	stopCh      chan struct{}
}

// NewMySQLCache creates a new MySQL cache
func NewMySQLCache(dsn string, logger *zap.Logger, cleanupFreq time.Duration) (*MySQLCache, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	// Create table if it doesn't exist
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS email_verdicts (
			email_hash VARCHAR(32) PRIMARY KEY,
			verdict TEXT,
			created_at TIMESTAMP,
			expires_at TIMESTAMP,
			INDEX idx_expires_at (expires_at)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	cache := &MySQLCache{
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
func (c *MySQLCache) Get(ctx context.Context, emailHash string) (*core.CacheEntry, error) {
	var verdictJSON string
	var createdAt, expiresAt time.Time

	err := c.db.QueryRowContext(ctx, `
		SELECT verdict, created_at, expires_at
		FROM email_verdicts
		WHERE email_hash = ? AND expires_at > NOW()
	`, emailHash).Scan(&verdictJSON, &createdAt, &expiresAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	entry := &core.CacheEntry{
		EmailHash: emailHash,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	if err := json.Unmarshal([]byte(verdictJSON), &entry.Verdict); err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}

	return entry, nil
}

// Set stores a cache entry. The single-key upsert makes concurrent writers
// for the same address converge on the latest verdict.
func (c *MySQLCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	verdictJSON, err := json.Marshal(entry.Verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO email_verdicts (email_hash, verdict, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			verdict = VALUES(verdict),
			created_at = VALUES(created_at),
			expires_at = VALUES(expires_at)
	`, entry.EmailHash, string(verdictJSON), entry.CreatedAt, entry.ExpiresAt)

	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}
	return nil
}

// Delete removes a cache entry
func (c *MySQLCache) Delete(ctx context.Context, emailHash string) error {
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
func (c *MySQLCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `
		DELETE FROM email_verdicts
		WHERE expires_at <= NOW()
	`)

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
func (c *MySQLCache) startCleanupTask() {
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
func (c *MySQLCache) Stop() {
	close(c.stopCh)
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close MySQL database", zap.Error(err))
	}
}
