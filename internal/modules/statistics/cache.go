package statistics

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultTTL is how long cached estimates stay valid.
const DefaultTTL = 24 * time.Hour

// Cache stores serialized estimates in the calculations database so repeated
// solves over the same universe do not rebuild the covariance matrix.
type Cache struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewCache creates an estimates cache.
func NewCache(db *sql.DB, log zerolog.Logger) *Cache {
	return &Cache{
		db:  db,
		log: log.With().Str("component", "statistics_cache").Logger(),
	}
}

// InitSchema creates the cache table if it does not exist.
func (c *Cache) InitSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS estimates_cache (
			key        TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_estimates_cache_expires ON estimates_cache(expires_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create estimates_cache schema: %w", err)
	}
	return nil
}

// CacheKey builds a deterministic key from the ticker set and lookback window.
// Tickers are sorted so the key is order-independent.
func CacheKey(tickers []string, lookbackDays int) string {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)

	keyData := fmt.Sprintf("%s|%d", strings.Join(sorted, ","), lookbackDays)
	h := sha256.Sum256([]byte(keyData))
	return hex.EncodeToString(h[:16])
}

// Get returns cached estimates for the key, or (nil, false) on miss/expiry.
func (c *Cache) Get(key string) (*Estimates, bool) {
	var data []byte
	var expiresAt int64

	err := c.db.QueryRow(
		`SELECT data, expires_at FROM estimates_cache WHERE key = ?`, key,
	).Scan(&data, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("Failed to read estimates cache")
		return nil, false
	}

	if time.Now().Unix() > expiresAt {
		return nil, false
	}

	var est Estimates
	if err := msgpack.Unmarshal(data, &est); err != nil {
		c.log.Warn().Err(err).Msg("Failed to unmarshal cached estimates, recalculating")
		return nil, false
	}
	est.buildIndex()

	return &est, true
}

// Set stores estimates under the key with the given TTL.
func (c *Cache) Set(key string, est *Estimates, ttl time.Duration) error {
	data, err := msgpack.Marshal(est)
	if err != nil {
		return fmt.Errorf("failed to marshal estimates: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()
	_, err = c.db.Exec(`
		INSERT INTO estimates_cache (key, data, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`, key, data, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write estimates cache: %w", err)
	}

	return nil
}

// Purge removes expired cache entries.
func (c *Cache) Purge() error {
	res, err := c.db.Exec(`DELETE FROM estimates_cache WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to purge estimates cache: %w", err)
	}

	if rows, err := res.RowsAffected(); err == nil && rows > 0 {
		c.log.Debug().Int64("purged", rows).Msg("Purged expired estimates")
	}
	return nil
}
