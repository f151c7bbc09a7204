package replica

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/sdzerobot/sdzerobot/errors"
)

// DefaultReplagTTL is how long a replication lag reading stays valid
const DefaultReplagTTL = 6 * time.Hour

// The heartbeat table is keyed by section; meta_p maps the database to it
const replagQuery = `SELECT UNIX_TIMESTAMP() - UNIX_TIMESTAMP(MAX(lag_ts.ts))
FROM (SELECT hb.ts FROM heartbeat_p.heartbeat hb
JOIN meta_p.wiki w ON w.slice LIKE CONCAT(hb.shard, '%')
WHERE w.dbname = ?) lag_ts`

// ReplagCache holds the replica's replication lag, re-read at most once per TTL
type ReplagCache struct {
	db     *sql.DB
	dbname string
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	lag     time.Duration
	fetched time.Time
}

// NewReplagCache creates a cache for the given wiki database (e.g. "enwiki")
func NewReplagCache(db *sql.DB, dbname string, ttl time.Duration) *ReplagCache {
	if ttl <= 0 {
		ttl = DefaultReplagTTL
	}
	return &ReplagCache{db: db, dbname: dbname, ttl: ttl, now: time.Now}
}

// Get returns the cached lag, querying the replica when the reading is stale
func (c *ReplagCache) Get(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl {
		return c.lag, nil
	}

	var seconds sql.NullFloat64
	if err := c.db.QueryRowContext(ctx, replagQuery, c.dbname).Scan(&seconds); err != nil {
		return 0, errors.Wrap(err, "query replication lag")
	}
	c.lag = time.Duration(seconds.Float64 * float64(time.Second))
	if c.lag < 0 {
		c.lag = 0
	}
	c.fetched = c.now()
	return c.lag, nil
}
