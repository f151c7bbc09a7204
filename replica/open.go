// Package replica runs report queries against the wiki replica databases.
package replica

import (
	"database/sql"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
)

// TunnelPort is the local end of the default dev-mode tunnel command
const TunnelPort = 4711

// DSN builds the driver connection string for the configured replica.
// In dev mode the connection goes to the local end of the tunnel.
func DSN(cfg config.ReplicaConfig, user, password string) string {
	host, port := cfg.Host, cfg.Port
	if cfg.DevMode {
		host, port = "127.0.0.1", TunnelPort
	}

	mc := mysql.NewConfig()
	mc.User = user
	mc.Passwd = password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 10 * time.Second
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

// Open returns a pool for the replica. Connections are made lazily, so a
// refused connection shows up on the first query, where dev mode can still
// start the tunnel.
func Open(cfg *config.Config) (*sql.DB, error) {
	user, password, err := cfg.ReplicaCredentials()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", DSN(cfg.Replica, user, password))
	if err != nil {
		return nil, errors.Wrap(err, "open replica")
	}
	if cfg.Replica.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Replica.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Replica.MaxOpenConns)
	}
	// Toolforge closes idle replica connections after a few minutes
	db.SetConnMaxIdleTime(2 * time.Minute)
	return db, nil
}

// Conn bundles the replica pool with the executor and replag cache built on it
type Conn struct {
	DB       *sql.DB
	Executor *Executor
	Replag   *ReplagCache
	tunnel   *Tunnel
}

// Connect opens the replica and wires the executor from configuration
func Connect(cfg *config.Config, log *zap.SugaredLogger) (*Conn, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	opts := []ExecutorOption{
		WithTimeout(time.Duration(cfg.Replica.StatementTimeoutSeconds) * time.Second),
		WithLogger(log),
	}
	var tunnel *Tunnel
	if cfg.Replica.DevMode {
		tunnel = NewTunnel(cfg.Replica.TunnelCommand, time.Duration(cfg.Replica.TunnelWaitMS)*time.Millisecond)
		opts = append(opts, WithTunnel(tunnel))
	}

	ttl := time.Duration(cfg.Report.ReplagTTLHours) * time.Hour
	return &Conn{
		DB:       db,
		Executor: NewExecutor(db, opts...),
		Replag:   NewReplagCache(db, strings.TrimSuffix(cfg.Replica.Database, "_p"), ttl),
		tunnel:   tunnel,
	}, nil
}

// Close closes the pool and stops the tunnel if one was started
func (c *Conn) Close() error {
	var err error
	if c.tunnel != nil {
		err = c.tunnel.Close()
	}
	if cerr := c.DB.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
