package replica

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sdzerobot/sdzerobot/errors"
	"github.com/sdzerobot/sdzerobot/logger"
)

// DefaultTimeout is the server-side statement limit when none is configured
const DefaultTimeout = 600 * time.Second

// Result holds a query result with every value already converted to a string
type Result struct {
	Columns []string
	Rows    [][]string
	Runtime time.Duration
}

// Executor runs report queries with a server-side time limit
type Executor struct {
	db      *sql.DB
	timeout time.Duration
	devMode bool
	tunnel  *Tunnel
	logger  *zap.SugaredLogger
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithTimeout sets the statement time limit
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTunnel enables dev mode: a refused connection starts the tunnel and
// the query is retried once
func WithTunnel(t *Tunnel) ExecutorOption {
	return func(e *Executor) {
		e.tunnel = t
		e.devMode = t != nil
	}
}

// WithLogger sets the executor's logger
func WithLogger(l *zap.SugaredLogger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewExecutor creates an executor over an open replica pool
func NewExecutor(db *sql.DB, opts ...ExecutorOption) *Executor {
	e := &Executor{
		db:      db,
		timeout: DefaultTimeout,
		logger:  logger.ComponentLogger("replica"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Timeout returns the configured statement limit
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Statement wraps sql in the MariaDB per-statement time limit
func Statement(query string, timeout time.Duration) string {
	return "SET STATEMENT max_statement_time = " + strconv.Itoa(int(timeout.Seconds())) + " FOR " + query
}

// Query runs a report query. Errors are always *QueryError.
func (e *Executor) Query(ctx context.Context, query string) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &QueryError{Message: "No query given", Hint: quarryHint, Err: errors.ErrInvalidRequest}
	}

	start := time.Now()
	res, err := e.run(ctx, query)
	if err != nil && e.devMode && isConnectionRefused(err) {
		e.logger.Infow("Replica connection refused, starting tunnel")
		if terr := e.tunnel.Ensure(ctx); terr != nil {
			return nil, &QueryError{Message: "Could not start the database tunnel", Fatal: true, Err: terr}
		}
		res, err = e.run(ctx, query)
	}
	if err != nil {
		qe := Classify(err, e.timeout)
		e.logger.Debugw("Query failed",
			logger.FieldErrorCode, qe.Code,
			logger.FieldError, err,
			logger.FieldDurationMS, time.Since(start).Milliseconds())
		return nil, qe
	}

	res.Runtime = time.Since(start)
	e.logger.Debugw("Query finished",
		logger.FieldRows, len(res.Rows),
		logger.FieldDurationMS, res.Runtime.Milliseconds())
	return res, nil
}

func (e *Executor) run(ctx context.Context, query string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, Statement(query, e.timeout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	res := &Result{Columns: columns}
	values := make([]any, len(columns))
	scan := make([]any, len(columns))
	for i := range values {
		scan[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		row := make([]string, len(columns))
		for i, v := range values {
			row[i] = Stringify(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Stringify converts a scanned column value to its report representation
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case time.Time:
		return x.UTC().Format("2006-01-02T15:04:05.000Z")
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}
