package replica

import (
	"context"
	"net"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sdzerobot/sdzerobot/config"
	"github.com/sdzerobot/sdzerobot/errors"
)

func newMockExecutor(t *testing.T, opts ...ExecutorOption) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]ExecutorOption{WithLogger(zaptest.NewLogger(t).Sugar())}, opts...)
	return NewExecutor(db, opts...), mock
}

func TestQueryWrapsStatementTimeout(t *testing.T) {
	ex, mock := newMockExecutor(t, WithTimeout(120*time.Second))

	created := time.Date(2024, 3, 1, 12, 30, 0, 5_000_000, time.UTC)
	mock.ExpectQuery("SET STATEMENT max_statement_time = 120 FOR SELECT page_title, page_namespace, page_touched FROM page").
		WillReturnRows(sqlmock.NewRows([]string{"page_title", "page_namespace", "page_touched"}).
			AddRow([]byte("Foo_bar"), int64(0), created).
			AddRow(nil, int64(14), nil))

	res, err := ex.Query(context.Background(), "SELECT page_title, page_namespace, page_touched FROM page")
	require.NoError(t, err)

	assert.Equal(t, []string{"page_title", "page_namespace", "page_touched"}, res.Columns)
	assert.Equal(t, [][]string{
		{"Foo_bar", "0", "2024-03-01T12:30:00.005Z"},
		{"", "14", ""},
	}, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryDefaultTimeout(t *testing.T) {
	assert.Equal(t, "SET STATEMENT max_statement_time = 600 FOR SELECT 1", Statement("SELECT 1", DefaultTimeout))
}

func TestQueryEmpty(t *testing.T) {
	ex, _ := newMockExecutor(t)

	_, err := ex.Query(context.Background(), "   ")
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.False(t, qe.Fatal)
}

func TestQueryStatementTimeoutCitesSeconds(t *testing.T) {
	ex, mock := newMockExecutor(t)

	mock.ExpectQuery(Statement("SELECT * FROM revision", DefaultTimeout)).
		WillReturnError(&mysql.MySQLError{Number: 1969, Message: "Query execution was interrupted (max_statement_time exceeded)"})

	_, err := ex.Query(context.Background(), "SELECT * FROM revision")
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.False(t, qe.Fatal)
	assert.Equal(t, "ER_STATEMENT_TIMEOUT", qe.Code)
	assert.Contains(t, qe.Message, "600")
}

func TestClassify(t *testing.T) {
	timeout := 600 * time.Second

	tests := []struct {
		name    string
		err     error
		code    string
		fatal   bool
		message string
		hint    bool
	}{
		{
			name:    "parse error",
			err:     &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"},
			code:    "ER_PARSE_ERROR",
			message: "SQL Error: ER_PARSE_ERROR: You have an error in your SQL syntax",
			hint:    true,
		},
		{
			name:    "unknown number",
			err:     &mysql.MySQLError{Number: 4242, Message: "odd"},
			code:    "ER_4242",
			message: "SQL Error: ER_4242: odd",
			hint:    true,
		},
		{
			name:    "too many connections",
			err:     &mysql.MySQLError{Number: 1040, Message: "Too many connections"},
			code:    "ER_CON_COUNT_ERROR",
			fatal:   true,
			message: "Too many database connections",
		},
		{
			name:    "too many user connections",
			err:     errors.Wrap(&mysql.MySQLError{Number: 1203, Message: "User has exceeded max_user_connections"}, "query"),
			code:    "ER_TOO_MANY_USER_CONNECTIONS",
			fatal:   true,
			message: "Too many database connections",
		},
		{
			name:    "non-SQL error",
			err:     errors.New("invalid connection"),
			fatal:   true,
			message: "Query failed",
		},
		{
			name:    "cancelled",
			err:     context.Canceled,
			fatal:   true,
			message: "Query cancelled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := Classify(tt.err, timeout)
			require.NotNil(t, qe)
			assert.Equal(t, tt.code, qe.Code)
			assert.Equal(t, tt.fatal, qe.Fatal)
			assert.Equal(t, tt.message, qe.Message)
			assert.Equal(t, tt.hint, qe.Hint != "")
		})
	}
}

func TestClassifyTooManyConnectionsSentinel(t *testing.T) {
	qe := Classify(&mysql.MySQLError{Number: 1040, Message: "Too many connections"}, DefaultTimeout)
	assert.True(t, errors.Is(qe, errors.ErrTooManyConnections))
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil, DefaultTimeout))
}

func refusedError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func TestQueryStartsTunnelOnRefusedConnection(t *testing.T) {
	tunnel := NewTunnel([]string{"ssh", "-N"}, time.Second)
	starts := 0
	tunnel.start = func(context.Context, []string) (*exec.Cmd, error) {
		starts++
		return &exec.Cmd{}, nil
	}
	tunnel.sleep = func(context.Context, time.Duration) error { return nil }

	ex, mock := newMockExecutor(t, WithTunnel(tunnel))
	stmt := Statement("SELECT 1", DefaultTimeout)
	mock.ExpectQuery(stmt).WillReturnError(refusedError())
	mock.ExpectQuery(stmt).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	res, err := ex.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1"}}, res.Rows)
	assert.Equal(t, 1, starts)
	assert.True(t, tunnel.Started())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRefusedWithoutDevModeIsFatal(t *testing.T) {
	ex, mock := newMockExecutor(t)
	mock.ExpectQuery(Statement("SELECT 1", DefaultTimeout)).WillReturnError(refusedError())

	_, err := ex.Query(context.Background(), "SELECT 1")
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.True(t, qe.Fatal)
}

func TestTunnelStartsOnce(t *testing.T) {
	tunnel := NewTunnel([]string{"ssh"}, 0)
	starts := 0
	tunnel.start = func(context.Context, []string) (*exec.Cmd, error) {
		starts++
		return &exec.Cmd{}, nil
	}

	require.NoError(t, tunnel.Ensure(context.Background()))
	require.NoError(t, tunnel.Ensure(context.Background()))
	assert.Equal(t, 1, starts)
	assert.NoError(t, tunnel.Close())
}

func TestTunnelWithoutCommand(t *testing.T) {
	tunnel := NewTunnel(nil, 0)
	assert.Error(t, tunnel.Ensure(context.Background()))
	assert.False(t, tunnel.Started())
}

func TestReplagCacheHonoursTTL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewReplagCache(db, "enwiki", time.Hour)
	cache.now = func() time.Time { return now }

	mock.ExpectQuery("SELECT UNIX_TIMESTAMP").WithArgs("enwiki").
		WillReturnRows(sqlmock.NewRows([]string{"lag"}).AddRow(float64(2700)))

	lag, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, lag)

	// Cached within the TTL
	now = now.Add(30 * time.Minute)
	lag, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Minute, lag)

	now = now.Add(time.Hour)
	mock.ExpectQuery("SELECT UNIX_TIMESTAMP").WithArgs("enwiki").
		WillReturnRows(sqlmock.NewRows([]string{"lag"}).AddRow(float64(3)))
	lag, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, lag)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", Stringify(nil))
	assert.Equal(t, "Foo", Stringify([]byte("Foo")))
	assert.Equal(t, "-3", Stringify(int64(-3)))
	assert.Equal(t, "1.5", Stringify(float64(1.5)))
	assert.Equal(t, "1", Stringify(true))
	assert.Equal(t, "2024-01-01T00:00:00.000Z",
		Stringify(time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("CET", 3600))))
}

func TestDSN(t *testing.T) {
	dsn := DSN(testReplicaConfig(), "u123", "secret")

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "u123", cfg.User)
	assert.Equal(t, "secret", cfg.Passwd)
	assert.Equal(t, "enwiki.analytics.db.svc.wikimedia.cloud:3306", cfg.Addr)
	assert.Equal(t, "enwiki_p", cfg.DBName)
	assert.True(t, cfg.ParseTime)
}

func testReplicaConfig() config.ReplicaConfig {
	return config.ReplicaConfig{
		Host:     "enwiki.analytics.db.svc.wikimedia.cloud",
		Port:     3306,
		Database: "enwiki_p",
	}
}

func TestDSNDevModeUsesTunnel(t *testing.T) {
	rc := testReplicaConfig()
	rc.DevMode = true

	cfg, err := mysql.ParseDSN(DSN(rc, "u", "p"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4711", cfg.Addr)
}
