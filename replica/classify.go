package replica

import (
	"context"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/sdzerobot/sdzerobot/errors"
)

// MariaDB error numbers the executor treats specially
const (
	erConCount         = 1040
	erTooManyUserConns = 1203
	erStatementTimeout = 1969
)

const (
	quarryHint           = "Consider testing the query on [[:m:Research:Quarry|Quarry]]."
	statementTimeoutHint = "Try to make the query faster, for example by adding a LIMIT or filtering on indexed columns."
)

// Error codes by number, named the way MariaDB documents them
var errorNames = map[uint16]string{
	1044: "ER_DBACCESS_DENIED_ERROR",
	1045: "ER_ACCESS_DENIED_ERROR",
	1046: "ER_NO_DB_ERROR",
	1049: "ER_BAD_DB_ERROR",
	1052: "ER_NON_UNIQ_ERROR",
	1054: "ER_BAD_FIELD_ERROR",
	1055: "ER_WRONG_FIELD_WITH_GROUP",
	1060: "ER_DUP_FIELDNAME",
	1064: "ER_PARSE_ERROR",
	1066: "ER_NONUNIQ_TABLE",
	1111: "ER_INVALID_GROUP_FUNC_USE",
	1140: "ER_MIX_OF_GROUP_FUNC_AND_FIELDS",
	1142: "ER_TABLEACCESS_DENIED_ERROR",
	1146: "ER_NO_SUCH_TABLE",
	1222: "ER_WRONG_NUMBER_OF_COLUMNS_IN_SELECT",
	1241: "ER_OPERAND_COLUMNS",
	1242: "ER_SUBQUERY_NO_1_ROW",
	1267: "ER_CANT_AGGREGATE_2COLLATIONS",
	1305: "ER_SP_DOES_NOT_EXIST",
	1317: "ER_QUERY_INTERRUPTED",
	1040: "ER_CON_COUNT_ERROR",
	1203: "ER_TOO_MANY_USER_CONNECTIONS",
	1969: "ER_STATEMENT_TIMEOUT",
}

// QueryError is a classified query failure. Handled errors are shown on
// the report page; fatal ones stop the run and are only logged.
type QueryError struct {
	// Code is the MariaDB error name, empty for non-SQL failures
	Code    string
	Message string
	Hint    string
	Fatal   bool
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrorName returns the MariaDB name of an error number
func ErrorName(number uint16) string {
	if name, ok := errorNames[number]; ok {
		return name
	}
	return "ER_" + strconv.Itoa(int(number))
}

// Classify turns a query error into a QueryError
func Classify(err error, timeout time.Duration) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		msg := "Query failed"
		if errors.IsAny(err, context.Canceled, context.DeadlineExceeded) {
			msg = "Query cancelled"
		}
		return &QueryError{Message: msg, Fatal: true, Err: err}
	}

	code := ErrorName(me.Number)
	switch me.Number {
	case erStatementTimeout:
		return &QueryError{
			Code:    code,
			Message: fmt.Sprintf("Query exceeded the time limit of %d seconds", int(timeout.Seconds())),
			Hint:    statementTimeoutHint,
			Err:     err,
		}
	case erConCount, erTooManyUserConns:
		return &QueryError{
			Code:    code,
			Message: "Too many database connections",
			Fatal:   true,
			Err:     errors.WithSecondaryError(errors.WithStack(errors.ErrTooManyConnections), err),
		}
	default:
		return &QueryError{
			Code:    code,
			Message: fmt.Sprintf("SQL Error: %s: %s", code, me.Message),
			Hint:    quarryHint,
			Err:     errors.WithHint(err, quarryHint),
		}
	}
}

// isConnectionRefused reports whether the error is a refused TCP connection
func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
