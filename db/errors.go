package db

import (
	"strings"

	"github.com/sdzerobot/sdzerobot/errors"
)

// ErrDatabaseClosed is returned when the run log is written after shutdown
// closed the database
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is ErrDatabaseClosed or the raw
// database/sql error for a closed handle
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
