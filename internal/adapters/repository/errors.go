package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/okian/tapbattle/pkg/errs"
	"gorm.io/gorm"
)

// Sentinel errors for store setup.
var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrClosed            = errors.New("store closed")
)

// classify maps a gorm or driver error onto an errs kind. Errors that
// already carry a kind keep it.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *errs.Error
	if errors.As(err, &e) {
		return errs.Wrap(op, err)
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errs.WrapKind(op, errs.ErrNotFound, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return errs.WrapKind(op, errs.ErrStateConflict, err)
	case unavailable(err):
		return errs.WrapKind(op, errs.ErrUnavailable, err)
	}
	return errs.WrapKind(op, errs.ErrInternal, err)
}

func unavailable(err error) bool {
	if errors.Is(err, ErrClosed) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is locked", "connection refused", "database is closed", "sql: database is closed", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
