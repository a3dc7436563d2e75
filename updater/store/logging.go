package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type loggingExecer struct {
	execer     execer
	logger     log.FieldLogger
	logQueries bool
}

func newLoggingExecer(execer execer, logger log.FieldLogger, logQueries bool) *loggingExecer {
	return &loggingExecer{
		execer:     execer,
		logger:     logger,
		logQueries: logQueries,
	}
}

func (e *loggingExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if e.logQueries {
		e.logger.Debugf("EXEC: %s [%s]", query, argsString(args...))
	}
	return e.execer.ExecContext(ctx, query, args...)
}

// argsString pretty prints query arguments for logging
func argsString(args ...interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		var v interface{} = a
		if x, ok := v.(driver.Valuer); ok {
			y, err := x.Value()
			if err == nil {
				v = y
			}
		}
		switch x := v.(type) {
		case string:
			parts[i] = fmt.Sprintf("$%d: %q", i+1, x)
		default:
			parts[i] = fmt.Sprintf("$%d: %v", i+1, x)
		}
	}
	return strings.Join(parts, ", ")
}
