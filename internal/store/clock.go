package store

import (
	"context"
	"database/sql/driver"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Clock supplies the time returned by the now_ms() SQL function.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used when no Clock option is given.
var SystemClock Clock = systemClock{}

// connector opens mattn/go-sqlite3 connections with a per-handle connect hook,
// so each handle can install its own SQL functions without registering a
// global driver name.
type connector struct {
	dsn    string
	driver *sqlite3.SQLiteDriver
}

func newConnector(dsn string, clock Clock) *connector {
	return &connector{
		dsn: dsn,
		driver: &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				// now_ms() is not pure: its result changes between calls.
				return conn.RegisterFunc("now_ms", func() int64 {
					return clock.Now().UnixMilli()
				}, false)
			},
		},
	}
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}
