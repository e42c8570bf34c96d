package repo

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// DB wraps a database/sql handle together with the dialect it speaks. Queries
// in this package are written with ? placeholders and rebound for postgres.
type DB struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the store named by databaseURL: a postgres:// URL selects
// the pgx driver, anything else is treated as a sqlite file path.
func Open(databaseURL string) (*DB, error) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		db, err := sql.Open("pgx", databaseURL)
		if err != nil {
			return nil, err
		}
		return &DB{db: db, dialect: dialectPostgres}, nil
	}

	// _time_format makes the driver store time.Time values in a layout it
	// can parse back out of TIMESTAMP columns.
	dsn := databaseURL
	if strings.ContainsRune(dsn, '?') {
		dsn += "&_time_format=sqlite"
	} else {
		dsn += "?_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent claims and keeps :memory: databases
	// on one connection.
	db.SetMaxOpenConns(1)
	return &DB{db: db, dialect: dialectSQLite}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS slack_tokens (
	user_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	team_id TEXT NOT NULL,
	team_name TEXT NOT NULL,
	expires_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	body TEXT NOT NULL,
	scheduled_time TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_due ON scheduled_messages (status, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_messages_user ON scheduled_messages (user_id, status);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS slack_tokens (
	user_id TEXT PRIMARY KEY,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	team_id TEXT NOT NULL,
	team_name TEXT NOT NULL,
	expires_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scheduled_messages (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	channel_name TEXT NOT NULL,
	body TEXT NOT NULL,
	scheduled_time TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_due ON scheduled_messages (status, scheduled_time);
CREATE INDEX IF NOT EXISTS idx_messages_user ON scheduled_messages (user_id, status);
`

// Bootstrap creates the tables and indexes if they do not exist yet.
func (d *DB) Bootstrap(ctx context.Context) error {
	schema := sqliteSchema
	if d.dialect == dialectPostgres {
		schema = postgresSchema
	}
	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// rebind converts ? placeholders to $1..$n for postgres. Queries in this
// package never contain a literal question mark.
func (d *DB) rebind(query string) string {
	if d.dialect != dialectPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
