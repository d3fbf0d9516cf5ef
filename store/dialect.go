package store

import (
	"fmt"
	"strings"
	"time"
)

// Dialect covers the SQL differences between SQLite and PostgreSQL.
type Dialect interface {
	Placeholder(n int) string
	BoolTrue() string
	// Time converts t to the value stored in a timestamp column.
	Time(t time.Time) any
}

type sqliteDialect struct{}

func (sqliteDialect) Placeholder(_ int) string { return "?" }
func (sqliteDialect) BoolTrue() string         { return "1" }

// SQLite has no timestamp type; times are kept as sortable RFC 3339 text.
func (sqliteDialect) Time(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) }

type postgresDialect struct{}

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) BoolTrue() string         { return "TRUE" }
func (postgresDialect) Time(t time.Time) any     { return t.UTC() }

// timeLayouts are the text forms a timestamp column may come back in.
// The second is how database/sql renders a time.Time bound into SQLite.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
}

// parseTime converts a scanned timestamp to UTC. SQLite returns text,
// PostgreSQL returns time.Time.
func parseTime(v any) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

// parseTimePtr is parseTime with nil for a missing timestamp.
func parseTimePtr(v any) *time.Time {
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

// ts converts t for the current driver.
func (db *DB) ts(t time.Time) any { return db.dialect.Time(t) }

func (db *DB) now() any { return db.ts(time.Now()) }

func (db *DB) nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return db.ts(*t)
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(fmt.Sprintf("$%d", n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

// noLimit stands in for "all rows" since PostgreSQL rejects a negative LIMIT.
const noLimit = 1<<31 - 1

func rowLimit(n int) int {
	if n <= 0 {
		return noLimit
	}
	return n
}
