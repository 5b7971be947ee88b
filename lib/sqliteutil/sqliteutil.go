package sqliteutil

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// OpenDB opens a database and applies the given schema to it. `path`
// is either a local file path, ":memory:", or a libsql:// url for a
// remote replica. Local databases are opened in WAL mode with a busy
// timeout; sqlite admits one writer at a time and overlapping commits
// must queue rather than fail with SQLITE_BUSY.
func OpenDB(schema, path string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	if strings.HasPrefix(path, "libsql://") || strings.HasPrefix(path, "wss://") {
		db, err = sql.Open("libsql", path)
	} else {
		dsn := path
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
		}
		db, err = sql.Open("sqlite", dsn)
	}
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schema)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}
