// Package sqlitedriver registers a SQLite database/sql driver under the name
// "sqlite3" for the Job Store and Learning Store. When built with CGO
// (the default on macOS/Linux) it uses go-sqlcipher, which allows the
// stores to optionally encrypt the on-disk database. When CGO is
// unavailable it falls back to the pure-Go modernc.org/sqlite driver —
// functional but without encryption support.
//
// Import this package for its side effects only:
//
//	import _ "github.com/hjonck/leadscout/internal/sqlitedriver"
package sqlitedriver
