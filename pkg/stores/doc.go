// Package stores provides the SQLite-backed state store: last-known resource
// state, run history, and the event timeline. The schema is managed with
// embedded migrations and the database runs in WAL mode so readers never
// block the executor's incremental writes.
package stores
