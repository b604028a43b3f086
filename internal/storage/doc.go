// Package storage persists newsletter recipients and the run log.
//
// Two backends exist:
//   - sqlite (default): a single-connection database, schema applied by golang-migrate
//   - file: a JSON recipient snapshot replaced atomically plus an append-only run journal
package storage
