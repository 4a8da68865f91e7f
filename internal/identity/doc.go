// Package identity is the durable list of tandem users.
//
// The store is the single source of truth for "which users exist". Every
// other component (session registry, layout manager, authorization gate)
// reads through api.UserLookup and never invents a user id.
//
// Two backends are provided:
//
//   - YAMLStore keeps users in <dataDir>/users.yaml, together with the id of
//     the last active user so the shell can restore it on startup.
//   - SQLiteStore keeps the same data in a SQLite database (modernc.org/sqlite,
//     no cgo).
//
// Watcher observes the YAML file for edits made by other processes and
// notifies the shell after a short debounce.
package identity
