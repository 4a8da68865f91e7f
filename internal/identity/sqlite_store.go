package identity

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/giantswarm/tandem/internal/api"
)

// DatabaseFileName is the SQLite file name inside the data dir.
const DatabaseFileName = "users.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	last_active      INTEGER NOT NULL,
	is_authenticated INTEGER NOT NULL DEFAULT 0,
	email            TEXT NOT NULL DEFAULT '',
	picture          TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const activeKey = "active_user"

// SQLiteStore is a Store backed by SQLite.
type SQLiteStore struct {
	// mu serializes read-modify-write sequences in Update.
	mu  sync.Mutex
	db  *sql.DB
	now Clock
}

// OpenSQLite opens (and migrates) the database at dsn. Use a file path for
// persistent storage or ":memory:" in tests.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: defaultClock}, nil
}

// WithClock overrides the time source. Intended for tests.
func (s *SQLiteStore) WithClock(now Clock) *SQLiteStore {
	s.now = now
	return s
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*api.User, error) {
	var (
		u          api.User
		lastActive int64
		authed     int
	)
	if err := row.Scan(&u.ID, &u.Name, &lastActive, &authed, &u.Email, &u.Picture); err != nil {
		return nil, err
	}
	u.LastActive = time.Unix(0, lastActive).UTC()
	u.IsAuthenticated = authed != 0
	return &u, nil
}

const selectUser = `SELECT id, name, last_active, is_authenticated, email, picture FROM users`

// List returns all users in insertion order.
func (s *SQLiteStore) List() ([]api.User, error) {
	rows, err := s.db.Query(selectUser + ` ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []api.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// GetUser returns the user with the given id.
func (s *SQLiteStore) GetUser(id string) (*api.User, error) {
	id, err := normalizeID("get_user", id)
	if err != nil {
		return nil, err
	}

	u, err := scanUser(s.db.QueryRow(selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.UnknownUser("get_user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Create adds a new user.
func (s *SQLiteStore) Create(name string) (*api.User, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}

	u := api.User{ID: uuid.NewString(), Name: name, LastActive: s.now()}
	_, err = s.db.Exec(
		`INSERT INTO users (id, name, last_active) VALUES (?, ?, ?)`,
		u.ID, u.Name, u.LastActive.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

// Rename changes a user's display name.
func (s *SQLiteStore) Rename(id, name string) (*api.User, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	return s.Update(id, func(u *api.User) { u.Name = name })
}

// Update applies mutate to the stored user inside a transaction.
func (s *SQLiteStore) Update(id string, mutate func(*api.User)) (*api.User, error) {
	id, err := normalizeID("update_user", id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	u, err := scanUser(tx.QueryRow(selectUser+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, api.UnknownUser("update_user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	mutate(u)
	u.ID = id

	authed := 0
	if u.IsAuthenticated {
		authed = 1
	}
	_, err = tx.Exec(
		`UPDATE users SET name = ?, last_active = ?, is_authenticated = ?, email = ?, picture = ? WHERE id = ?`,
		u.Name, u.LastActive.UnixNano(), authed, u.Email, u.Picture, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

// Remove deletes a user and clears the active marker if it pointed at them.
func (s *SQLiteStore) Remove(id string) error {
	id, err := normalizeID("remove_user", id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.UnknownUser("remove_user", id)
	}
	if _, err := tx.Exec(`DELETE FROM settings WHERE key = ? AND value = ?`, activeKey, id); err != nil {
		return fmt.Errorf("clear active user: %w", err)
	}
	return tx.Commit()
}

// Active returns the last active user id.
func (s *SQLiteStore) Active() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, activeKey).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get active user: %w", err)
	}
	return id, nil
}

// SetActive records the last active user.
func (s *SQLiteStore) SetActive(id string) error {
	id = api.NormalizeUserID(id)
	if id == "" {
		_, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, activeKey)
		return err
	}
	if _, err := s.GetUser(id); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		activeKey, id,
	)
	if err != nil {
		return fmt.Errorf("set active user: %w", err)
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
