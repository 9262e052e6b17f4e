package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Import sqlite drivers: "sqlite" (pure Go) and "sqlite3" (cgo)
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// DefaultDriver is the database/sql driver used by NewDB.
const DefaultDriver = "sqlite"

// Drivers lists the driver names OpenDB accepts.
var Drivers = []string{"sqlite", "sqlite3"}

// DB wraps a sql.DB connection holding namespaced key/value entries
// and the registry of browser clients that own them.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection with the default driver and runs migrations.
func NewDB(path string) (*DB, error) {
	return OpenDB(DefaultDriver, path)
}

// OpenDB opens a database connection with the named driver and runs migrations.
func OpenDB(driver, path string) (*DB, error) {
	if !validDriver(driver) {
		return nil, fmt.Errorf("unsupported driver %q: must be one of %v", driver, Drivers)
	}

	conn, err := sql.Open(driver, path)
	if err != nil {
		return nil, err
	}

	// A single connection keeps ":memory:" databases shared and avoids SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func validDriver(driver string) bool {
	for _, d := range Drivers {
		if d == driver {
			return true
		}
	}
	return false
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			namespace TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS clients (
			token TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			last_activity INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Get returns the value stored under key in namespace ns.
func (db *DB) Get(ns, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow(
		"SELECT value FROM entries WHERE namespace = ? AND key = ?",
		ns, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key in namespace ns, replacing any previous value.
func (db *DB) Set(ns, key, value string) error {
	_, err := db.conn.Exec(
		`INSERT INTO entries (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ns, key, value, time.Now().Unix(),
	)
	return err
}

// Remove deletes key from namespace ns. Missing keys are not an error.
func (db *DB) Remove(ns, key string) error {
	_, err := db.conn.Exec("DELETE FROM entries WHERE namespace = ? AND key = ?", ns, key)
	return err
}

// Keys lists the keys present in namespace ns, sorted.
func (db *DB) Keys(ns string) ([]string, error) {
	rows, err := db.conn.Query("SELECT key FROM entries WHERE namespace = ? ORDER BY key", ns)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// ClearNamespace removes every entry in namespace ns.
func (db *DB) ClearNamespace(ns string) error {
	_, err := db.conn.Exec("DELETE FROM entries WHERE namespace = ?", ns)
	return err
}

// Namespace returns a Store scoped to ns.
func (db *DB) Namespace(ns string) Store {
	return &namespaced{db: db, ns: ns}
}

type namespaced struct {
	db *DB
	ns string
}

func (n *namespaced) Get(key string) (string, bool, error) { return n.db.Get(n.ns, key) }
func (n *namespaced) Set(key, value string) error          { return n.db.Set(n.ns, key, value) }
func (n *namespaced) Remove(key string) error              { return n.db.Remove(n.ns, key) }

// ClientNamespace is the namespace owned by the browser client with the given token.
func ClientNamespace(token string) string {
	return "client/" + token
}

// ProfileNamespace is the namespace owned by a named CLI profile.
func ProfileNamespace(name string) string {
	return "profile/" + name
}

// ClientInfo holds client validation data.
type ClientInfo struct {
	Token        string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// CreateClient registers a new browser client.
func (db *DB) CreateClient(token string, expiresAt time.Time) error {
	now := time.Now().Unix()
	_, err := db.conn.Exec(
		"INSERT INTO clients (token, created_at, last_activity, expires_at) VALUES (?, ?, ?, ?)",
		token, now, now, expiresAt.Unix(),
	)
	return err
}

// ValidateClient checks that a client token exists and has not expired.
func (db *DB) ValidateClient(token string) error {
	_, err := db.ValidateClientWithInfo(token)
	return err
}

// ValidateClientWithInfo checks a client token and returns its details.
// sql.ErrNoRows is returned for unknown or expired tokens.
func (db *DB) ValidateClientWithInfo(token string) (*ClientInfo, error) {
	row := db.conn.QueryRow(
		"SELECT created_at, last_activity, expires_at FROM clients WHERE token = ? AND expires_at > ?",
		token, time.Now().Unix(),
	)

	var created, lastActivity, expiresAt int64
	if err := row.Scan(&created, &lastActivity, &expiresAt); err != nil {
		return nil, err
	}
	return &ClientInfo{
		Token:        token,
		CreatedAt:    time.Unix(created, 0),
		LastActivity: time.Unix(lastActivity, 0),
		ExpiresAt:    time.Unix(expiresAt, 0),
	}, nil
}

// RenewClient updates last_activity and expires_at for a client.
func (db *DB) RenewClient(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE clients SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().Unix(), newExpiresAt.Unix(), token,
	)
	return err
}

// DeleteClient removes a client and everything in its namespace.
func (db *DB) DeleteClient(token string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries WHERE namespace = ?", ClientNamespace(token)); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM clients WHERE token = ?", token); err != nil {
		return err
	}
	return tx.Commit()
}

// CleanExpiredClients removes all expired clients together with their namespaces.
// It returns the number of clients removed.
func (db *DB) CleanExpiredClients() (int, error) {
	rows, err := db.conn.Query("SELECT token FROM clients WHERE expires_at <= ?", time.Now().Unix())
	if err != nil {
		return 0, err
	}
	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return 0, err
		}
		tokens = append(tokens, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, t := range tokens {
		if err := db.DeleteClient(t); err != nil {
			return 0, fmt.Errorf("delete client: %w", err)
		}
	}
	return len(tokens), nil
}

// ClientCount returns the number of registered clients.
func (db *DB) ClientCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM clients").Scan(&count)
	return count, err
}
