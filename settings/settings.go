// Package settings implements the persistent key/value configuration store
// (C1): scalar settings addressed by string key, with an automatic blob
// fallback for values too large to hold comfortably as TEXT, and typed
// MessagePack encoding for the structured records (schedules, sensor list,
// heater list) the rest of the engine persists through it. Grounded on the
// teacher's hub.Hub sqlite wiring (queryDb/execDb helpers, prepared
// statements, a single serializing mutex around the *sql.DB handle).
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	_ "github.com/mattn/go-sqlite3"
)

// blobThreshold is the size in bytes above which a value is stored in the
// blob column instead of the text column, per spec §4.1's "C1 settings
// store" blob fallback.
const blobThreshold = 4096

const createTableSQL = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT,
	blob  BLOB
)`

const selectSQL = `SELECT value, blob FROM settings WHERE key = ?`
const upsertSQL = `INSERT INTO settings (key, value, blob) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, blob = excluded.blob`
const deleteSQL = `DELETE FROM settings WHERE key = ?`
const dropTableSQL = `DROP TABLE IF EXISTS settings`

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("settings: key not found")

// Store is a sqlite-backed typed key/value store.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures the settings table exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	s := &Store{db: db}
	if _, err := s.db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: create table: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetString returns the raw text value for key.
func (s *Store) GetString(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(selectSQL, key)
	var value sql.NullString
	var blob []byte
	if err := row.Scan(&value, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	if len(blob) > 0 {
		var s string
		if err := msgpack.Unmarshal(blob, &s); err != nil {
			return "", fmt.Errorf("settings: decode blob for %q: %w", key, err)
		}
		return s, nil
	}
	if !value.Valid {
		return "", ErrNotFound
	}
	return value.String, nil
}

// SetString stores a text value, falling back to a msgpack-encoded blob
// column when the value exceeds blobThreshold bytes.
func (s *Store) SetString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(value) > blobThreshold {
		blob, err := msgpack.Marshal(value)
		if err != nil {
			return fmt.Errorf("settings: encode blob for %q: %w", key, err)
		}
		_, err = s.db.Exec(upsertSQL, key, nil, blob)
		return err
	}
	_, err := s.db.Exec(upsertSQL, key, value, nil)
	return err
}

// GetInt/SetInt, GetFloat/SetFloat, GetBool/SetBool are thin scalar
// convenience wrappers over GetString/SetString.

func (s *Store) GetInt(key string, fallback int) int {
	v, err := s.GetString(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.SetInt(key, fallback)
		}
		return fallback
	}
	var out int
	if _, err := fmt.Sscanf(v, "%d", &out); err != nil {
		return fallback
	}
	return out
}

func (s *Store) SetInt(key string, value int) error {
	return s.SetString(key, fmt.Sprintf("%d", value))
}

func (s *Store) GetFloat(key string, fallback float64) float64 {
	v, err := s.GetString(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.SetFloat(key, fallback)
		}
		return fallback
	}
	var out float64
	if _, err := fmt.Sscanf(v, "%g", &out); err != nil {
		return fallback
	}
	return out
}

func (s *Store) SetFloat(key string, value float64) error {
	return s.SetString(key, fmt.Sprintf("%g", value))
}

func (s *Store) GetBool(key string, fallback bool) bool {
	v, err := s.GetString(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = s.SetBool(key, fallback)
		}
		return fallback
	}
	return v == "1" || v == "true"
}

func (s *Store) SetBool(key string, value bool) error {
	if value {
		return s.SetString(key, "1")
	}
	return s.SetString(key, "0")
}

// GetRecord decodes a msgpack-encoded structured record (schedule list,
// sensor list, heater list) stored under key into out.
func (s *Store) GetRecord(key string, out interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(selectSQL, key)
	var value sql.NullString
	var blob []byte
	if err := row.Scan(&value, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if len(blob) == 0 {
		return ErrNotFound
	}
	return msgpack.Unmarshal(blob, out)
}

// SetRecord msgpack-encodes v and stores it as a blob under key,
// unconditionally (records are always blobs, regardless of size).
func (s *Store) SetRecord(key string, v interface{}) error {
	blob, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode record %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(upsertSQL, key, nil, blob)
	return err
}

// Delete removes a key entirely.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(deleteSQL, key)
	return err
}

// FactoryReset drops and recreates the settings table, wiping all stored
// configuration, schedules, and sensor/heater lists (spec §6's
// factoryReset command).
func (s *Store) FactoryReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(dropTableSQL); err != nil {
		return err
	}
	_, err := s.db.Exec(createTableSQL)
	return err
}
