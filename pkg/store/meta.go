package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// MetaStore is the process-wide key/value table. Last write wins.
type MetaStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

type sqliteMetaStore struct {
	db *sqlx.DB
}

func NewMeta(dbconn *sqlx.DB) MetaStore {
	return &sqliteMetaStore{db: dbconn}
}

// Get returns the stored value, or "" when the key has never been set.
func (s *sqliteMetaStore) Get(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM meta WHERE key = $1;`, key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *sqliteMetaStore) Set(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ($1, $2);`, key, value)
	return err
}
