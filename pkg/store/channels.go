package store

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

// ChannelStore tracks channel indexes and their display names. The name is
// always overwritten by the latest configured value.
type ChannelStore interface {
	Upsert(channelIndex int, name string) error
	GetAll() ([]models.Channel, error)
	Count() (int, error)
}

type sqliteChannelStore struct {
	db *sqlx.DB
}

func NewChannels(dbconn *sqlx.DB) ChannelStore {
	return &sqliteChannelStore{db: dbconn}
}

func (s *sqliteChannelStore) Upsert(channelIndex int, name string) error {
	stmt := `
	INSERT INTO channels (channel_index, name)
	VALUES ($1, $2)
	ON CONFLICT (channel_index)
	DO UPDATE SET name = excluded.name;`

	_, err := s.db.Exec(stmt, channelIndex, name)
	return err
}

func (s *sqliteChannelStore) GetAll() ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.Select(&channels, `SELECT channel_index, name FROM channels ORDER BY channel_index ASC;`)
	if err == sql.ErrNoRows {
		return channels, nil
	}
	return channels, err
}

func (s *sqliteChannelStore) Count() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM channels;`)
	return count, err
}
