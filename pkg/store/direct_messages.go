package store

import (
	"database/sql"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

// DirectMessagePage is one window of direct messages in ascending
// (rx_time, id) order.
type DirectMessagePage struct {
	Messages     []models.DirectMessageRow
	Total        int
	HasMoreOlder bool
	HasMoreNewer bool
}

// DirectMessageStore mirrors MessageStore for messages addressed to the
// local node. Ingestion gating (LOG_DIRECT_MESSAGES) happens in the
// collector; when disabled this store simply stays empty.
type DirectMessageStore interface {
	Insert(m *models.DirectMessage) (inserted bool, err error)
	GetByMessageID(messageID int64) (*models.DirectMessageRow, error)
	List(cur Cursor) (*DirectMessagePage, error)
	Prune() (int64, error)
	Count() (int, error)
}

const selectEnrichedDirectMessages = `
SELECT dm.id, dm.message_id, dm.from_node, dm.text, dm.rx_time,
       dm.snr, dm.rssi, dm.reply_to, dm.via_mqtt,
       n.long_name AS from_node_long_name,
       n.short_name AS from_node_short_name,
       parent.text AS reply_to_text,
       parent.from_node AS reply_to_from_node,
       pn.short_name AS reply_to_from_node_short_name
FROM direct_messages dm
LEFT JOIN nodes n ON dm.from_node = n.node_id
LEFT JOIN direct_messages parent ON dm.reply_to = parent.message_id
LEFT JOIN nodes pn ON parent.from_node = pn.node_id`

type sqliteDirectMessageStore struct {
	db  *sqlx.DB
	ret RetentionSettings

	mu          sync.Mutex
	insertCount int
}

func NewDirectMessages(dbconn *sqlx.DB, ret RetentionSettings) DirectMessageStore {
	return &sqliteDirectMessageStore{db: dbconn, ret: ret}
}

func (s *sqliteDirectMessageStore) Insert(m *models.DirectMessage) (bool, error) {
	stmt := `
	INSERT OR IGNORE INTO direct_messages
	  (message_id, from_node, text, rx_time, snr, rssi, reply_to, via_mqtt)
	VALUES
	  (:message_id, :from_node, :text, :rx_time, :snr, :rssi, :reply_to, :via_mqtt);`

	res, err := s.db.NamedExec(stmt, m)
	if err != nil {
		return false, err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	s.mu.Lock()
	s.insertCount++
	sweep := s.insertCount >= s.ret.PruneInterval
	if sweep {
		s.insertCount = 0
	}
	s.mu.Unlock()

	if sweep {
		if _, err := s.Prune(); err != nil {
			slog.Error("direct message sweep failed", "error", err)
		}
	}
	return true, nil
}

func (s *sqliteDirectMessageStore) GetByMessageID(messageID int64) (*models.DirectMessageRow, error) {
	var row models.DirectMessageRow
	err := s.db.Get(&row, selectEnrichedDirectMessages+` WHERE dm.message_id = ?;`, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *sqliteDirectMessageStore) List(cur Cursor) (*DirectMessagePage, error) {
	var whereParts []string
	var args []any

	if cur.AfterRxTime != nil && !cur.Newest {
		whereParts = append(whereParts, "dm.rx_time > ?")
		args = append(args, *cur.AfterRxTime)
	} else if cur.BeforeRxTime != nil && !cur.Newest {
		whereParts = append(whereParts, "dm.rx_time < ?")
		args = append(args, *cur.BeforeRxTime)
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	var total int
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM direct_messages;`); err != nil {
		return nil, err
	}

	order := " ORDER BY dm.rx_time ASC, dm.id ASC"
	if cur.descending() {
		order = " ORDER BY dm.rx_time DESC, dm.id DESC"
	}

	rows := []models.DirectMessageRow{}
	err := s.db.Select(&rows, selectEnrichedDirectMessages+where+order+" LIMIT ?;", append(args, cur.Limit)...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if cur.descending() {
		reverseRows(rows)
	}

	page := &DirectMessagePage{Messages: rows, Total: total}
	if len(rows) == 0 {
		return page, nil
	}

	oldest, newest := rows[0], rows[len(rows)-1]
	page.HasMoreOlder, err = s.probe("(rx_time < ? OR (rx_time = ? AND id < ?))", oldest.RxTime, oldest.ID)
	if err != nil {
		return nil, err
	}
	page.HasMoreNewer, err = s.probe("(rx_time > ? OR (rx_time = ? AND id > ?))", newest.RxTime, newest.ID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *sqliteDirectMessageStore) probe(cond string, rxTime, id int64) (bool, error) {
	var one int
	err := s.db.Get(&one, `SELECT 1 FROM direct_messages WHERE `+cond+` LIMIT 1;`, rxTime, rxTime, id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteDirectMessageStore) Prune() (int64, error) {
	stmt := `
	DELETE FROM direct_messages
	WHERE id NOT IN (
	    SELECT id FROM direct_messages
	    ORDER BY rx_time DESC, id DESC
	    LIMIT ?
	);`

	res, err := s.db.Exec(stmt, s.ret.MaxDirectMessages)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		slog.Info("direct messages pruned", "count", deleted)
	}
	return deleted, nil
}

func (s *sqliteDirectMessageStore) Count() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM direct_messages;`)
	return count, err
}
