package store

import (
	"database/sql"
	"log/slog"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

// Cursor selects one pagination window keyed by receive time. Exactly one
// mode applies: forward (After), backward (Before), or the newest rows
// (Newest). With none set the window starts at the oldest row.
type Cursor struct {
	Limit        int
	AfterRxTime  *int64
	BeforeRxTime *int64
	Newest       bool
}

// descending reports whether the window must be selected in descending
// order before being reversed for output.
func (c Cursor) descending() bool {
	return c.Newest || c.BeforeRxTime != nil
}

// MessagePage is one window of channel messages in ascending
// (rx_time, id) order, with existence flags for rows outside the window.
type MessagePage struct {
	Messages     []models.MessageRow
	Total        int
	HasMoreOlder bool
	HasMoreNewer bool
}

// MessageStore provides deduplicated insertion and cursor-windowed
// retrieval of channel messages.
type MessageStore interface {
	// Insert stores a message unless its message_id was already seen.
	// A duplicate is a no-op reported as inserted=false, never an error.
	Insert(m *models.ChannelMessage) (inserted bool, err error)
	// GetByMessageID returns one enriched message, or nil when unknown.
	GetByMessageID(messageID int64) (*models.MessageRow, error)
	// List returns the page selected by the cursor, optionally filtered by
	// channel index. The total ignores the cursor but honors the filter.
	List(channelIndex *int, cur Cursor) (*MessagePage, error)
	// Prune deletes all but the newest MaxMessages rows.
	Prune() (int64, error)
	Count() (int, error)
	CountByChannel() (map[int64]int, error)
}

const selectEnrichedMessages = `
SELECT m.id, m.message_id, m.channel_index, m.from_node, m.to_node,
       m.reply_to, m.text, m.rx_time, m.hop_count, m.snr, m.rssi, m.via_mqtt,
       n.long_name AS from_node_long_name,
       n.short_name AS from_node_short_name,
       parent.text AS reply_to_text,
       parent.from_node AS reply_to_from_node,
       pn.short_name AS reply_to_from_node_short_name
FROM messages m
LEFT JOIN nodes n ON m.from_node = n.node_id
LEFT JOIN messages parent ON m.reply_to = parent.message_id
LEFT JOIN nodes pn ON parent.from_node = pn.node_id`

type sqliteMessageStore struct {
	db  *sqlx.DB
	ret RetentionSettings

	mu          sync.Mutex
	insertCount int
}

func NewMessages(dbconn *sqlx.DB, ret RetentionSettings) MessageStore {
	return &sqliteMessageStore{db: dbconn, ret: ret}
}

func (s *sqliteMessageStore) Insert(m *models.ChannelMessage) (bool, error) {
	stmt := `
	INSERT OR IGNORE INTO messages
	  (message_id, channel_index, from_node, to_node, text, rx_time,
	   hop_count, snr, rssi, reply_to, via_mqtt)
	VALUES
	  (:message_id, :channel_index, :from_node, :to_node, :text, :rx_time,
	   :hop_count, :snr, :rssi, :reply_to, :via_mqtt);`

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
			slog.Error("message sweep failed", "error", err)
		}
	}
	return true, nil
}

func (s *sqliteMessageStore) GetByMessageID(messageID int64) (*models.MessageRow, error) {
	query := `
	SELECT m.id, m.message_id, m.channel_index, m.from_node, m.to_node,
	       m.reply_to, m.text, m.rx_time, m.hop_count, m.snr, m.rssi, m.via_mqtt,
	       n.long_name AS from_node_long_name,
	       n.short_name AS from_node_short_name,
	       c.name AS channel_name,
	       parent.text AS reply_to_text,
	       parent.from_node AS reply_to_from_node,
	       pn.short_name AS reply_to_from_node_short_name
	FROM messages m
	LEFT JOIN nodes n ON m.from_node = n.node_id
	LEFT JOIN channels c ON m.channel_index = c.channel_index
	LEFT JOIN messages parent ON m.reply_to = parent.message_id
	LEFT JOIN nodes pn ON parent.from_node = pn.node_id
	WHERE m.message_id = ?;`

	var row models.MessageRow
	err := s.db.Get(&row, query, messageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *sqliteMessageStore) List(channelIndex *int, cur Cursor) (*MessagePage, error) {
	var whereParts []string
	var args []any

	if channelIndex != nil {
		whereParts = append(whereParts, "m.channel_index = ?")
		args = append(args, *channelIndex)
	}
	if cur.AfterRxTime != nil && !cur.Newest {
		whereParts = append(whereParts, "m.rx_time > ?")
		args = append(args, *cur.AfterRxTime)
	} else if cur.BeforeRxTime != nil && !cur.Newest {
		whereParts = append(whereParts, "m.rx_time < ?")
		args = append(args, *cur.BeforeRxTime)
	}

	where := ""
	if len(whereParts) > 0 {
		where = " WHERE " + strings.Join(whereParts, " AND ")
	}

	// Total is unfiltered by cursor position, filtered by channel only.
	var total int
	if channelIndex != nil {
		if err := s.db.Get(&total, `SELECT COUNT(*) FROM messages WHERE channel_index = ?;`, *channelIndex); err != nil {
			return nil, err
		}
	} else {
		if err := s.db.Get(&total, `SELECT COUNT(*) FROM messages;`); err != nil {
			return nil, err
		}
	}

	// Backward/latest windows select in DESC to pick the correct rows and
	// are reversed below so callers always see ascending order.
	order := " ORDER BY m.rx_time ASC, m.id ASC"
	if cur.descending() {
		order = " ORDER BY m.rx_time DESC, m.id DESC"
	}

	rows := []models.MessageRow{}
	err := s.db.Select(&rows, selectEnrichedMessages+where+order+" LIMIT ?;", append(args, cur.Limit)...)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if cur.descending() {
		reverseRows(rows)
	}

	page := &MessagePage{Messages: rows, Total: total}
	if len(rows) == 0 {
		return page, nil
	}

	oldest, newest := rows[0], rows[len(rows)-1]
	page.HasMoreOlder, err = s.probe(channelIndex, "(m.rx_time < ? OR (m.rx_time = ? AND m.id < ?))", oldest.RxTime, oldest.ID)
	if err != nil {
		return nil, err
	}
	page.HasMoreNewer, err = s.probe(channelIndex, "(m.rx_time > ? OR (m.rx_time = ? AND m.id > ?))", newest.RxTime, newest.ID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// probe is an existence check short-circuiting after the first match.
func (s *sqliteMessageStore) probe(channelIndex *int, cond string, rxTime, id int64) (bool, error) {
	query := `SELECT 1 FROM messages m WHERE ` + cond
	args := []any{rxTime, rxTime, id}
	if channelIndex != nil {
		query += ` AND m.channel_index = ?`
		args = append(args, *channelIndex)
	}
	var one int
	err := s.db.Get(&one, query+` LIMIT 1;`, args...)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *sqliteMessageStore) Prune() (int64, error) {
	stmt := `
	DELETE FROM messages
	WHERE id NOT IN (
	    SELECT id FROM messages
	    ORDER BY rx_time DESC, id DESC
	    LIMIT ?
	);`

	res, err := s.db.Exec(stmt, s.ret.MaxMessages)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		slog.Info("messages pruned", "count", deleted)
	}
	return deleted, nil
}

func (s *sqliteMessageStore) Count() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM messages;`)
	return count, err
}

func (s *sqliteMessageStore) CountByChannel() (map[int64]int, error) {
	var rows []struct {
		ChannelIndex int64 `db:"channel_index"`
		MessageCount int   `db:"message_count"`
	}
	query := `
	SELECT c.channel_index, COUNT(m.id) AS message_count
	FROM channels c
	LEFT JOIN messages m ON c.channel_index = m.channel_index
	GROUP BY c.channel_index;`

	if err := s.db.Select(&rows, query); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	counts := make(map[int64]int, len(rows))
	for _, r := range rows {
		counts[r.ChannelIndex] = r.MessageCount
	}
	return counts, nil
}

func reverseRows[T any](rows []T) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
