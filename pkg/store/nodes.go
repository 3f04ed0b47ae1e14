package store

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/wpamesh/mesh-rx-server/pkg/models"
)

var selectNodes = `SELECT * FROM nodes`

// NodeStore provides database operations for mesh nodes.
type NodeStore interface {
	// GetNode retrieves a node by its node id, or nil when unknown.
	GetNode(nodeID string) (*models.Node, error)
	// Upsert inserts or merges a node record. Existing non-null fields are
	// preserved unless the incoming record carries a non-null replacement;
	// last_seen is always taken from the incoming record, first_seen only
	// on first insert.
	Upsert(node *models.Node) error
	// List returns one offset page of nodes ordered by last_seen descending,
	// optionally filtered by a substring match over id and names, plus the
	// total matching count.
	List(limit, offset int, search string) ([]models.Node, int, error)
	// PruneStale deletes nodes whose last_seen falls behind the configured
	// staleness threshold.
	PruneStale(now time.Time) (int64, error)
	Count() (int, error)
}

type sqliteNodeStore struct {
	db  *sqlx.DB
	ret RetentionSettings

	mu          sync.Mutex
	upsertCount int
}

func NewNodes(dbconn *sqlx.DB, ret RetentionSettings) NodeStore {
	return &sqliteNodeStore{db: dbconn, ret: ret}
}

func (s *sqliteNodeStore) GetNode(nodeID string) (*models.Node, error) {
	var node models.Node
	err := s.db.Get(&node, selectNodes+` WHERE node_id = $1;`, nodeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func (s *sqliteNodeStore) Upsert(node *models.Node) error {
	stmt := `
	INSERT INTO nodes
	  (node_id, short_name, long_name, hardware, role, first_seen, last_seen,
	   battery_level, voltage, snr, rssi, latitude, longitude, altitude)
	VALUES
	  (:node_id, :short_name, :long_name, :hardware, :role, :first_seen, :last_seen,
	   :battery_level, :voltage, :snr, :rssi, :latitude, :longitude, :altitude)
	ON CONFLICT (node_id)
	DO UPDATE SET
	  short_name = COALESCE(excluded.short_name, short_name),
	  long_name = COALESCE(excluded.long_name, long_name),
	  hardware = COALESCE(excluded.hardware, hardware),
	  role = COALESCE(excluded.role, role),
	  last_seen = excluded.last_seen,
	  battery_level = COALESCE(excluded.battery_level, battery_level),
	  voltage = COALESCE(excluded.voltage, voltage),
	  snr = COALESCE(excluded.snr, snr),
	  rssi = COALESCE(excluded.rssi, rssi),
	  latitude = COALESCE(excluded.latitude, latitude),
	  longitude = COALESCE(excluded.longitude, longitude),
	  altitude = COALESCE(excluded.altitude, altitude)
	;`

	if _, err := s.db.NamedExec(stmt, node); err != nil {
		return err
	}

	s.mu.Lock()
	s.upsertCount++
	sweep := s.upsertCount >= s.ret.PruneInterval
	if sweep {
		s.upsertCount = 0
	}
	s.mu.Unlock()

	if sweep {
		if _, err := s.PruneStale(time.Now()); err != nil {
			slog.Error("stale node sweep failed", "error", err)
		}
	}
	return nil
}

func (s *sqliteNodeStore) List(limit, offset int, search string) ([]models.Node, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		pattern := "%" + search + "%"
		where = ` WHERE node_id LIKE ? OR short_name LIKE ? OR long_name LIKE ?`
		args = append(args, pattern, pattern, pattern)
	}

	var total int
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM nodes`+where+`;`, args...); err != nil {
		return nil, 0, err
	}

	nodes := []models.Node{}
	query := selectNodes + where + ` ORDER BY last_seen DESC LIMIT ? OFFSET ?;`
	err := s.db.Select(&nodes, query, append(args, limit, offset)...)
	if err == sql.ErrNoRows {
		return nodes, total, nil
	}
	return nodes, total, err
}

func (s *sqliteNodeStore) PruneStale(now time.Time) (int64, error) {
	cutoff := now.Unix() - int64(s.ret.NodePruneDays)*86400
	res, err := s.db.Exec(`DELETE FROM nodes WHERE last_seen < $1;`, cutoff)
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		slog.Info("stale nodes pruned", "count", deleted)
	}
	return deleted, nil
}

func (s *sqliteNodeStore) Count() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM nodes;`)
	return count, err
}
