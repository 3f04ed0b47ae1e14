package store

import "github.com/jmoiron/sqlx"

// RetentionSettings carries the sweep caps and batching threshold shared by
// the stores. A sweep runs after every PruneInterval successful inserts
// rather than on each write.
type RetentionSettings struct {
	MaxMessages       int
	MaxDirectMessages int
	PruneInterval     int
	NodePruneDays     int
}

// Stores aggregates the per-table stores over one shared handle.
type Stores struct {
	Meta           MetaStore
	Channels       ChannelStore
	Nodes          NodeStore
	Messages       MessageStore
	DirectMessages DirectMessageStore
}

// NewStores wires every store to the given database handle.
func NewStores(db *sqlx.DB, ret RetentionSettings) *Stores {
	return &Stores{
		Meta:           NewMeta(db),
		Channels:       NewChannels(db),
		Nodes:          NewNodes(db, ret),
		Messages:       NewMessages(db, ret),
		DirectMessages: NewDirectMessages(db, ret),
	}
}
