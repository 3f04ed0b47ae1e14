package models

// Channel is a tracked channel index with its configured display name.
type Channel struct {
	ChannelIndex int64  `db:"channel_index" json:"channel_index"`
	Name         string `db:"name" json:"name"`
}

// Meta keys written by the collector and asset pipeline.
const (
	MetaSchemaVersion = "schema_version"
	MetaLocalNodeID   = "local_node_id"
	MetaCSSFilename   = "css_filename"
	MetaJSFilename    = "js_filename"
)
