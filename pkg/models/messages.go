package models

// ChannelMessage is one text message received on a tracked channel.
// message_id is assigned by the sender's radio stack and is the dedup key;
// id is the local insertion-order surrogate used as a pagination tie-break.
type ChannelMessage struct {
	ID           int64    `db:"id" json:"id"`
	MessageID    int64    `db:"message_id" json:"message_id"`
	ChannelIndex int64    `db:"channel_index" json:"channel_index"`
	FromNode     string   `db:"from_node" json:"from_node"`
	ToNode       *string  `db:"to_node" json:"to_node"`
	Text         string   `db:"text" json:"text"`
	RxTime       int64    `db:"rx_time" json:"rx_time"`
	HopCount     *int64   `db:"hop_count" json:"hop_count"`
	SNR          *float64 `db:"snr" json:"snr"`
	RSSI         *int64   `db:"rssi" json:"rssi"`
	ReplyTo      *int64   `db:"reply_to" json:"reply_to"`
	ViaMqtt      bool     `db:"via_mqtt" json:"via_mqtt"`
}

// DirectMessage mirrors ChannelMessage minus the channel/destination fields.
type DirectMessage struct {
	ID        int64    `db:"id" json:"id"`
	MessageID int64    `db:"message_id" json:"message_id"`
	FromNode  string   `db:"from_node" json:"from_node"`
	Text      string   `db:"text" json:"text"`
	RxTime    int64    `db:"rx_time" json:"rx_time"`
	SNR       *float64 `db:"snr" json:"snr"`
	RSSI      *int64   `db:"rssi" json:"rssi"`
	ReplyTo   *int64   `db:"reply_to" json:"reply_to"`
	ViaMqtt   bool     `db:"via_mqtt" json:"via_mqtt"`
}

// MessageRow is a ChannelMessage enriched with sender and reply-to context
// for API responses.
type MessageRow struct {
	ChannelMessage
	FromNodeLongName         *string `db:"from_node_long_name" json:"from_node_long_name"`
	FromNodeShortName        *string `db:"from_node_short_name" json:"from_node_short_name"`
	ChannelName              *string `db:"channel_name" json:"channel_name,omitempty"`
	ReplyToText              *string `db:"reply_to_text" json:"reply_to_text"`
	ReplyToFromNode          *string `db:"reply_to_from_node" json:"reply_to_from_node"`
	ReplyToFromNodeShortName *string `db:"reply_to_from_node_short_name" json:"reply_to_from_node_short_name"`
}

// DirectMessageRow is a DirectMessage enriched the same way.
type DirectMessageRow struct {
	DirectMessage
	FromNodeLongName         *string `db:"from_node_long_name" json:"from_node_long_name"`
	FromNodeShortName        *string `db:"from_node_short_name" json:"from_node_short_name"`
	ReplyToText              *string `db:"reply_to_text" json:"reply_to_text"`
	ReplyToFromNode          *string `db:"reply_to_from_node" json:"reply_to_from_node"`
	ReplyToFromNodeShortName *string `db:"reply_to_from_node_short_name" json:"reply_to_from_node_short_name"`
}
