package models

import "fmt"

// Node represents a mesh peer as reconciled from received packets.
// All non-identity fields are independently nullable; a nil pointer means
// the value has never been reported, not that it was cleared.
type Node struct {
	NodeID       string   `db:"node_id" json:"node_id"`
	ShortName    *string  `db:"short_name" json:"short_name"`
	LongName     *string  `db:"long_name" json:"long_name"`
	Hardware     *string  `db:"hardware" json:"hardware"`
	Role         *string  `db:"role" json:"role"`
	FirstSeen    int64    `db:"first_seen" json:"first_seen"`
	LastSeen     int64    `db:"last_seen" json:"last_seen"`
	BatteryLevel *int64   `db:"battery_level" json:"battery_level"`
	Voltage      *float64 `db:"voltage" json:"voltage"`
	SNR          *float64 `db:"snr" json:"snr"`
	RSSI         *int64   `db:"rssi" json:"rssi"`
	Latitude     *float64 `db:"latitude" json:"latitude"`
	Longitude    *float64 `db:"longitude" json:"longitude"`
	Altitude     *int64   `db:"altitude" json:"altitude"`
}

// DisplayName formats the node as "Long Name (SHRT)", falling back to
// whichever name exists, then to the node id.
func (n *Node) DisplayName() string {
	long, short := "", ""
	if n.LongName != nil {
		long = *n.LongName
	}
	if n.ShortName != nil {
		short = *n.ShortName
	}
	switch {
	case long != "" && short != "":
		return fmt.Sprintf("%s (%s)", long, short)
	case long != "":
		return long
	case short != "":
		return short
	}
	return n.NodeID
}

// HasLocation returns true if the node has a known position.
func (n *Node) HasLocation() bool {
	return n.Latitude != nil && n.Longitude != nil
}

// NodeNumToID converts a decimal node number to the canonical hex node id
// format used on the radio link (e.g. 1234567890 -> "!499602d2").
func NodeNumToID(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}
