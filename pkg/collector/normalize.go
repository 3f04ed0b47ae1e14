package collector

import "github.com/wpamesh/mesh-rx-server/pkg/radio"

// TextEvent is a normalized text message ready for the message stores.
type TextEvent struct {
	FromID       string
	ToID         string
	ChannelIndex int
	MessageID    int64
	Text         string
	RxTime       int64
	HopCount     *int64
	SNR          *float64
	RSSI         *int64
	ReplyTo      *int64
	ViaMqtt      bool
}

// NodeUpdate is a normalized partial node state change. Nil fields were
// absent from the event and must not disturb stored values.
type NodeUpdate struct {
	NodeID string

	ShortName *string
	LongName  *string
	Hardware  *string
	Role      *string
	PublicKey *string

	SNR          *float64
	RSSI         *int64
	BatteryLevel *int64
	Voltage      *float64
	Latitude     *float64
	Longitude    *float64
	Altitude     *int64

	// RxTime, when non-zero, is used as the node's last_seen instead of
	// the wall clock (the text-message path).
	RxTime int64

	// IsIdentityUpdate marks updates whose declared kind may establish
	// identity for an unknown node.
	IsIdentityUpdate bool
}

// Normalize classifies one raw event into a text event or a node update.
// Events with non-empty text are always text messages regardless of their
// declared port. Events without a sender, and text ports without text,
// normalize to nothing.
func Normalize(ev *radio.Event) (*TextEvent, *NodeUpdate) {
	if ev.FromID == "" {
		return nil, nil
	}

	if ev.Text != "" {
		t := &TextEvent{
			FromID:       ev.FromID,
			ToID:         ev.ToID,
			ChannelIndex: ev.ChannelIndex,
			MessageID:    ev.MessageID,
			Text:         ev.Text,
			RxTime:       ev.RxTime,
			SNR:          ev.SNR,
			RSSI:         ev.RSSI,
			ReplyTo:      ev.ReplyTo,
			ViaMqtt:      ev.ViaMqtt,
		}
		if ev.HopStart != nil && ev.HopLimit != nil {
			hops := *ev.HopStart - *ev.HopLimit
			t.HopCount = &hops
		}
		return t, nil
	}
	if ev.Port == radio.PortTextMessage {
		// Declared text with an empty body carries nothing.
		return nil, nil
	}

	u := &NodeUpdate{
		NodeID:           ev.FromID,
		SNR:              ev.SNR,
		RSSI:             ev.RSSI,
		IsIdentityUpdate: ev.Port == radio.PortNodeInfo,
	}
	if user := ev.User; user != nil {
		if user.ID != "" {
			u.NodeID = user.ID
		}
		u.ShortName = user.ShortName
		u.LongName = user.LongName
		u.Hardware = user.HwModel
		u.Role = user.Role
		u.PublicKey = user.PublicKey
	}
	if dm := ev.DeviceMetrics; dm != nil {
		u.BatteryLevel = dm.BatteryLevel
		u.Voltage = dm.Voltage
	}
	if pos := ev.Position; pos != nil {
		u.Latitude = pos.Latitude
		u.Longitude = pos.Longitude
		u.Altitude = pos.Altitude
	}
	return nil, u
}

// updateFromNodeRecord converts an initial-sync node dump entry into a
// NodeUpdate.
func updateFromNodeRecord(rec *radio.NodeRecord) *NodeUpdate {
	u := &NodeUpdate{
		NodeID:           rec.ID,
		SNR:              rec.SNR,
		RxTime:           rec.LastHeard,
		IsIdentityUpdate: true,
	}
	if user := rec.User; user != nil {
		if user.ID != "" {
			u.NodeID = user.ID
		}
		u.ShortName = user.ShortName
		u.LongName = user.LongName
		u.Hardware = user.HwModel
		u.Role = user.Role
		u.PublicKey = user.PublicKey
	}
	if dm := rec.DeviceMetrics; dm != nil {
		u.BatteryLevel = dm.BatteryLevel
		u.Voltage = dm.Voltage
	}
	if pos := rec.Position; pos != nil {
		u.Latitude = pos.Latitude
		u.Longitude = pos.Longitude
		u.Altitude = pos.Altitude
	}
	return u
}
