// Package radio defines the boundary to the external mesh radio interface:
// the raw event shape delivered by its subscription callback, plus the
// queries the collector needs for its initial sync. The collector only ever
// sees these types; the concrete link (MQTT gateway, serial) lives behind
// the Interface.
package radio

// Port identifies the application payload carried by a packet. Text
// delivery is not reliably tagged at the source, so consumers must treat
// any event with non-empty Text as a text message regardless of Port.
type Port string

const (
	PortTextMessage Port = "TEXT_MESSAGE_APP"
	PortNodeInfo    Port = "NODEINFO_APP"
	PortPosition    Port = "POSITION_APP"
	PortTelemetry   Port = "TELEMETRY_APP"
	PortUnknown     Port = ""
)

// Broadcast is the destination id of packets addressed to everyone.
const Broadcast = "^all"

// UserInfo is the identity block of a node info event. Nil fields were not
// present in the packet.
type UserInfo struct {
	ID        string
	LongName  *string
	ShortName *string
	HwModel   *string
	Role      *string
	PublicKey *string
}

// DeviceMetrics is the telemetry block.
type DeviceMetrics struct {
	BatteryLevel *int64
	Voltage      *float64
}

// Position is the location block.
type Position struct {
	Latitude  *float64
	Longitude *float64
	Altitude  *int64
}

// Event is one decoded packet from the mesh. Field absence is meaningful:
// a nil pointer means the packet did not carry that value.
type Event struct {
	FromID       string
	ToID         string
	ChannelIndex int
	MessageID    int64
	RxTime       int64
	SNR          *float64
	RSSI         *int64
	HopStart     *int64
	HopLimit     *int64
	ViaMqtt      bool

	Port    Port
	Text    string
	ReplyTo *int64

	User          *UserInfo
	DeviceMetrics *DeviceMetrics
	Position      *Position
}

// NodeRecord is one entry of the interface's known-node dump, consumed
// during initial sync.
type NodeRecord struct {
	ID            string
	User          *UserInfo
	DeviceMetrics *DeviceMetrics
	Position      *Position
	SNR           *float64
	LastHeard     int64
}

// ChannelInfo is one entry of the interface's channel dump.
type ChannelInfo struct {
	Index int
	Name  string
}

// Interface is the external mesh radio interface. Subscribe's callback
// runs on whatever goroutine the link implementation provides; at most one
// delivery is in flight at a time.
type Interface interface {
	// Subscribe registers the event delivery callback and starts the link.
	Subscribe(fn func(*Event)) error
	// Nodes returns the currently-known remote nodes, or nil when the link
	// cannot provide a dump.
	Nodes() []*NodeRecord
	// Channels returns the configured channels, or nil when unavailable.
	Channels() []ChannelInfo
	// LocalNodeNum returns the local device's numeric identity when known.
	LocalNodeNum() (uint32, bool)
	Close() error
}
