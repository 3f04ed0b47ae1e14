package radio

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kabili207/meshtastic-go/core/crypto"
	pb "github.com/kabili207/meshtastic-go/core/proto"
	"google.golang.org/protobuf/proto"
)

// MQTTOptions configures the gateway event source.
type MQTTOptions struct {
	Broker    string
	Username  string
	Password  string
	RootTopic string
	// GatewayID is the local gateway's node id ("!abcd1234"). When set it
	// is reported as the local identity; DM detection and device swap
	// monitoring depend on it.
	GatewayID string
}

// MQTTInterface consumes a Meshtastic MQTT gateway feed and turns
// ServiceEnvelope frames into Events. It is the one concrete Interface
// binding shipped with this module.
type MQTTInterface struct {
	opts    MQTTOptions
	client  mqtt.Client
	handler func(*Event)

	localNum uint32
	haveNum  bool
}

var _ Interface = (*MQTTInterface)(nil)

// NewMQTT builds the gateway source. The connection is established on
// Subscribe.
func NewMQTT(opts MQTTOptions) (*MQTTInterface, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("radio: mqtt broker address is required")
	}
	m := &MQTTInterface{opts: opts}
	if opts.GatewayID != "" {
		num, err := ParseNodeID(opts.GatewayID)
		if err != nil {
			return nil, fmt.Errorf("radio: bad gateway id %q: %w", opts.GatewayID, err)
		}
		m.localNum = num
		m.haveNum = true
	}
	return m, nil
}

func (m *MQTTInterface) Subscribe(fn func(*Event)) error {
	m.handler = fn
	topic := m.opts.RootTopic + "/2/e/#"

	opts := mqtt.NewClientOptions().
		AddBroker(m.opts.Broker).
		SetClientID(fmt.Sprintf("mesh-rx-server-%d", time.Now().Unix())).
		SetUsername(m.opts.Username).
		SetPassword(m.opts.Password).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		slog.Info("mqtt connected", "broker", m.opts.Broker, "topic", topic)
		if tok := c.Subscribe(topic, 0, m.onMessage); tok.Wait() && tok.Error() != nil {
			slog.Error("mqtt subscribe failed", "topic", topic, "error", tok.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})

	m.client = mqtt.NewClient(opts)
	if tok := m.client.Connect(); tok.Wait() && tok.Error() != nil {
		return fmt.Errorf("radio: mqtt connect: %w", tok.Error())
	}
	return nil
}

// Nodes and Channels are unavailable over a gateway feed; the collector
// falls back to configuration-derived channel names and skips initial sync.
func (m *MQTTInterface) Nodes() []*NodeRecord    { return nil }
func (m *MQTTInterface) Channels() []ChannelInfo { return nil }

func (m *MQTTInterface) LocalNodeNum() (uint32, bool) {
	return m.localNum, m.haveNum
}

func (m *MQTTInterface) Close() error {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
	return nil
}

func (m *MQTTInterface) onMessage(_ mqtt.Client, msg mqtt.Message) {
	var env pb.ServiceEnvelope
	if err := proto.Unmarshal(msg.Payload(), &env); err != nil {
		slog.Debug("undecodable service envelope", "topic", msg.Topic(), "error", err)
		return
	}

	pkt := env.GetPacket()
	if pkt == nil {
		return
	}

	// Default-key decrypt; packets on private channels stay opaque and
	// are dropped here.
	data, err := crypto.TryDecode(pkt, crypto.DefaultKey)
	if err != nil || data == nil {
		slog.Debug("undecodable mesh packet", "from", pkt.GetFrom(), "error", err)
		return
	}

	ev := m.buildEvent(pkt, data)
	if ev == nil {
		return
	}
	if m.handler != nil {
		m.handler(ev)
	}
}

func (m *MQTTInterface) buildEvent(pkt *pb.MeshPacket, data *pb.Data) *Event {
	ev := &Event{
		FromID:       fmt.Sprintf("!%08x", pkt.GetFrom()),
		ToID:         formatDest(pkt.GetTo()),
		ChannelIndex: int(pkt.GetChannel()),
		MessageID:    int64(pkt.GetId()),
		RxTime:       int64(pkt.GetRxTime()),
		ViaMqtt:      pkt.GetViaMqtt(),
	}
	if ev.RxTime == 0 {
		ev.RxTime = time.Now().Unix()
	}
	if snr := pkt.GetRxSnr(); snr != 0 {
		v := float64(snr)
		ev.SNR = &v
	}
	if rssi := pkt.GetRxRssi(); rssi != 0 {
		v := int64(rssi)
		ev.RSSI = &v
	}
	if hs := pkt.GetHopStart(); hs != 0 {
		v := int64(hs)
		ev.HopStart = &v
		hl := int64(pkt.GetHopLimit())
		ev.HopLimit = &hl
	}
	if rid := data.GetReplyId(); rid != 0 {
		v := int64(rid)
		ev.ReplyTo = &v
	}

	switch data.GetPortnum() {
	case pb.PortNum_TEXT_MESSAGE_APP:
		ev.Port = PortTextMessage
		ev.Text = string(data.GetPayload())

	case pb.PortNum_NODEINFO_APP:
		ev.Port = PortNodeInfo
		var user pb.User
		if err := proto.Unmarshal(data.GetPayload(), &user); err != nil {
			slog.Debug("undecodable node info", "from", ev.FromID, "error", err)
			return nil
		}
		ev.User = userInfoFromProto(&user, ev.FromID)

	case pb.PortNum_POSITION_APP:
		ev.Port = PortPosition
		var pos pb.Position
		if err := proto.Unmarshal(data.GetPayload(), &pos); err != nil {
			slog.Debug("undecodable position", "from", ev.FromID, "error", err)
			return nil
		}
		ev.Position = positionFromProto(&pos)

	case pb.PortNum_TELEMETRY_APP:
		ev.Port = PortTelemetry
		var tel pb.Telemetry
		if err := proto.Unmarshal(data.GetPayload(), &tel); err != nil {
			slog.Debug("undecodable telemetry", "from", ev.FromID, "error", err)
			return nil
		}
		dm := tel.GetDeviceMetrics()
		if dm == nil {
			return nil
		}
		battery := int64(dm.GetBatteryLevel())
		voltage := float64(dm.GetVoltage())
		ev.DeviceMetrics = &DeviceMetrics{BatteryLevel: &battery, Voltage: &voltage}

	default:
		// Other ports carry no state this system records.
		return nil
	}
	return ev
}

func userInfoFromProto(user *pb.User, fallbackID string) *UserInfo {
	info := &UserInfo{ID: fallbackID}
	if id := user.GetId(); id != "" {
		info.ID = id
	}
	if v := user.GetLongName(); v != "" {
		info.LongName = &v
	}
	if v := user.GetShortName(); v != "" {
		info.ShortName = &v
	}
	if v := user.GetHwModel().String(); v != "" && v != "UNSET" {
		info.HwModel = &v
	}
	if v := user.GetRole().String(); v != "" {
		info.Role = &v
	}
	if pk := user.GetPublicKey(); len(pk) > 0 {
		v := fmt.Sprintf("%x", pk)
		info.PublicKey = &v
	}
	return info
}

func positionFromProto(pos *pb.Position) *Position {
	p := &Position{}
	// Older firmwares emit 0 for unknown coordinates; a 0/0 fix is treated
	// as absent so the merge layer never learns it.
	if pos.GetLatitudeI() != 0 || pos.GetLongitudeI() != 0 {
		lat := float64(pos.GetLatitudeI()) * 1e-7
		lon := float64(pos.GetLongitudeI()) * 1e-7
		p.Latitude = &lat
		p.Longitude = &lon
	}
	if alt := pos.GetAltitude(); alt != 0 {
		v := int64(alt)
		p.Altitude = &v
	}
	if p.Latitude == nil && p.Altitude == nil {
		return nil
	}
	return p
}

func formatDest(to uint32) string {
	if to == 0xFFFFFFFF {
		return Broadcast
	}
	return fmt.Sprintf("!%08x", to)
}

// ParseNodeID converts "!abcd1234" (or a plain decimal node number) to the
// numeric node identity.
func ParseNodeID(id string) (uint32, error) {
	if rest, ok := strings.CutPrefix(id, "!"); ok {
		num, err := strconv.ParseUint(rest, 16, 32)
		return uint32(num), err
	}
	num, err := strconv.ParseUint(id, 10, 32)
	return uint32(num), err
}
