package collector

import (
	"testing"

	"github.com/wpamesh/mesh-rx-server/pkg/radio"
)

func strPtr(s string) *string     { return &s }
func intPtr(v int64) *int64       { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestNormalizeDropsEventsWithoutSender(t *testing.T) {
	text, update := Normalize(&radio.Event{Port: radio.PortTextMessage, Text: "hi"})
	if text != nil || update != nil {
		t.Errorf("Normalize() = %v, %v, want nil, nil", text, update)
	}
}

func TestNormalizeTextMessage(t *testing.T) {
	ev := &radio.Event{
		FromID:       "!00000001",
		ToID:         radio.Broadcast,
		ChannelIndex: 2,
		MessageID:    42,
		Text:         "hello mesh",
		RxTime:       1000,
		HopStart:     intPtr(5),
		HopLimit:     intPtr(3),
		SNR:          floatPtr(7.5),
		Port:         radio.PortTextMessage,
	}

	text, update := Normalize(ev)
	if update != nil {
		t.Fatalf("Normalize() update = %+v, want nil", update)
	}
	if text == nil {
		t.Fatal("Normalize() text = nil, want event")
	}
	if text.Text != "hello mesh" || text.ChannelIndex != 2 || text.MessageID != 42 {
		t.Errorf("text = %+v", text)
	}
	if text.HopCount == nil || *text.HopCount != 2 {
		t.Errorf("HopCount = %v, want 2", text.HopCount)
	}
}

func TestNormalizeTextOverridesDeclaredPort(t *testing.T) {
	// A non-empty text body wins regardless of the declared port.
	ev := &radio.Event{FromID: "!00000001", Text: "actually a message", Port: radio.PortTelemetry}
	text, update := Normalize(ev)
	if text == nil || update != nil {
		t.Fatalf("Normalize() = %v, %v, want text event only", text, update)
	}
}

func TestNormalizeEmptyTextPortCarriesNothing(t *testing.T) {
	ev := &radio.Event{FromID: "!00000001", Port: radio.PortTextMessage}
	text, update := Normalize(ev)
	if text != nil || update != nil {
		t.Errorf("Normalize() = %v, %v, want nil, nil", text, update)
	}
}

func TestNormalizeNodeInfo(t *testing.T) {
	ev := &radio.Event{
		FromID: "!00000001",
		Port:   radio.PortNodeInfo,
		User: &radio.UserInfo{
			ID:        "!0000beef",
			ShortName: strPtr("AB12"),
			LongName:  strPtr("Alpha Bravo"),
			HwModel:   strPtr("HELTEC_V3"),
		},
	}

	text, update := Normalize(ev)
	if text != nil {
		t.Fatalf("Normalize() text = %+v, want nil", text)
	}
	if update == nil {
		t.Fatal("Normalize() update = nil, want update")
	}
	if !update.IsIdentityUpdate {
		t.Error("IsIdentityUpdate = false, want true")
	}
	// The embedded user id is authoritative over the packet header.
	if update.NodeID != "!0000beef" {
		t.Errorf("NodeID = %q, want !0000beef", update.NodeID)
	}
	if update.ShortName == nil || *update.ShortName != "AB12" {
		t.Errorf("ShortName = %v, want AB12", update.ShortName)
	}
}

func TestNormalizeTelemetry(t *testing.T) {
	ev := &radio.Event{
		FromID:        "!00000001",
		Port:          radio.PortTelemetry,
		SNR:           floatPtr(-3.25),
		RSSI:          intPtr(-110),
		DeviceMetrics: &radio.DeviceMetrics{BatteryLevel: intPtr(75), Voltage: floatPtr(3.84)},
	}

	text, update := Normalize(ev)
	if text != nil {
		t.Fatalf("Normalize() text = %+v, want nil", text)
	}
	if update == nil {
		t.Fatal("Normalize() update = nil, want update")
	}
	if update.IsIdentityUpdate {
		t.Error("IsIdentityUpdate = true for telemetry, want false")
	}
	if update.BatteryLevel == nil || *update.BatteryLevel != 75 {
		t.Errorf("BatteryLevel = %v, want 75", update.BatteryLevel)
	}
	if update.SNR == nil || *update.SNR != -3.25 {
		t.Errorf("SNR = %v, want -3.25", update.SNR)
	}
}

func TestNormalizePosition(t *testing.T) {
	ev := &radio.Event{
		FromID:   "!00000001",
		Port:     radio.PortPosition,
		Position: &radio.Position{Latitude: floatPtr(40.1), Longitude: floatPtr(-75.5), Altitude: intPtr(120)},
	}

	_, update := Normalize(ev)
	if update == nil {
		t.Fatal("Normalize() update = nil, want update")
	}
	if update.Latitude == nil || *update.Latitude != 40.1 {
		t.Errorf("Latitude = %v, want 40.1", update.Latitude)
	}
	if update.Altitude == nil || *update.Altitude != 120 {
		t.Errorf("Altitude = %v, want 120", update.Altitude)
	}
}

func TestUpdateFromNodeRecord(t *testing.T) {
	rec := &radio.NodeRecord{
		ID:        "!00000001",
		LastHeard: 1700000000,
		SNR:       floatPtr(4.0),
		User:      &radio.UserInfo{ID: "!00000001", ShortName: strPtr("AB12")},
		Position:  &radio.Position{Latitude: floatPtr(40.1), Longitude: floatPtr(-75.5)},
	}

	u := updateFromNodeRecord(rec)
	if !u.IsIdentityUpdate {
		t.Error("IsIdentityUpdate = false, want true")
	}
	if u.RxTime != 1700000000 {
		t.Errorf("RxTime = %d, want 1700000000", u.RxTime)
	}
	if u.ShortName == nil || *u.ShortName != "AB12" {
		t.Errorf("ShortName = %v, want AB12", u.ShortName)
	}
	if u.Longitude == nil || *u.Longitude != -75.5 {
		t.Errorf("Longitude = %v, want -75.5", u.Longitude)
	}
}
