package config

import "testing"

func TestTrackedChannels(t *testing.T) {
	cfg := Configuration{
		LogPrimaryChannel: true,
		PrimaryChannel:    0,
		LogChannelIDs:     []int{2, 3},
	}
	tracked := cfg.TrackedChannels()
	for _, idx := range []int{0, 2, 3} {
		if _, ok := tracked[idx]; !ok {
			t.Errorf("channel %d not tracked", idx)
		}
	}
	if len(tracked) != 3 {
		t.Errorf("tracked %d channels, want 3", len(tracked))
	}
}

func TestTrackedChannelsPrimaryDisabled(t *testing.T) {
	cfg := Configuration{
		LogPrimaryChannel: false,
		PrimaryChannel:    0,
		LogChannelIDs:     []int{5},
	}
	tracked := cfg.TrackedChannels()
	if _, ok := tracked[0]; ok {
		t.Error("primary channel tracked despite LOG_PRIMARY_CHANNEL=false")
	}
	if _, ok := tracked[5]; !ok {
		t.Error("explicitly configured channel not tracked")
	}
}

func TestShouldLogChannel(t *testing.T) {
	cfg := Configuration{
		LogPrimaryChannel: true,
		PrimaryChannel:    1,
		LogChannelIDs:     []int{4},
	}
	tests := []struct {
		index int
		want  bool
	}{
		{1, true},
		{4, true},
		{0, false},
		{7, false},
	}
	for _, tt := range tests {
		if got := cfg.ShouldLogChannel(tt.index); got != tt.want {
			t.Errorf("ShouldLogChannel(%d) = %t, want %t", tt.index, got, tt.want)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxMessages != 1000 {
		t.Errorf("MaxMessages = %d, want 1000", cfg.MaxMessages)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if !cfg.LogPrimaryChannel {
		t.Error("LogPrimaryChannel = false, want true by default")
	}
	if cfg.LogDirectMessages {
		t.Error("LogDirectMessages = true, want false by default")
	}
}
