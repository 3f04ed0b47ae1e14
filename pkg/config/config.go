package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Configuration is loaded once at startup and passed to each component.
// Precedence: environment variables > config file > defaults.
type Configuration struct {
	Debug      bool   `mapstructure:"DEBUG"`
	DBPath     string `mapstructure:"DB_PATH"`
	SerialPort string `mapstructure:"SERIAL_PORT"`
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	MaxMessages       int `mapstructure:"MAX_MESSAGES"`
	MaxDirectMessages int `mapstructure:"MAX_DIRECT_MESSAGES"`
	PruneInterval     int `mapstructure:"PRUNE_INTERVAL"`
	NodePruneDays     int `mapstructure:"NODE_PRUNE_DAYS"`

	LogDirectMessages bool  `mapstructure:"LOG_DIRECT_MESSAGES"`
	LogPrimaryChannel bool  `mapstructure:"LOG_PRIMARY_CHANNEL"`
	PrimaryChannel    int   `mapstructure:"PRIMARY_CHANNEL"`
	LogChannelIDs     []int `mapstructure:"LOG_CHANNEL_IDS"`

	// MQTT gateway event source settings.
	MqttBroker    string `mapstructure:"MQTT_BROKER"`
	MqttUsername  string `mapstructure:"MQTT_USERNAME"`
	MqttPassword  string `mapstructure:"MQTT_PASSWORD"`
	MqttRootTopic string `mapstructure:"MQTT_ROOT_TOPIC"`
	GatewayNodeID string `mapstructure:"GATEWAY_NODE_ID"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("DEBUG", false)
	v.SetDefault("DB_PATH", "data/db.sqlite")
	v.SetDefault("SERIAL_PORT", "/dev/ttyACM0")
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("MAX_MESSAGES", 1000)
	v.SetDefault("MAX_DIRECT_MESSAGES", 1000)
	v.SetDefault("PRUNE_INTERVAL", 5)
	v.SetDefault("NODE_PRUNE_DAYS", 14)
	v.SetDefault("LOG_DIRECT_MESSAGES", false)
	v.SetDefault("LOG_PRIMARY_CHANNEL", true)
	v.SetDefault("PRIMARY_CHANNEL", 0)
	v.SetDefault("LOG_CHANNEL_IDS", []int{})
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_USERNAME", "")
	v.SetDefault("MQTT_PASSWORD", "")
	v.SetDefault("MQTT_ROOT_TOPIC", "msh/US")
	v.SetDefault("GATEWAY_NODE_ID", "")
}

// Load reads the configuration from config.yaml (working directory or
// /etc/mesh-rx-server) and the environment.
func Load() (Configuration, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/mesh-rx-server")
	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; a malformed one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Configuration{}, fmt.Errorf("config: read file: %w", err)
		}
	}
	v.AutomaticEnv()

	var cfg Configuration
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		// LOG_CHANNEL_IDS arrives as "1,2,3" when set via environment.
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return Configuration{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// TrackedChannels returns the set of channel indexes whose messages should
// be stored: the primary channel unless disabled, plus any explicitly
// configured indexes.
func (c Configuration) TrackedChannels() map[int]struct{} {
	tracked := make(map[int]struct{})
	if c.LogPrimaryChannel {
		tracked[c.PrimaryChannel] = struct{}{}
	}
	for _, idx := range c.LogChannelIDs {
		tracked[idx] = struct{}{}
	}
	return tracked
}

// ShouldLogChannel reports whether messages on the given channel index are
// configured to be stored.
func (c Configuration) ShouldLogChannel(index int) bool {
	if c.LogPrimaryChannel && index == c.PrimaryChannel {
		return true
	}
	for _, idx := range c.LogChannelIDs {
		if idx == index {
			return true
		}
	}
	return false
}

func (c Configuration) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "db_path=%s serial_port=%s listen_addr=%s", c.DBPath, c.SerialPort, c.ListenAddr)
	fmt.Fprintf(&b, " log_primary_channel=%t primary_channel=%d log_channel_ids=%v", c.LogPrimaryChannel, c.PrimaryChannel, c.LogChannelIDs)
	fmt.Fprintf(&b, " log_direct_messages=%t", c.LogDirectMessages)
	return b.String()
}
