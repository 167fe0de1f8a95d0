package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultOutputs is used when a device entry omits its output count.
const DefaultOutputs = 16

type Config struct {
	MqttCfg          *MqttConfig
	ProtocolCfg      *ProtocolConfig
	DevicesFile      string
	HTTPAddr         string
	DatabaseURL      string
	MigrationsFolder string
	APITokenHash     string
	LogLevel         string
}

type MqttConfig struct {
	Host     string
	Username string
	Password string
	ClientID string
}

// ProtocolConfig holds the tunables read from CLOUDAGE_* environment variables.
type ProtocolConfig struct {
	TopicPrefix      string        `env:"TOPIC_PREFIX" envDefault:"CloudAge"`
	QoS              byte          `env:"QOS" envDefault:"0"`
	PublishTimeout   time.Duration `env:"PUBLISH_TIMEOUT" envDefault:"5s"`
	TimeSyncInterval time.Duration `env:"TIME_SYNC_INTERVAL" envDefault:"5m"`
	QueueSize        int           `env:"QUEUE_SIZE" envDefault:"64"`
	DiscoveryPrefix  string        `env:"DISCOVERY_PREFIX" envDefault:"homeassistant"`
	StateTopicRoot   string        `env:"STATE_TOPIC_ROOT" envDefault:"cloudage"`
}

type DeviceConfig struct {
	DeviceID  string `yaml:"device_id"`
	Outputs   int    `yaml:"outputs"`
	Alias     string `yaml:"alias"`
	Signature string `yaml:"signature"`
}

type devicesFile struct {
	Devices []DeviceConfig `yaml:"devices"`
}

func LoadProtocol() (*ProtocolConfig, error) {
	cfg := &ProtocolConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "CLOUDAGE_"}); err != nil {
		return nil, fmt.Errorf("parsing protocol config: %w", err)
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("parsing protocol config: qos %d out of range", cfg.QoS)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return cfg, nil
}

// LoadDevices reads the ordered device list. Environment references in the
// file are expanded before parsing.
func LoadDevices(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading devices file: %w", err)
	}
	return ParseDevices(data)
}

func ParseDevices(data []byte) ([]DeviceConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var f devicesFile
	if err := yaml.Unmarshal([]byte(expanded), &f); err != nil {
		return nil, fmt.Errorf("parsing devices file: %w", err)
	}
	for i := range f.Devices {
		f.Devices[i].setDefaults()
	}
	return f.Devices, nil
}

func (d *DeviceConfig) setDefaults() {
	if d.Outputs == 0 {
		d.Outputs = DefaultOutputs
	}
	if d.Alias == "" {
		d.Alias = d.DeviceID
	}
}
