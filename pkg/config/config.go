package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

type MQTTConfig struct {
	Server            string `json:"server"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	ClientID          string `json:"client_id"`
	StateTopic        string `json:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id"`
	Retain            bool   `json:"retain"`
}

type OutputConfig struct {
	Type string      `json:"type"`
	MQTT *MQTTConfig `json:"mqtt,omitempty"`
}

// Interval is a duration written either Go style ("5s") or as an ISO 8601
// duration ("PT5S").
type Interval time.Duration

func ParseInterval(s string) (Interval, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return Interval(d), nil
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return Interval(d.ToTimeDuration()), nil
}

func (i Interval) Duration() time.Duration { return time.Duration(i) }

func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(i).String())
}

func (i *Interval) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("interval must be a string: %w", err)
	}
	v, err := ParseInterval(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

type Config struct {
	DeviceDir      string         `json:"device_dir"`
	OneWireBus     string         `json:"onewire_bus"`
	DataDir        string         `json:"data_dir"`
	FamilyPrefix   string         `json:"family_prefix"`
	Threshold      int            `json:"threshold"`
	SampleInterval Interval       `json:"sample_interval"`
	Listen         string         `json:"listen"`
	ContentDir     string         `json:"content_dir"`
	SensorType     string         `json:"sensor_type"`
	SimulatedIDs   []string       `json:"simulated_ids"`
	LogLevel       string         `json:"log_level"`
	Outputs        []OutputConfig `json:"outputs"`
}

func DefaultConfig() Config {
	return Config{
		DeviceDir:      "/sys/bus/w1/devices",
		DataDir:        ".",
		FamilyPrefix:   "28-",
		Threshold:      200,
		SampleInterval: Interval(5 * time.Second),
		Listen:         ":8000",
		ContentDir:     "content",
		SensorType:     "real",
		SimulatedIDs:   []string{"28-0000000aaaaa", "28-0000000bbbbb"},
		LogLevel:       "info",
	}
}

// LoadFromFlags loads configuration from a JSON file (optional) and the
// process flags. Flags override values present in the JSON file.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadFromFlags for an explicit argument list.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("temprec", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON config file")
	flagDeviceDir := fs.String("device-dir", "", "1-Wire sysfs device directory")
	flagBus := fs.String("onewire-bus", "", "1-Wire bus name for sensor type bus (empty: default bus)")
	flagDataDir := fs.String("data-dir", "", "Directory holding the per-sensor CSV logs")
	flagPrefix := fs.String("family-prefix", "", "Sensor directory prefix (family code)")
	flagThreshold := fs.Int("threshold", 0, "Hysteresis between recorded values, in milli-Celsius")
	flagInterval := fs.String("interval", "", "Sampling interval, e.g. 5s or PT5S")
	flagListen := fs.String("listen", "", "HTTP listen address")
	flagContentDir := fs.String("content-dir", "", "Directory of static web content")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|bus|simulation")
	flagSimIDs := fs.String("simulated-ids", "", "Comma-separated sensor ids for simulation")
	flagLogLevel := fs.String("log-level", "", "debug|info|warn|error")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt)")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic, %s is replaced by the sensor id")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic, %s is replaced by the sensor id")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		b, err := os.ReadFile(*cfgPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if *flagDeviceDir != "" {
		cfg.DeviceDir = *flagDeviceDir
	}
	if *flagBus != "" {
		cfg.OneWireBus = *flagBus
	}
	if *flagDataDir != "" {
		cfg.DataDir = *flagDataDir
	}
	if *flagPrefix != "" {
		cfg.FamilyPrefix = *flagPrefix
	}
	if *flagThreshold != 0 {
		cfg.Threshold = *flagThreshold
	}
	if *flagInterval != "" {
		v, err := ParseInterval(*flagInterval)
		if err != nil {
			return cfg, fmt.Errorf("interval: %w", err)
		}
		cfg.SampleInterval = v
	}
	if *flagListen != "" {
		cfg.Listen = *flagListen
	}
	if *flagContentDir != "" {
		cfg.ContentDir = *flagContentDir
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagSimIDs != "" {
		cfg.SimulatedIDs = parseCSV(*flagSimIDs)
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	mqttFlags := MQTTConfig{
		Server:         *flagMQTTServer,
		Username:       *flagMQTTUser,
		Password:       *flagMQTTPass,
		ClientID:       *flagClientID,
		StateTopic:     *flagTopic,
		DiscoveryTopic: *flagDiscovery,
	}
	if mqttFlags != (MQTTConfig{}) {
		applyMQTTFlags(&cfg, mqttFlags)
	}

	return cfg, cfg.Validate()
}

// applyMQTTFlags sets the non-empty flag values on every mqtt output,
// creating one if none is configured.
func applyMQTTFlags(cfg *Config, f MQTTConfig) {
	applied := false
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) != "mqtt" {
			continue
		}
		if cfg.Outputs[i].MQTT == nil {
			cfg.Outputs[i].MQTT = &MQTTConfig{}
		}
		m := cfg.Outputs[i].MQTT
		set(&m.Server, f.Server)
		set(&m.Username, f.Username)
		set(&m.Password, f.Password)
		set(&m.ClientID, f.ClientID)
		set(&m.StateTopic, f.StateTopic)
		set(&m.DiscoveryTopic, f.DiscoveryTopic)
		applied = true
	}
	if !applied {
		m := f
		cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "mqtt", MQTT: &m})
	}
}

func set(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	if c.Threshold <= 0 {
		return errors.New("threshold must be > 0")
	}
	if c.SampleInterval <= 0 {
		return errors.New("sample_interval must be > 0")
	}
	switch c.SensorType {
	case "real":
		if c.FamilyPrefix == "" {
			return errors.New("family_prefix must not be empty")
		}
	case "bus":
	case "simulation":
		if len(c.SimulatedIDs) == 0 {
			return errors.New("simulation needs at least one simulated id")
		}
	default:
		return fmt.Errorf("unknown sensor_type %q", c.SensorType)
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt":
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return l, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
