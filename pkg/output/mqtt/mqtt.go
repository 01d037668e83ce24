package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/ericogr/temprec/pkg/config"
	"github.com/ericogr/temprec/pkg/output"
	"github.com/ericogr/temprec/pkg/sensor"
	"github.com/ericogr/temprec/pkg/store"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "temprec"
	DefaultStateTopic = "temprec/%s"
	// Publish runs on the sampling goroutine, so broker round trips are bounded.
	DefaultTimeout = 5 * time.Second
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	unitCelsius            = "°C"
	deviceClassTemperature = "temperature"
	stateClassMeasurement  = "measurement"
	valueTemplateCelsius   = "{{ value_json.temperature }}"
)

// ErrTimeout is returned when the broker does not complete an operation
// within the output's timeout.
var ErrTimeout = errors.New("mqtt: timed out waiting for broker")

// Payload is the JSON document published for every recorded measurement.
type Payload struct {
	Timestamp    string   `json:"timestamp"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MilliCelsius *int     `json:"milli_celsius,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type MQTTOutput struct {
	client     mqtt.Client
	stateTopic string
	retain     bool
	timeout    time.Duration
}

// NewMQTT connects to the broker and, when a discovery topic is configured,
// announces one Home Assistant temperature entity per sensor id.
func NewMQTT(cfg config.MQTTConfig, ids []string) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID + "-" + uuid.NewString()[:8]
	}
	if cfg.StateTopic == "" {
		cfg.StateTopic = DefaultStateTopic
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID).SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	if err := wait(client.Connect(), DefaultTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	m := &MQTTOutput{client: client, stateTopic: cfg.StateTopic, retain: cfg.Retain, timeout: DefaultTimeout}

	if cfg.DiscoveryTopic != "" {
		for _, id := range ids {
			payload := baseDiscoveryPayload(discoveryName(cfg, id), m.topicFor(id), discoveryUniqueID(cfg, id))
			if err := m.publishJSON(topicFor(cfg.DiscoveryTopic, id), true, payload); err != nil {
				slog.Error("mqtt discovery publish error", "sensor", id, "err", err)
			}
		}
	}

	return m, nil
}

func (m *MQTTOutput) Publish(id string, ms store.Measurement) error {
	p := Payload{Timestamp: ms.Time.UTC().Format(store.TimeLayout)}
	switch ms.Reading.Kind {
	case sensor.Value:
		t, _ := ms.Reading.Temperature()
		c := t.Celsius()
		mc := ms.Reading.MilliCelsius
		p.Temperature = &c
		p.MilliCelsius = &mc
	default:
		p.Error = ms.Reading.Payload()
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return wait(m.client.Publish(m.topicFor(id), 0, m.retain, b), m.timeout)
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func (m *MQTTOutput) topicFor(id string) string {
	return topicFor(m.stateTopic, id)
}

// helper: expand an optional %s formatter with the sensor id
func topicFor(base, id string) string {
	if strings.Contains(base, "%s") {
		return fmt.Sprintf(base, id)
	}
	return base + "/" + id
}

// helper: build a human-friendly discovery name
func discoveryName(cfg config.MQTTConfig, id string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = "Temperature"
	}
	return fmt.Sprintf("%s %s", name, id)
}

// helper: build a unique id for discovery
func discoveryUniqueID(cfg config.MQTTConfig, id string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = "temprec"
	}
	return uid + "_" + strings.ReplaceAll(id, "-", "_")
}

// helper: base discovery payload map common to all entries
func baseDiscoveryPayload(name, stateTopic, uniqueID string) map[string]interface{} {
	return map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyUnitOfMeasurement:   unitCelsius,
		keyDeviceClass:         deviceClassTemperature,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       valueTemplateCelsius,
		keyJSONAttributesTopic: stateTopic,
		keyUniqueID:            uniqueID,
	}
}

// helper: marshal and publish JSON payload
func (m *MQTTOutput) publishJSON(topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return wait(m.client.Publish(topic, 0, retained, b), m.timeout)
}

// wait blocks until token completes or d elapses.
func wait(token mqtt.Token, d time.Duration) error {
	if !token.WaitTimeout(d) {
		return ErrTimeout
	}
	return token.Error()
}
