package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"tuya-scale/internal/domain"
)

const (
	defaultTopicPrefix = "tuya_scale"
	payloadOnline      = "online"
	payloadOffline     = "offline"
	qos                = 1
)

type Config struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
	Retain      bool
}

// Publisher mirrors each new snapshot onto an MQTT broker.
type Publisher struct {
	client paho.Client
	prefix string
	retain bool
	logger *slog.Logger
}

// StatePayload is the JSON document published on the state topic.
type StatePayload struct {
	DeviceID   string                `json:"device_id"`
	Properties domain.DeviceSnapshot `json:"properties"`
	Sensors    map[string]any        `json:"sensors"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

func NewPublisher(cfg Config, deviceID string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("tuya-scale-" + uuid.NewString()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(AvailabilityTopic(prefix, deviceID), payloadOffline, qos, true)
	opts.OnConnect = func(_ paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.Broker)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10*time.Second) {
		logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", cfg.Broker)
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	return &Publisher{client: client, prefix: prefix, retain: cfg.Retain, logger: logger}, nil
}

func (p *Publisher) Name() string {
	return "mqtt"
}

func (p *Publisher) Publish(ctx context.Context, deviceID string, snapshot domain.DeviceSnapshot) error {
	payload, err := BuildStatePayload(deviceID, snapshot, time.Now())
	if err != nil {
		return err
	}
	return p.publish(ctx, StateTopic(p.prefix, deviceID), payload)
}

func (p *Publisher) PublishAvailability(ctx context.Context, deviceID string, available bool) error {
	payload := payloadOffline
	if available {
		payload = payloadOnline
	}
	return p.publish(ctx, AvailabilityTopic(p.prefix, deviceID), []byte(payload))
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

func (p *Publisher) publish(ctx context.Context, topic string, payload []byte) error {
	token := p.client.Publish(topic, qos, p.retain, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publishing %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	p.logger.Debug("mqtt message published", "topic", topic, "bytes", len(payload))
	return nil
}

func StateTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/state"
}

func AvailabilityTopic(prefix, deviceID string) string {
	return prefix + "/" + deviceID + "/availability"
}

// BuildStatePayload renders the snapshot together with per-sensor display values.
func BuildStatePayload(deviceID string, snapshot domain.DeviceSnapshot, now time.Time) ([]byte, error) {
	sensors := make(map[string]any)
	for _, sensor := range domain.AvailableSensors(snapshot) {
		sensors[sensor.Key] = domain.SensorValue(sensor, snapshot[sensor.Key])
	}

	body, err := json.Marshal(StatePayload{
		DeviceID:   deviceID,
		Properties: snapshot,
		Sensors:    sensors,
		UpdatedAt:  now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling state payload: %w", err)
	}
	return body, nil
}
