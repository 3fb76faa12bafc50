package mqtt

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/config"
	"github.com/cristim67/audio-analysis-platform/internal/data"
)

// Publisher mirrors telemetry events and alerts to an MQTT broker.
// Publishing is fire-and-forget at QoS 0: a slow or absent broker
// never blocks the relay path.
type Publisher struct {
	client     mqtt.Client
	eventTopic string
	alertTopic string
	logger     zerolog.Logger
}

// New connects to the configured broker. A connection failure is
// returned so the caller can decide to run without egress.
func New(cfg config.MQTTConfig, logger zerolog.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connecting to %s: %w", cfg.Broker, token.Error())
	}

	return &Publisher{
		client:     client,
		eventTopic: cfg.EventTopic,
		alertTopic: cfg.AlertTopic,
		logger:     logger,
	}, nil
}

// PublishEvent mirrors one stored sensor event.
func (p *Publisher) PublishEvent(ev data.SensorEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn().Err(err).Msg("event publish marshal failed")
		return
	}
	p.client.Publish(p.eventTopic, 0, false, payload)
}

// PublishAlert mirrors one anomaly alert.
func (p *Publisher) PublishAlert(alert data.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		p.logger.Warn().Err(err).Msg("alert publish marshal failed")
		return
	}
	p.client.Publish(p.alertTopic, 0, false, payload)
}

// Close disconnects from the broker, allowing in-flight publishes a
// short grace period.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
