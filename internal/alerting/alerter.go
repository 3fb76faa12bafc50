package alerting

import (
	"github.com/rs/zerolog"

	"github.com/cristim67/audio-analysis-platform/internal/data"
	"github.com/cristim67/audio-analysis-platform/internal/protocol"
)

// Broadcaster fans a text frame out to every dashboard; *hub.Hub
// satisfies it.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// AlertPublisher mirrors alerts to an external broker. Optional.
type AlertPublisher interface {
	PublishAlert(alert data.Alert)
}

// Alerter delivers anomaly alerts to dashboards and, when configured,
// to MQTT. Delivery is fire-and-forget on every channel.
type Alerter struct {
	broadcaster Broadcaster
	publisher   AlertPublisher
	logger      zerolog.Logger
}

func NewAlerter(b Broadcaster, p AlertPublisher, logger zerolog.Logger) *Alerter {
	return &Alerter{broadcaster: b, publisher: p, logger: logger}
}

// Process fans out each alert.
func (a *Alerter) Process(alerts []data.Alert) {
	for _, alert := range alerts {
		a.logger.Warn().
			Str("metric", alert.Metric).
			Float64("value", alert.Value).
			Str("client", alert.Client).
			Msg(alert.Message)

		if a.broadcaster != nil {
			if msg, err := protocol.AlertMessage(alert); err == nil {
				a.broadcaster.Broadcast(msg)
			}
		}
		if a.publisher != nil {
			a.publisher.PublishAlert(alert)
		}
	}
}
