package anomaly

import (
	"fmt"

	"github.com/cristim67/audio-analysis-platform/internal/config"
	"github.com/cristim67/audio-analysis-platform/internal/data"
)

// Detector checks stored events against the configured per-metric
// min/max rules. Metrics without a rule pass untouched; non-numeric
// values are skipped.
type Detector struct {
	rules map[string]config.Rule
}

func NewDetector(rules map[string]config.Rule) *Detector {
	return &Detector{rules: rules}
}

// Check returns one alert per metric that falls outside its rule.
func (d *Detector) Check(ev data.SensorEvent) []data.Alert {
	if len(d.rules) == 0 {
		return nil
	}

	var alerts []data.Alert
	for metric, rule := range d.rules {
		value, ok := ev.Float(metric)
		if !ok {
			continue
		}
		if value < rule.Min || value > rule.Max {
			alerts = append(alerts, data.Alert{
				Timestamp: ev.Timestamp,
				Severity:  "WARN",
				Message: fmt.Sprintf("%s value %.2f outside range [%.2f, %.2f]",
					metric, value, rule.Min, rule.Max),
				Metric: metric,
				Value:  value,
				Client: ev.Client,
			})
		}
	}
	return alerts
}
