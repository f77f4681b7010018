package sink

import (
	"go.uber.org/zap"

	"github.com/oddsflow/collector/internal/model"
	"github.com/oddsflow/collector/internal/monitor"
)

// AlertSink receives alerts raised by the health monitor and delivers
// them to an external destination.
type AlertSink interface {
	Write(alert model.Alert) error
	Close() error
}

// Callback bridges a sink into the monitor's callback registry. Sink
// errors are logged and swallowed; delivery problems must never break
// monitoring.
func Callback(s AlertSink, logger *zap.Logger) monitor.AlertCallback {
	return func(alert model.Alert) {
		if err := s.Write(alert); err != nil {
			logger.Error("Failed to deliver alert to sink",
				zap.String("alert_id", alert.ID),
				zap.Error(err))
		}
	}
}
