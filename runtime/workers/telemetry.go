package workers

import (
	"context"
	"log/slog"
	"time"

	"mentorlink/contract"
	"mentorlink/observability"
)

// Telemetry keeps the monitoring snapshot current and reports it
// periodically. It also feeds the online gauge from presence, which no
// event-counting sink can derive on its own.
type Telemetry struct {
	log            *slog.Logger
	monitoring     *observability.MonitoringManager
	presence       contract.IPresence
	metricInterval time.Duration
	reportInterval time.Duration
}

func NewTelemetry(log *slog.Logger, monitoring *observability.MonitoringManager,
	presence contract.IPresence, metricInterval, reportInterval time.Duration) *Telemetry {
	return &Telemetry{
		log:            log,
		monitoring:     monitoring,
		presence:       presence,
		metricInterval: metricInterval,
		reportInterval: reportInterval,
	}
}

func (w *Telemetry) Run(ctx context.Context) error {
	go w.monitoring.Listen(ctx, w.metricInterval)

	gauge := time.NewTicker(w.metricInterval)
	defer gauge.Stop()
	report := time.NewTicker(w.reportInterval)
	defer report.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-gauge.C:
			w.monitoring.SetOnlineUsers(len(w.presence.Snapshot()))
		case <-report.C:
			stats := w.monitoring.GetLatest()
			w.log.Info("Messaging stats",
				"delivered", stats.MessagesDelivered,
				"typing", stats.TypingEvents,
				"presence", stats.PresenceEvents,
				"dropped", stats.DroppedEvents,
				"auth_failures", stats.AuthFailures,
				"online", stats.OnlineUsers,
				"event_rate", stats.EventRate,
				"rss_mb", stats.RssMemMb,
				"cpu_pct", stats.CpuPercent,
			)
		}
	}
}
