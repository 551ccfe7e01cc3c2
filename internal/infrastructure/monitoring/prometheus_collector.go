package monitoring

import (
	"github.com/austinromano/creator.v3/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.SignalMetrics over promauto-managed
// collectors registered on the default registry.
type PrometheusCollector struct {
	streamsActive    prometheus.Gauge
	viewersConnected prometheus.Gauge

	messagesRelayed *prometheus.CounterVec
	streamViewers   *prometheus.GaugeVec

	handleDuration *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		streamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "creator_streams_active_total",
			Help: "Number of streams with a live broadcaster",
		}),

		viewersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "creator_viewers_connected_total",
			Help: "Number of connected viewers across all streams",
		}),

		messagesRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "creator_signal_messages_total",
			Help: "Signal messages processed by the relay, by type",
		}, []string{"type"}),

		streamViewers: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "creator_stream_viewer_count",
			Help: "Viewers per stream",
		}, []string{"stream_id"}),

		handleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "creator_signal_handle_duration_seconds",
			Help:    "Time spent handling one signal message",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"type"}),
	}
}

func (p *PrometheusCollector) StreamStarted(streamID domain.StreamID) {
	p.streamsActive.Inc()
}

func (p *PrometheusCollector) StreamStopped(streamID domain.StreamID) {
	p.streamsActive.Dec()
}

func (p *PrometheusCollector) ViewerJoined(streamID domain.StreamID) {
	p.viewersConnected.Inc()
	p.streamViewers.WithLabelValues(string(streamID)).Inc()
}

func (p *PrometheusCollector) ViewerLeft(streamID domain.StreamID) {
	p.viewersConnected.Dec()
	p.streamViewers.WithLabelValues(string(streamID)).Dec()
}

func (p *PrometheusCollector) MessageRelayed(msgType string) {
	p.messagesRelayed.WithLabelValues(msgType).Inc()
}

func (p *PrometheusCollector) HandleDuration(msgType string, seconds float64) {
	p.handleDuration.WithLabelValues(msgType).Observe(seconds)
}
