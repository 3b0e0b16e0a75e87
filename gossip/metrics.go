package gossip

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "gossip"

type Metrics struct {
	// 按类型统计
	PacketsSent     metrics.Counter
	PacketsReceived metrics.Counter

	Malformed          metrics.Counter
	SendErrors         metrics.Counter
	RejectedSignatures metrics.Counter
	BytesSent          metrics.Counter
}

func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		PacketsSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets_sent",
			Help:      "Number of packets sent, by type.",
		}, append(labels, "type")).With(labelsAndValues...),
		PacketsReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "packets_received",
			Help:      "Number of packets received, by type.",
		}, append(labels, "type")).With(labelsAndValues...),
		Malformed: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "malformed_packets",
			Help:      "Number of packets dropped because they could not be decoded.",
		}, labels).With(labelsAndValues...),
		SendErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "send_errors",
			Help:      "Number of failed sends.",
		}, labels).With(labelsAndValues...),
		RejectedSignatures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_signatures",
			Help:      "Number of packets dropped by signature checks.",
		}, labels).With(labelsAndValues...),
		BytesSent: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "bytes_sent",
			Help:      "Number of bytes sent.",
		}, labels).With(labelsAndValues...),
	}
}

func NopMetrics() *Metrics {
	return &Metrics{
		PacketsSent:        discard.NewCounter(),
		PacketsReceived:    discard.NewCounter(),
		Malformed:          discard.NewCounter(),
		SendErrors:         discard.NewCounter(),
		RejectedSignatures: discard.NewCounter(),
		BytesSent:          discard.NewCounter(),
	}
}
