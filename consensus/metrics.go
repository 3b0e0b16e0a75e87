package consensus

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "consensus"

type Metrics struct {
	// 当前round
	Round metrics.Gauge
	// 当前step
	Step metrics.Gauge
	// 候选值中最高的强度
	LeadingIntensity metrics.Gauge
	// 存活的邻居
	Peers metrics.Gauge

	Rounds       metrics.Counter
	Decisions    metrics.Counter
	Adoptions    metrics.Counter
	Timeouts     metrics.Counter
	Cancels      metrics.Counter
	StalePackets metrics.Counter
	Conflicts    metrics.Counter

	// 从进入round到产生结果的时间
	RoundDuration metrics.Histogram
}

func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Round: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round",
			Help:      "Current round.",
		}, labels).With(labelsAndValues...),
		Step: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "step",
			Help:      "Current step of the round state machine.",
		}, labels).With(labelsAndValues...),
		LeadingIntensity: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "leading_intensity",
			Help:      "Highest pheromone intensity among the candidates of the current round.",
		}, labels).With(labelsAndValues...),
		Peers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "live_peers",
			Help:      "Number of live peers.",
		}, labels).With(labelsAndValues...),
		Rounds: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rounds",
			Help:      "Number of rounds entered.",
		}, labels).With(labelsAndValues...),
		Decisions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "decisions",
			Help:      "Number of rounds decided by crossing the threshold locally.",
		}, labels).With(labelsAndValues...),
		Adoptions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "adoptions",
			Help:      "Number of decisions adopted from other nodes.",
		}, labels).With(labelsAndValues...),
		Timeouts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "timeouts",
			Help:      "Number of rounds that timed out.",
		}, labels).With(labelsAndValues...),
		Cancels: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cancels",
			Help:      "Number of cancelled rounds.",
		}, labels).With(labelsAndValues...),
		StalePackets: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "stale_packets",
			Help:      "Number of packets ignored because of their round.",
		}, labels).With(labelsAndValues...),
		Conflicts: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "conflicting_decisions",
			Help:      "Number of decisions received that disagree with the local one.",
		}, labels).With(labelsAndValues...),
		RoundDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round_duration_seconds",
			Help:      "Time from entering a round to its outcome.",
			Buckets:   stdprometheus.ExponentialBuckets(0.1, 2, 10),
		}, labels).With(labelsAndValues...),
	}
}

func NopMetrics() *Metrics {
	return &Metrics{
		Round:            discard.NewGauge(),
		Step:             discard.NewGauge(),
		LeadingIntensity: discard.NewGauge(),
		Peers:            discard.NewGauge(),
		Rounds:           discard.NewCounter(),
		Decisions:        discard.NewCounter(),
		Adoptions:        discard.NewCounter(),
		Timeouts:         discard.NewCounter(),
		Cancels:          discard.NewCounter(),
		StalePackets:     discard.NewCounter(),
		Conflicts:        discard.NewCounter(),
		RoundDuration:    discard.NewHistogram(),
	}
}
