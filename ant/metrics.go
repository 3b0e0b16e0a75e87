package ant

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "ant"

type Metrics struct {
	// 本节点发出的agent数量
	Spawned metrics.Counter
	// 因为存活agent过多被拒绝的spawn
	Rejected metrics.Counter
	// 本节点转发出去的跳数
	Hops metrics.Counter
	// 重复的跳，被忽略
	Duplicates metrics.Counter
	// 在本节点过期的agent
	Expired metrics.Counter
	// 回到发起节点的agent
	Returned metrics.Counter
	// 每次增强的量
	Reinforcement metrics.Histogram
	// 本节点存活的agent
	LiveAgents metrics.Gauge
	// 发送失败
	SendFailures metrics.Counter
}

func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Spawned: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "spawned",
			Help:      "Number of ant agents spawned by this node.",
		}, labels).With(labelsAndValues...),
		Rejected: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "rejected_spawns",
			Help:      "Number of spawns rejected because too many agents were alive.",
		}, labels).With(labelsAndValues...),
		Hops: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "hops",
			Help:      "Number of hops sent from this node.",
		}, labels).With(labelsAndValues...),
		Duplicates: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "duplicate_hops",
			Help:      "Number of duplicate hops ignored.",
		}, labels).With(labelsAndValues...),
		Expired: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "expired",
			Help:      "Number of agents that expired at this node.",
		}, labels).With(labelsAndValues...),
		Returned: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "returned",
			Help:      "Number of agents that came back to their origin.",
		}, labels).With(labelsAndValues...),
		Reinforcement: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "reinforcement",
			Help:      "Pheromone deposited per hop.",
			Buckets:   stdprometheus.LinearBuckets(0.01, 0.02, 10),
		}, labels).With(labelsAndValues...),
		LiveAgents: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "live_agents",
			Help:      "Number of live agents spawned by this node.",
		}, labels).With(labelsAndValues...),
		SendFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "send_failures",
			Help:      "Number of hops that could not be sent.",
		}, labels).With(labelsAndValues...),
	}
}

func NopMetrics() *Metrics {
	return &Metrics{
		Spawned:       discard.NewCounter(),
		Rejected:      discard.NewCounter(),
		Hops:          discard.NewCounter(),
		Duplicates:    discard.NewCounter(),
		Expired:       discard.NewCounter(),
		Returned:      discard.NewCounter(),
		Reinforcement: discard.NewHistogram(),
		LiveAgents:    discard.NewGauge(),
		SendFailures:  discard.NewCounter(),
	}
}
