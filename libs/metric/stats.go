package metric

import (
	"sort"

	jsoniter "github.com/json-iterator/go"
	gometrics "github.com/rcrowley/go-metrics"
)

const histogramReservoir = 1028

// Stats 基于go-metrics的计数器和直方图，作为一个MetricItem输出
type Stats struct {
	registry gometrics.Registry
}

func NewStats() *Stats {
	return &Stats{registry: gometrics.NewRegistry()}
}

// Inc 计数器加n
func (s *Stats) Inc(name string, n int64) {
	gometrics.GetOrRegisterCounter(name, s.registry).Inc(n)
}

// Observe 记录一个采样值
func (s *Stats) Observe(name string, v int64) {
	gometrics.GetOrRegisterHistogram(name, s.registry, gometrics.NewUniformSample(histogramReservoir)).Update(v)
}

func (s *Stats) Count(name string) int64 {
	c, ok := s.registry.Get(name).(gometrics.Counter)
	if !ok {
		return 0
	}
	return c.Count()
}

type histogramSummary struct {
	Count int64   `json:"count"`
	Min   int64   `json:"min"`
	Max   int64   `json:"max"`
	Mean  float64 `json:"mean"`
	P99   float64 `json:"p99"`
}

// Snapshot 计数器为int64，直方图为摘要
func (s *Stats) Snapshot() map[string]interface{} {
	res := make(map[string]interface{})
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case gometrics.Counter:
			res[name] = m.Count()
		case gometrics.Histogram:
			h := m.Snapshot()
			res[name] = histogramSummary{
				Count: h.Count(),
				Min:   h.Min(),
				Max:   h.Max(),
				Mean:  h.Mean(),
				P99:   h.Percentile(0.99),
			}
		}
	})
	return res
}

func (s *Stats) Names() []string {
	names := []string{}
	s.registry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}

func (s *Stats) JSONString() string {
	str, _ := jsoniter.MarshalToString(s.Snapshot())
	return str
}
