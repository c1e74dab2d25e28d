package metrics

import (
	"net/http"
	"strconv"

	"github.com/foxseedlab/mcumixer/internal/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcumixer"

// Collector implements mixer.Observer and feedback.Recorder on top of its
// own registry.
type Collector struct {
	registry *prometheus.Registry

	publishers   prometheus.Gauge
	subscribers  prometheus.Gauge
	inboundBytes *prometheus.CounterVec
	fanOut       *prometheus.CounterVec
	fanOutBytes  *prometheus.CounterVec
	feedback     *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		publishers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "publishers",
			Help:      "Publishers currently registered, one composition slot each.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Subscribers currently receiving mixed output.",
		}),
		inboundBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_bytes_total",
			Help:      "Publisher bytes accepted by the mixing engines.",
		}, []string{"media"}),
		fanOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_packets_total",
			Help:      "Mixed packets handed to subscribers.",
		}, []string{"media", "stream"}),
		fanOutBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_bytes_total",
			Help:      "Mixed bytes handed to subscribers.",
		}, []string{"media"}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_packets_total",
			Help:      "Subscriber RTCP packets seen by the feedback sink.",
		}, []string{"kind"}),
	}
	c.registry.MustRegister(
		c.publishers,
		c.subscribers,
		c.inboundBytes,
		c.fanOut,
		c.fanOutBytes,
		c.feedback,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) PublishersChanged(n int) {
	c.publishers.Set(float64(n))
}

func (c *Collector) SubscribersChanged(n int) {
	c.subscribers.Set(float64(n))
}

func (c *Collector) InboundDelivered(t media.Type, bytes int) {
	c.inboundBytes.WithLabelValues(t.String()).Add(float64(bytes))
}

// FannedOut counts one packet per subscriber it reached.
func (c *Collector) FannedOut(t media.Type, streamID uint32, subscribers, bytes int) {
	if subscribers <= 0 {
		return
	}
	c.fanOut.WithLabelValues(t.String(), strconv.FormatUint(uint64(streamID), 10)).Add(float64(subscribers))
	c.fanOutBytes.WithLabelValues(t.String()).Add(float64(subscribers * bytes))
}

func (c *Collector) FeedbackReceived(kind string) {
	c.feedback.WithLabelValues(kind).Inc()
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
