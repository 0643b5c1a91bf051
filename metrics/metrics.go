// Package metrics exports bus activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trickstertwo/xport"
)

const namespace = "xport"

var _ xport.Observer = (*Observer)(nil)

// Observer turns bus events into Prometheus series. Attach it with
// BusBuilder.WithObserver or Bus.AddObserver.
type Observer struct {
	dispatches    *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	handlerErrors *prometheus.CounterVec
	subscriptions *prometheus.GaugeVec
}

// NewObserver creates the collectors and registers them on reg
// (prometheus.DefaultRegisterer when nil).
func NewObserver(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Messages dispatched on the bus.",
		}, []string{"message", "kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent handling one dispatched message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"message", "kind"}),
		handlerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_errors_total",
			Help:      "Event handlers that returned an error.",
		}, []string{"message"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Handlers subscribed per message type.",
		}, []string{"message", "kind"}),
	}
	for _, c := range []prometheus.Collector{o.dispatches, o.duration, o.handlerErrors, o.subscriptions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *Observer) OnEvent(e xport.BusEvent) {
	kind := e.Kind.String()
	switch e.Type {
	case xport.EventSubscribe:
		o.subscriptions.WithLabelValues(e.Message, kind).Set(float64(e.Handlers))
	case xport.EventDispatchDone:
		outcome := "ok"
		if e.Err != nil {
			outcome = "error"
		}
		o.dispatches.WithLabelValues(e.Message, kind, outcome).Inc()
		o.duration.WithLabelValues(e.Message, kind).Observe(e.Duration.Seconds())
	case xport.EventHandlerError:
		o.handlerErrors.WithLabelValues(e.Message).Inc()
	}
}

// Handler serves the metrics gathered by g (prometheus.DefaultGatherer when nil).
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
