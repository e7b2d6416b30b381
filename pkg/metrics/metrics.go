// Package metrics exposes receive, parse and command exchange statistics as
// Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ar-tracking/DTrackSDK/pkg/command"
	"github.com/ar-tracking/DTrackSDK/pkg/errclass"
	"github.com/ar-tracking/DTrackSDK/pkg/protocol"
)

const namespace = "dtrack"

type Metrics struct {
	registry *prometheus.Registry

	datagrams        prometheus.Counter
	bytesReceived    prometheus.Counter
	receiveErrors    *prometheus.CounterVec
	parseErrors      prometheus.Counter
	parseDuration    prometheus.Histogram
	frameCounter     prometheus.Gauge
	trackedEntities  *prometheus.GaugeVec
	lastFrame        prometheus.Gauge
	exchanges        *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
	messages         *prometheus.CounterVec
	droppedEvents    prometheus.Counter
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		datagrams: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Tracking datagrams received",
		}),
		bytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Bytes of tracking data received",
		}),
		receiveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Failed receives by error kind",
		}, []string{"kind"}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Datagrams rejected by the parser",
		}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing one datagram",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 8),
		}),
		frameCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_counter",
			Help:      "Frame counter of the last parsed datagram",
		}),
		trackedEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_entities",
			Help:      "Tracked entities in the last frame by type",
		}, []string{"type"}),
		lastFrame: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_frame_timestamp_seconds",
			Help:      "Unix time the last frame was parsed",
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_exchanges_total",
			Help:      "Command exchanges by result",
		}, []string{"result"}),
		exchangeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_exchange_duration_seconds",
			Help:      "Round trip time of command exchanges",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 9),
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_messages_total",
			Help:      "Controller event messages by status",
		}, []string{"status"}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Frames a slow subscriber missed",
		}),
	}

	m.registry.MustRegister(
		m.datagrams,
		m.bytesReceived,
		m.receiveErrors,
		m.parseErrors,
		m.parseDuration,
		m.frameCounter,
		m.trackedEntities,
		m.lastFrame,
		m.exchanges,
		m.exchangeDuration,
		m.messages,
		m.droppedEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveReceive(n int, err error) {
	if err != nil {
		m.receiveErrors.WithLabelValues(errclass.Of(err).String()).Inc()
		return
	}
	m.datagrams.Inc()
	m.bytesReceived.Add(float64(n))
}

func (m *Metrics) ObserveParse(f *protocol.Frame, elapsed time.Duration, err error) {
	m.parseDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.parseErrors.Inc()
		return
	}
	m.frameCounter.Set(float64(f.Counter))
	m.lastFrame.SetToCurrentTime()
	m.trackedEntities.WithLabelValues("body").Set(float64(countTracked(f.Bodies, protocol.Body.IsTracked)))
	m.trackedEntities.WithLabelValues("flystick").Set(float64(countTracked(f.FlySticks, protocol.FlyStick.IsTracked)))
	m.trackedEntities.WithLabelValues("meatool").Set(float64(countTracked(f.MeaTools, protocol.MeaTool.IsTracked)))
	m.trackedEntities.WithLabelValues("marker").Set(float64(countTracked(f.Markers, protocol.Marker.IsTracked)))
	m.trackedEntities.WithLabelValues("hand").Set(float64(countTracked(f.Hands, protocol.Hand.IsTracked)))
	m.trackedEntities.WithLabelValues("human").Set(float64(countTracked(f.Humans, protocol.Human.IsTracked)))
	m.trackedEntities.WithLabelValues("inertial").Set(float64(countTracked(f.Inertials, protocol.Inertial.IsTracked)))
}

func (m *Metrics) ObserveExchange(err error, elapsed time.Duration) {
	m.exchanges.WithLabelValues(Result(err)).Inc()
	m.exchangeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMessage(msg command.Message) {
	m.messages.WithLabelValues(msg.Status).Inc()
}

func (m *Metrics) ObserveDrop(uint64) {
	m.droppedEvents.Inc()
}

// Result labels the outcome of an exchange: ok, device, or the error kind.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	var derr *command.DeviceError
	if errors.As(err, &derr) {
		return "device"
	}
	if errors.Is(err, command.ErrBusy) {
		return "busy"
	}
	return errclass.Of(err).String()
}

func countTracked[T any](items []T, tracked func(T) bool) int {
	n := 0
	for _, item := range items {
		if tracked(item) {
			n++
		}
	}
	return n
}
