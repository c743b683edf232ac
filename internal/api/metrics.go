package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "smarthome"

// Metrics owns the server's Prometheus registry. HTTP metrics are updated
// by middleware; device and bridge metrics are read from the components'
// Stats at scrape time.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics creates a registry with HTTP, runtime and device metrics.
func NewMetrics(s *Server) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&deviceCollector{s: s},
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeRequest(route string, status int, d time.Duration) {
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, nil, nil)
}

var (
	outletCommandsDesc  = newDesc("outlet_commands_total", "Commands sent to the outlet.")
	outletFailuresDesc  = newDesc("outlet_failures_total", "Outlet commands that failed.")
	outletConnectsDesc  = newDesc("outlet_connects_total", "TCP connections established to the outlet.")
	outletConnectedDesc = newDesc("outlet_connected", "Whether a connection to the outlet is held.")
	outletPowerDesc     = newDesc("outlet_power_watts", "Last reported outlet power draw.")
	outletActiveDesc    = newDesc("outlet_active", "Whether the outlet is switched on.")

	thermSamplesDesc    = newDesc("therm_samples_total", "Thermometer samples received.")
	thermMalformedDesc  = newDesc("therm_malformed_total", "Thermometer datagrams discarded as malformed.")
	thermStaleDesc      = newDesc("therm_stale_total", "Stale announcements made by the thermometer controller.")
	thermFreshDesc      = newDesc("therm_fresh", "Whether the latest thermometer sample is within the freshness window.")
	thermTempDesc       = newDesc("therm_temperature_celsius", "Latest fresh temperature.")
	thermLastUpdateDesc = newDesc("therm_last_update_timestamp_seconds", "Unix time of the latest thermometer sample.")

	bridgeCommandsDesc = newDesc("bridge_commands_total", "Outlet commands received over MQTT.")
	bridgeFailedDesc   = newDesc("bridge_commands_failed_total", "MQTT outlet commands that failed.")
	bridgeReadingsDesc = newDesc("bridge_readings_published_total", "Fresh readings published to MQTT.")
	bridgeDroppedDesc  = newDesc("bridge_readings_dropped_total", "Readings dropped because the publish queue was full.")
	bridgePubErrDesc   = newDesc("bridge_publish_errors_total", "Failed MQTT publishes.")

	wsClientsDesc = newDesc("websocket_clients", "Connected WebSocket clients.")
)

// deviceCollector reads controller, bridge and hub counters at scrape time.
type deviceCollector struct {
	s *Server
}

func (c *deviceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		outletCommandsDesc, outletFailuresDesc, outletConnectsDesc,
		outletConnectedDesc, outletPowerDesc, outletActiveDesc,
		thermSamplesDesc, thermMalformedDesc, thermStaleDesc,
		thermFreshDesc, thermTempDesc, thermLastUpdateDesc,
		bridgeCommandsDesc, bridgeFailedDesc, bridgeReadingsDesc,
		bridgeDroppedDesc, bridgePubErrDesc,
		wsClientsDesc,
	} {
		ch <- d
	}
}

func (c *deviceCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.s

	if s.outlet != nil {
		stats := s.outlet.Stats()
		snap := s.outlet.Device()
		counter(ch, outletCommandsDesc, float64(stats.CommandsTotal))
		counter(ch, outletFailuresDesc, float64(stats.FailuresTotal))
		counter(ch, outletConnectsDesc, float64(stats.ConnectsTotal))
		gauge(ch, outletConnectedDesc, boolValue(stats.Connected))
		gauge(ch, outletPowerDesc, snap.Power)
		gauge(ch, outletActiveDesc, boolValue(snap.Active))
	}

	if s.therm != nil {
		stats := s.therm.Stats()
		counter(ch, thermSamplesDesc, float64(stats.SamplesTotal))
		counter(ch, thermMalformedDesc, float64(stats.MalformedTotal))
		counter(ch, thermStaleDesc, float64(stats.StaleTotal))
		temp, err := s.therm.Temperature()
		gauge(ch, thermFreshDesc, boolValue(err == nil))
		if err == nil {
			gauge(ch, thermTempDesc, float64(temp))
		}
		if !stats.LastUpdate.IsZero() {
			gauge(ch, thermLastUpdateDesc, float64(stats.LastUpdate.UnixMilli())/1000)
		}
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		counter(ch, bridgeCommandsDesc, float64(stats.CommandsTotal))
		counter(ch, bridgeFailedDesc, float64(stats.CommandsFailed))
		counter(ch, bridgeReadingsDesc, float64(stats.ReadingsPublished))
		counter(ch, bridgeDroppedDesc, float64(stats.ReadingsDropped))
		counter(ch, bridgePubErrDesc, float64(stats.PublishErrors))
	}

	gauge(ch, wsClientsDesc, float64(s.hub.ClientCount()))
}

func counter(ch chan<- prometheus.Metric, d *prometheus.Desc, v float64) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
}

func gauge(ch chan<- prometheus.Metric, d *prometheus.Desc, v float64) {
	ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
