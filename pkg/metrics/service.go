// Package metrics holds the Prometheus collectors shared by the RadMan
// binaries and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	LinesParsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radman_measurement_lines_parsed_total",
		Help: "Measurement lines successfully parsed.",
	})
	LinesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radman_measurement_lines_dropped_total",
		Help: "Malformed measurement lines dropped.",
	})
	ReadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "radman_transport_read_errors_total",
		Help: "Serial transport read failures, timeouts excluded.",
	})

	EFieldPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radman_efield_percentage",
		Help: "Last reported E-field level as a fraction of the limit standard.",
	})
	HFieldPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radman_hfield_percentage",
		Help: "Last reported H-field level as a fraction of the limit standard.",
	})
	BatteryPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radman_battery_percentage",
		Help: "Last reported battery charge percentage.",
	})
	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "radman_websocket_clients",
		Help: "Currently connected WebSocket clients.",
	})
)

func init() {
	prometheus.MustRegister(
		LinesParsed,
		LinesDropped,
		ReadErrors,
		EFieldPercentage,
		HFieldPercentage,
		BatteryPercentage,
		WebsocketClients,
	)
}

// Serve exposes /metrics on address in a background goroutine.
func Serve(address string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logrus.Infof("Serving Prometheus metrics on http://%s/metrics", address)
		if err := http.ListenAndServe(address, mux); err != nil {
			logrus.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

// ObserveSample updates the last-value gauges from one measurement sample.
func ObserveSample(efieldPct, hfieldPct, batteryPct float64) {
	EFieldPercentage.Set(efieldPct)
	HFieldPercentage.Set(hfieldPct)
	BatteryPercentage.Set(batteryPct)
}
