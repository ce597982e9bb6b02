// Package metrics exposes the watcher's Prometheus collectors. They
// carry no protocol semantics: nothing in internal/watcher behaves
// differently whether or not a Collector is wired in.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the gauges and counters described in SPEC_FULL.md
// §4.9. A nil *Collector is safe to call methods on; every method is a
// no-op in that case, so callers that don't want metrics don't need to
// branch on whether one was configured.
type Collector struct {
	commandsTotal     *prometheus.CounterVec
	pendingCommands   prometheus.Gauge
	activeWorkers     prometheus.Gauge
	decodeErrorsTotal *prometheus.CounterVec
}

// New registers the collector's metrics with reg and returns it. Pass
// prometheus.NewRegistry() for an isolated registry (tests), or
// prometheus.DefaultRegisterer for the process-wide one.
func New(reg prometheus.Registerer) *Collector {
	return &Collector{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "serclient_commands_total",
				Help: "Completed commands by LaunchResult outcome.",
			},
			[]string{"result"}, // success, timeout, failure
		),
		pendingCommands: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "serclient_pending_commands",
				Help: "Reassembled commands waiting to be dispatched.",
			},
		),
		activeWorkers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "serclient_active_workers",
				Help: "Command workers currently in flight.",
			},
		),
		decodeErrorsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "serclient_decode_errors_total",
				Help: "Packet decode failures by error kind.",
			},
			[]string{"kind"}, // bad_magic, bad_command, bad_guid, number_out_of_range, bad_crc
		),
	}
}

func (c *Collector) ObserveCommand(result string) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(result).Inc()
}

func (c *Collector) SetPendingCommands(n int) {
	if c == nil {
		return
	}
	c.pendingCommands.Set(float64(n))
}

func (c *Collector) SetActiveWorkers(n int) {
	if c == nil {
		return
	}
	c.activeWorkers.Set(float64(n))
}

func (c *Collector) ObserveDecodeError(kind string) {
	if c == nil {
		return
	}
	c.decodeErrorsTotal.WithLabelValues(kind).Inc()
}
