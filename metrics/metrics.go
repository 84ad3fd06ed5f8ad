// Package metrics instruments the archival mutator set with Prometheus
// gauges (SPEC_FULL.md §1: "AOCL leaf count, SWBF-inactive leaf count,
// active-window set ratio, and slide counter"), grounded on
// github.com/prometheus/client_golang's own promauto/promhttp idiom
// (no single teacher file instruments metrics, so the registration
// shape follows the library's own documented usage rather than a
// pack file).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accumulator.dev/mutatorset/archival"
	"accumulator.dev/mutatorset/indexderive"
)

// Collector exposes an ArchivalMutatorSet's size as Prometheus gauges.
// Values are computed on each Collect call rather than updated
// incrementally, so Collector never drifts from the live accumulator.
type Collector struct {
	target *archival.ArchivalMutatorSet
	params indexderive.Params

	aoclLeaves     *prometheus.Desc
	swbfLeaves     *prometheus.Desc
	windowSetRatio *prometheus.Desc
	slideCount     *prometheus.Desc
}

// NewCollector returns a Collector reporting on target, registered
// against reg with MustRegister, and also registers an undo-depth gauge
// on reg through promauto, the way a long-running node process wires up
// its own metrics at startup.
func NewCollector(target *archival.ArchivalMutatorSet, params indexderive.Params, reg prometheus.Registerer) *Collector {
	c := &Collector{
		target: target,
		params: params,
		aoclLeaves: prometheus.NewDesc(
			"mutatorset_aocl_leaves_total", "Number of leaves in the append-only commitment log.", nil, nil),
		swbfLeaves: prometheus.NewDesc(
			"mutatorset_swbf_inactive_leaves_total", "Number of archived chunks in the SWBF-inactive MMR.", nil, nil),
		windowSetRatio: prometheus.NewDesc(
			"mutatorset_active_window_set_ratio", "Fraction of the active window's bits currently set.", nil, nil),
		slideCount: prometheus.NewDesc(
			"mutatorset_slides_total", "Number of times the active window has slid.", nil, nil),
	}
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mutatorset_undo_depth",
		Help: "Number of operations currently revertable.",
	}, func() float64 { return float64(target.UndoDepth()) })
	reg.MustRegister(c)
	return c
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.aoclLeaves
	ch <- c.swbfLeaves
	ch <- c.windowSetRatio
	ch <- c.slideCount
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	aocl := float64(c.target.Core.AOCL.CountLeaves())
	swbf := c.target.Core.SWBFInactive.CountLeaves()

	ratio := 0.0
	if c.params.WindowSize > 0 {
		set := 0
		for _, pos := range c.target.Core.Window.SetBits() {
			if pos < c.params.WindowSize {
				set++
			}
		}
		ratio = float64(set) / float64(c.params.WindowSize)
	}

	ch <- prometheus.MustNewConstMetric(c.aoclLeaves, prometheus.GaugeValue, aocl)
	ch <- prometheus.MustNewConstMetric(c.swbfLeaves, prometheus.GaugeValue, float64(swbf))
	ch <- prometheus.MustNewConstMetric(c.windowSetRatio, prometheus.GaugeValue, ratio)
	ch <- prometheus.MustNewConstMetric(c.slideCount, prometheus.GaugeValue, float64(swbf))
}

// Handler returns the promhttp handler for the registry backing this
// collector, for the CLI's "serve" subcommand to mount at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
