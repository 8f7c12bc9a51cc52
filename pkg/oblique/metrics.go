package oblique

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	fetches        *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	imagesLoaded   prometheus.Gauge
	switches       prometheus.Counter
	switchesStale  prometheus.Counter
	terrainLookups *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oblique_metadata_fetches_total",
			Help: "Number of metadata documents fetched.",
		}, []string{"kind", "result"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name: "oblique_metadata_fetch_seconds",
			Help: "Duration of metadata fetches.",
		}, []string{"kind"}),
		imagesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oblique_images_loaded",
			Help: "Number of images held by collections.",
		}),
		switches: factory.NewCounter(prometheus.CounterOpts{
			Name: "oblique_image_switches_total",
			Help: "Number of committed image switches.",
		}),
		switchesStale: factory.NewCounter(prometheus.CounterOpts{
			Name: "oblique_image_switches_superseded_total",
			Help: "Number of image switches discarded because a later one started.",
		}),
		terrainLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oblique_terrain_lookups_total",
			Help: "Number of terrain heights served from cache or source.",
		}, []string{"result"}),
	}
}

func (m *Metrics) fetchDone(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.fetches.WithLabelValues(kind, result).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func (m *Metrics) imagesAdded(n int) {
	if m == nil {
		return
	}
	m.imagesLoaded.Add(float64(n))
}

func (m *Metrics) switchCommitted() {
	if m == nil {
		return
	}
	m.switches.Inc()
}

func (m *Metrics) switchSuperseded() {
	if m == nil {
		return
	}
	m.switchesStale.Inc()
}

func (m *Metrics) terrainLookup(hits, misses int) {
	if m == nil {
		return
	}
	m.terrainLookups.WithLabelValues("hit").Add(float64(hits))
	m.terrainLookups.WithLabelValues("miss").Add(float64(misses))
}
