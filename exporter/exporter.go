package exporter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/spark-guide/pricing"
)

const namespace = "databricks_pricing"

// Exporter implements the prometheus.Collector interface and exports the
// loaded Databricks pricing catalog. The catalog is immutable, so gauges are
// set once at construction.
type Exporter struct {
	catalog        *pricing.Catalog
	currency       string
	pricingMetrics map[string]*prometheus.GaugeVec
	nodeTypes      prometheus.Gauge
	regions        prometheus.Gauge
	totalCollects  prometheus.Counter
	mu             sync.Mutex
}

// NewExporter returns an exporter for catalog. currency only labels the
// price series.
func NewExporter(catalog *pricing.Catalog, currency string) *Exporter {
	e := Exporter{
		catalog:  catalog,
		currency: currency,
		nodeTypes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_node_types",
			Help:      "Number of node types in the pricing catalog.",
		}),
		regions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_regions",
			Help:      "Number of regions supported by the pricing catalog.",
		}),
		totalCollects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collects_total",
			Help:      "Total pricing catalog collections.",
		}),
	}

	e.initGauges()
	e.setPricingMetrics()

	return &e
}

func (e *Exporter) initGauges() {
	e.pricingMetrics = map[string]*prometheus.GaugeVec{}
	e.pricingMetrics["node_hourly_price"] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_hourly_price",
		Help:      "Hourly TotalPrice of one node from the pricing catalog. Databricks tables include VM and DBU; tables synced with --vm-only carry the VM price alone.",
	}, []string{"node_type", "region", "currency"})

	e.pricingMetrics["node_cpus"] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_cpus",
		Help:      "Number of cores of the node type.",
	}, []string{"node_type", "region"})

	e.pricingMetrics["node_cpu_hourly_price"] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "node_cpu_hourly_price",
		Help:      "Hourly price of each core of the node type.",
	}, []string{"node_type", "region", "currency"})
}

func (e *Exporter) setPricingMetrics() {
	log.Debug("set pricing metrics")
	regions := e.catalog.Regions()
	for _, nodeType := range e.catalog.NodeTypes() {
		for _, region := range regions {
			spec, err := e.catalog.Lookup(nodeType, region)
			if err != nil {
				log.WithError(err).Errorf("catalog lookup failed [node-type=%s, region=%s]", nodeType, region)
				continue
			}
			price := spec.TotalPrice.InexactFloat64()
			e.pricingMetrics["node_hourly_price"].WithLabelValues(nodeType, region, e.currency).Set(price)
			e.pricingMetrics["node_cpus"].WithLabelValues(nodeType, region).Set(float64(spec.CPUs))
			e.pricingMetrics["node_cpu_hourly_price"].WithLabelValues(nodeType, region, e.currency).Set(price / float64(spec.CPUs))
		}
	}
	e.nodeTypes.Set(float64(e.catalog.Len()))
	e.regions.Set(float64(len(regions)))
}

// Describe outputs metric descriptions.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range e.pricingMetrics {
		m.Describe(ch)
	}
	ch <- e.nodeTypes.Desc()
	ch <- e.regions.Desc()
	ch <- e.totalCollects.Desc()
}

// Collect sends the catalog metrics.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalCollects.Inc()

	e.nodeTypes.Collect(ch)
	e.regions.Collect(ch)
	e.totalCollects.Collect(ch)

	for _, m := range e.pricingMetrics {
		m.Collect(ch)
	}
}
