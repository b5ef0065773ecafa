package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/spark-guide/calculator"
	"github.com/pixelfederation/spark-guide/pricing"
)

// Options configures a Server.
type Options struct {
	DefaultRegion string
	Currency      string
	MetricsPath   string
	// Registry receives the API metrics and is served on MetricsPath.
	Registry *prometheus.Registry
}

// Server is the JSON surface over the pricing catalog and the calculators.
type Server struct {
	catalog       *pricing.Catalog
	memo          *calculator.Memo
	defaultRegion string
	currency      string
	metricsPath   string
	registry      *prometheus.Registry
	metrics       *apiMetrics
}

// New returns a Server. The catalog must already be loaded.
func New(catalog *pricing.Catalog, memo *calculator.Memo, opts Options) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	return &Server{
		catalog:       catalog,
		memo:          memo,
		defaultRegion: opts.DefaultRegion,
		currency:      opts.Currency,
		metricsPath:   opts.MetricsPath,
		registry:      opts.Registry,
		metrics:       newAPIMetrics(opts.Registry),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/", s.rootHandler)
	r.Get("/healthz", s.healthHandler)
	r.Method(http.MethodGet, s.metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/node-types", s.listNodeTypes)
		r.Get("/node-types/{nodeType}", s.getNodeType)
		r.Get("/cost", s.estimateCost)
		r.Get("/partitions", s.recommendPartitions)
	})

	return r
}

// APIError contains error details.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// NodeTypeView is one node type priced in one region.
type NodeTypeView struct {
	Name       string      `json:"name"`
	Region     string      `json:"region"`
	TotalPrice json.Number `json:"total_price"`
	CPUs       int         `json:"cpus"`
}

// NodeTypeListResponse is the response for listing node types.
type NodeTypeListResponse struct {
	Region    string         `json:"region"`
	Currency  string         `json:"currency"`
	NodeTypes []NodeTypeView `json:"node_types"`
}

// NodeTypeResponse is the response for a single node type across regions.
type NodeTypeResponse struct {
	Name     string         `json:"name"`
	Currency string         `json:"currency"`
	Regions  []NodeTypeView `json:"regions"`
}

// CostResponse is the response for a cluster cost estimate.
type CostResponse struct {
	NodeType     string      `json:"node_type"`
	Region       string      `json:"region"`
	Nodes        int         `json:"nodes"`
	PricePerNode json.Number `json:"price_per_node"`
	HourlyCost   json.Number `json:"hourly_cost"`
	Currency     string      `json:"currency"`
}

// PartitionsResponse is the response for a shuffle partition recommendation.
type PartitionsResponse struct {
	NodeType             string  `json:"node_type,omitempty"`
	Region               string  `json:"region,omitempty"`
	Workers              int     `json:"workers,omitempty"`
	TotalCores           int     `json:"total_cores"`
	LargestShuffleReadGB float64 `json:"largest_shuffle_read_gb"`
	TargetShuffleSizeMB  float64 `json:"target_shuffle_size_mb"`
	Partitions           int     `json:"partitions"`
	SparkConf            string  `json:"spark_conf"`
}

func (s *Server) listNodeTypes(w http.ResponseWriter, r *http.Request) {
	region := s.region(r)
	if !s.catalog.HasRegion(region) {
		s.writeError(w, fmt.Errorf("region %q: %w", region, pricing.ErrNotFound))
		return
	}

	resp := NodeTypeListResponse{Region: region, Currency: s.currency}
	for _, nodeType := range s.catalog.NodeTypes() {
		spec, err := s.catalog.Lookup(nodeType, region)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.NodeTypes = append(resp.NodeTypes, nodeTypeView(nodeType, region, spec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getNodeType(w http.ResponseWriter, r *http.Request) {
	nodeType := chi.URLParam(r, "nodeType")

	resp := NodeTypeResponse{Name: nodeType, Currency: s.currency}
	for _, region := range s.catalog.Regions() {
		spec, err := s.catalog.Lookup(nodeType, region)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Regions = append(resp.Regions, nodeTypeView(nodeType, region, spec))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) estimateCost(w http.ResponseWriter, r *http.Request) {
	resp, err := s.cost(r)
	s.metrics.observeCalculation("cost", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) cost(r *http.Request) (*CostResponse, error) {
	nodeType, err := requiredParam(r, "node_type")
	if err != nil {
		return nil, err
	}
	nodes, err := intParam(r, "nodes")
	if err != nil {
		return nil, err
	}
	region := s.region(r)

	spec, err := s.catalog.Lookup(nodeType, region)
	if err != nil {
		return nil, err
	}
	cost, err := s.memo.EstimateHourlyCost(nodes, spec.TotalPrice)
	if err != nil {
		return nil, err
	}

	return &CostResponse{
		NodeType:     nodeType,
		Region:       region,
		Nodes:        nodes,
		PricePerNode: decimalNumber(spec.TotalPrice),
		HourlyCost:   decimalNumber(cost),
		Currency:     s.currency,
	}, nil
}

func (s *Server) recommendPartitions(w http.ResponseWriter, r *http.Request) {
	resp, err := s.partitions(r)
	s.metrics.observeCalculation("partitions", err)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// partitions takes the core count either directly from "cores" or from
// "node_type" and "workers".
func (s *Server) partitions(r *http.Request) (*PartitionsResponse, error) {
	readGB, err := floatParam(r, "shuffle_read_gb")
	if err != nil {
		return nil, err
	}
	sizeMB, err := floatParam(r, "target_size_mb")
	if err != nil {
		return nil, err
	}

	resp := &PartitionsResponse{
		LargestShuffleReadGB: readGB,
		TargetShuffleSizeMB:  sizeMB,
	}

	if r.URL.Query().Has("cores") {
		if resp.TotalCores, err = intParam(r, "cores"); err != nil {
			return nil, err
		}
	} else {
		if resp.NodeType, err = requiredParam(r, "node_type"); err != nil {
			return nil, err
		}
		if resp.Workers, err = intParam(r, "workers"); err != nil {
			return nil, err
		}
		resp.Region = s.region(r)
		spec, err := s.catalog.Lookup(resp.NodeType, resp.Region)
		if err != nil {
			return nil, err
		}
		if resp.TotalCores, err = calculator.TotalCores(spec.CPUs, resp.Workers); err != nil {
			return nil, err
		}
	}

	if resp.Partitions, err = s.memo.RecommendPartitions(resp.TotalCores, readGB, sizeMB); err != nil {
		return nil, err
	}
	resp.SparkConf = calculator.SparkConfSnippet(resp.Partitions)
	return resp, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"node_types": s.catalog.Len(),
		"regions":    s.catalog.Regions(),
	})
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	safePath := html.EscapeString(s.metricsPath)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<html>
		<head><title>Azure Databricks Spark Guide</title></head>
		<body>
		<h1>Azure Databricks Spark Guide</h1>
		<p><a href="/api/v1/node-types">Node types</a></p>
		<p><a href="/api/v1/cost?node_type=Standard_DS3_v2&amp;nodes=1">Cluster cost per hour</a></p>
		<p><a href="/api/v1/partitions?node_type=Standard_DS3_v2&amp;workers=1&amp;shuffle_read_gb=1&amp;target_size_mb=128">Shuffle partitions</a></p>
		<p><a href="` + safePath + `">Metrics</a></p>
		</body>
		</html>
	`))
}

func (s *Server) region(r *http.Request) string {
	if region := r.URL.Query().Get("region"); region != "" {
		return region
	}
	return s.defaultRegion
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "invalid_argument":
		status = http.StatusBadRequest
	case "not_found":
		status = http.StatusNotFound
	default:
		log.WithError(err).Error("request failed")
	}
	s.writeJSON(w, status, ErrorResponse{Error: APIError{Code: code, Message: err.Error()}})
}

// instrument logs each request and records its latency by route pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.requestDuration.WithLabelValues(route, strconv.Itoa(ww.Status())).Observe(elapsed.Seconds())
		log.WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"took":       elapsed,
		}).Debug("handled request")
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, calculator.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, pricing.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

func requiredParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", fmt.Errorf("%w: query parameter %q is required", calculator.ErrInvalidArgument, name)
	}
	return v, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw, err := requiredParam(r, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: query parameter %q must be an integer, got %q", calculator.ErrInvalidArgument, name, raw)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw, err := requiredParam(r, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query parameter %q must be a number, got %q", calculator.ErrInvalidArgument, name, raw)
	}
	return v, nil
}

func nodeTypeView(nodeType, region string, spec pricing.NodeSpec) NodeTypeView {
	return NodeTypeView{
		Name:       nodeType,
		Region:     region,
		TotalPrice: decimalNumber(spec.TotalPrice),
		CPUs:       spec.CPUs,
	}
}

func decimalNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
