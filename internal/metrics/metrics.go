// Package metrics exposes benchmark progress as prometheus metrics
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jessegalley/readbench/internal/stats"
)

const namespace = "readbench"

// Collector records benchmark events into its own registry
type Collector struct {
	registry *prometheus.Registry

	iterationSeconds prometheus.Histogram
	bytesRead        prometheus.Counter
	iterations       prometheus.Counter
	fallbacks        prometheus.Counter
	planned          prometheus.Gauge
	provisionSeconds prometheus.Gauge
	throughput       prometheus.Gauge
	runs             *prometheus.CounterVec
}

// New creates a Collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		iterationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_seconds",
			Help:      "Time taken to open, read and close one test file",
			Buckets:   []float64{.0001, .0005, .001, .003, .005, .01, .02, .05, .1, .5, 1},
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_read_total",
			Help:      "Bytes transferred by the read phase",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "File reads completed",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "direct_io_fallbacks_total",
			Help:      "File reads that fell back to buffered io",
		}),
		planned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterations_planned",
			Help:      "Iterations the current run will perform",
		}),
		provisionSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provision_seconds",
			Help:      "Time spent creating the file set in the last run",
		}),
		throughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_mib_per_second",
			Help:      "Read bandwidth of the last finished run",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by outcome",
		}, []string{"result"}),
	}

	c.registry.MustRegister(
		c.iterationSeconds,
		c.bytesRead,
		c.iterations,
		c.fallbacks,
		c.planned,
		c.provisionSeconds,
		c.throughput,
		c.runs,
	)
	return c
}

// Registry returns the registry holding the collector's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Start records the size of the run about to begin
func (c *Collector) Start(iterations int) {
	c.planned.Set(float64(iterations))
}

// Iteration records one completed file read
func (c *Collector) Iteration(_ int, r stats.IterationResult) {
	c.iterations.Inc()
	c.bytesRead.Add(float64(r.Bytes))
	c.iterationSeconds.Observe(r.Latency.Seconds())
	if r.Fallback {
		c.fallbacks.Inc()
	}
}

// Finish records the outcome of a run
func (c *Collector) Finish(m stats.RunMetrics, err error) {
	if err != nil {
		c.runs.WithLabelValues("failed").Inc()
		return
	}
	c.runs.WithLabelValues("completed").Inc()
	c.provisionSeconds.Set(m.ProvisionTime.Seconds())
	c.throughput.Set(m.ThroughputMiBps())
}

// Handler returns the http handler serving the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics in the background
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Serve starts an http server on addr exposing the collector at /metrics
func (c *Collector) Serve(addr string) (*Server, error) {
	r := mux.NewRouter()
	r.Handle("/metrics", c.Handler()).Methods(http.MethodGet)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := &Server{
		srv: &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("metrics server stopped: %v", err)
		}
	}()

	glog.V(1).Infof("serving metrics on http://%s/metrics", ln.Addr())
	return s, nil
}

// Addr returns the address the server is listening on
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Shutdown stops the server, waiting for in-flight scrapes until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
