// Package diag is the process-wide diagnostics graph registry. Every
// producer and consumer registers a named graph and feeds it frame timings,
// event tags (such as dropped-frame) and queue depths; the backing
// prometheus registry is created once at startup and read-only thereafter.
package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry = prometheus.NewRegistry()

	frameTime = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lumen_frame_time_seconds",
		Help:    "Per-frame processing time by component graph",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"graph"})

	tags = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Name: "lumen_graph_tags_total",
		Help: "Event tags (dropped-frame, late-frame, ...) by component graph",
	}, []string{"graph", "tag"})

	queueDepth = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "lumen_queue_depth",
		Help: "Pending items in a component's queue",
	}, []string{"graph"})
)

// Registry exposes the process registry for an HTTP handler.
func Registry() *prometheus.Registry { return registry }

// Graph is one component's diagnostics handle, identified by its print-name.
type Graph struct {
	name string
}

// Register creates (or reuses) the graph for the given print-name.
func Register(name string) *Graph {
	return &Graph{name: name}
}

// Name returns the graph's print-name.
func (g *Graph) Name() string { return g.name }

// FrameTime records one frame's processing duration in seconds.
func (g *Graph) FrameTime(seconds float64) {
	frameTime.WithLabelValues(g.name).Observe(seconds)
}

// Tag counts one occurrence of the named event.
func (g *Graph) Tag(tag string) {
	tags.WithLabelValues(g.name, tag).Inc()
}

// QueueDepth publishes the current depth of the component's queue.
func (g *Graph) QueueDepth(n int) {
	queueDepth.WithLabelValues(g.name).Set(float64(n))
}
