package diag

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTagCounts(t *testing.T) {
	g := Register("test-consumer[x.mp4]")
	g.Tag("dropped-frame")
	g.Tag("dropped-frame")

	got := testutil.ToFloat64(tags.WithLabelValues("test-consumer[x.mp4]", "dropped-frame"))
	if got != 2 {
		t.Errorf("dropped-frame count: got %v, want 2", got)
	}
}

func TestQueueDepthGauge(t *testing.T) {
	g := Register("test-consumer[depth]")
	g.QueueDepth(5)

	got := testutil.ToFloat64(queueDepth.WithLabelValues("test-consumer[depth]"))
	if got != 5 {
		t.Errorf("queue depth: got %v, want 5", got)
	}
}
