package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGeneratorCallAcceptsMillisecondLatency(t *testing.T) {
	start := time.Now().Add(-1500 * time.Millisecond)

	// Same expression the adapters use at their call sites.
	ObserveGeneratorCall("TestProvider", float64(time.Since(start).Milliseconds()), true)
	ObserveGeneratorCall("TestProvider", float64(time.Since(start).Milliseconds()), false)

	ok := testutil.ToFloat64(generatorCallsTotal.WithLabelValues("testprovider", "true"))
	if ok != 1 {
		t.Fatalf("success counter = %v, want 1", ok)
	}
	failed := testutil.ToFloat64(generatorCallsTotal.WithLabelValues("testprovider", "false"))
	if failed != 1 {
		t.Fatalf("failure counter = %v, want 1", failed)
	}
	if n := testutil.CollectAndCount(generatorCallLatencyMs); n == 0 {
		t.Fatal("latency histogram collected no series")
	}
}
