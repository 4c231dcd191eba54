package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func TestRegistry_NativeAndOTel(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defer reg.Shutdown(context.Background())

	promauto.With(reg.Registerer()).NewCounter(prometheus.CounterOpts{
		Name: "jddb_test_native_total",
		Help: "native counter",
	}).Add(3)

	counter, err := reg.MeterProvider().Meter("test").Int64Counter("jddb_test_otel")
	if err != nil {
		t.Fatalf("Int64Counter() error = %v", err)
	}
	counter.Add(context.Background(), 2)

	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var native, bridged, runtime bool
	for _, mf := range families {
		switch name := mf.GetName(); {
		case name == "jddb_test_native_total":
			native = true
		case strings.HasPrefix(name, "jddb_test_otel"):
			bridged = true
		case name == "go_goroutines":
			runtime = true
		}
	}
	if !native {
		t.Error("native counter not gathered")
	}
	if !bridged {
		t.Error("OpenTelemetry counter not gathered")
	}
	if !runtime {
		t.Error("Go runtime collector not registered")
	}
}

func TestRegistry_Handler(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	defer reg.Shutdown(context.Background())

	srv := httptest.NewServer(reg.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("response missing go_goroutines")
	}
}
