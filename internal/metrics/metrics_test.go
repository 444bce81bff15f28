package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWritePrometheusIncludesPipelineCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncChangeReceived()
	registry.IncChangeReceived()
	registry.IncChangeDebounced()
	registry.IncCategory("theme")
	registry.RecordApply("modules", 250*time.Millisecond, nil)
	registry.RecordApply("modules", 250*time.Millisecond, errors.New("boom"))
	registry.IncEventPublished("theme_events", "theme_applied")
	registry.RecordHTTPRequest("/v1/themes", 200, time.Millisecond)
	registry.RecordHTTPRequest("/v1/themes", 404, time.Millisecond)

	var out bytes.Buffer
	if err := registry.WritePrometheus(&out); err != nil {
		t.Fatalf("write prometheus: %v", err)
	}
	body := out.String()

	for _, want := range []string{
		"riceserver_changes_received_total 2",
		"riceserver_changes_debounced_total 1",
		`riceserver_changes_classified_total{category="theme"} 1`,
		`riceserver_apply_duration_seconds_count{scope="modules"} 2`,
		`riceserver_apply_failures_total{scope="modules"} 1`,
		`riceserver_apply_duration_seconds_sum{scope="modules"} 0.500000`,
		`riceserver_events_published_total{bus="theme_events",type="theme_applied"} 1`,
		`riceserver_http_requests_total{route="/v1/themes",status="2xx"} 1`,
		`riceserver_http_requests_total{route="/v1/themes",status="4xx"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestSnapshotCopiesCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncDispatchFailure()
	registry.AddDebounceEvictions(3)
	registry.RecordApply("full", time.Second, nil)

	snapshot := registry.Snapshot()
	if snapshot.DispatchFailures != 1 {
		t.Fatalf("expected 1 dispatch failure, got %d", snapshot.DispatchFailures)
	}
	if snapshot.DebounceEvictions != 3 {
		t.Fatalf("expected 3 evictions, got %d", snapshot.DebounceEvictions)
	}
	if snapshot.Applies["full"] != 1 {
		t.Fatalf("expected 1 full apply, got %v", snapshot.Applies)
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.IncChangeReceived()
	registry.RecordApply("full", time.Second, nil)
	if err := registry.WritePrometheus(&bytes.Buffer{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if snapshot := registry.Snapshot(); snapshot.ChangesReceived != 0 {
		t.Fatalf("expected empty snapshot")
	}
}
