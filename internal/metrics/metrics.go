package metrics

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Registry holds counters for the change-reaction pipeline and the event bus.
type Registry struct {
	changesReceived   atomic.Int64
	changesDebounced  atomic.Int64
	changesIgnored    atomic.Int64
	dispatchFailures  atomic.Int64
	debounceEvictions atomic.Int64
	categories        sync.Map
	applies           sync.Map
	busPublished      sync.Map
	busDropped        sync.Map
	busSubscribers    sync.Map
	httpRequests      sync.Map
}

type applyStats struct {
	count         atomic.Int64
	failures      atomic.Int64
	durationNanos atomic.Int64
}

type counter struct {
	value atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncChangeReceived() {
	if r == nil {
		return
	}
	r.changesReceived.Add(1)
}

func (r *Registry) IncChangeDebounced() {
	if r == nil {
		return
	}
	r.changesDebounced.Add(1)
}

func (r *Registry) IncChangeIgnored() {
	if r == nil {
		return
	}
	r.changesIgnored.Add(1)
}

func (r *Registry) IncDispatchFailure() {
	if r == nil {
		return
	}
	r.dispatchFailures.Add(1)
}

func (r *Registry) AddDebounceEvictions(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.debounceEvictions.Add(int64(count))
}

// IncCategory counts a classified change by category name.
func (r *Registry) IncCategory(category string) {
	if r == nil {
		return
	}
	counterFor(&r.categories, category).value.Add(1)
}

// RecordApply records one re-application. Scope is "full" or "modules".
func (r *Registry) RecordApply(scope string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	if strings.TrimSpace(scope) == "" {
		scope = "unknown"
	}
	value, _ := r.applies.LoadOrStore(scope, &applyStats{})
	stats := value.(*applyStats)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if err != nil {
		stats.failures.Add(1)
	}
}

func (r *Registry) IncEventPublished(bus, eventType string) {
	if r == nil {
		return
	}
	counterFor(&r.busPublished, bus+"\x00"+eventType).value.Add(1)
}

func (r *Registry) IncEventDropped(bus, eventType string) {
	if r == nil {
		return
	}
	counterFor(&r.busDropped, bus+"\x00"+eventType).value.Add(1)
}

func (r *Registry) SetEventSubscriberCount(bus string, count int) {
	if r == nil {
		return
	}
	counterFor(&r.busSubscribers, bus).value.Store(int64(count))
}

// RecordHTTPRequest counts a served API request by route and status class.
func (r *Registry) RecordHTTPRequest(route string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	class := strconv.Itoa(status/100) + "xx"
	value, _ := r.httpRequests.LoadOrStore(route+"\x00"+class, &applyStats{})
	stats := value.(*applyStats)
	stats.count.Add(1)
	stats.durationNanos.Add(duration.Nanoseconds())
	if status >= 500 {
		stats.failures.Add(1)
	}
}

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	ChangesReceived   int64            `json:"changes_received"`
	ChangesDebounced  int64            `json:"changes_debounced"`
	ChangesIgnored    int64            `json:"changes_ignored"`
	DispatchFailures  int64            `json:"dispatch_failures"`
	DebounceEvictions int64            `json:"debounce_evictions"`
	Categories        map[string]int64 `json:"categories,omitempty"`
	Applies           map[string]int64 `json:"applies,omitempty"`
	ApplyFailures     map[string]int64 `json:"apply_failures,omitempty"`
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	snapshot := Snapshot{
		ChangesReceived:   r.changesReceived.Load(),
		ChangesDebounced:  r.changesDebounced.Load(),
		ChangesIgnored:    r.changesIgnored.Load(),
		DispatchFailures:  r.dispatchFailures.Load(),
		DebounceEvictions: r.debounceEvictions.Load(),
		Categories:        map[string]int64{},
		Applies:           map[string]int64{},
		ApplyFailures:     map[string]int64{},
	}
	r.categories.Range(func(key, value any) bool {
		snapshot.Categories[key.(string)] = value.(*counter).value.Load()
		return true
	})
	r.applies.Range(func(key, value any) bool {
		stats := value.(*applyStats)
		snapshot.Applies[key.(string)] = stats.count.Load()
		snapshot.ApplyFailures[key.(string)] = stats.failures.Load()
		return true
	})
	return snapshot
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "riceserver_changes_received_total", "Filesystem changes delivered by the watcher", r.changesReceived.Load())
	writeCounter(writer, "riceserver_changes_debounced_total", "Changes suppressed by the debounce window", r.changesDebounced.Load())
	writeCounter(writer, "riceserver_changes_ignored_total", "Changes that matched no category", r.changesIgnored.Load())
	writeCounter(writer, "riceserver_dispatch_failures_total", "Changes whose reaction failed", r.dispatchFailures.Load())
	writeCounter(writer, "riceserver_debounce_evictions_total", "Debounce entries removed by the sweep", r.debounceEvictions.Load())

	writeHelp(writer, "riceserver_changes_classified_total", "Classified changes by category")
	fmt.Fprintln(writer, "# TYPE riceserver_changes_classified_total counter")
	for _, name := range sortedKeys(&r.categories) {
		fmt.Fprintf(writer, "riceserver_changes_classified_total{category=%s} %d\n", formatLabel(name), counterFor(&r.categories, name).value.Load())
	}

	writeHelp(writer, "riceserver_apply_duration_seconds", "Theme re-application duration in seconds")
	fmt.Fprintln(writer, "# TYPE riceserver_apply_duration_seconds summary")
	writeHelp(writer, "riceserver_apply_failures_total", "Theme re-application failures")
	fmt.Fprintln(writer, "# TYPE riceserver_apply_failures_total counter")
	for _, scope := range sortedKeys(&r.applies) {
		value, _ := r.applies.Load(scope)
		stats := value.(*applyStats)
		label := formatLabel(scope)
		durationSeconds := float64(stats.durationNanos.Load()) / float64(time.Second)
		fmt.Fprintf(writer, "riceserver_apply_duration_seconds_sum{scope=%s} %.6f\n", label, durationSeconds)
		fmt.Fprintf(writer, "riceserver_apply_duration_seconds_count{scope=%s} %d\n", label, stats.count.Load())
		fmt.Fprintf(writer, "riceserver_apply_failures_total{scope=%s} %d\n", label, stats.failures.Load())
	}

	writeBusCounters(writer, "riceserver_events_published_total", "Events published on in-process buses", &r.busPublished)
	writeBusCounters(writer, "riceserver_events_dropped_total", "Events dropped for slow subscribers", &r.busDropped)

	writeHelp(writer, "riceserver_http_requests_total", "API requests by route and status class")
	fmt.Fprintln(writer, "# TYPE riceserver_http_requests_total counter")
	for _, key := range sortedKeys(&r.httpRequests) {
		value, _ := r.httpRequests.Load(key)
		route, class, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "riceserver_http_requests_total{route=%s,status=%s} %d\n", formatLabel(route), formatLabel(class), value.(*applyStats).count.Load())
	}

	writeHelp(writer, "riceserver_event_subscribers", "Active event bus subscribers")
	fmt.Fprintln(writer, "# TYPE riceserver_event_subscribers gauge")
	for _, bus := range sortedKeys(&r.busSubscribers) {
		fmt.Fprintf(writer, "riceserver_event_subscribers{bus=%s} %d\n", formatLabel(bus), counterFor(&r.busSubscribers, bus).value.Load())
	}

	return nil
}

func writeBusCounters(writer io.Writer, metric, help string, values *sync.Map) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	for _, key := range sortedKeys(values) {
		bus, eventType, _ := strings.Cut(key, "\x00")
		fmt.Fprintf(writer, "%s{bus=%s,type=%s} %d\n", metric, formatLabel(bus), formatLabel(eventType), counterFor(values, key).value.Load())
	}
}

func counterFor(values *sync.Map, key string) *counter {
	value, _ := values.LoadOrStore(key, &counter{})
	return value.(*counter)
}

func sortedKeys(values *sync.Map) []string {
	var keys []string
	values.Range(func(key, _ any) bool {
		if name, ok := key.(string); ok {
			keys = append(keys, name)
		}
		return true
	})
	sort.Strings(keys)
	return keys
}

func writeHelp(writer io.Writer, metric, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", metric, help)
}

func writeCounter(writer io.Writer, metric, help string, value int64) {
	writeHelp(writer, metric, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", metric)
	fmt.Fprintf(writer, "%s %d\n", metric, value)
}

func formatLabel(value string) string {
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return fmt.Sprintf("\"%s\"", escaped)
}
