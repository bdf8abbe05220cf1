package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters. All fields are atomics so call
// sites never contend on a lock for instrumentation.
type Metrics struct {
	MessagesRecv       atomic.Int64
	InvocationsTotal   atomic.Int64
	InvocationErrors   atomic.Int64
	DiscoveryRefreshes atomic.Int64
	DiscoveryFailures  atomic.Int64
	ListCommands       atomic.Int64
	SetCommands        atomic.Int64
}

// HandlerDeps supplies the live gauges the handler reports alongside the
// counters.
type HandlerDeps struct {
	SessionCount func() int
	TargetCount  func() int
}

// Handler returns an HTTP handler for GET /metrics in Prometheus text
// format. This uses the lightweight text format to avoid pulling in the
// full prometheus client.
func Handler(m *Metrics, startTime time.Time, deps HandlerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		fmt.Fprintf(w, "# HELP flowrelay_messages_received_total Total chat messages received.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_messages_received_total counter\n")
		fmt.Fprintf(w, "flowrelay_messages_received_total %d\n", m.MessagesRecv.Load())

		fmt.Fprintf(w, "# HELP flowrelay_invocations_total Total backend invocations.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_invocations_total counter\n")
		fmt.Fprintf(w, "flowrelay_invocations_total %d\n", m.InvocationsTotal.Load())

		fmt.Fprintf(w, "# HELP flowrelay_invocation_errors_total Backend invocations that failed.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_invocation_errors_total counter\n")
		fmt.Fprintf(w, "flowrelay_invocation_errors_total %d\n", m.InvocationErrors.Load())

		fmt.Fprintf(w, "# HELP flowrelay_discovery_refreshes_total Target discovery refreshes.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_discovery_refreshes_total counter\n")
		fmt.Fprintf(w, "flowrelay_discovery_refreshes_total %d\n", m.DiscoveryRefreshes.Load())

		fmt.Fprintf(w, "# HELP flowrelay_discovery_failures_total Target discovery refreshes that failed.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_discovery_failures_total counter\n")
		fmt.Fprintf(w, "flowrelay_discovery_failures_total %d\n", m.DiscoveryFailures.Load())

		fmt.Fprintf(w, "# HELP flowrelay_list_commands_total List-targets commands handled.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_list_commands_total counter\n")
		fmt.Fprintf(w, "flowrelay_list_commands_total %d\n", m.ListCommands.Load())

		fmt.Fprintf(w, "# HELP flowrelay_set_commands_total Set-default commands handled.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_set_commands_total counter\n")
		fmt.Fprintf(w, "flowrelay_set_commands_total %d\n", m.SetCommands.Load())

		if deps.SessionCount != nil {
			fmt.Fprintf(w, "# HELP flowrelay_sessions_bound Sessions with a bound default target.\n")
			fmt.Fprintf(w, "# TYPE flowrelay_sessions_bound gauge\n")
			fmt.Fprintf(w, "flowrelay_sessions_bound %d\n", deps.SessionCount())
		}
		if deps.TargetCount != nil {
			fmt.Fprintf(w, "# HELP flowrelay_targets_registered Targets in the current registry.\n")
			fmt.Fprintf(w, "# TYPE flowrelay_targets_registered gauge\n")
			fmt.Fprintf(w, "flowrelay_targets_registered %d\n", deps.TargetCount())
		}

		fmt.Fprintf(w, "# HELP flowrelay_uptime_seconds Process uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_uptime_seconds gauge\n")
		fmt.Fprintf(w, "flowrelay_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		fmt.Fprintf(w, "# HELP flowrelay_goroutines Current number of goroutines.\n")
		fmt.Fprintf(w, "# TYPE flowrelay_goroutines gauge\n")
		fmt.Fprintf(w, "flowrelay_goroutines %d\n", runtime.NumGoroutine())
	}
}
