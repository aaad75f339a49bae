package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	"go.uber.org/atomic"
)

const (
	RemoteStateOK   = 1
	RemoteStateFail = 0
)

var (
	registry = metrics.NewRegistry()

	running        atomic.Bool
	remoteState    = atomic.NewInt32(RemoteStateOK)
	lastStatusCode atomic.Int64
	lastRunAt      atomic.Time
)

// Registry exposes the underlying registry, mainly for tests.
func Registry() metrics.Registry {
	return registry
}

func counter(name string) metrics.Counter {
	return metrics.GetOrRegisterCounter(name, registry)
}

// MarkRequest records one HTTP exchange with the home base. A zero status
// means the request never got an answer.
func MarkRequest(method string, status int, latency time.Duration) {
	metrics.GetOrRegisterTimer("remote.request."+strings.ToLower(method), registry).Update(latency)
	switch {
	case status == 0:
		counter("remote.transport_errors").Inc(1)
		remoteState.Store(RemoteStateFail)
	case status >= 500:
		counter("remote.server_errors").Inc(1)
		remoteState.Store(RemoteStateFail)
	case status >= 400:
		counter("remote.client_errors").Inc(1)
		remoteState.Store(RemoteStateOK)
	default:
		remoteState.Store(RemoteStateOK)
	}
	if status != 0 {
		lastStatusCode.Store(int64(status))
	}
}

func IncCreated(kind string) { counter(fmt.Sprintf("sync.%s.created", kind)).Inc(1) }
func IncUpdated(kind string) { counter(fmt.Sprintf("sync.%s.updated", kind)).Inc(1) }
func IncFailed(kind string)  { counter(fmt.Sprintf("sync.%s.failed", kind)).Inc(1) }

// ObserveRun records the outcome of a finished sync run.
func ObserveRun(ok bool, took time.Duration) {
	metrics.GetOrRegisterTimer("sync.run", registry).Update(took)
	if ok {
		counter("sync.runs.success").Inc(1)
	} else {
		counter("sync.runs.failed").Inc(1)
	}
	lastRunAt.Store(time.Now())
}

func SetRunning(v bool) { running.Store(v) }
func IsRunning() bool   { return running.Load() }

func RemoteState() int32    { return remoteState.Load() }
func LastStatusCode() int64 { return lastStatusCode.Load() }

// Snapshot flattens the registry into a JSON friendly map.
func Snapshot() map[string]any {
	out := map[string]any{
		"running":          running.Load(),
		"remote_state":     remoteState.Load(),
		"last_status_code": lastStatusCode.Load(),
	}
	if t := lastRunAt.Load(); !t.IsZero() {
		out["last_run_at"] = t.UTC()
	}

	registry.Each(func(name string, i any) {
		switch m := i.(type) {
		case metrics.Counter:
			out[name] = m.Count()
		case metrics.Gauge:
			out[name] = m.Value()
		case metrics.Timer:
			s := m.Snapshot()
			out[name] = map[string]any{
				"count":   s.Count(),
				"mean_ms": s.Mean() / float64(time.Millisecond),
				"max_ms":  float64(s.Max()) / float64(time.Millisecond),
				"p95_ms":  s.Percentile(0.95) / float64(time.Millisecond),
			}
		}
	})
	return out
}
