package exporter

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/coordinator"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var (
	refreshTotal       = metrics.NewCounter("srvcoord_exporter_refresh_total")
	refreshErrorsTotal = metrics.NewCounter("srvcoord_exporter_refresh_errors_total")
)

// lockExporter periodically reads all locks and exposes them as metrics.
// Every refresh builds a new metrics.Set, so released locks disappear from the output.
type lockExporter struct {
	coord       coordinator.ICoordinator
	current     atomic.Pointer[metrics.Set]
	lastSuccess atomic.Int64 // unix seconds of the last successful refresh
}

func newLockExporter(c coordinator.ICoordinator) *lockExporter {
	e := &lockExporter{coord: c}
	e.current.Store(metrics.NewSet())
	return e
}

// refresh reads all locks and replaces the exposed lock metrics.
// On error the previous metrics stay in place.
func (e *lockExporter) refresh(ctx context.Context) error {
	refreshTotal.Inc()
	locks, err := e.coord.Check(ctx)
	if err != nil {
		refreshErrorsTotal.Inc()
		return err
	}

	set := metrics.NewSet()
	for server, record := range locks {
		holders := float64(len(record.Holders))
		set.NewGauge(fmt.Sprintf(`srvcoord_lock_holders{server=%s,mode=%s}`, labelValue(server), labelValue(string(record.Mode))), func() float64 {
			return holders
		})
		for _, holder := range record.Distinct() {
			held := float64(record.Count(record.Mode, holder))
			set.NewGauge(fmt.Sprintf(`srvcoord_lock_held{server=%s,mode=%s,holder=%s}`, labelValue(server), labelValue(string(record.Mode)), labelValue(holder)), func() float64 {
				return held
			})
		}
	}
	count := float64(len(locks))
	set.NewGauge("srvcoord_locks", func() float64 { return count })

	e.current.Store(set)
	e.lastSuccess.Store(time.Now().Unix())
	return nil
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// labelValue quotes v as a label value of the Prometheus text format.
func labelValue(v string) string {
	return `"` + labelEscaper.Replace(v) + `"`
}

// run refreshes every interval until ctx is done.
func (e *lockExporter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := e.refresh(ctx); err != nil && ctx.Err() == nil {
			plog.Warningf("failed to refresh locks: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// writeMetrics writes the process metrics, the exporter counters and the lock metrics.
func (e *lockExporter) writeMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
	fmt.Fprintf(w, "srvcoord_exporter_last_success_timestamp_seconds %d\n", e.lastSuccess.Load())
	e.current.Load().WritePrometheus(w)
}

// handler serves /metrics.
func (e *lockExporter) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		e.writeMetrics(w)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if e.lastSuccess.Load() == 0 {
			http.Error(w, "no successful refresh yet", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}
