package coordinator

import (
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/lockstate"
	"github.com/VictoriaMetrics/metrics"
)

// Results recorded in the result label.
const (
	resultGranted  = "granted"
	resultDenied   = "denied"
	resultError    = "error"
	resultReleased = "released"
	resultNotHeld  = "not_held"
)

var conflictsTotal = metrics.NewCounter("srvcoord_acquire_conflicts_total")

// countAcquire increments srvcoord_acquire_total for mode and result.
func countAcquire(mode lockstate.Mode, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`srvcoord_acquire_total{mode=%q,result=%q}`, mode, result)).Inc()
}

// countRelease increments srvcoord_release_total for mode and result.
func countRelease(mode lockstate.Mode, result string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`srvcoord_release_total{mode=%q,result=%q}`, mode, result)).Inc()
}
