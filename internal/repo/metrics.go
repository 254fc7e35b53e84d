package repo

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// repoMetrics holds the OTel instruments for the repository engine,
// grounded on the teacher's internal/storage/dolt/store.go doltMetrics
// (retryCount, lockWaitMs) extended with the active-transaction gauge and
// commit-conflict counter spec §4.6/§6 require. Instruments register
// against the global delegating provider at init time, so they forward to
// the real provider once the caller wires one in.
var repoMetrics struct {
	lockWaitMs     metric.Float64Histogram
	activeTx       metric.Int64UpDownCounter
	commitConflict metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/vcsql/vcsql/repo")
	repoMetrics.lockWaitMs, _ = m.Float64Histogram("vcsql.repo.lock_wait_ms",
		metric.WithDescription("time spent waiting to acquire the repository engine lock"),
		metric.WithUnit("ms"),
	)
	repoMetrics.activeTx, _ = m.Int64UpDownCounter("vcsql.repo.active_tx",
		metric.WithDescription("number of currently active transactions"),
		metric.WithUnit("{transaction}"),
	)
	repoMetrics.commitConflict, _ = m.Int64Counter("vcsql.repo.commit_conflict",
		metric.WithDescription("commits rejected due to a concurrent modification or merge conflict"),
		metric.WithUnit("{conflict}"),
	)
}
