package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	archiveRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askql_history_archive_runs_total",
			Help: "Total number of history archive runs by status.",
		},
		[]string{"status"},
	)
	prunedEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "askql_history_pruned_entries_total",
			Help: "Total number of history entries pruned without archiving.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		archiveRunsTotal,
		prunedEntriesTotal,
	)
}
