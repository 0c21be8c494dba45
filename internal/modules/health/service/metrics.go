package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics: счётчики журнала сделок. Регистрируются в собственном registry,
// который отдаётся на /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	TradesRecorded   *prometheus.CounterVec // source
	TradesDuplicate  *prometheus.CounterVec // source
	ProcessErrors    prometheus.Counter
	QueueDepth       prometheus.Gauge
	BackfillEnqueued *prometheus.CounterVec // symbol
	BackfillErrors   prometheus.Counter
	BackfillPasses   prometheus.Counter
	DiscoveredSymbol prometheus.Counter
	StatePersistErrs prometheus.Counter
	LedgerAppendDur  prometheus.Histogram
	UnstableSnapshot prometheus.Counter
	DownstreamRuns   *prometheus.CounterVec // result
	WSReconnects     prometheus.Counter
	SinkErrors       *prometheus.CounterVec // sink
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		TradesRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_trades_recorded_total",
			Help: "Trades appended to the ledger.",
		}, []string{"source"}),
		TradesDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_trades_duplicate_total",
			Help: "Trades discarded by the dedup watermark.",
		}, []string{"source"}),
		ProcessErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_process_errors_total",
			Help: "Trade events dropped because processing failed.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_queue_depth",
			Help: "Trade events waiting in the queue.",
		}),
		BackfillEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_backfill_enqueued_total",
			Help: "Trades enqueued by the reconciler.",
		}, []string{"symbol"}),
		BackfillErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_backfill_errors_total",
			Help: "Symbols abandoned for a reconciliation cycle after retries.",
		}),
		BackfillPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_backfill_passes_total",
			Help: "Completed reconciliation passes.",
		}),
		DiscoveredSymbol: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_discovered_symbols_total",
			Help: "Symbols added to the active set from open positions.",
		}),
		StatePersistErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_state_persist_errors_total",
			Help: "Failed writes of the dedup state file.",
		}),
		LedgerAppendDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "journal_ledger_append_seconds",
			Help:    "Latency of a ledger row append.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		UnstableSnapshot: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_unstable_snapshots_total",
			Help: "Position snapshots that never stabilized.",
		}),
		DownstreamRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_downstream_runs_total",
			Help: "Downstream command runs by result.",
		}, []string{"result"}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_ws_reconnects_total",
			Help: "User data stream reconnects.",
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_sink_errors_total",
			Help: "Failed ledger row fan-outs by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.TradesRecorded, m.TradesDuplicate, m.ProcessErrors, m.QueueDepth,
		m.BackfillEnqueued, m.BackfillErrors, m.BackfillPasses, m.DiscoveredSymbol,
		m.StatePersistErrs, m.LedgerAppendDur, m.UnstableSnapshot,
		m.DownstreamRuns, m.WSReconnects, m.SinkErrors,
	)
	return m
}
