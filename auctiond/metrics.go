package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudx-io/streamauction/core"
)

var (
	mtxCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auctiond_commands_total",
			Help: "Commands handled, by request type and result (ok or error code)",
		},
		[]string{"type", "result"},
	)

	mtxCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auctiond_command_duration_seconds",
			Help:    "Time to apply and journal a command",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"type"},
	)

	mtxInstructions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auctiond_instructions_total",
			Help: "Instructions returned to the stream host, by kind",
		},
		[]string{"kind"},
	)

	mtxPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auctiond_paid_total",
			Help: "Value transferred by committed commands",
		},
	)

	mtxBidders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_bidders",
			Help: "Ranked bidders",
		},
	)

	mtxWinnerRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_winner_rate",
			Help: "Rate of the current winner, value units per second",
		},
	)

	mtxOwnerBalance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_owner_balance",
			Help: "Amount the owner can withdraw",
		},
	)

	mtxFinished = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_finished",
			Help: "1 once the auction finished",
		},
	)

	mtxJournalSeq = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_journal_seq",
			Help: "Sequence number of the last journal entry",
		},
	)

	mtxRejectedConnections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "auctiond_rejected_connections_total",
			Help: "Connections closed because every worker was busy",
		},
	)

	mtxFeedSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "auctiond_feed_subscribers",
			Help: "Open leaderboard feed connections",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxCommands, mtxCommandDuration, mtxInstructions, mtxPaid)
	prometheus.MustRegister(mtxBidders, mtxWinnerRate, mtxOwnerBalance, mtxFinished, mtxJournalSeq)
	prometheus.MustRegister(mtxRejectedConnections, mtxFeedSubscribers)
}

func recordOutcome(out *core.Outcome) {
	for _, in := range out.Instructions {
		mtxInstructions.WithLabelValues(in.Kind.String()).Inc()
	}
	if out.Paid.IsPositive() {
		mtxPaid.Add(out.Paid.InexactFloat64())
	}
}

func recordState(snap *core.Snapshot, seq uint64) {
	mtxBidders.Set(float64(len(snap.Ranking)))
	mtxWinnerRate.Set(snap.WinnerRate.InexactFloat64())
	mtxOwnerBalance.Set(snap.Totals.OwnerBalance.InexactFloat64())
	if snap.Finished {
		mtxFinished.Set(1)
	} else {
		mtxFinished.Set(0)
	}
	mtxJournalSeq.Set(float64(seq))
}
