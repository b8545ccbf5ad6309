package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ParcelsDepositedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerhub_parcels_deposited_total",
		Help: "Total number of parcels successfully deposited.",
	})

	ParcelsPickedUpTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerhub_parcels_picked_up_total",
		Help: "Total number of parcels successfully picked up.",
	})

	PinsGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerhub_pins_generated_total",
		Help: "Total number of pickup PINs generated.",
	})

	RemindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerhub_reminders_sent_total",
		Help: "Total number of pickup reminder mails sent.",
	})

	OverdueReturnsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockerhub_overdue_returns_total",
		Help: "Total number of parcels returned to sender by the overdue sweep.",
	})

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockerhub_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	CachedLockers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lockerhub_cached_lockers",
		Help: "Current number of lockers held in the availability cache.",
	})
)
