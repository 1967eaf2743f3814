package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rentacar"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_outcome_total",
			Help:      "Count of booking and edit attempts by conflict outcome.",
		},
		[]string{"operation", "outcome"},
	)

	quotes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of computed price quotes.",
		},
	)

	accessDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_denied_total",
			Help:      "Count of staff actions rejected by the access policy.",
		},
		[]string{"action"},
	)

	discountLookupFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_lookup_failures_total",
			Help:      "Count of discount window reads that failed and were priced without discount.",
		},
	)

	missingPriceTiers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_price_tier_total",
			Help:      "Count of rental days priced at zero because the vehicle lacks a tier.",
		},
		[]string{"season", "bracket"},
	)

	lockWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vehicle_lock_wait_seconds",
			Help:      "Time spent acquiring the per-vehicle write lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"backend"},
	)

	lockFailover = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_failover_total",
			Help:      "Count of switches from the redis locker to the local fallback.",
		},
	)
)

var priceGaps = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "vehicle_price_gaps",
		Help:      "Number of (season, bracket) pairs a vehicle has no rate for.",
	},
	[]string{"vehicle_id"},
)

var reminders = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handover_reminders_total",
		Help:      "Count of pickup and return reminders by result.",
	},
	[]string{"kind", "status"},
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingOutcome,
			quotes,
			accessDenied,
			discountLookupFailures,
			missingPriceTiers,
			lockWait,
			lockFailover,
			reminders,
			priceGaps,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingOutcome(operation, outcome string) {
	bookingOutcome.WithLabelValues(operation, outcome).Inc()
}

func IncQuote() {
	quotes.Inc()
}

// Quotes exposes the quote counter so callers can read it back.
func Quotes() prometheus.Counter {
	return quotes
}

func IncAccessDenied(action string) {
	accessDenied.WithLabelValues(action).Inc()
}

func IncDiscountLookupFailure() {
	discountLookupFailures.Inc()
}

func IncMissingPriceTier(season, bracket string) {
	missingPriceTiers.WithLabelValues(season, bracket).Inc()
}

func ObserveLockWait(backend string, d time.Duration) {
	lockWait.WithLabelValues(backend).Observe(d.Seconds())
}

func IncLockFailover() {
	lockFailover.Inc()
}

func IncReminder(kind, status string) {
	reminders.WithLabelValues(kind, status).Inc()
}

func SetPriceGaps(vehicleID int64, n int) {
	priceGaps.WithLabelValues(strconv.FormatInt(vehicleID, 10)).Set(float64(n))
}
