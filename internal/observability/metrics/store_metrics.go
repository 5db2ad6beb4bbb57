package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StoreReasonDeadlineExceeded     = "deadline_exceeded"
	StoreReasonDBLockTimeout        = "db_lock_timeout"
	StoreReasonSerializationFailure = "serialization_failure"
	StoreReasonUniqueViolation      = "unique_violation"
	StoreReasonNotFound             = "not_found"
	StoreReasonUnknown              = "unknown"
)

const (
	StockResourceRent = "rent"
	StockResourceSale = "sale"
)

// StoreMetrics captures transaction lifecycle health signals.
type StoreMetrics struct {
	transitions     *prometheus.CounterVec
	stockConflicts  *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayErrors   *prometheus.CounterVec
	txErrors        *prometheus.CounterVec
	overdueRents    prometheus.Gauge
}

var (
	storeMetricsOnce sync.Once
	storeMetrics     *StoreMetrics
)

// Store returns the singleton store metrics registry.
func Store() *StoreMetrics {
	return StoreWithConfig(Config{})
}

// StoreWithConfig returns the singleton store metrics registry using config labels.
func StoreWithConfig(cfg Config) *StoreMetrics {
	storeMetricsOnce.Do(func() {
		storeMetrics = newStoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return storeMetrics
}

// ResetStoreMetricsForTest resets the store metrics singleton for tests.
func ResetStoreMetricsForTest() {
	storeMetricsOnce = sync.Once{}
	storeMetrics = nil
}

func newStoreMetrics(registerer prometheus.Registerer, cfg Config) *StoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "moviestore_rent_transition_total",
		Help:        "Rent state machine transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	stockConflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "moviestore_stock_conflicts_total",
		Help:        "Stock reservations that lost the compare-and-swap.",
		ConstLabels: constLabels,
	}, []string{"resource"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "moviestore_payment_gateway_duration_seconds",
		Help:        "Latency of outbound checkout session requests.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"provider"})
	gatewayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "moviestore_payment_gateway_errors_total",
		Help:        "Checkout session failures by provider and reason.",
		ConstLabels: constLabels,
	}, []string{"provider", "reason"})
	txErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "moviestore_store_tx_errors_total",
		Help:        "Transaction failures by operation and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})

	overdueRents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "moviestore_rents_overdue",
		Help:        "Unreturned rents past their due date at the last scheduler run.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(transitions, stockConflicts, gatewayDuration, gatewayErrors, txErrors, overdueRents)

	return &StoreMetrics{
		transitions:     transitions,
		stockConflicts:  stockConflicts,
		gatewayDuration: gatewayDuration,
		gatewayErrors:   gatewayErrors,
		txErrors:        txErrors,
		overdueRents:    overdueRents,
	}
}

func (m *StoreMetrics) IncRentTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *StoreMetrics) IncStockConflict(resource string) {
	if m == nil {
		return
	}
	m.stockConflicts.WithLabelValues(resource).Inc()
}

// ObserveGateway records checkout latency and classifies failures.
func (m *StoreMetrics) ObserveGateway(provider string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if err != nil {
		m.gatewayErrors.WithLabelValues(provider, ClassifyStoreReason(err)).Inc()
	}
}

func (m *StoreMetrics) SetOverdueRents(n int) {
	if m == nil {
		return
	}
	m.overdueRents.Set(float64(n))
}

func (m *StoreMetrics) IncTxError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.txErrors.WithLabelValues(operation, ClassifyStoreReason(err)).Inc()
}

// ClassifyStoreReason maps storage and gateway errors to low-cardinality reasons.
func ClassifyStoreReason(err error) string {
	if err == nil {
		return StoreReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return StoreReasonDeadlineExceeded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return StoreReasonNotFound
	}
	if hasPGCode(err, "55P03") {
		return StoreReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return StoreReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return StoreReasonUniqueViolation
	}
	return StoreReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
