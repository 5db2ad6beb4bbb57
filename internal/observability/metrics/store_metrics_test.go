package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyStoreReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("checkout: %w", context.DeadlineExceeded), want: StoreReasonDeadlineExceeded},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: StoreReasonNotFound},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: StoreReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: StoreReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: StoreReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: StoreReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStoreReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveGatewayCountsFailures(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStoreMetrics(registry, Config{ServiceName: "moviestore", Environment: "test"})

	m.ObserveGateway("stripe", 20*time.Millisecond, nil)
	m.ObserveGateway("stripe", time.Second, context.DeadlineExceeded)
	m.IncStockConflict(StockResourceRent)
	m.IncStockConflict(StockResourceRent)

	if got := testutil.ToFloat64(m.gatewayErrors.WithLabelValues("stripe", StoreReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected 1 gateway error, got %v", got)
	}
	if got := testutil.ToFloat64(m.stockConflicts.WithLabelValues(StockResourceRent)); got != 2 {
		t.Fatalf("expected 2 stock conflicts, got %v", got)
	}
}

func TestSetOverdueRents(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newStoreMetrics(registry, Config{ServiceName: "moviestore", Environment: "test"})

	m.SetOverdueRents(3)
	m.SetOverdueRents(1)

	if got := testutil.ToFloat64(m.overdueRents); got != 1 {
		t.Fatalf("expected gauge 1, got %v", got)
	}

	var nilMetrics *StoreMetrics
	nilMetrics.SetOverdueRents(5)
}
