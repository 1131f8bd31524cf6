package observability

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/cashdesk/internal/ledger"
	"github.com/odyssey-erp/cashdesk/internal/shared"
)

// LedgerMetrics counts write outcomes and clamped balances.
type LedgerMetrics struct {
	writes    *prometheus.CounterVec
	integrity *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashdesk",
		Name:      "ledger_writes_total",
		Help:      "Cash ledger writes by operation and outcome.",
	}, []string{"operation", "outcome"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cashdesk",
		Name:      "ledger_integrity_warnings_total",
		Help:      "Balance computations that clamped a negative available amount.",
	}, []string{"branch", "bucket"})
	reg.MustRegister(writes, integrity)
	return &LedgerMetrics{writes: writes, integrity: integrity}
}

// ObserveWrite implements shared.WriteObserver.
func (m *LedgerMetrics) ObserveWrite(operation string, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(operation, outcome(err)).Inc()
}

// IntegrityWarning implements balance.IntegrityRecorder.
func (m *LedgerMetrics) IntegrityWarning(branchID int64, bucket ledger.Bucket) {
	if m == nil {
		return
	}
	m.integrity.WithLabelValues(strconv.FormatInt(branchID, 10), string(bucket)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	kind := shared.Kind(err)
	if kind == nil {
		return "error"
	}
	return strings.ReplaceAll(kind.Error(), " ", "_")
}
