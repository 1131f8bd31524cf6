package perf

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashdesk/internal/dividend"
	jobmetrics "github.com/odyssey-erp/cashdesk/internal/jobs"
	"github.com/odyssey-erp/cashdesk/internal/money"
	"github.com/odyssey-erp/cashdesk/jobs"
)

type flakySink struct {
	calls  int
	failEv int
}

func (s *flakySink) Deliver(context.Context, jobs.Message) error {
	s.calls++
	if s.failEv > 0 && s.calls%s.failEv == 0 {
		return errors.New("smtp timeout")
	}
	return nil
}

func TestNotificationThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := &flakySink{failEv: 25}
	handlers := jobs.NewHandlers(sink, money.NewFormatter("id", 0, "Rp"), jobmetrics.NewMetrics(reg), nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		task, err := jobs.NewDividendRequestedTask(dividend.RequestedEvent{
			RequestID:       uuid.New(),
			BranchID:        int64(i%4 + 1),
			Subject:         "Owner withdrawal",
			Amount:          money.New(int64(1_000 + i)),
			OpexPortion:     money.New(1_000),
			DividendPortion: money.New(int64(i)),
		})
		require.NoError(t, err)
		_ = handlers.HandleDividendRequested(ctx, task)
	}

	families, err := reg.Gather()
	require.NoError(t, err)

	labels := map[string]string{"job": jobs.TaskDividendRequested}
	success := metricValue(t, families, "cashdesk_jobs_total", withStatus(labels, "success"))
	failure := metricValue(t, families, "cashdesk_jobs_total", withStatus(labels, "failure"))
	require.Equal(t, 100.0, success+failure)
	require.Equal(t, 4.0, failure)
	require.GreaterOrEqual(t, success/(success+failure), 0.9)

	mean := histogramMean(t, families, "cashdesk_job_duration_seconds", labels)
	require.Less(t, mean, 0.5, "rendering a notification must stay well under the task timeout")
}

func BenchmarkRenderDividendRequested(b *testing.B) {
	handlers := jobs.NewHandlers(jobs.LogSink{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))},
		money.NewFormatter("id", 2, "Rp"), jobmetrics.NewMetrics(prometheus.NewRegistry()), nil, nil)
	task, err := jobs.NewDividendRequestedTask(dividend.RequestedEvent{RequestID: uuid.New(), BranchID: 1, Amount: money.New(150_000_00)})
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := handlers.HandleDividendRequested(ctx, task); err != nil {
			b.Fatal(err)
		}
	}
}

func withStatus(labels map[string]string, status string) map[string]string {
	out := map[string]string{"status": status}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
