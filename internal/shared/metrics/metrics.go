package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	usageRecordedTotal   atomic.Uint64
	quotaRejectedTotal   atomic.Uint64
	blockedRejectedTotal atomic.Uint64
	paymentApprovedTotal atomic.Uint64
	paymentRejectedTotal atomic.Uint64

	usageDuration = newHistogram([]float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000})
)

// IncUsageRecorded increments the recorded-usage counter.
func IncUsageRecorded() {
	usageRecordedTotal.Add(1)
}

// IncQuotaRejected increments the quota-rejection counter.
func IncQuotaRejected() {
	quotaRejectedTotal.Add(1)
}

// IncBlockedRejected increments the blocked-caller rejection counter.
func IncBlockedRejected() {
	blockedRejectedTotal.Add(1)
}

// IncPaymentApproved increments the approved-payment counter.
func IncPaymentApproved() {
	paymentApprovedTotal.Add(1)
}

// IncPaymentRejected increments the rejected-payment counter.
func IncPaymentRejected() {
	paymentRejectedTotal.Add(1)
}

// ObserveUsageDurationMs records one usage-accounting round trip in
// milliseconds.
func ObserveUsageDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	usageDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "usage_recorded_total", "Total usage events recorded", usageRecordedTotal.Load())
	writeCounter(&buf, "quota_rejected_total", "Total usage attempts rejected for exhausted quota", quotaRejectedTotal.Load())
	writeCounter(&buf, "blocked_rejected_total", "Total usage attempts rejected from blocked users or IPs", blockedRejectedTotal.Load())
	writeCounter(&buf, "payment_approved_total", "Total payments approved", paymentApprovedTotal.Load())
	writeCounter(&buf, "payment_rejected_total", "Total payments rejected", paymentRejectedTotal.Load())
	writeHistogram(&buf, "usage_duration_ms", "Usage accounting duration in milliseconds", usageDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
