package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/window-monitor/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordProbe", func() {
		It("should split successes and failures", func() {
			m.RecordProbe("a", true, 10*time.Millisecond, true)
			m.RecordProbe("a", false, 0, false)
			m.RecordProbe("b", true, 20*time.Millisecond, true)

			snap := m.Snapshot()
			Expect(snap.TotalProbes).To(Equal(int64(3)))
			Expect(snap.Monitors["a"].Probes).To(Equal(int64(2)))
			Expect(snap.Monitors["a"].Successes).To(Equal(int64(1)))
			Expect(snap.Monitors["a"].Failures).To(Equal(int64(1)))
			Expect(snap.Monitors["b"].Probes).To(Equal(int64(1)))
		})

		It("should only sample latencies that were measured", func() {
			m.RecordProbe("a", false, time.Hour, false)
			m.RecordProbe("a", true, 100*time.Millisecond, true)

			Expect(m.Snapshot().Monitors["a"].AvgLatency).To(Equal(100 * time.Millisecond))
		})
	})

	Describe("Percentiles", func() {
		It("should calculate latency percentiles", func() {
			for i := 1; i <= 100; i++ {
				m.RecordProbe("a", true, time.Duration(i)*time.Millisecond, true)
			}

			mm := m.Snapshot().Monitors["a"]
			Expect(mm.P50Latency).To(Equal(51 * time.Millisecond))
			Expect(mm.P95Latency).To(Equal(96 * time.Millisecond))
			Expect(mm.P99Latency).To(Equal(100 * time.Millisecond))
			Expect(mm.AvgLatency).To(Equal(50500 * time.Microsecond))
		})

		It("should keep at most 1000 samples", func() {
			for i := 0; i < 1500; i++ {
				m.RecordProbe("a", true, time.Second, true)
			}
			m.RecordProbe("a", true, time.Second, true)
			Expect(m.Snapshot().Monitors["a"].AvgLatency).To(Equal(time.Second))
		})
	})

	Describe("Scheduler counters", func() {
		It("should count skipped, outside-window, stale and fault events", func() {
			m.RecordSkippedBusy("a")
			m.RecordSkippedBusy("a")
			m.RecordOutsideWindow("a")
			m.RecordStaleDiscarded("a")
			m.RecordFault("a")

			mm := m.Snapshot().Monitors["a"]
			Expect(mm.SkippedBusy).To(Equal(int64(2)))
			Expect(mm.OutsideWindow).To(Equal(int64(1)))
			Expect(mm.StaleDiscarded).To(Equal(int64(1)))
			Expect(mm.Faults).To(Equal(int64(1)))
			Expect(mm.Probes).To(Equal(int64(0)))
		})
	})

	Describe("Snapshot", func() {
		It("should report uptime", func() {
			time.Sleep(5 * time.Millisecond)
			Expect(m.Snapshot().Uptime).To(BeNumerically(">=", 5*time.Millisecond))
		})

		It("should be empty initially", func() {
			snap := m.Snapshot()
			Expect(snap.TotalProbes).To(BeZero())
			Expect(snap.Monitors).To(BeEmpty())
		})
	})
})
