package scheduler_test

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/window-monitor/internal/logstore"
	"github.com/angeloszaimis/window-monitor/internal/metrics"
	"github.com/angeloszaimis/window-monitor/internal/monitor"
	"github.com/angeloszaimis/window-monitor/internal/registry"
	"github.com/angeloszaimis/window-monitor/internal/schedule"
	"github.com/angeloszaimis/window-monitor/internal/scheduler"
	"github.com/angeloszaimis/window-monitor/internal/status"
)

// 2024-01-01 is a Monday.
var monday10 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

var _ = Describe("Scheduler", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		clock  clockwork.FakeClock
		reg    *registry.Registry
		logs   *logstore.Store
		agg    *status.Aggregator
		exec   *fakeExecutor
		events chan metrics.Event
		sched  *scheduler.Scheduler
	)

	newScheduler := func(lookup scheduler.Lookup) *scheduler.Scheduler {
		return scheduler.New(ctx, scheduler.Deps{
			Monitors:  lookup,
			Executor:  exec,
			Logs:      logs,
			Statuses:  agg,
			Evaluator: schedule.NewEvaluator(time.UTC),
			Clock:     clock,
			Events:    events,
		})
	}

	add := func(name string, interval int) monitor.Monitor {
		m, err := reg.Add(monitor.Draft{
			Name:            name,
			URL:             "http://" + name + ".test/health",
			Days:            monitor.NewDaySet(time.Monday),
			StartTime:       "09:00",
			EndTime:         "17:00",
			IntervalSeconds: interval,
		})
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	countOf := func(id string) func() int {
		return func() int { return logs.Len(id) }
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		clock = clockwork.NewFakeClockAt(monday10)
		reg = registry.New()
		logs = logstore.New(10)
		agg = status.NewAggregator()
		exec = newFakeExecutor(clock)
		events = make(chan metrics.Event, 100)
		sched = newScheduler(reg)
	})

	AfterEach(func() {
		exec.releaseAll()
		sched.Shutdown()
		cancel()
	})

	Describe("Start", func() {
		It("should probe immediately and then once per interval", func() {
			m := add("api", 60)
			Expect(sched.Start(m.ID)).To(Succeed())
			Expect(sched.IsRunning(m.ID)).To(BeTrue())

			Eventually(countOf(m.ID)).Should(Equal(1))
			clock.BlockUntil(1)

			clock.Advance(59 * time.Second)
			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(1))

			clock.Advance(time.Second)
			Eventually(countOf(m.ID)).Should(Equal(2))
			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(2))

			Expect(agg.GetStatus(m.ID)).To(Equal(monitor.StatusSuccess))
		})

		It("should be a no-op when already running", func() {
			m := add("api", 60)
			Expect(sched.Start(m.ID)).To(Succeed())
			Expect(sched.Start(m.ID)).To(Succeed())

			Eventually(countOf(m.ID)).Should(Equal(1))
			Consistently(func() int { return exec.Calls(m.ID) }, 100*time.Millisecond).Should(Equal(1))
			Expect(sched.Running()).To(ConsistOf(m.ID))
		})

		It("should fail for unknown monitors", func() {
			err := sched.Start("missing")
			Expect(monitor.IsNotFound(err)).To(BeTrue())
			Expect(sched.IsRunning("missing")).To(BeFalse())
		})

		It("should record results newest first in tick order", func() {
			m := add("api", 10)
			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(countOf(m.ID)).Should(Equal(1))
			clock.BlockUntil(1)

			for i := 2; i <= 4; i++ {
				clock.Advance(10 * time.Second)
				Eventually(countOf(m.ID)).Should(Equal(i))
			}

			recent := logs.Recent(m.ID, 0)
			for i := 1; i < len(recent); i++ {
				Expect(recent[i-1].Timestamp).To(BeTemporally(">=", recent[i].Timestamp))
			}
		})
	})

	Describe("Window gate", func() {
		It("should skip ticks outside the window without recording anything", func() {
			clock = clockwork.NewFakeClockAt(monday10.AddDate(0, 0, 5)) // Saturday 10:00
			exec = newFakeExecutor(clock)
			sched = newScheduler(reg)

			m := add("api", 30)
			Expect(sched.Start(m.ID)).To(Succeed())
			clock.BlockUntil(1)

			for i := 0; i < 3; i++ {
				clock.Advance(30 * time.Second)
			}

			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(0))
			Expect(exec.Calls(m.ID)).To(Equal(0))
			Expect(agg.GetStatus(m.ID)).To(Equal(monitor.StatusUnknown))
			Eventually(events).Should(Receive(HaveField("Type", metrics.EventOutsideWindow)))
		})

		It("should start probing once the window opens", func() {
			clock = clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 8, 59, 30, 0, time.UTC))
			exec = newFakeExecutor(clock)
			sched = newScheduler(reg)

			m := add("api", 30)
			Expect(sched.Start(m.ID)).To(Succeed())
			clock.BlockUntil(1)
			Consistently(countOf(m.ID), 50*time.Millisecond).Should(Equal(0))

			clock.Advance(30 * time.Second)
			Eventually(countOf(m.ID)).Should(Equal(1))
		})
	})

	Describe("Overlap", func() {
		It("should skip ticks while a probe is in flight", func() {
			m := add("slow", 30)
			exec.block(m.URL)

			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(1))
			clock.BlockUntil(1)

			clock.Advance(30 * time.Second)
			Eventually(events).Should(Receive(HaveField("Type", metrics.EventTickSkipped)))
			clock.Advance(30 * time.Second)
			Consistently(func() int { return exec.Calls(m.ID) }, 100*time.Millisecond).Should(Equal(1))

			exec.release(m.URL)
			Eventually(countOf(m.ID)).Should(Equal(1))

			clock.Advance(30 * time.Second)
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(2))
			Eventually(countOf(m.ID)).Should(Equal(2))
		})

		It("should not let a slow monitor delay another", func() {
			slow := add("slow", 30)
			fast := add("fast", 30)
			exec.block(slow.URL)

			Expect(sched.Start(slow.ID)).To(Succeed())
			Expect(sched.Start(fast.ID)).To(Succeed())
			Eventually(countOf(fast.ID)).Should(Equal(1))
			clock.BlockUntil(2)

			clock.Advance(30 * time.Second)
			Eventually(countOf(fast.ID)).Should(Equal(2))
			clock.Advance(30 * time.Second)
			Eventually(countOf(fast.ID)).Should(Equal(3))

			Expect(logs.Len(slow.ID)).To(Equal(0))
		})
	})

	Describe("Stop", func() {
		It("should be idempotent", func() {
			m := add("api", 30)
			Expect(sched.Stop(m.ID)).To(Succeed())
			Expect(sched.Start(m.ID)).To(Succeed())
			Expect(sched.Stop(m.ID)).To(Succeed())
			Expect(sched.Stop(m.ID)).To(Succeed())
			Expect(sched.IsRunning(m.ID)).To(BeFalse())
		})

		It("should cancel the timer", func() {
			m := add("api", 30)
			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(countOf(m.ID)).Should(Equal(1))
			Expect(sched.Stop(m.ID)).To(Succeed())

			clock.Advance(5 * time.Minute)
			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(1))
		})

		It("should discard the result of a probe in flight", func() {
			m := add("slow", 30)
			exec.block(m.URL)

			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(1))

			Expect(sched.Stop(m.ID)).To(Succeed())
			exec.release(m.URL)

			Eventually(events).Should(Receive(HaveField("Type", metrics.EventStaleDiscarded)))
			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(0))
			Expect(agg.GetStatus(m.ID)).To(Equal(monitor.StatusUnknown))
		})

		It("should discard a stale result even after a restart", func() {
			m := add("slow", 30)
			exec.block(m.URL)

			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(1))
			Expect(sched.Stop(m.ID)).To(Succeed())

			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(2))

			exec.release(m.URL)
			Eventually(countOf(m.ID)).Should(Equal(1))
			Consistently(countOf(m.ID), 100*time.Millisecond).Should(Equal(1))
		})
	})

	Describe("Forget", func() {
		It("should drop the generation counters of forgotten monitors", func() {
			for i := 0; i < 5; i++ {
				m := add("api", 30)
				Expect(sched.Start(m.ID)).To(Succeed())
				Expect(sched.Stop(m.ID)).To(Succeed())
				Expect(sched.Forget(m.ID)).To(Succeed())
			}
			Expect(sched.TrackedGenerations()).To(BeZero())
		})

		It("should stop a running monitor", func() {
			m := add("api", 30)
			Expect(sched.Start(m.ID)).To(Succeed())

			Expect(sched.Forget(m.ID)).To(Succeed())
			Expect(sched.IsRunning(m.ID)).To(BeFalse())
			Expect(sched.TrackedGenerations()).To(BeZero())
		})

		It("should discard a result that arrives after the monitor was forgotten", func() {
			m := add("slow", 30)
			exec.block(m.URL)

			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(func() int { return exec.Calls(m.ID) }).Should(Equal(1))
			Expect(sched.Forget(m.ID)).To(Succeed())

			exec.release(m.URL)
			Eventually(events).Should(Receive(HaveField("Type", metrics.EventStaleDiscarded)))
			Expect(logs.Len(m.ID)).To(BeZero())
		})
	})

	Describe("Reconfigure", func() {
		It("should apply a new interval immediately", func() {
			m := add("api", 60)
			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(countOf(m.ID)).Should(Equal(1))
			clock.BlockUntil(1)

			interval := 10
			_, _, err := reg.Update(m.ID, monitor.Patch{IntervalSeconds: &interval})
			Expect(err).NotTo(HaveOccurred())
			Expect(sched.Reconfigure(m.ID)).To(Succeed())

			Eventually(countOf(m.ID)).Should(Equal(2))
			clock.BlockUntil(1)

			clock.Advance(10 * time.Second)
			Eventually(countOf(m.ID)).Should(Equal(3))
		})

		It("should read the current configuration on every tick", func() {
			m := add("api", 30)
			Expect(sched.Start(m.ID)).To(Succeed())
			Eventually(countOf(m.ID)).Should(Equal(1))
			clock.BlockUntil(1)

			newURL := "http://moved.test/health"
			_, _, err := reg.Update(m.ID, monitor.Patch{URL: &newURL})
			Expect(err).NotTo(HaveOccurred())

			clock.Advance(30 * time.Second)
			Eventually(func() string {
				recent := logs.Recent(m.ID, 1)
				if len(recent) == 0 {
					return ""
				}
				return recent[0].URLSnapshot
			}).Should(Equal(newURL))
		})
	})

	Describe("Faults", func() {
		It("should stop only the affected monitor", func() {
			broken := add("broken", 30)
			healthy := add("healthy", 30)
			lookup := newMemoryLookup(broken, healthy)
			sched = newScheduler(lookup)

			Expect(sched.Start(broken.ID)).To(Succeed())
			Expect(sched.Start(healthy.ID)).To(Succeed())
			Eventually(countOf(broken.ID)).Should(Equal(1))
			Eventually(countOf(healthy.ID)).Should(Equal(1))
			clock.BlockUntil(2)

			lookup.delete(broken.ID)
			clock.Advance(30 * time.Second)

			Eventually(func() bool { return sched.IsRunning(broken.ID) }).Should(BeFalse())
			Eventually(events).Should(Receive(HaveField("Type", metrics.EventSchedulerFault)))
			Eventually(countOf(healthy.ID)).Should(Equal(2))
			Expect(sched.IsRunning(healthy.ID)).To(BeTrue())
		})
	})

	Describe("Shutdown", func() {
		It("should stop everything and refuse new starts", func() {
			a := add("a", 30)
			b := add("b", 30)
			Expect(sched.Start(a.ID)).To(Succeed())
			Expect(sched.Start(b.ID)).To(Succeed())

			sched.Shutdown()
			Expect(sched.Running()).To(BeEmpty())
			Expect(errors.Is(sched.Start(a.ID), scheduler.ErrClosed)).To(BeTrue())
			Expect(errors.Is(sched.Reconfigure(a.ID), scheduler.ErrClosed)).To(BeTrue())
		})
	})
})

var _ = Describe("Fault", func() {
	It("should unwrap to its cause", func() {
		cause := errors.New("boom")
		f := &scheduler.Fault{MonitorID: "a", Err: cause}
		Expect(errors.Is(f, cause)).To(BeTrue())
		Expect(f.Error()).To(ContainSubstring(`"a"`))
	})
})
