// Package status derives each monitor's current status from its most recent
// probe result and fans status changes out to subscribers.
//
// Subscribers receive an Event only when a monitor's status value changes.
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// event rather than delaying the scheduler.
//
//	events, cancel := aggregator.Subscribe(16)
//	defer cancel()
//	for ev := range events {
//		fmt.Println(ev.MonitorID, ev.Previous, "->", ev.Current)
//	}
package status
