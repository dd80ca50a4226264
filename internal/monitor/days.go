package monitor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DaySet is a set of weekdays stored as a bitmask indexed by time.Weekday.
type DaySet uint8

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// Weekdays is Monday through Friday.
var Weekdays = NewDaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday)

// EveryDay contains all seven days.
var EveryDay = NewDaySet(time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday)

func NewDaySet(days ...time.Weekday) DaySet {
	var s DaySet
	for _, d := range days {
		s = s.With(d)
	}
	return s
}

// ParseDaySet accepts short or long English day names, case-insensitively.
func ParseDaySet(names []string) (DaySet, error) {
	var s DaySet
	for _, name := range names {
		d, ok := dayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", name)
		}
		s = s.With(d)
	}
	return s, nil
}

func (s DaySet) With(d time.Weekday) DaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s | 1<<uint(d)
}

func (s DaySet) Has(d time.Weekday) bool {
	if d < time.Sunday || d > time.Saturday {
		return false
	}
	return s&(1<<uint(d)) != 0
}

func (s DaySet) IsEmpty() bool {
	return s == 0
}

// Days lists the members in Sunday-first order.
func (s DaySet) Days() []time.Weekday {
	out := make([]time.Weekday, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// Names returns the three-letter lowercase names of the members.
func (s DaySet) Names() []string {
	days := s.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strings.ToLower(d.String()[:3])
	}
	return out
}

func (s DaySet) String() string {
	return strings.Join(s.Names(), ",")
}

func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Names())
}

func (s *DaySet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("days must be a list of weekday names: %w", err)
	}
	parsed, err := ParseDaySet(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
