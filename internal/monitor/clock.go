package monitor

import (
	"regexp"
	"time"
)

// ClockTime is a zero-padded 24h HH:MM local time of day. Because values are
// zero-padded, string comparison orders them chronologically.
type ClockTime string

const (
	StartOfDay ClockTime = "00:00"
	EndOfDay   ClockTime = "23:59"
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ClockTimeOf truncates t to its HH:MM time of day in t's location.
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Format("15:04"))
}

func (c ClockTime) Valid() bool {
	return clockPattern.MatchString(string(c))
}

func (c ClockTime) String() string {
	return string(c)
}
