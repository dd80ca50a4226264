package monitor

import (
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Draft is the caller-supplied definition of a new monitor.
type Draft struct {
	Name            string    `json:"name"`
	URL             string    `json:"url"`
	Days            DaySet    `json:"days"`
	StartTime       ClockTime `json:"start_time"`
	EndTime         ClockTime `json:"end_time"`
	IntervalSeconds int       `json:"interval_seconds"`
	Enabled         bool      `json:"enabled"`
}

// Build turns the draft into a Monitor with the given id. Missing window
// bounds default to the whole day.
func (d Draft) Build(id string) Monitor {
	m := Monitor{
		ID:              id,
		Name:            d.Name,
		URL:             d.URL,
		Days:            d.Days,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		IntervalSeconds: d.IntervalSeconds,
		LastStatus:      StatusUnknown,
	}
	if m.StartTime == "" {
		m.StartTime = StartOfDay
	}
	if m.EndTime == "" {
		m.EndTime = EndOfDay
	}
	return m
}

// Patch carries the fields of an update; nil fields are left unchanged.
type Patch struct {
	Name            *string    `json:"name,omitempty"`
	URL             *string    `json:"url,omitempty"`
	Days            *DaySet    `json:"days,omitempty"`
	StartTime       *ClockTime `json:"start_time,omitempty"`
	EndTime         *ClockTime `json:"end_time,omitempty"`
	IntervalSeconds *int       `json:"interval_seconds,omitempty"`
}

// Apply returns m with the patch applied and whether any field that affects
// scheduling (interval, days, window bounds or url) changed.
func (p Patch) Apply(m Monitor) (Monitor, bool) {
	rescheduled := false
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.URL != nil && *p.URL != m.URL {
		m.URL = *p.URL
		rescheduled = true
	}
	if p.Days != nil && *p.Days != m.Days {
		m.Days = *p.Days
		rescheduled = true
	}
	if p.StartTime != nil && *p.StartTime != m.StartTime {
		m.StartTime = *p.StartTime
		rescheduled = true
	}
	if p.EndTime != nil && *p.EndTime != m.EndTime {
		m.EndTime = *p.EndTime
		rescheduled = true
	}
	if p.IntervalSeconds != nil && *p.IntervalSeconds != m.IntervalSeconds {
		m.IntervalSeconds = *p.IntervalSeconds
		rescheduled = true
	}
	return m, rescheduled
}

// Validate checks the configuration fields of m. Runtime fields are ignored.
func (m Monitor) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.URL,
			validation.Required,
			validation.By(validateTargetURL),
		),
		validation.Field(&m.IntervalSeconds,
			validation.Required,
			validation.Min(1),
		),
		validation.Field(&m.StartTime,
			validation.Required,
			validation.By(validateClockTime),
		),
		validation.Field(&m.EndTime,
			validation.Required,
			validation.By(validateClockTime),
			validation.By(notBefore(m.StartTime)),
		),
	)
	return NewValidationError(err)
}

func validateTargetURL(value interface{}) error {
	raw, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateClockTime(value interface{}) error {
	c, ok := value.(ClockTime)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a clock time")
	}
	if !c.Valid() {
		return validation.NewError("validation_invalid_clock_time", "must be a zero-padded HH:MM time")
	}
	return nil
}

// Windows spanning midnight are not representable, so the end must not
// precede the start.
func notBefore(start ClockTime) validation.RuleFunc {
	return func(value interface{}) error {
		end, ok := value.(ClockTime)
		if !ok {
			return validation.NewError("validation_invalid_type", "must be a clock time")
		}
		if start.Valid() && end < start {
			return validation.NewError("validation_window_order", "must not be earlier than start_time")
		}
		return nil
	}
}

// Validate checks the draft as it would be stored.
func (d Draft) Validate() error {
	return d.Build("").Validate()
}
