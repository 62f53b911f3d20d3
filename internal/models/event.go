package models

import (
	"time"

	"github.com/emersion/go-ical"
)

// CalendarEvent is one VEVENT taken from an inbound attachment.
// It wraps the decoded component so that properties the pipeline does not
// interpret (DTEND, RRULE, ORGANIZER, alarms...) are carried through untouched.
type CalendarEvent struct {
	*ical.Component
}

// NewCalendarEvent wraps an ical component. The component is not copied.
func NewCalendarEvent(comp *ical.Component) *CalendarEvent {
	return &CalendarEvent{Component: comp}
}

// UID returns the iCalendar UID, or "" if the event has none.
func (e *CalendarEvent) UID() string { return e.text(ical.PropUID) }

// Summary returns the event title.
func (e *CalendarEvent) Summary() string { return e.text(ical.PropSummary) }

// Description returns the free-text description.
func (e *CalendarEvent) Description() string { return e.text(ical.PropDescription) }

// Location returns the event location.
func (e *CalendarEvent) Location() string { return e.text(ical.PropLocation) }

// Start returns DTSTART. A missing DTSTART yields the zero time.
func (e *CalendarEvent) Start() (time.Time, error) {
	return e.Props.DateTime(ical.PropDateTimeStart, time.Local)
}

// Has reports whether the named property is present.
func (e *CalendarEvent) Has(name string) bool {
	return e.Props.Get(name) != nil
}

func (e *CalendarEvent) text(name string) string {
	v, err := e.Props.Text(name)
	if err != nil {
		// Fall back to the raw value rather than hiding the field.
		if p := e.Props.Get(name); p != nil {
			return p.Value
		}
		return ""
	}
	return v
}
