package ics

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-ical"

	"mailcal/internal/models"
)

// ErrNoCalendar is returned when an attachment holds no VCALENDAR at all.
var ErrNoCalendar = errors.New("no VCALENDAR found in document")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse decodes an .ics attachment and returns its VEVENT components in document order.
// Timezones, alarms and other component types are skipped. On any decode failure
// Parse returns no events and the error; the caller decides how to report it.
func Parse(raw []byte) ([]*models.CalendarEvent, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrNoCalendar
	}
	doc := make([]byte, 0, len(raw)+2)
	doc = append(doc, raw...)
	doc = append(doc, '\r', '\n')

	dec := ical.NewDecoder(bytes.NewReader(doc))

	var events []*models.CalendarEvent
	calendars := 0
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Events from earlier calendars in the same attachment are dropped too:
			// a partly broken attachment counts as malformed.
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}
		calendars++
		events = collectEvents(cal.Component, events)
	}

	if calendars == 0 {
		return nil, ErrNoCalendar
	}
	return events, nil
}

func collectEvents(comp *ical.Component, events []*models.CalendarEvent) []*models.CalendarEvent {
	for _, child := range comp.Children {
		if child.Name == ical.CompEvent {
			events = append(events, models.NewCalendarEvent(child))
		}
		events = collectEvents(child, events)
	}
	return events
}
