package ics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"mailcal/internal/models"
	"mailcal/internal/sanitize"
)

// ProductID identifies this program in every envelope it writes.
const ProductID = "-//mailcal//Email to Calendar//EN"

// Prepare applies the in-place changes an event needs before it can be written:
// free-text fields are sanitized against the given ceilings and a UID and DTSTAMP
// are assigned when missing. Absent fields are left absent.
func Prepare(event *models.CalendarEvent, limits sanitize.Limits) {
	sanitizeProp(event, ical.PropSummary, limits.Summary)
	sanitizeProp(event, ical.PropDescription, limits.Description)
	sanitizeProp(event, ical.PropLocation, limits.Location)

	if event.UID() == "" {
		event.Props.SetText(ical.PropUID, GenerateUID())
	}
	if !event.Has(ical.PropDateTimeStamp) {
		event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	}
}

func sanitizeProp(event *models.CalendarEvent, name string, limit int) {
	prop := event.Props.Get(name)
	if prop == nil {
		return
	}
	text, err := prop.Text()
	if err != nil {
		text = prop.Value
	}
	prop.SetText(sanitize.Field(text, limit))
}

// Envelope wraps a single event in a complete VCALENDAR. The destination
// refuses bare VEVENT bodies.
func Envelope(event *models.CalendarEvent) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, ProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Children = append(cal.Children, event.Component)
	return cal
}

// Serialize encodes the envelope for event and runs the result through
// sanitize.Document.
func Serialize(event *models.CalendarEvent) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(Envelope(event)); err != nil {
		return nil, fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	return []byte(sanitize.Document(buf.String())), nil
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
