package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// event is the normalized representation of a single VEVENT. Recurrence
// expansion operates on this type.
type event struct {
	UID         string
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// RawRRule is kept unexpanded; expansion happens in expand.go.
	RawRRule string
	ExDates  []time.Time

	// RecurrenceID marks this event as an override for a single
	// occurrence of the series identified by UID.
	RecurrenceID *time.Time

	Raw string
}

// parseCalendar parses an ICS payload into normalized events. Individual
// malformed VEVENTs are skipped; a payload that cannot be parsed at all
// is an error.
func parseCalendar(body []byte) ([]event, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	events := make([]event, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func parseVEvent(ve *ical.VEvent) (event, error) {
	var out event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("event %s: missing start: %w", out.UID, err)
	}
	out.Start = start

	end, err := ve.GetEndAt()
	if err != nil {
		// DTEND is optional; a missing end means zero duration, or a
		// full day for date-only starts.
		end = start
	}
	out.End = end

	out.AllDay = isDateOnly(ve.GetProperty(ical.ComponentPropertyDtStart))
	if out.AllDay && !out.End.After(out.Start) {
		out.End = out.Start.Add(24 * time.Hour)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value); err == nil {
			out.RecurrenceID = &t
		}
	}

	out.Raw = ve.Serialize(&ical.SerializationConfiguration{
		MaxLength:         75,
		PropertyMaxLength: 75,
		NewLine:           string(ical.NewLine),
	})

	return out, nil
}

// isDateOnly reports whether a DTSTART property carries a date-only
// value, either via VALUE=DATE or by lacking a time component.
func isDateOnly(p *ical.IANAProperty) bool {
	if p == nil {
		return false
	}
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}

	return !strings.Contains(p.Value, "T")
}

// parseICSTime parses the basic ICS date and date-time forms used by
// EXDATE and RECURRENCE-ID values.
func parseICSTime(v string) (time.Time, error) {
	switch {
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	default:
		return time.ParseInLocation("20060102", v, time.UTC)
	}
}
