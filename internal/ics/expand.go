package ics

import (
	"log/slog"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/cicconel11/TeamNetwork-sub006/internal/calsync"
)

// Safety cap so a pathological RRULE cannot expand without bound.
const maxOccurrencesPerEvent = 5000

// expandEvents turns parsed events into concrete instances inside the
// window. Override events (RECURRENCE-ID) are never emitted directly;
// they are consulted while expanding their parent series. A per-feed
// seen-set keyed by instance key suppresses duplicate emission if the
// same occurrence is reachable by more than one expansion path.
func expandEvents(feedID string, events []event, w calsync.Window) []calsync.Instance {
	bases := make([]event, 0, len(events))
	overrides := make(map[string][]event)

	for _, ev := range events {
		if ev.RecurrenceID != nil {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		bases = append(bases, ev)
	}

	seen := make(map[string]struct{})
	var out []calsync.Instance

	for _, ev := range bases {
		if ev.RawRRule == "" {
			if !w.Contains(ev.Start) {
				continue
			}
			out = appendInstance(out, seen, feedID, ev, ev.Start, ev.End)
			continue
		}

		out = expandRecurring(out, seen, feedID, ev, overrides[ev.UID], w)
	}

	return out
}

// expandRecurring computes every occurrence start of ev's recurrence rule
// intersecting the window, applying EXDATEs and per-occurrence overrides.
func expandRecurring(out []calsync.Instance, seen map[string]struct{}, feedID string, ev event, overrides []event, w calsync.Window) []calsync.Instance {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		slog.Warn("skipping unparseable RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "error", err)
		return out
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	starts := set.Between(w.Start.In(ev.Start.Location()), w.End.In(ev.Start.Location()), true)
	if len(starts) > maxOccurrencesPerEvent {
		slog.Warn("truncating recurrence expansion", "uid", ev.UID, "cap", maxOccurrencesPerEvent)
		starts = starts[:maxOccurrencesPerEvent]
	}

	duration := ev.End.Sub(ev.Start)

	for _, start := range starts {
		// The window end is exclusive.
		if !start.Before(w.End) {
			continue
		}

		occ := ev
		end := start.Add(duration)
		if ov, ok := overrideFor(overrides, start); ok {
			// The override replaces the occurrence's fields while the
			// series identifier stays with the parent.
			occ.Summary = ov.Summary
			occ.Description = ov.Description
			occ.Location = ov.Location
			occ.Raw = ov.Raw
			start = ov.Start
			end = ov.End
		}

		out = appendInstance(out, seen, feedID, occ, start, end)
	}

	return out
}

// overrideFor finds the override whose RECURRENCE-ID matches the
// occurrence start, comparing instants.
func overrideFor(overrides []event, start time.Time) (event, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID != nil && ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}

	return event{}, false
}

func appendInstance(out []calsync.Instance, seen map[string]struct{}, feedID string, ev event, start, end time.Time) []calsync.Instance {
	key := calsync.Key(ev.UID, start)
	if _, ok := seen[key]; ok {
		return out
	}
	seen[key] = struct{}{}

	return append(out, calsync.Instance{
		FeedID:      feedID,
		ExternalID:  ev.UID,
		InstanceKey: key,
		Title:       ev.Summary,
		Description: calsync.SanitizeText(ev.Description),
		Location:    ev.Location,
		StartsAt:    start.UTC(),
		EndsAt:      end.UTC(),
		AllDay:      ev.AllDay || isAllDayByBounds(start, end),
		RawPayload:  ev.Raw,
	})
}

// isAllDayByBounds is the fallback heuristic for sources that express
// all-day events as timed values: both bounds at exactly UTC midnight.
func isAllDayByBounds(start, end time.Time) bool {
	return isUTCMidnight(start) && isUTCMidnight(end)
}

func isUTCMidnight(t time.Time) bool {
	t = t.UTC()
	h, m, s := t.Clock()

	return h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0
}
