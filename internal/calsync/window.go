package calsync

import "time"

const (
	// Defaults for the sync range around "now".
	DefaultLookback  = 30 * 24 * time.Hour
	DefaultLookahead = 180 * 24 * time.Hour
)

// Window is the half-open time range [Start, End) bounding which
// occurrences are materialized and which stored instances are eligible
// for deletion.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowConfig controls how far back and forward a run reaches.
type WindowConfig struct {
	Lookback  time.Duration
	Lookahead time.Duration
}

// ComputeWindow derives the bounded sync range from now. Zero config
// values fall back to the defaults. The result is normalized to UTC.
func ComputeWindow(now time.Time, cfg WindowConfig) Window {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	lookahead := cfg.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}

	now = now.UTC()
	return Window{
		Start: now.Add(-lookback),
		End:   now.Add(lookahead),
	}
}

// Contains reports whether t falls inside the window. The end bound is
// exclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
