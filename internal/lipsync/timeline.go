package lipsync

import "time"

// VisemeEvent marks the start of a viseme in a recorded timeline. VisemeID is
// the Oculus viseme ID, which equals the Viseme ordinal.
type VisemeEvent struct {
	VisemeID int     `json:"visemeId"`
	Viseme   string  `json:"viseme"`
	Time     float64 `json:"time"`   // milliseconds from start
	Weight   float64 `json:"weight"` // 0-1
}

// Timeline is a recorded lip-sync track suitable for offline playback.
type Timeline struct {
	Events   []VisemeEvent `json:"events"`
	Duration float64       `json:"duration"` // milliseconds
}

// TimelineRecorder collapses per-frame snapshots into change events.
type TimelineRecorder struct {
	events []VisemeEvent
	last   Viseme
}

// NewTimelineRecorder starts a timeline in silence at t=0.
func NewTimelineRecorder() *TimelineRecorder {
	return &TimelineRecorder{
		events: []VisemeEvent{{VisemeID: int(VisemeSil), Viseme: VisemeSil.String(), Time: 0, Weight: 1.0}},
		last:   VisemeSil,
	}
}

// Record notes the snapshot taken at offset at. Only viseme changes produce
// events.
func (r *TimelineRecorder) Record(at time.Duration, s Snapshot) {
	if s.Viseme == r.last {
		return
	}
	weight := s.Volume
	if s.Viseme == VisemeSil {
		weight = 1.0
	}
	if weight > 1 {
		weight = 1
	}
	r.events = append(r.events, VisemeEvent{
		VisemeID: int(s.Viseme),
		Viseme:   s.Viseme.String(),
		Time:     float64(at.Microseconds()) / 1000,
		Weight:   weight,
	})
	r.last = s.Viseme
}

// Finish closes the timeline at end, returning to silence if needed.
func (r *TimelineRecorder) Finish(end time.Duration) *Timeline {
	endMs := float64(end.Microseconds()) / 1000
	events := make([]VisemeEvent, len(r.events), len(r.events)+1)
	copy(events, r.events)
	if r.last != VisemeSil {
		events = append(events, VisemeEvent{
			VisemeID: int(VisemeSil),
			Viseme:   VisemeSil.String(),
			Time:     endMs,
			Weight:   1.0,
		})
	}
	return &Timeline{Events: events, Duration: endMs}
}
