package matching

import "time"

// LaneNote is an upcoming or in-progress note as shown on a display lane.
type LaneNote struct {
	Index    int           `json:"index"`
	Time     time.Duration `json:"time_ns"`
	Action   string        `json:"action"`
	Sustain  time.Duration `json:"sustain_ns,omitempty"`
	Active   bool          `json:"active,omitempty"`
	Progress float64       `json:"progress,omitempty"`
}

// LaneView lists the open notes of one track inside the lookahead.
type LaneView struct {
	Track string     `json:"track"`
	Notes []LaneNote `json:"notes"`
}

// Lanes returns, per track, the unresolved notes scheduled up to
// now+lookahead, including a sustained note in progress.
func (e *Engine) Lanes(now, lookahead time.Duration) []LaneView {
	out := make([]LaneView, 0, len(e.lanes))
	horizon := now + lookahead
	for _, l := range e.lanes {
		v := LaneView{Track: l.id, Notes: []LaneNote{}}
		for i := l.cursor; i < len(l.notes); i++ {
			ns := l.notes[i]
			if ns.note.Time > horizon {
				break
			}
			if ns.resolved {
				continue
			}
			ln := LaneNote{
				Index:   ns.note.Index,
				Time:    ns.note.Time,
				Action:  ns.note.Action,
				Sustain: ns.note.Duration,
				Active:  ns.active,
			}
			if ns.active {
				ln.Progress = coverage(&ns)
			}
			v.Notes = append(v.Notes, ln)
		}
		out = append(out, v)
	}
	return out
}
