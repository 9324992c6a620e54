package types

import "time"

// NotifyJob is the queue envelope for a deferred notification run. The
// caller decides once per event whether the pipeline runs inline or is
// enqueued as a unit; the worker replays the job through the same engine.
type NotifyJob struct {
	JobID      string      `json:"job_id"`
	TraceID    string      `json:"trace_id"`
	Event      ChangeEvent `json:"event"`
	Watchers   []UserID    `json:"watchers,omitempty"` // nil: resolve from the watch-list store at run time
	Roster     []UserID    `json:"roster,omitempty"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}
