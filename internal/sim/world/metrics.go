package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players    int `json:"players"`
	Entities   int `json:"entities"`
	Indexed    int `json:"indexed"`
	Circuits   int `json:"circuits"`
	Wires      int `json:"wires"`
	ActiveDigs int `json:"active_digs"`

	QueueDepths QueueDepths `json:"queue_depths"`

	// StepMS is the summed duration of the last logic pass.
	StepMS float64 `json:"step_ms"`

	KickedTotal   uint64 `json:"kicked_total"`
	InboxOverflow uint64 `json:"inbox_overflow_total"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
