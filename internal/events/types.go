package events

// Event enumerates the engine's notification topics.
type Event string

const (
	EventSignal        Event = "signal"
	EventRejection     Event = "rejection"
	EventPositionOpen  Event = "position.open"
	EventPositionClose Event = "position.close"
	EventBreakerPause  Event = "breaker.pause"
	EventBreakerResume Event = "breaker.resume"
	EventScanReport    Event = "scan.report"
)
