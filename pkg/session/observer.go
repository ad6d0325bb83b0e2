package session

// Event kinds reported through the observer side channel. The controller
// emits these; reporting concerns (metrics, analytics) live entirely in
// observer implementations.
const (
	EventStateChanged     = "state_changed"
	EventRunStarted       = "run_started"
	EventRunCompleted     = "run_completed"
	EventRunFailed        = "run_failed"
	EventRunCancelled     = "run_cancelled"
	EventPromptQueued     = "prompt_queued"
	EventSessionConfirmed = "session_confirmed"
	EventParseError       = "parse_error"
	EventProtocolAnomaly  = "protocol_anomaly"
	EventMessageAppended  = "message_appended"
	EventProcessStats     = "process_stats"
)

// Observer receives controller events on a side channel. Implementations
// must be fast and must not call back into the controller.
type Observer interface {
	OnEvent(kind string, payload interface{})
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) OnEvent(string, interface{}) {}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(kind string, payload interface{})

func (f ObserverFunc) OnEvent(kind string, payload interface{}) { f(kind, payload) }

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnEvent(kind string, payload interface{}) {
	for _, o := range m {
		if o != nil {
			o.OnEvent(kind, payload)
		}
	}
}
