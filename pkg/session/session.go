// Package session implements the execution core that drives a coding-agent
// process: session identity resolution, the generic-to-scoped event channel
// handoff, prompt queueing, checkpoint coordination, and the run state
// machine that ties them together.
package session

// State is the execution state of a session controller.
type State string

const (
	// StateIdle means no run is in flight.
	StateIdle State = "idle"
	// StateRunning means the agent process is executing a prompt.
	StateRunning State = "running"
	// StateCancelling means a cancel request is being delivered.
	StateCancelling State = "cancelling"
)

// Session identifies one agent conversation. The id may start empty for a
// fresh session and is confirmed exactly once, from the first init message.
type Session struct {
	ID          string
	ProjectPath string
	Resumed     bool
}
