// Package bus provides the event channel layer between the agent process
// and the session controller. Channels are addressed by name; a producer
// publishes each event to exactly one channel, scoped by session id once
// the id is known.
package bus

// Channel names shared with the agent host process. Names are
// case-sensitive; scoped variants append ":<sessionID>".
const (
	ChannelOutput   = "agent-output"
	ChannelError    = "agent-error"
	ChannelComplete = "agent-complete"
)

// Scoped returns the session-scoped variant of a generic channel name.
func Scoped(channel, sessionID string) string {
	return channel + ":" + sessionID
}

// Handler consumes one event payload. Handlers are invoked synchronously
// in publish order; a handler must not block indefinitely.
type Handler func(payload []byte)

// Subscription is the owned handle for one active channel subscription.
type Subscription interface {
	// Channel returns the subscribed channel name.
	Channel() string
	// Close releases the subscription. Closing twice is a no-op.
	Close()
}

// Bus delivers published events to subscribers of the exact channel name.
type Bus interface {
	Subscribe(channel string, h Handler) (Subscription, error)
	Publish(channel string, payload []byte)
}
