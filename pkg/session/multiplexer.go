package session

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/agentdeck/agentdeck/pkg/bus"
	"github.com/agentdeck/agentdeck/pkg/log"
)

// ChannelHandlers receives the events of one run. Complete is given the
// decoded success flag; Output and Error receive the raw payload.
type ChannelHandlers struct {
	Output   func(payload []byte)
	Error    func(payload []byte)
	Complete func(success bool)
}

// SubscriptionSet owns the active subscriptions of one run. Raw
// subscription handles never leave this type.
type SubscriptionSet struct {
	scope string // empty while on generic channels
	subs  []bus.Subscription
}

func (s *SubscriptionSet) release() {
	for _, sub := range s.subs {
		sub.Close()
	}
	s.subs = nil
}

// Multiplexer manages a run's event subscriptions through the
// generic-to-scoped handoff. A run starts on the three generic channels;
// once the session id is confirmed, Upgrade attaches the scoped channels
// first and only then releases the generic set, so no delivery gap opens.
//
// Not safe for concurrent use; the controller serializes access.
type Multiplexer struct {
	bus      bus.Bus
	handlers ChannelHandlers
	active   *SubscriptionSet
}

// NewMultiplexer creates a multiplexer delivering to the given handlers.
func NewMultiplexer(b bus.Bus, handlers ChannelHandlers) *Multiplexer {
	return &Multiplexer{bus: b, handlers: handlers}
}

// OpenGeneric subscribes to the three generic channels. Subscription
// failure is fatal to the run and is returned to the caller.
func (m *Multiplexer) OpenGeneric() error {
	if m.active != nil {
		return errors.New("subscriptions already open")
	}
	set, err := m.subscribeSet("")
	if err != nil {
		return err
	}
	m.active = set
	return nil
}

// Upgrade replaces the active set with subscriptions scoped to sessionID.
// The scoped set is attached before the old set is released. Upgrading to
// the already-active scope is a no-op.
func (m *Multiplexer) Upgrade(sessionID string) error {
	if sessionID == "" {
		return errors.New("upgrade requires a session id")
	}
	if m.active == nil {
		return errors.New("no active subscriptions")
	}
	if m.active.scope == sessionID {
		log.Debug("duplicate channel upgrade ignored", "session", sessionID)
		return nil
	}
	scoped, err := m.subscribeSet(sessionID)
	if err != nil {
		return err
	}
	old := m.active
	m.active = scoped
	old.release()
	return nil
}

// Close releases whatever set is active. Safe to call repeatedly.
func (m *Multiplexer) Close() {
	if m == nil || m.active == nil {
		return
	}
	m.active.release()
	m.active = nil
}

// Scope returns the session id of the active set, empty while generic or
// closed.
func (m *Multiplexer) Scope() string {
	if m.active == nil {
		return ""
	}
	return m.active.scope
}

func (m *Multiplexer) subscribeSet(scope string) (*SubscriptionSet, error) {
	name := func(channel string) string {
		if scope == "" {
			return channel
		}
		return bus.Scoped(channel, scope)
	}

	set := &SubscriptionSet{scope: scope}
	specs := []struct {
		channel string
		handler bus.Handler
	}{
		{name(bus.ChannelOutput), func(p []byte) {
			if m.handlers.Output != nil {
				m.handlers.Output(p)
			}
		}},
		{name(bus.ChannelError), func(p []byte) {
			if m.handlers.Error != nil {
				m.handlers.Error(p)
			}
		}},
		{name(bus.ChannelComplete), func(p []byte) {
			if m.handlers.Complete != nil {
				m.handlers.Complete(decodeSuccess(p))
			}
		}},
	}
	for _, spec := range specs {
		sub, err := m.bus.Subscribe(spec.channel, spec.handler)
		if err != nil {
			set.release()
			return nil, fmt.Errorf("subscribe %s: %w", spec.channel, err)
		}
		set.subs = append(set.subs, sub)
	}
	return set, nil
}

func decodeSuccess(payload []byte) bool {
	return string(bytes.TrimSpace(payload)) == "true"
}
