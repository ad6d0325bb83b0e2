package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/pkg/log"
)

// wsEnvelope is the wire format used by a remote agent host: one channel
// name plus the raw event payload.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// WebSocketSource bridges events from a remote agent host onto a local
// Bus. It reconnects with exponential backoff and republishes each
// envelope to the channel it names, preserving per-connection order.
type WebSocketSource struct {
	url           string
	target        Bus
	mu            sync.Mutex
	started       bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	lastError     string
	lastMessageAt time.Time
	connected     bool
}

// WebSocketSourceConfig holds configuration for a WebSocketSource.
type WebSocketSourceConfig struct {
	URL    string
	Target Bus
}

// NewWebSocketSource creates a source that forwards remote events to the
// target bus.
func NewWebSocketSource(cfg WebSocketSourceConfig) *WebSocketSource {
	return &WebSocketSource{url: cfg.URL, target: cfg.Target}
}

// Start begins the connect/read loop. It returns immediately; events are
// republished from a background goroutine until Stop or ctx cancellation.
func (s *WebSocketSource) Start(ctx context.Context) error {
	if s.url == "" {
		return fmt.Errorf("websocket url is required")
	}
	if s.target == nil {
		return fmt.Errorf("target bus is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("websocket source already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop tears down the connection and waits for the read loop to exit.
func (s *WebSocketSource) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// Status reports connection state for diagnostics surfaces.
func (s *WebSocketSource) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := map[string]interface{}{
		"running":   s.started,
		"url":       s.url,
		"connected": s.connected,
	}
	if s.lastError != "" {
		status["last_error"] = s.lastError
	}
	if !s.lastMessageAt.IsZero() {
		status["last_message_at"] = s.lastMessageAt.UTC().Format(time.RFC3339Nano)
	}
	return status
}

func (s *WebSocketSource) run(ctx context.Context) {
	defer s.wg.Done()

	backoff := 500 * time.Millisecond
	maxBackoff := 5 * time.Second

	for ctx.Err() == nil {
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.setConnectionState(false, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
			}
			continue
		}

		backoff = 500 * time.Millisecond
		s.setConnectionState(true, nil)
		readErr := s.readLoop(ctx, conn)
		_ = conn.Close()
		if readErr != nil {
			s.setConnectionState(false, readErr)
		}
	}
}

func (s *WebSocketSource) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for ctx.Err() == nil {
		if err := conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			return err
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		if len(message) == 0 {
			continue
		}

		var env wsEnvelope
		if err := json.Unmarshal(message, &env); err != nil || env.Channel == "" {
			log.Warn("dropping malformed websocket envelope", "error", err)
			continue
		}

		s.mu.Lock()
		s.lastMessageAt = time.Now().UTC()
		s.mu.Unlock()

		s.target.Publish(env.Channel, env.Payload)
	}
	return ctx.Err()
}

func (s *WebSocketSource) setConnectionState(connected bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
	if err != nil {
		s.lastError = err.Error()
	}
}
