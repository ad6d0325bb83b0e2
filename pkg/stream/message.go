// Package stream models the line-oriented message stream produced by the
// agent process and decides which messages the client should display.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message types emitted by the agent process.
const (
	TypeSystem    = "system"
	TypeAssistant = "assistant"
	TypeUser      = "user"
	TypeResult    = "result"
)

// Well-known message subtypes.
const (
	SubtypeInit      = "init"
	SubtypeMeta      = "meta"
	SubtypeError     = "error"
	SubtypeSuccess   = "success"
	SubtypeCancelled = "cancelled"
)

// Content block types.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message is one parsed line of the agent's output stream. Messages are
// immutable once constructed and appended to the controller's log in
// arrival order.
type Message struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`
	LeafUUID  string `json:"leafUuid,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Result    string `json:"result,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
	Message   *Body  `json:"message,omitempty"`

	// Local marks an entry the client appended optimistically before the
	// process echoed it back. Never serialized.
	Local bool `json:"-"`
}

// Body is the inner message payload carried by assistant and user entries.
type Body struct {
	ID      string         `json:"id,omitempty"`
	Role    string         `json:"role,omitempty"`
	Model   string         `json:"model,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
}

// UnmarshalJSON accepts both the block-list content form and the plain
// string shorthand the CLI uses for simple user messages.
func (b *Body) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID      string          `json:"id"`
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.ID = raw.ID
	b.Role = raw.Role
	b.Model = raw.Model
	b.Content = nil

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		b.Content = []ContentBlock{{Type: BlockText, Text: text}}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(raw.Content, &blocks); err != nil {
		return fmt.Errorf("invalid message content: %w", err)
	}
	b.Content = blocks
	return nil
}

// ContentBlock is one typed fragment of a message body.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ParseError reports a malformed stream line. Parse errors are logged and
// dropped by the caller; they never abort a run.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse stream message: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

const parseErrorLineLimit = 200

// Parse decodes one line of agent output into a Message.
func Parse(line []byte) (Message, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Message{}, &ParseError{Err: errors.New("empty line")}
	}
	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Message{}, &ParseError{Line: clipLine(trimmed), Err: err}
	}
	switch msg.Type {
	case TypeSystem, TypeAssistant, TypeUser, TypeResult:
	default:
		return Message{}, &ParseError{Line: clipLine(trimmed), Err: fmt.Errorf("unknown message type %q", msg.Type)}
	}
	return msg, nil
}

func clipLine(line []byte) string {
	if len(line) > parseErrorLineLimit {
		return string(line[:parseErrorLineLimit]) + "..."
	}
	return string(line)
}

// NewUserMessage builds a locally originated user entry for optimistic
// appending to the log.
func NewUserMessage(text string) Message {
	return Message{
		Type: TypeUser,
		Message: &Body{
			Role:    "user",
			Content: []ContentBlock{{Type: BlockText, Text: text}},
		},
		Local: true,
	}
}

// NewSystemMessage builds a client-synthesized system entry, such as the
// "cancelled" marker appended when a run is aborted.
func NewSystemMessage(subtype, text string) Message {
	msg := Message{Type: TypeSystem, Subtype: subtype, Local: true}
	if text != "" {
		msg.Message = &Body{Content: []ContentBlock{{Type: BlockText, Text: text}}}
	}
	return msg
}

// Text returns the concatenated text content of the message.
func (m Message) Text() string {
	if m.Type == TypeResult && m.Result != "" {
		return m.Result
	}
	if m.Message == nil {
		return ""
	}
	var parts []string
	for _, block := range m.Message.Content {
		if block.Type == BlockText && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// ToolUses returns the names of all tool_use blocks in the message.
func (m Message) ToolUses() []string {
	if m.Message == nil {
		return nil
	}
	var names []string
	for _, block := range m.Message.Content {
		if block.Type == BlockToolUse && block.Name != "" {
			names = append(names, block.Name)
		}
	}
	return names
}
