package stream

import "strings"

// widgetTools are the tool invocations the client renders as rich widgets
// inside the assistant message. Their mechanical tool_result echoes carry no
// extra information and are suppressed from display.
var widgetTools = map[string]struct{}{
	"task":         {},
	"bash":         {},
	"glob":         {},
	"grep":         {},
	"ls":           {},
	"read":         {},
	"edit":         {},
	"multiedit":    {},
	"write":        {},
	"todowrite":    {},
	"todoread":     {},
	"notebookread": {},
	"notebookedit": {},
	"webfetch":     {},
	"websearch":    {},
}

// mcpToolPrefix marks namespaced tools provided by MCP servers; those are
// always widget-rendered regardless of name.
const mcpToolPrefix = "mcp__"

func isWidgetTool(name string) bool {
	if strings.HasPrefix(name, mcpToolPrefix) {
		return true
	}
	_, ok := widgetTools[strings.ToLower(name)]
	return ok
}

// Displayable reports whether msg should be rendered, given the messages
// that arrived before it. The function is pure: the same log always yields
// the same displayable subset.
func Displayable(msg Message, prior []Message) bool {
	if msg.Subtype == SubtypeMeta && msg.LeafUUID == "" && msg.Summary == "" {
		return false
	}
	if msg.Type != TypeUser {
		return true
	}
	if msg.Message == nil || len(msg.Message.Content) == 0 {
		return false
	}
	for _, block := range msg.Message.Content {
		if block.Type != BlockToolResult {
			return true
		}
		if !echoesWidget(block, prior) {
			return true
		}
	}
	// Every content entry is a tool_result already represented by a widget.
	return false
}

// echoesWidget reports whether a tool_result block merely repeats a tool
// invocation that a prior assistant message rendered as a widget.
func echoesWidget(block ContentBlock, prior []Message) bool {
	if block.ToolUseID == "" {
		return false
	}
	for i := len(prior) - 1; i >= 0; i-- {
		m := prior[i]
		if m.Type != TypeAssistant || m.Message == nil {
			continue
		}
		for _, b := range m.Message.Content {
			if b.Type == BlockToolUse && b.ID == block.ToolUseID {
				return isWidgetTool(b.Name)
			}
		}
	}
	return false
}

// Filter returns the displayable subset of an ordered message log.
func Filter(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for i, m := range messages {
		if Displayable(m, messages[:i]) {
			out = append(out, m)
		}
	}
	return out
}
