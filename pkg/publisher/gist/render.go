package gist

import (
	"fmt"
	"strings"

	"github.com/agentdeck/agentdeck/pkg/stream"
)

// Render produces a markdown view of a transcript. Only displayable
// messages appear; widget-echo tool results and meta entries are dropped
// the same way the client hides them.
func Render(sessionID string, msgs []stream.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %s\n", sessionID)

	for _, msg := range stream.Filter(msgs) {
		switch msg.Type {
		case stream.TypeUser:
			writeSection(&b, "User", msg.Text())
		case stream.TypeAssistant:
			writeAssistant(&b, msg)
		case stream.TypeResult:
			label := "Result"
			if msg.IsError || msg.Subtype == stream.SubtypeError {
				label = "Result (error)"
			}
			writeSection(&b, label, msg.Text())
		case stream.TypeSystem:
			if text := msg.Text(); text != "" {
				writeSection(&b, "System", text)
			}
		}
	}
	return b.String()
}

func writeAssistant(b *strings.Builder, msg stream.Message) {
	if msg.Message == nil {
		return
	}
	wroteHeader := false
	header := func() {
		if !wroteHeader {
			b.WriteString("\n## Assistant\n\n")
			wroteHeader = true
		}
	}
	for _, block := range msg.Message.Content {
		switch block.Type {
		case stream.BlockText:
			if block.Text != "" {
				header()
				b.WriteString(block.Text)
				b.WriteString("\n")
			}
		case stream.BlockToolUse:
			header()
			fmt.Fprintf(b, "\n> tool: `%s`\n", block.Name)
		}
	}
}

func writeSection(b *strings.Builder, title, body string) {
	if body == "" {
		return
	}
	fmt.Fprintf(b, "\n## %s\n\n%s\n", title, body)
}
