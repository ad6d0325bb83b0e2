package stream

import "testing"

func assistantWithTool(id, name string) Message {
	return Message{
		Type: TypeAssistant,
		Message: &Body{
			Role: "assistant",
			Content: []ContentBlock{
				{Type: BlockToolUse, ID: id, Name: name},
			},
		},
	}
}

func userToolResult(toolUseID string) Message {
	return Message{
		Type: TypeUser,
		Message: &Body{
			Role: "user",
			Content: []ContentBlock{
				{Type: BlockToolResult, ToolUseID: toolUseID},
			},
		},
	}
}

func TestDisplayable_MetaHidden(t *testing.T) {
	meta := Message{Type: TypeSystem, Subtype: SubtypeMeta}
	if Displayable(meta, nil) {
		t.Fatal("bare meta message should not be displayable")
	}
	withSummary := Message{Type: TypeSystem, Subtype: SubtypeMeta, Summary: "compacted"}
	if !Displayable(withSummary, nil) {
		t.Fatal("meta message with summary marker should be displayable")
	}
	withLeaf := Message{Type: TypeSystem, Subtype: SubtypeMeta, LeafUUID: "leaf-1"}
	if !Displayable(withLeaf, nil) {
		t.Fatal("meta message with leaf marker should be displayable")
	}
}

func TestDisplayable_EmptyUserHidden(t *testing.T) {
	empty := Message{Type: TypeUser}
	if Displayable(empty, nil) {
		t.Fatal("user message without content should not be displayable")
	}
	noBlocks := Message{Type: TypeUser, Message: &Body{Role: "user"}}
	if Displayable(noBlocks, nil) {
		t.Fatal("user message with empty content should not be displayable")
	}
}

func TestDisplayable_WidgetEchoSuppressed(t *testing.T) {
	prior := []Message{assistantWithTool("tu_1", "Bash")}
	echo := userToolResult("tu_1")
	if Displayable(echo, prior) {
		t.Fatal("tool_result echoing a widget tool should be suppressed")
	}
}

func TestDisplayable_MCPNamespaceSuppressed(t *testing.T) {
	prior := []Message{assistantWithTool("tu_9", "mcp__puppeteer__screenshot")}
	echo := userToolResult("tu_9")
	if Displayable(echo, prior) {
		t.Fatal("tool_result for an MCP tool should be suppressed")
	}
}

func TestDisplayable_NonWidgetResultShown(t *testing.T) {
	prior := []Message{assistantWithTool("tu_2", "CustomTool")}
	echo := userToolResult("tu_2")
	if !Displayable(echo, prior) {
		t.Fatal("tool_result for a non-widget tool should be displayable")
	}
}

func TestDisplayable_OrphanResultShown(t *testing.T) {
	echo := userToolResult("tu_missing")
	if !Displayable(echo, nil) {
		t.Fatal("tool_result with no matching tool_use should be displayable")
	}
}

func TestDisplayable_MixedContentShown(t *testing.T) {
	prior := []Message{assistantWithTool("tu_3", "Read")}
	mixed := Message{
		Type: TypeUser,
		Message: &Body{
			Role: "user",
			Content: []ContentBlock{
				{Type: BlockToolResult, ToolUseID: "tu_3"},
				{Type: BlockText, Text: "and also do this"},
			},
		},
	}
	if !Displayable(mixed, prior) {
		t.Fatal("user message with text beyond the echo should be displayable")
	}
}

func TestFilter_Idempotent(t *testing.T) {
	logMsgs := []Message{
		{Type: TypeSystem, Subtype: SubtypeInit, SessionID: "s"},
		assistantWithTool("tu_1", "Edit"),
		userToolResult("tu_1"),
		{Type: TypeAssistant, Message: &Body{Role: "assistant", Content: []ContentBlock{{Type: BlockText, Text: "done"}}}},
		{Type: TypeResult, Subtype: SubtypeSuccess, Result: "ok"},
	}

	first := Filter(logMsgs)
	second := Filter(logMsgs)
	if len(first) != len(second) {
		t.Fatalf("filter not idempotent: %d vs %d", len(first), len(second))
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 displayable messages, got %d", len(first))
	}
}
