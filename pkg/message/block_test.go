package message

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewTextBlock(t *testing.T) {
	b := NewTextBlock("hello")
	if b.Type != BlockText {
		t.Errorf("Type = %q, want %q", b.Type, BlockText)
	}
	if b.Text != "hello" {
		t.Errorf("Text = %q, want %q", b.Text, "hello")
	}
}

func TestNewImageBlock(t *testing.T) {
	b := NewImageBlock("image/png", "aGVsbG8=")
	if b.Type != BlockImage {
		t.Errorf("Type = %q, want %q", b.Type, BlockImage)
	}
	if b.Source == nil {
		t.Fatal("Source is nil")
	}
	if b.Source.Type != "base64" || b.Source.MediaType != "image/png" || b.Source.Data != "aGVsbG8=" {
		t.Errorf("Source = %+v", *b.Source)
	}
}

func TestContentBlock_MarshalText(t *testing.T) {
	data, err := json.Marshal(NewTextBlock(""))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"type":"text","text":""}` {
		t.Errorf("got %s", data)
	}
}

func TestContentBlock_MarshalToolUseDefaultsInput(t *testing.T) {
	data, err := json.Marshal(NewToolUseBlock("tu_1", "bash", nil))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"tool_use","id":"tu_1","name":"bash","input":{}}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestContentBlock_MarshalOmitsForeignFields(t *testing.T) {
	b := NewTextBlock("hi")
	b.ToolUseID = "should-not-appear"
	b.IsError = true

	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "tool_use_id") || strings.Contains(string(data), "is_error") {
		t.Errorf("text block leaked union fields: %s", data)
	}
}

func TestContentBlock_MarshalToolResult(t *testing.T) {
	b := NewToolResultBlock("tu_1", []ContentBlock{NewTextBlock("out")}, true)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"type":"tool_result","tool_use_id":"tu_1","content":[{"type":"text","text":"out"}],"is_error":true}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestContentBlock_UnmarshalToolResultStringContent(t *testing.T) {
	var b ContentBlock
	if err := json.Unmarshal([]byte(`{"type":"tool_result","tool_use_id":"tu_9","content":"plain"}`), &b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if b.ToolUseID != "tu_9" {
		t.Errorf("ToolUseID = %q", b.ToolUseID)
	}
	if len(b.Content) != 1 || b.Content[0].Type != BlockText || b.Content[0].Text != "plain" {
		t.Errorf("Content = %+v", b.Content)
	}
}

func TestContentBlock_UnmarshalNestedImage(t *testing.T) {
	raw := `{"type":"tool_result","tool_use_id":"tu_2","content":[
		{"type":"text","text":"shot"},
		{"type":"image","source":{"type":"base64","media_type":"image/png","data":"AAA"}}
	]}`
	var b ContentBlock
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(b.Content) != 2 {
		t.Fatalf("len(Content) = %d, want 2", len(b.Content))
	}
	img := b.Content[1]
	if img.Type != BlockImage || img.Source == nil || img.Source.Data != "AAA" {
		t.Errorf("image block = %+v", img)
	}
}

func TestContentBlock_UnmarshalRejectsObjectContent(t *testing.T) {
	var b ContentBlock
	err := json.Unmarshal([]byte(`{"type":"tool_result","content":{"x":1}}`), &b)
	if err == nil {
		t.Fatal("expected error for object content")
	}
}

func TestContentBlock_ToolUseInputPreserved(t *testing.T) {
	var b ContentBlock
	if err := json.Unmarshal([]byte(`{"type":"tool_use","id":"a","name":"bash","input":{"cmd":"ls"}}`), &b); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(b.Input) != `{"cmd":"ls"}` {
		t.Errorf("Input = %s", b.Input)
	}
}
