package session

import (
	"encoding/json"
	"testing"
)

func TestMessageContentAsText(t *testing.T) {
	if got := Text("hello").AsText(); got != "hello" {
		t.Errorf("plain text: got %q", got)
	}

	c := MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "a"},
		{Type: "tool_use", Name: "read_file"},
		{Type: "text", Text: "b"},
		{Type: "tool_result", Content: "ignored"},
	}}
	if got := c.AsText(); got != "ab" {
		t.Errorf("parts: got %q, want %q", got, "ab")
	}
}

func TestMessageContentJSON(t *testing.T) {
	// Plain text marshals as a bare JSON string.
	b, err := json.Marshal(Message{Role: "user", Content: Text("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"role":"user","content":"hi"}` {
		t.Errorf("plain: %s", b)
	}

	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m.Content.AsText() != "hi" || m.Content.Parts != nil {
		t.Errorf("round trip: %+v", m.Content)
	}

	// Structured content marshals as a part array.
	structured := Message{Role: "assistant", Content: MessageContent{Parts: []ContentPart{
		{Type: "text", Text: "ok"},
	}}}
	b, err = json.Marshal(structured)
	if err != nil {
		t.Fatal(err)
	}
	var back Message
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Content.Parts) != 1 || back.Content.Parts[0].Text != "ok" {
		t.Errorf("structured round trip: %+v", back.Content)
	}
}

func TestSessionSaveLoad(t *testing.T) {
	t.Chdir(t.TempDir())

	s, err := New("test")
	if err != nil {
		t.Fatal(err)
	}
	s.AddMessage(Message{Role: "user", Content: Text("hello")})
	s.AddMessage(Message{Role: "assistant", Content: Text("hi")})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != "test" || len(loaded.Messages) != 2 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Messages[1].Content.AsText() != "hi" {
		t.Errorf("message content lost: %+v", loaded.Messages[1])
	}
}

func TestLoadMissingSession(t *testing.T) {
	t.Chdir(t.TempDir())
	if _, err := Load("does-not-exist"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestRemoveLast(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("rm")
	if err != nil {
		t.Fatal(err)
	}

	s.RemoveLast() // empty history is a no-op

	s.AddMessage(Message{Role: "user", Content: Text("one")})
	s.AddMessage(Message{Role: "user", Content: Text("two")})
	s.RemoveLast()
	if len(s.Messages) != 1 || s.Messages[0].Content.AsText() != "one" {
		t.Errorf("messages = %+v", s.Messages)
	}
}

func TestClear(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("clear")
	if err != nil {
		t.Fatal(err)
	}
	s.AddMessage(Message{Role: "user", Content: Text("x")})
	s.Clear()
	if len(s.Messages) != 0 {
		t.Errorf("messages = %+v", s.Messages)
	}
}
