package tools

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/aicli-sh/aicli/config"
)

func openAccess() *config.FilesystemAccess {
	return &config.FilesystemAccess{}
}

func TestReadFileNumbersLines(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("a.txt", []byte("first\nsecond\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &ReadFileTool{fsAccess: openAccess()}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"a.txt"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "   1 │ first\n   2 │ second"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestReadFileHiddenDenied(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.MkdirAll(".aicli/sessions", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(".aicli/sessions/s.json", []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{Hidden: []string{".aicli", ".aicli/**"}}}
	_, err := tool.Execute(context.Background(), json.RawMessage(`{"path":".aicli/sessions/s.json"}`))
	if err == nil || !strings.Contains(err.Error(), "hidden") {
		t.Errorf("expected hidden path denial, got %v", err)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	t.Chdir(t.TempDir())

	tool := &WriteFileTool{fsAccess: openAccess()}
	out, err := tool.Execute(context.Background(),
		json.RawMessage(`{"path":"sub/dir/file.txt","content":"hello"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Successfully wrote 5 bytes to sub/dir/file.txt" {
		t.Errorf("output = %q", out)
	}
	data, err := os.ReadFile("sub/dir/file.txt")
	if err != nil || string(data) != "hello" {
		t.Errorf("file content = %q, err = %v", data, err)
	}
}

func TestWriteFileReadOnlyDenied(t *testing.T) {
	t.Chdir(t.TempDir())

	tool := &WriteFileTool{fsAccess: &config.FilesystemAccess{ReadOnly: []string{"vendor/**"}}}
	_, err := tool.Execute(context.Background(),
		json.RawMessage(`{"path":"vendor/lib/x.go","content":"x"}`))
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Errorf("expected read-only denial, got %v", err)
	}
}

func TestEditFileReplacesAllOccurrences(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("code.go", []byte("foo bar foo baz foo"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &EditFileTool{fsAccess: openAccess()}
	out, err := tool.Execute(context.Background(),
		json.RawMessage(`{"path":"code.go","old_text":"foo","new_text":"qux"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "Successfully edited code.go. Replaced 3 occurrences." {
		t.Errorf("output = %q", out)
	}
	data, _ := os.ReadFile("code.go")
	if string(data) != "qux bar qux baz qux" {
		t.Errorf("content = %q", data)
	}
}

func TestEditFileMissingText(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.WriteFile("code.go", []byte("nothing here"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &EditFileTool{fsAccess: openAccess()}
	_, err := tool.Execute(context.Background(),
		json.RawMessage(`{"path":"code.go","old_text":"absent","new_text":"x"}`))
	if err == nil || !strings.Contains(err.Error(), "could not find the specified text") {
		t.Errorf("expected missing text error, got %v", err)
	}
}

func TestListDirectory(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := os.Mkdir("subdir", 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("file.txt", []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &ListDirectoryTool{}
	out, err := tool.Execute(context.Background(), json.RawMessage(`{"path":"."}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out, "Contents of .:\n\n") {
		t.Errorf("header: %q", out)
	}
	if !strings.Contains(out, "📁 subdir/") {
		t.Errorf("missing directory entry: %q", out)
	}
	if !strings.Contains(out, "📄 file.txt (5 B)") {
		t.Errorf("missing file entry: %q", out)
	}
	// Directories are listed before files.
	if strings.Index(out, "subdir") > strings.Index(out, "file.txt") {
		t.Errorf("ordering: %q", out)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
	}
	for _, tc := range tests {
		if got := humanSize(tc.size); got != tc.want {
			t.Errorf("humanSize(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestMissingParameters(t *testing.T) {
	tools := []struct {
		tool  Tool
		input string
	}{
		{&ReadFileTool{fsAccess: openAccess()}, `{}`},
		{&WriteFileTool{fsAccess: openAccess()}, `{"content":"x"}`},
		{&EditFileTool{fsAccess: openAccess()}, `{"path":"x"}`},
	}
	for _, tc := range tools {
		if _, err := tc.tool.Execute(context.Background(), json.RawMessage(tc.input)); err == nil {
			t.Errorf("%s accepted incomplete input %s", tc.tool.Name(), tc.input)
		}
	}
}
