package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aicli-sh/aicli/config"
	"github.com/aicli-sh/aicli/errors"
)

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }

func (t *ReadFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to read"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ReadFileTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Path == "" {
		return "", errors.New("missing 'path' parameter")
	}

	if err := checkHidden(args.Path, t.fsAccess); err != nil {
		return "", err
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", args.Path)
	}

	lines := strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
	numbered := make([]string, len(lines))
	for i, line := range lines {
		numbered[i] = fmt.Sprintf("%4d │ %s", i+1, line)
	}
	return strings.Join(numbered, "\n"), nil
}

// WriteFileTool implements the tool for writing to a file.
type WriteFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating it if it doesn't exist"
}

func (t *WriteFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "Content to write to the file"
			}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteFileTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Path == "" {
		return "", errors.New("missing 'path' parameter")
	}

	if err := checkWritable(args.Path, t.fsAccess); err != nil {
		return "", err
	}

	if parent := filepath.Dir(args.Path); parent != "." {
		if err := os.MkdirAll(parent, 0755); err != nil {
			return "", errors.Wrapf(err, "failed to create parent directories for '%s'", args.Path)
		}
	}

	if err := os.WriteFile(args.Path, []byte(args.Content), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", args.Path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// EditFileTool implements the tool for replacing text inside a file.
type EditFileTool struct {
	fsAccess *config.FilesystemAccess
}

func (t *EditFileTool) Name() string        { return "edit_file" }
func (t *EditFileTool) Description() string { return "Edit a file by replacing specific text" }

func (t *EditFileTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to edit"
			},
			"old_text": {
				"type": "string",
				"description": "Text to find and replace"
			},
			"new_text": {
				"type": "string",
				"description": "Text to replace with"
			}
		},
		"required": ["path", "old_text", "new_text"]
	}`)
}

func (t *EditFileTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Path    string `json:"path"`
		OldText string `json:"old_text"`
		NewText string `json:"new_text"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Path == "" || args.OldText == "" {
		return "", errors.New("missing 'path' or 'old_text' parameter")
	}

	if err := checkWritable(args.Path, t.fsAccess); err != nil {
		return "", err
	}

	content, err := os.ReadFile(args.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", args.Path)
	}

	occurrences := strings.Count(string(content), args.OldText)
	if occurrences == 0 {
		return "", errors.New("could not find the specified text to replace in %s", args.Path)
	}

	updated := strings.ReplaceAll(string(content), args.OldText, args.NewText)
	if err := os.WriteFile(args.Path, []byte(updated), 0644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", args.Path)
	}
	return fmt.Sprintf("Successfully edited %s. Replaced %d occurrences.", args.Path, occurrences), nil
}

// ListDirectoryTool implements the tool for listing a directory.
type ListDirectoryTool struct{}

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List files and directories in a path" }

func (t *ListDirectoryTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the directory to list"
			}
		},
		"required": ["path"]
	}`)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Path == "" {
		args.Path = "."
	}

	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to list directory '%s'", args.Path)
	}

	var dirs, files []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, fmt.Sprintf("📁 %s/", entry.Name()))
		} else {
			files = append(files, fmt.Sprintf("📄 %s (%s)", entry.Name(), humanSize(info.Size())))
		}
	}

	sort.Strings(dirs)
	sort.Strings(files)

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s:\n\n", args.Path)
	for _, d := range dirs {
		b.WriteString(d)
		b.WriteByte('\n')
	}
	for _, f := range files {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func humanSize(size int64) string {
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024.0)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024.0*1024.0))
	}
}

func checkHidden(path string, fs *config.FilesystemAccess) error {
	hidden, err := isPathRestricted(path, fs.Hidden)
	if err != nil {
		return err
	}
	if hidden {
		return errors.New("access denied: path '%s' is hidden", path)
	}
	return nil
}

func checkWritable(path string, fs *config.FilesystemAccess) error {
	if err := checkHidden(path, fs); err != nil {
		return err
	}
	readOnly, err := isPathRestricted(path, fs.ReadOnly)
	if err != nil {
		return err
	}
	if readOnly {
		return errors.New("access denied: path '%s' is read-only", path)
	}
	return nil
}
