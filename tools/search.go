package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aicli-sh/aicli/errors"
	"github.com/bmatcuk/doublestar/v4"
)

// Directories skipped during recursive searches, matching the usual build and
// dependency trees nobody wants grepped.
func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "target"
}

// SearchFilesTool implements the tool for finding files by glob pattern.
type SearchFilesTool struct{}

func (t *SearchFilesTool) Name() string        { return "search_files" }
func (t *SearchFilesTool) Description() string { return "Search for files matching a pattern" }

func (t *SearchFilesTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {
				"type": "string",
				"description": "Glob pattern to match (e.g., '*.go', '**/*.txt')"
			},
			"path": {
				"type": "string",
				"description": "Starting directory for search"
			}
		},
		"required": ["pattern"]
	}`)
}

func (t *SearchFilesTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Pattern == "" {
		return "", errors.New("missing 'pattern' parameter")
	}
	if args.Path == "" {
		args.Path = "."
	}

	if !doublestar.ValidatePattern(args.Pattern) {
		return "", errors.New("invalid glob pattern '%s'", args.Pattern)
	}

	var matches []string
	err := filepath.WalkDir(args.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if path != args.Path && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := doublestar.Match(args.Pattern, d.Name()); ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "search failed in '%s'", args.Path)
	}

	if len(matches) == 0 {
		return fmt.Sprintf("No files matching '%s' found in %s", args.Pattern, args.Path), nil
	}
	return fmt.Sprintf("Found %d files matching '%s':\n%s",
		len(matches), args.Pattern, strings.Join(matches, "\n")), nil
}

// SearchContentTool implements the tool for searching text content in files.
type SearchContentTool struct{}

func (t *SearchContentTool) Name() string        { return "search_content" }
func (t *SearchContentTool) Description() string { return "Search for text content in files" }

func (t *SearchContentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Text or regex pattern to search for"
			},
			"path": {
				"type": "string",
				"description": "Directory to search in"
			},
			"file_pattern": {
				"type": "string",
				"description": "File pattern to filter (e.g., '*.go')"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchContentTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var args struct {
		Query       string `json:"query"`
		Path        string `json:"path"`
		FilePattern string `json:"file_pattern"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return "", errors.Wrapf(err, "invalid arguments")
	}
	if args.Query == "" {
		return "", errors.New("missing 'query' parameter")
	}
	if args.Path == "" {
		args.Path = "."
	}

	re, err := regexp.Compile(args.Query)
	if err != nil {
		return "", errors.Wrapf(err, "invalid search pattern '%s'", args.Query)
	}

	var results []string
	walkErr := filepath.WalkDir(args.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != args.Path && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if args.FilePattern != "" {
			if ok, _ := doublestar.Match(args.FilePattern, d.Name()); !ok {
				return nil
			}
		}

		// Binary and unreadable files are skipped.
		content, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(content) {
			return nil
		}
		for i, line := range strings.Split(string(content), "\n") {
			if re.MatchString(line) {
				results = append(results, fmt.Sprintf("%s:%d: %s", path, i+1, strings.TrimSpace(line)))
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrapf(walkErr, "search failed in '%s'", args.Path)
	}

	if len(results) == 0 {
		return fmt.Sprintf("No matches for '%s' found", args.Query), nil
	}
	return fmt.Sprintf("Found %d matches:\n\n%s", len(results), strings.Join(results, "\n\n")), nil
}
