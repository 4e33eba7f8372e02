// ABOUTME: Read-only tools: directory listing and file tail, both sandbox-resolved
// ABOUTME: Used directly by plans and by the patch fallback

package tools

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mauromedda/pi-effector/internal/types"
)

const (
	maxFileReadSize = 10 * 1024 * 1024 // 10MB
	maxTailBytes    = 100 * 1024       // 100KB
)

// DirEntry is one item of a directory listing.
type DirEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "dir" or "file"
	Size int64  `json:"size"`
}

// Listing is the payload of list_dir.
type Listing struct {
	Path  string     `json:"path"`
	Items []DirEntry `json:"items"`
}

// Tail is the payload of read_tail.
type Tail struct {
	Path      string `json:"path"`
	Lines     int    `json:"lines"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// ListDir lists path sorted case-insensitively by name.
func (e *Engine) ListDir(ws Workspace, path string) (Listing, error) {
	if path == "" {
		path = "."
	}
	abs, err := e.sb.Resolve(ws.Dir, path)
	if err != nil {
		return Listing{}, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return Listing{}, types.Errorf(types.KindNotADirectory, "%s is not a directory", abs)
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return Listing{}, fmt.Errorf("reading directory %s: %w", abs, err)
	}

	items := make([]DirEntry, 0, len(entries))
	for _, de := range entries {
		item := DirEntry{Name: de.Name(), Type: "file"}
		if de.IsDir() {
			item.Type = "dir"
		}
		if fi, err := de.Info(); err == nil {
			item.Size = fi.Size()
		}
		items = append(items, item)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})

	return Listing{Path: abs, Items: items}, nil
}

// ReadTail returns the last n lines of a file (at least one).
func (e *Engine) ReadTail(ws Workspace, path string, n int) (Tail, error) {
	if strings.TrimSpace(path) == "" {
		return Tail{}, types.Errorf(types.KindInvalidPath, "path is required")
	}
	abs, err := e.sb.Resolve(ws.Dir, path)
	if err != nil {
		return Tail{}, err
	}
	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() {
		return Tail{}, types.Errorf(types.KindFileNotFound, "%s is not a file", abs)
	}
	if info.Size() > maxFileReadSize {
		return Tail{}, types.Errorf(types.KindContentTooLarge,
			"file %s is too large (%d bytes); maximum is %d bytes", abs, info.Size(), maxFileReadSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return Tail{}, fmt.Errorf("reading file %s: %w", abs, err)
	}

	text := strings.TrimSuffix(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	lines := strings.Split(text, "\n")
	if text == "" {
		lines = nil
	}

	tr := TruncateTail(strings.Join(lines, "\n"), max(1, n), maxTailBytes)
	count := 0
	if tr.Content != "" {
		count = strings.Count(tr.Content, "\n") + 1
	}
	return Tail{Path: abs, Lines: count, Content: tr.Content, Truncated: tr.Truncated}, nil
}
