// ABOUTME: Content truncation with dual line+byte limits and UTF-8 safe boundaries
// ABOUTME: TruncateHead keeps the beginning (command output); TruncateTail keeps the end (read_tail)

package tools

import (
	"strings"
	"unicode/utf8"
)

// TruncateResult holds the outcome of a truncation operation.
type TruncateResult struct {
	Content    string
	Truncated  bool
	TotalLines int
	TotalBytes int
	Reason     string // "line_limit", "byte_limit", or ""
}

// TruncateHead keeps the first maxLines lines and first maxBytes bytes.
// A non-positive maxLines disables the line limit.
func TruncateHead(content string, maxLines, maxBytes int) TruncateResult {
	lines := strings.Split(content, "\n")
	result := TruncateResult{Content: content, TotalLines: len(lines), TotalBytes: len(content)}
	if content == "" {
		return result
	}

	if maxLines > 0 && len(lines) > maxLines {
		result.Content = strings.Join(lines[:maxLines], "\n")
		result.Truncated, result.Reason = true, "line_limit"
	}
	if len(result.Content) > maxBytes {
		result.Content = truncateToUTF8Boundary(result.Content, maxBytes)
		result.Truncated, result.Reason = true, "byte_limit"
	}
	return result
}

// TruncateTail keeps the last maxLines lines and last maxBytes bytes.
// A non-positive maxLines disables the line limit.
func TruncateTail(content string, maxLines, maxBytes int) TruncateResult {
	lines := strings.Split(content, "\n")
	result := TruncateResult{Content: content, TotalLines: len(lines), TotalBytes: len(content)}
	if content == "" {
		return result
	}

	if maxLines > 0 && len(lines) > maxLines {
		result.Content = strings.Join(lines[len(lines)-maxLines:], "\n")
		result.Truncated, result.Reason = true, "line_limit"
	}
	if len(result.Content) > maxBytes {
		result.Content = truncateTailToUTF8Boundary(result.Content, maxBytes)
		result.Truncated, result.Reason = true, "byte_limit"
	}
	return result
}

// truncateToUTF8Boundary cuts s to at most maxBytes without splitting a rune.
func truncateToUTF8Boundary(s string, maxBytes int) string {
	if maxBytes >= len(s) {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}

// truncateTailToUTF8Boundary keeps at most the last maxBytes of s without
// splitting a rune.
func truncateTailToUTF8Boundary(s string, maxBytes int) string {
	if maxBytes >= len(s) {
		return s
	}
	start := len(s) - maxBytes
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
