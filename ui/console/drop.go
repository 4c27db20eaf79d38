package console

import (
	"errors"
	"net/url"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrInvalidDrop is returned when a dropped payload names no regular file.
var ErrInvalidDrop = errors.New("Invalid file dropped")

// ParseDrop extracts the file path from a drag-and-drop payload.
//
// Terminals paste dropped files as a path that may be quoted, escaped,
// wrapped in braces or given as a file:// URI. When several files are
// dropped the first one is used.
//
// Arguments:
//   - payload: The pasted text.
//
// Returns:
//   - string: The path of an existing regular file.
//   - error: ErrInvalidDrop if no such file is named.
func ParseDrop(payload string) (string, error) {
	raw := strings.TrimSpace(payload)
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "{"), "}"))
	if raw == "" {
		return "", ErrInvalidDrop
	}

	candidates := []string{raw}
	if words, err := shellwords.Parse(raw); err == nil && len(words) > 0 {
		candidates = append(candidates, words[0])
	}

	for _, candidate := range candidates {
		path := fromURI(strings.Trim(candidate, "{}"))
		if isRegularFile(path) {
			return path, nil
		}
	}
	return "", ErrInvalidDrop
}

func fromURI(s string) string {
	if !strings.HasPrefix(s, "file://") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	return u.Path
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
