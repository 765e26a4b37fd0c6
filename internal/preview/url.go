// Package preview turns user supplied URLs into link previews and, lazily,
// into readable full text. Every network failure degrades to less metadata
// instead of an error.
package preview

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bunchhieng/saveit/internal/model"
)

// Normalize trims the input and prepends https:// when no http(s) scheme is present.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s
	}
	return "https://" + s
}

// Validate accepts URLs that parse and whose host contains a dot and is
// longer than two characters.
func Validate(u string) error {
	if strings.TrimSpace(u) == "" {
		return model.ErrEmptyURL
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidURL, err)
	}
	host := parsed.Hostname()
	if len(host) <= 2 || !strings.Contains(host, ".") {
		return fmt.Errorf("%w: %q", model.ErrInvalidURL, u)
	}
	return nil
}

// Clean normalizes raw and validates the result.
func Clean(raw string) (string, error) {
	u := Normalize(raw)
	if err := Validate(u); err != nil {
		return "", err
	}
	return u, nil
}
