package content

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	MaxMessageLength = 4000
	MaxTitleLength   = 200
	MaxUsernameLen   = 32
)

var (
	policy        = bluemonday.UGCPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	markdown      = goldmark.New(goldmark.WithExtensions(extension.GFM))

	ErrEmpty   = errors.New("content cannot be empty")
	ErrTooLong = errors.New("content is too long")
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is used for sanitizing user inputs like display names and messages.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// CleanText trims and sanitizes a user supplied text and enforces
// a maximum length in runes.
func CleanText(input string, maxLen int) (string, error) {
	out := Sanitize(strings.TrimSpace(input))
	if out == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(out) > maxLen {
		return "", fmt.Errorf("%w: limit is %d characters", ErrTooLong, maxLen)
	}
	return out, nil
}

// RenderMarkdown converts forum markdown to HTML and sanitizes the result.
func RenderMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return string(policy.SanitizeBytes(buf.Bytes())), nil
}

// ValidateUsername checks if the username contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username is longer than %d characters", MaxUsernameLen)
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
