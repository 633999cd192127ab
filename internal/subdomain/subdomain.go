// Package subdomain turns free-form project names into DNS labels.
package subdomain

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// SuffixLength is the number of random base-36 characters appended by Generate.
	SuffixLength = 6
	maxLabel     = 63
	fallbackSlug = "app"
	alphabet     = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// ErrInvalid is returned for names that are not safe DNS labels.
var ErrInvalid = errors.New("invalid subdomain")

var (
	disallowed = regexp.MustCompile(`[^a-z0-9-]+`)
	dashes     = regexp.MustCompile(`-{2,}`)
	label      = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
)

// Slugify lowercases name and reduces it to [a-z0-9-] with single dashes.
func Slugify(name string) string {
	return slug(name, maxLabel-SuffixLength-1)
}

// Sanitize reduces an arbitrary caller-supplied subdomain to a valid label.
func Sanitize(name string) string {
	return slug(name, maxLabel)
}

func slug(name string, limit int) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = disallowed.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > limit {
		s = strings.TrimRight(s[:limit], "-")
	}
	if s == "" {
		return fallbackSlug
	}
	return s
}

// Generate returns Slugify(name) followed by a dash and a random suffix.
func Generate(name string) string {
	return Slugify(name) + "-" + Suffix()
}

// Suffix returns SuffixLength random base-36 characters.
func Suffix() string {
	buf := make([]byte, SuffixLength)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf)
}

// Validate checks s against the allow-list pattern.
func Validate(s string) error {
	if !label.MatchString(s) || strings.Contains(s, "--") {
		return fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return nil
}
