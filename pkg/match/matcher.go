// Package match filters storage object keys with doublestar glob patterns.
package match

import (
	"errors"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates include/exclude patterns against object keys.
//
// A key is selected when it matches at least one include pattern and no
// exclude pattern. The Matcher is safe for concurrent use after creation.
type Matcher struct {
	includes      []string
	excludes      []string
	includeHidden bool
}

// Config configures a Matcher.
type Config struct {
	// Includes are glob patterns that objects must match (at least one).
	// Required: at least one include pattern must be specified.
	Includes []string

	// Excludes are glob patterns that objects must not match (any).
	// Optional: if empty, no excludes are applied.
	Excludes []string

	// IncludeHidden controls whether keys with dot-prefixed path segments
	// are matched. Default: false (hidden keys are excluded).
	IncludeHidden bool
}

// Errors returned by Matcher operations.
var (
	// ErrNoIncludes is returned when no include patterns are provided.
	ErrNoIncludes = errors.New("at least one include pattern is required")

	// ErrInvalidPattern is returned when a pattern cannot be compiled.
	ErrInvalidPattern = errors.New("invalid glob pattern")
)

// PatternError wraps pattern-related errors with context.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return "pattern " + e.Pattern + ": " + e.Err.Error()
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// New creates a new Matcher from the given configuration.
//
// Returns an error if no include patterns are provided or any pattern
// fails to compile.
func New(cfg Config) (*Matcher, error) {
	if len(cfg.Includes) == 0 {
		return nil, ErrNoIncludes
	}

	includes, err := validatePatterns(cfg.Includes)
	if err != nil {
		return nil, err
	}
	excludes, err := validatePatterns(cfg.Excludes)
	if err != nil {
		return nil, err
	}

	return &Matcher{
		includes:      includes,
		excludes:      excludes,
		includeHidden: cfg.IncludeHidden,
	}, nil
}

// MatchAll returns a Matcher that selects every key, hidden ones included.
func MatchAll() *Matcher {
	return &Matcher{includes: []string{"**"}, includeHidden: true}
}

func validatePatterns(raw []string) ([]string, error) {
	patterns := make([]string, 0, len(raw))
	for _, p := range raw {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p, Err: ErrInvalidPattern}
		}
		patterns = append(patterns, p)
	}
	return patterns, nil
}

// Match returns true if the key matches the include/exclude patterns.
//
// Keys are matched as-is: storage keys are opaque strings where any
// character is valid.
func (m *Matcher) Match(key string) bool {
	// Check hidden first (fast path)
	if !m.includeHidden && IsHidden(key) {
		return false
	}

	matched := false
	for _, inc := range m.includes {
		if matchPattern(inc, key) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	for _, exc := range m.excludes {
		if matchPattern(exc, key) {
			return false
		}
	}
	return true
}

// IncludePatterns returns the raw include patterns.
func (m *Matcher) IncludePatterns() []string {
	return append([]string(nil), m.includes...)
}

// ExcludePatterns returns the raw exclude patterns.
func (m *Matcher) ExcludePatterns() []string {
	return append([]string(nil), m.excludes...)
}

// IsHidden returns true if any path segment of the key starts with a dot.
func IsHidden(key string) bool {
	if key == "" {
		return false
	}
	for _, seg := range strings.Split(key, "/") {
		if seg != "" && strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// matchPattern matches a key against a doublestar pattern.
func matchPattern(pattern, key string) bool {
	matched, err := doublestar.Match(pattern, key)
	if err != nil {
		// Pattern was validated at construction time, so this shouldn't happen
		return false
	}
	return matched
}
