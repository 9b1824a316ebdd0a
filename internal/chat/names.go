package chat

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"
)

const suffixBaseLen = 28

// NameAllocator sanitizes requested display names and assigns them uniquely
// through the registry.
type NameAllocator struct {
	maxLen int
}

func NewNameAllocator(maxLen int) *NameAllocator {
	return &NameAllocator{maxLen: maxLen}
}

// Sanitize reduces raw to a displayable name: control characters go, the
// result is trimmed and restricted to letters, digits, space, underscore
// and hyphen, an empty result gets a generated fallback, and the name is
// capped at the configured length. Sanitize is idempotent.
func (a *NameAllocator) Sanitize(raw string) string {
	s := stripControl(raw)
	s = strings.TrimSpace(s)

	var b strings.Builder
	for _, r := range s {
		if isNameRune(r) {
			b.WriteRune(r)
		}
	}
	s = strings.TrimSpace(b.String())

	if s == "" {
		s = fallbackName()
	}

	s = truncateRunes(s, a.maxLen)
	return strings.TrimRight(s, " ")
}

// AllocateUnique sanitizes candidate and claims the first free variant for
// s: the base name, then base-2, base-3, and so on. When a suffixed form
// would exceed the length cap, the base is cut back far enough that base,
// hyphen, and suffix digits fit inside it. Each attempt claims atomically
// through the registry, so concurrent joins racing for the same base never
// end up with the same final name.
func (a *NameAllocator) AllocateUnique(reg *Registry, s *Session, candidate string) string {
	base := a.Sanitize(candidate)

	name := base
	for suffix := 2; ; suffix++ {
		if reg.ClaimName(s, name) {
			return name
		}

		name = fmt.Sprintf("%s-%d", base, suffix)
		if utf8.RuneCountInString(name) > a.maxLen {
			digits := strconv.Itoa(suffix)
			keep := suffixBaseLen
			if m := a.maxLen - len(digits) - 1; m < keep {
				keep = m
			}
			if keep < 1 {
				keep = 1
			}
			name = fmt.Sprintf("%s-%s", truncateRunes(base, keep), digits)
		}
	}
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == ' ' || r == '_' || r == '-':
		return true
	}
	return false
}

func fallbackName() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "User0000"
	}
	return fmt.Sprintf("User%04d", n)
}

// stripControl removes every character except horizontal tab, newline, and
// printable scalar values at or above 0x20.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r == '\n' || r >= 0x20 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
