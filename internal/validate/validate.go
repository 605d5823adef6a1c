package validate

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cast"
)

var (
	reQ    = regexp.MustCompile(`^[\p{L}\p{N} _'%&.,/+-]{1,80}$`)
	reSlug = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)
)

const (
	maxQ        = 80
	MaxAPILimit = 100
)

// Q validates a search query: trims, caps the length and restricts characters.
// Accented letters are allowed.
func Q(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if utf8.RuneCountInString(s) > maxQ {
		s = string([]rune(s)[:maxQ])
	}
	return s, reQ.MatchString(s)
}

// ID parses a positive product id.
func ID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Category validates the shape of a category slug. Membership is checked by the
// catalog builder.
func Category(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	return s, s != "" && reSlug.MatchString(s)
}

// Limit parses an API page size. Empty means 0 (no limit requested); values
// above MaxAPILimit are clamped.
func Limit(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}
	n, err := cast.ToIntE(s)
	if err != nil || n < 0 {
		return 0, false
	}
	if n > MaxAPILimit {
		n = MaxAPILimit
	}
	return n, true
}

// Flag parses boolean query parameters ("1", "true", "yes" style values as
// understood by cast). Empty is false.
func Flag(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, true
	}
	switch strings.ToLower(s) {
	case "yes", "on", "si", "sí":
		return true, true
	case "no", "off":
		return false, true
	}
	b, err := cast.ToBoolE(s)
	return b, err == nil
}

// Password enforces a length window; bcrypt ignores bytes past 72.
func Password(s string) bool {
	return len(s) > 0 && len(s) <= 72
}
