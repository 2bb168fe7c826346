package services

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reLetters = regexp.MustCompile(`[A-Za-z]`)
	// Only allow digits, spaces, +, -, (, )
	reAllowed = regexp.MustCompile(`^[0-9+\-\s\(\)]+$`)
)

// DefaultCountryCode is applied to local numbers when a Phones value has none.
const DefaultCountryCode = "62"

// Phones normalizes numbers to the +E.164-like form stored in the directory.
type Phones struct {
	CountryCode string // calling code without '+', e.g. "62"
}

func (p Phones) cc() string {
	if p.CountryCode == "" {
		return DefaultCountryCode
	}
	return p.CountryCode
}

// IsPhone reports whether s only contains phone characters and has at least
// minDigits digits.
func IsPhone(s string, minDigits int) bool {
	s = strings.TrimSpace(s)
	return s != "" && reAllowed.MatchString(s) && len(DigitsOnly(s)) >= minDigits
}

// Norm rules: strip spaces/dashes/parens; 00.. -> +..; CC.. -> +CC..; 0.. -> +CC..; ensure leading +.
// Returns "" for input that is not a phone number.
func (p Phones) Norm(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || reLetters.MatchString(s) || !reAllowed.MatchString(s) {
		return ""
	}

	repl := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "\n", "", "\r", "", "\t", "")
	s = repl.Replace(s)
	if s == "" || s == "+" {
		return ""
	}
	cc := p.cc()

	switch {
	case strings.HasPrefix(s, "+"):
	case strings.HasPrefix(s, "00"):
		s = "+" + s[2:]
	case strings.HasPrefix(s, "0"):
		s = "+" + cc + s[1:]
	default:
		// bare digits, with or without the calling code: treat as already international
		s = "+" + s
	}
	return s
}

// Variants lists the spellings a stored number may have been saved under.
func (p Phones) Variants(raw string) []string {
	n := p.Norm(raw)
	if n == "" {
		return nil
	}
	cc := p.cc()
	out := []string{n}
	seen := map[string]bool{n: true}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	add(strings.TrimSpace(raw))
	add(n[1:]) // drop plus: 62811…
	if strings.HasPrefix(n, "+"+cc) && len(n) > len(cc)+1 {
		add("0" + n[len(cc)+1:]) // 0811…
	}
	return out
}

func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
