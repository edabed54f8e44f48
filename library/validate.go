package library

import "strings"

// ValidEmail reports whether s looks like local@domain.tld after trimming
// surrounding whitespace. The domain must contain at least one dot. This is
// a shape check only; no DNS or mailbox verification.
func ValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	at := strings.Index(s, "@")
	if at <= 0 || at != strings.LastIndex(s, "@") {
		return false
	}
	local, domain := s[:at], s[at+1:]
	if local == "" || domain == "" {
		return false
	}
	if strings.ContainsAny(s, " \t") {
		return false
	}
	dot := strings.Index(domain, ".")
	// The dot must separate non-empty segments.
	return dot > 0 && dot < len(domain)-1
}

// NormalizeISBN strips hyphens and spaces and upper-cases a trailing x so
// the same ISBN always maps to the same catalog key.
func NormalizeISBN(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	return strings.ToUpper(s)
}

// ValidISBN reports whether s is a valid ISBN-10 or ISBN-13 once hyphens
// and spaces are removed.
func ValidISBN(s string) bool {
	s = NormalizeISBN(s)
	switch len(s) {
	case 10:
		return validISBN10(s)
	case 13:
		return validISBN13(s)
	default:
		return false
	}
}

// validISBN10 checks the weighted mod-11 checksum. The check digit may be
// 'X', representing 10.
func validISBN10(s string) bool {
	sum := 0
	for i := 0; i < 9; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		sum += (10 - i) * int(d-'0')
	}
	check := 0
	switch c := s[9]; {
	case c == 'X':
		check = 10
	case c >= '0' && c <= '9':
		check = int(c - '0')
	default:
		return false
	}
	return (sum+check)%11 == 0
}

// validISBN13 checks the alternating 1,3-weighted mod-10 checksum.
func validISBN13(s string) bool {
	sum := 0
	for i := 0; i < 12; i++ {
		d := s[i]
		if d < '0' || d > '9' {
			return false
		}
		if i%2 == 0 {
			sum += int(d - '0')
		} else {
			sum += 3 * int(d-'0')
		}
	}
	last := s[12]
	if last < '0' || last > '9' {
		return false
	}
	return (10-sum%10)%10 == int(last-'0')
}
