package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// Redactor masks high-risk PII before text leaves the process for storage.
// The zero value is disabled and passes text through untouched.
type Redactor struct {
	enabled bool
}

func NewRedactor(enabled bool) Redactor {
	return Redactor{enabled: enabled}
}

func (r Redactor) Enabled() bool { return r.enabled }

// Apply redacts input when enabled.
func (r Redactor) Apply(input string) (string, bool) {
	if !r.enabled {
		return input, false
	}
	return RedactPII(input)
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	// Cards go before phones so long digit runs are not classified as phone numbers.
	for _, rule := range []struct {
		re   *regexp.Regexp
		mask string
	}{
		{emailPattern, "[REDACTED_EMAIL]"},
		{cardPattern, "[REDACTED_CARD]"},
		{phonePattern, "[REDACTED_PHONE]"},
	} {
		next := rule.re.ReplaceAllString(out, rule.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
