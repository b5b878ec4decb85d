package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactorDisabledPassesThrough(t *testing.T) {
	in := "reach me at sam@example.com"
	out, changed := Redactor{}.Apply(in)
	if changed || out != in {
		t.Fatalf("Apply() = %q, %v; want input unchanged", out, changed)
	}
}

func TestRedactorLeavesConferenceDatesAlone(t *testing.T) {
	in := "The summit runs Oct 8-10 and tickets are $399."
	out, changed := NewRedactor(true).Apply(in)
	if changed || out != in {
		t.Fatalf("Apply() = %q, %v; want %q unchanged", out, changed, in)
	}
}
