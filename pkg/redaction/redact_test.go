package redaction

import (
	"strings"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	r := NewRedactor()
	out := r.Redact("contact me at jane.doe+x@example.co.uk please")
	if strings.Contains(out, "example.co.uk") {
		t.Errorf("email not redacted: %q", out)
	}
	if !strings.Contains(out, "[email]") {
		t.Errorf("missing [email] marker: %q", out)
	}
}

func TestRedactPhone(t *testing.T) {
	r := NewRedactor()
	for _, in := range []string{
		"call +90 533 123 4567 tomorrow",
		"my number is 0533 861 22 33",
	} {
		out := r.Redact(in)
		if !strings.Contains(out, "[phone]") {
			t.Errorf("phone not redacted in %q -> %q", in, out)
		}
	}
}

func TestRedactURL(t *testing.T) {
	r := NewRedactor()
	out := r.Redact("see https://listings.example.com/a?b=1 and www.other.org")
	if strings.Contains(out, "listings.example.com") || strings.Contains(out, "other.org") {
		t.Errorf("url not redacted: %q", out)
	}
}

func TestRedactKeepsPlainText(t *testing.T) {
	r := NewRedactor()
	in := "2 bedroom apartment in Kyrenia for 600-800 pounds"
	if out := r.Redact(in); out != in {
		t.Errorf("plain text mangled: %q", out)
	}
}
