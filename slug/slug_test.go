package slug

import "testing"

func TestGenerateIsValid(t *testing.T) {
	cases := []struct{ carrier, code string }{
		{"ctt", "RR123456789PT"},
		{"dhl", "JD0123456789"},
		{"correios-brazil", "AB1234567890123456789CD"},
	}
	for _, c := range cases {
		s, err := Generate(c.carrier, c.code)
		if err != nil {
			t.Fatalf("Generate(%q, %q): %v", c.carrier, c.code, err)
		}
		if !IsValid(s) {
			t.Errorf("Generate(%q, %q) = %q, not a valid slug", c.carrier, c.code, s)
		}
		if len(s) > maxLen {
			t.Errorf("slug %q exceeds max length %d", s, maxLen)
		}
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{"ctt-rr1234-ab12", "a", "abc-123-def456"}
	invalid := []string{"", "Abc-123", "abc_123", "abc 123", string(make([]byte, 40))}
	for _, s := range valid {
		if !IsValid(s) {
			t.Errorf("expected %q to be valid", s)
		}
	}
	for _, s := range invalid {
		if IsValid(s) {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestIsTrackingCodeValid(t *testing.T) {
	if !IsTrackingCodeValid("RR123456789PT") {
		t.Error("expected valid tracking code to pass")
	}
	if IsTrackingCodeValid("") {
		t.Error("expected empty tracking code to fail")
	}
	if IsTrackingCodeValid("has spaces") {
		t.Error("expected tracking code with spaces to fail")
	}
}

func TestSimilarSlugGeneration(t *testing.T) {
	s1, _ := Generate("ctt", "RR123456789PT")
	s2, _ := Generate("ctt", "RR123456789PT")
	if s1 == s2 {
		t.Error("expected two generated slugs for the same input to differ (random suffix)")
	}
}
