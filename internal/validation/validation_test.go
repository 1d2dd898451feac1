package validation

import "testing"

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"ann@example.com", true},
		{"a.b+c@shop.co.uk", true},
		{"not-an-email", false},
		{"Ann <ann@example.com>", false},
		{"ann@localhost", false},
		{"", true},
	}
	for _, tt := range tests {
		ve := &ValidationErrors{}
		ValidateEmail(ve, "email", tt.in)
		if ve.HasErrors() == tt.valid {
			t.Errorf("ValidateEmail(%q) valid=%v, errors=%v", tt.in, tt.valid, ve.Errors)
		}
	}
}

func TestValidateEnumList(t *testing.T) {
	ve := &ValidationErrors{}
	ValidateEnumList(ve, "channels", []string{"email", "pigeon", "fax"}, ValidChannels)
	if len(ve.Errors) != 1 {
		t.Errorf("expected a single error, got %v", ve.Errors)
	}
}

func TestValidateUpload(t *testing.T) {
	ve := &ValidationErrors{}
	ValidateUpload(ve, "stock.csv", 100)
	if ve.HasErrors() {
		t.Errorf("unexpected errors %v", ve.Errors)
	}
	ve = &ValidationErrors{}
	ValidateUpload(ve, "../evil.exe", 100)
	if len(ve.Errors) != 2 {
		t.Errorf("expected traversal and type errors, got %v", ve.Errors)
	}
	ve = &ValidationErrors{}
	ValidateUpload(ve, "stock.csv", 0)
	if !ve.HasErrors() {
		t.Error("expected empty file error")
	}
}

func TestValidatePhone(t *testing.T) {
	ve := &ValidationErrors{}
	ValidatePhone(ve, "phone", "+12065550100")
	ValidatePhone(ve, "phone", "")
	if ve.HasErrors() {
		t.Fatalf("unexpected errors %v", ve.Errors)
	}
	ValidatePhone(ve, "phone", "555-0100")
	if !ve.HasErrors() {
		t.Error("expected invalid phone error")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Ann@Example.COM "); got != "ann@example.com" {
		t.Errorf("got %q", got)
	}
}
