package payment

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"+959123456789", "09123456789"},
		{"959123456789", "09123456789"},
		{"123456789", "09123456789"}, // bare 9-digit subscriber number
		{"09123456789", "09123456789"},
		{"09-123 456 789", "09123456789"},
		{"(+95) 9 123 456 789", "09123456789"},
		{"+95 9 123456789", "09123456789"},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidLocalPhone(t *testing.T) {
	valid := []string{"09123456789", "09987654321"}
	for _, p := range valid {
		if !ValidLocalPhone(p) {
			t.Errorf("ValidLocalPhone(%q) = false, want true", p)
		}
	}

	invalid := []string{
		"",
		"0912345678",   // 10 digits
		"091234567890", // 12 digits
		"19123456789",  // wrong prefix
		"09one234567",  // non-digit
	}
	for _, p := range invalid {
		if ValidLocalPhone(p) {
			t.Errorf("ValidLocalPhone(%q) = true, want false", p)
		}
	}
}

func TestNormalizeThenValidate(t *testing.T) {
	// too-short national numbers normalize but fail validation
	if ValidLocalPhone(NormalizePhone("+95912345678")) {
		t.Error("8-digit subscriber number should not validate")
	}
	if !ValidLocalPhone(NormalizePhone("+959123456789")) {
		t.Error("9-digit subscriber number should validate")
	}
}
