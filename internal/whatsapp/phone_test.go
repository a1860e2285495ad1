package whatsapp

import "testing"

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"9876543210", "+919876543210"},
		{"09876543210", "+919876543210"},
		{"+919876543210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"00919876543210", "+919876543210"},
		{"+1 (415) 555-0132", "+14155550132"},
		{"98765 43210", "+919876543210"},
		{"", ""},
		{"   ", ""},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := NormalizePhone(tc.in); got != tc.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChatIDToPhone(t *testing.T) {
	t.Parallel()

	if got := ChatIDToPhone("919876543210@c.us"); got != "+919876543210" {
		t.Fatalf("got %q", got)
	}
	if got := ChatIDToPhone("+14155550132"); got != "+14155550132" {
		t.Fatalf("got %q", got)
	}
}
