package registry

import "testing"

func TestNormalizeCategory(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "General"},
		{"   ", "General"},
		{"urgent", "Urgent"},
		{"Urgent", "Urgent"},
		{"  backlog  ", "Backlog"},
		{"q3 planning", "Q3 planning"},
		{"éclair", "Éclair"},
	}
	for _, c := range cases {
		if got := normalizeCategory(c.in); got != c.want {
			t.Errorf("normalizeCategory(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
