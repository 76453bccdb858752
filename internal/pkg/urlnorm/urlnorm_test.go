package urlnorm

import "testing"

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"HTTPS://Example.COM/Path/", "https://example.com/Path"},
		{"http://example.com:80/a", "http://example.com/a"},
		{"https://example.com:443/a?utm_source=x&b=1", "https://example.com/a?b=1"},
		{"https://example.com/a#section", "https://example.com/a"},
		{"https://example.com/a?z=2&a=1", "https://example.com/a?a=1&z=2"},
		{"https://example.com/", "https://example.com/"},
		{"not a url", "not a url"},
	}
	for _, c := range cases {
		if got := Canonical(c.in); got != c.want {
			t.Errorf("Canonical(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	in := "HTTP://A.example.com:80/x/?utm_medium=m&q=1#f"
	once := Canonical(in)
	if twice := Canonical(once); twice != once {
		t.Fatalf("not idempotent: %q vs %q", once, twice)
	}
}

func TestHost(t *testing.T) {
	if got := Host("https://ArXiv.org:443/abs/1234"); got != "arxiv.org" {
		t.Fatalf("Host = %q", got)
	}
}
