package fingerprint

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Hello, World!", "hello world"},
		{"  Breaking:   Markets  Rally ", "breaking markets rally"},
		{"ＦＵＬＬＷＩＤＴＨ Title", "fullwidth title"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://Example.com/news/story/", "https://example.com/news/story"},
		{"http://www.example.com/a?utm_source=x&id=2#frag", "https://example.com/a?id=2"},
		{"https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestComputeIgnoresCosmeticDifferences(t *testing.T) {
	a := Compute("Markets Rally Today", "https://example.com/markets?utm_campaign=rss")
	b := Compute("markets rally today!", "http://www.example.com/markets/")
	if a != b {
		t.Errorf("fingerprints differ for equivalent items: %s vs %s", a, b)
	}

	c := Compute("Markets Fall Today", "https://example.com/markets")
	if a == c {
		t.Error("different titles must produce different fingerprints")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}
