// Package textx contains tests for the text utilities.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated text", 9, "truncated..."},
		{"héllo wörld", 5, "héllo..."},
		{"anything", 0, ""},
	}
	for _, c := range cases {
		if got := Truncate(c.in, c.n); got != c.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}

func TestSnippet(t *testing.T) {
	in := "<html>\n  <body>\x00 Your   Analysis Jobs </body>\n</html>"
	if got := Snippet(in, 200); got != "<html> <body> Your Analysis Jobs </body> </html>" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Snippet(in, 6); got != "<html>..." {
		t.Fatalf("unexpected: %q", got)
	}
}
