package credential

import (
	"bytes"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/iotest"
)

var (
	usernameRe = regexp.MustCompile(`^[a-z]+[a-z]+[0-9]{2}$`)
	passwordRe = regexp.MustCompile(`^[0-9]{6}$`)
	tokenRe    = regexp.MustCompile(`^[A-Za-z0-9]{32}$`)
)

func TestGenerateShapes(t *testing.T) {
	g := New()
	for i := 0; i < 200; i++ {
		c, err := g.Generate()
		if err != nil {
			t.Fatal(err)
		}
		if !usernameRe.MatchString(c.Username) {
			t.Fatalf("bad username %q", c.Username)
		}
		if !passwordRe.MatchString(c.Password) {
			t.Fatalf("bad password %q", c.Password)
		}
		if !tokenRe.MatchString(c.Token) {
			t.Fatalf("bad token %q", c.Token)
		}
	}
}

func TestUsernameUsesWordLists(t *testing.T) {
	g := New()
	for i := 0; i < 100; i++ {
		u, err := g.Username()
		if err != nil {
			t.Fatal(err)
		}
		ok := false
		for _, a := range adjectives {
			if !strings.HasPrefix(u, a) {
				continue
			}
			for _, n := range nouns {
				if strings.HasPrefix(u[len(a):], n) {
					ok = true
				}
			}
		}
		if !ok {
			t.Fatalf("username %q not built from word lists", u)
		}
		num := u[len(u)-2:]
		if num < "10" || num > "98" {
			t.Fatalf("number suffix %q out of [10,99)", num)
		}
	}
}

func TestZeroSourceKeepsLeadingZeros(t *testing.T) {
	g := &Generator{Rand: bytes.NewReader(make([]byte, 64))}
	p, err := g.Password()
	if err != nil {
		t.Fatal(err)
	}
	if p != "000000" {
		t.Fatalf("expected 000000, got %q", p)
	}
	u, err := g.Username()
	if err != nil {
		t.Fatal(err)
	}
	if u != "quickfox10" {
		t.Fatalf("expected quickfox10, got %q", u)
	}
}

func TestRejectsBiasedBytes(t *testing.T) {
	// 255 lies past the last full multiple of 10 and must be skipped.
	g := &Generator{Rand: bytes.NewReader([]byte{255, 255, 7, 1, 2, 3, 4, 5})}
	p, err := g.Password()
	if err != nil {
		t.Fatal(err)
	}
	if p != "712345" {
		t.Fatalf("expected 712345, got %q", p)
	}
}

func TestTokensAreFresh(t *testing.T) {
	g := New()
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		tok, err := g.Token()
		if err != nil {
			t.Fatal(err)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("token reused: %s", tok)
		}
		seen[tok] = struct{}{}
	}
}

func TestRandomSourceErrorPropagates(t *testing.T) {
	boom := errors.New("entropy exhausted")
	g := &Generator{Rand: iotest.ErrReader(boom)}
	if _, err := g.Generate(); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}
