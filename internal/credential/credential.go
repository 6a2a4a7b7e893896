// Package credential generates the throwaway login and secret path token
// handed to the terminal server for each shared session.
package credential

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
)

const (
	// PasswordLength is the number of decimal digits in a session password.
	PasswordLength = 6
	// TokenLength is the number of characters in a secret path token.
	TokenLength = 32

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits        = "0123456789"
)

var adjectives = [20]string{
	"quick", "bright", "calm", "brave", "cool", "smart", "swift", "bold", "keen", "wise",
	"fair", "kind", "warm", "glad", "neat", "pure", "safe", "clear", "fresh", "light",
}

var nouns = [20]string{
	"fox", "wolf", "bear", "hawk", "deer", "owl", "lynx", "seal", "crow", "dove",
	"lion", "tiger", "eagle", "shark", "whale", "otter", "raven", "heron", "finch", "swan",
}

// Credentials is one freshly generated set of session secrets.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Generator draws credentials from a random source. The zero value reads
// from crypto/rand.
type Generator struct {
	Rand io.Reader
}

// New returns a Generator backed by crypto/rand.
func New() *Generator { return &Generator{Rand: rand.Reader} }

// Generate returns a complete credential set for a new session.
func (g *Generator) Generate() (Credentials, error) {
	user, err := g.Username()
	if err != nil {
		return Credentials{}, err
	}
	pass, err := g.Password()
	if err != nil {
		return Credentials{}, err
	}
	tok, err := g.Token()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: user, Password: pass, Token: tok}, nil
}

// Password returns six independent decimal digits. Leading zeros are kept.
func (g *Generator) Password() (string, error) {
	return g.draw(digits, PasswordLength)
}

// Username returns {adjective}{noun}{10..98}, e.g. "swiftotter42".
func (g *Generator) Username() (string, error) {
	a, err := g.intn(len(adjectives))
	if err != nil {
		return "", err
	}
	n, err := g.intn(len(nouns))
	if err != nil {
		return "", err
	}
	num, err := g.intn(89)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%d", adjectives[a], nouns[n], 10+num), nil
}

// Token returns a 32-character alphanumeric secret used as a URL path
// segment. It must come from a cryptographic source.
func (g *Generator) Token() (string, error) {
	return g.draw(tokenAlphabet, TokenLength)
}

func (g *Generator) draw(alphabet string, n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	for range n {
		i, err := g.intn(len(alphabet))
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[i])
	}
	return b.String(), nil
}

// intn returns a uniform value in [0,n) for n <= 256, rejecting bytes past
// the largest multiple of n so no value is favoured.
func (g *Generator) intn(n int) (int, error) {
	src := g.Rand
	if src == nil {
		src = rand.Reader
	}
	limit := 256 - 256%n
	var buf [1]byte
	for {
		if _, err := io.ReadFull(src, buf[:]); err != nil {
			return 0, fmt.Errorf("read random source: %w", err)
		}
		if int(buf[0]) < limit {
			return int(buf[0]) % n, nil
		}
	}
}
