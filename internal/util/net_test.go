package util

import "testing"

func TestIsPublicBind(t *testing.T) {
	cases := map[string]bool{
		"":                false,
		"127.0.0.1":       false,
		"127.0.0.1:7690":  false,
		"localhost:7690":  false,
		"localhost":       false,
		"[::1]:7690":      false,
		"0.0.0.0":         true,
		":7690":           true,
		"192.168.1.4:80":  true,
		"example.com:443": true,
		"devbox.lan":      true,
	}
	for addr, want := range cases {
		if got := IsPublicBind(addr); got != want {
			t.Errorf("IsPublicBind(%q) = %v, want %v", addr, got, want)
		}
	}
}
