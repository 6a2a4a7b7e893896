package security

import (
	"errors"
	"os"
	"regexp"
	"strings"
)

// ClassifiedError separates a user-safe message from verbose debug details.
// Err, when set, is the wrapped cause so errors.Is sees through it.
type ClassifiedError struct {
	UserSafe    string
	DebugDetail string
	Err         error
}

func (e *ClassifiedError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.UserSafe) == "" {
		return "operation failed"
	}
	return e.UserSafe
}

// Unwrap returns the cause.
func (e *ClassifiedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewClassifiedError creates a new error with separated user-safe and debug details.
func NewClassifiedError(userSafe, debugDetail string) error {
	return &ClassifiedError{UserSafe: userSafe, DebugDetail: debugDetail}
}

// Classify wraps cause with a user-safe message. The debug detail is the
// cause's text with secrets redacted.
func Classify(cause error, userSafe string) error {
	detail := ""
	if cause != nil {
		detail = RedactMessage(cause.Error())
	}
	return &ClassifiedError{UserSafe: userSafe, DebugDetail: detail, Err: cause}
}

// UserMessage returns a message safe to show in CLI/TUI contexts.
func UserMessage(err error, redact bool) string {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		msg := ce.UserSafe
		if msg == "" {
			msg = "operation failed"
		}
		if redact {
			return RedactMessage(msg)
		}
		return msg
	}
	if redact {
		return RedactMessage(err.Error())
	}
	return err.Error()
}

// DebugMessage returns detailed error text for logs.
func DebugMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		if strings.TrimSpace(ce.DebugDetail) != "" {
			return ce.DebugDetail
		}
	}
	return err.Error()
}

// tokenLike matches path segments shaped like a session token.
var tokenLike = regexp.MustCompile(`/([A-Za-z0-9]{32})(/|\b)`)

// RedactMessage replaces the home directory with ~ and masks anything that
// looks like a session token path segment.
func RedactMessage(msg string) string {
	if msg == "" {
		return msg
	}
	out := msg
	if home, err := os.UserHomeDir(); err == nil && home != "" && home != "/" {
		out = strings.ReplaceAll(out, home, "~")
	}
	return tokenLike.ReplaceAllStringFunc(out, func(m string) string {
		sub := tokenLike.FindStringSubmatch(m)
		return "/" + RedactToken(sub[1]) + sub[2]
	})
}

// RedactToken keeps the first four characters of a secret and masks the rest.
func RedactToken(tok string) string {
	if len(tok) <= 4 {
		return strings.Repeat("*", len(tok))
	}
	return tok[:4] + strings.Repeat("*", 8)
}

// RedactSecrets masks every occurrence of the given secrets in msg.
func RedactSecrets(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s == "" {
			continue
		}
		msg = strings.ReplaceAll(msg, s, RedactToken(s))
	}
	return msg
}
