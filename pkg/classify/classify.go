// Package classify decides what a decoded payload is and walks the user
// through acting on it.
package classify

import (
	"errors"
	"regexp"
	"strings"
)

// Kind is the category of a decoded payload.
type Kind int

const (
	Text Kind = iota
	URL
	Phone
	IDNumber
)

func (k Kind) String() string {
	switch k {
	case URL:
		return "URL"
	case Phone:
		return "Phone"
	case IDNumber:
		return "IDNumber"
	default:
		return "Text"
	}
}

// ErrEmpty is returned for payloads that are empty or only whitespace.
var ErrEmpty = errors.New("classify: empty payload")

const telPrefix = "tel:"

var idNumberRe = regexp.MustCompile(`^\d{15,18}$`)

// Result is a classified payload. Value is what actions use: the number
// without its tel: prefix for phones, the raw text otherwise.
type Result struct {
	Kind  Kind
	Value string
	Raw   string
}

// Classify maps decoded text to a Result. Rules are checked in order and
// the first match wins.
func Classify(text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmpty
	}
	switch {
	case strings.HasPrefix(text, "http://"), strings.HasPrefix(text, "https://"):
		return Result{Kind: URL, Value: text, Raw: text}, nil
	case strings.HasPrefix(text, telPrefix):
		return Result{Kind: Phone, Value: strings.TrimPrefix(text, telPrefix), Raw: text}, nil
	case idNumberRe.MatchString(text):
		return Result{Kind: IDNumber, Value: text, Raw: text}, nil
	default:
		return Result{Kind: Text, Value: text, Raw: text}, nil
	}
}

// Truncate shortens s to at most n runes, appending "..." when it cut
// anything.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos] + "..."
		}
		i++
	}
	return s
}
