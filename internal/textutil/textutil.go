// Package textutil converts between the bytes exchanged with a device and the
// text shown and typed in the terminal.
package textutil

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Line endings appended to sent lines.
const (
	NewlineCRLF = "\r\n"
	NewlineLF   = "\n"
	NewlineCR   = "\r"
	NewlineNone = ""
)

var newlineNames = []struct {
	name, value string
}{
	{"crlf", NewlineCRLF},
	{"lf", NewlineLF},
	{"cr", NewlineCR},
	{"none", NewlineNone},
}

// ParseNewline returns the line ending called name.
func ParseNewline(name string) (string, error) {
	for _, n := range newlineNames {
		if strings.EqualFold(n.name, name) {
			return n.value, nil
		}
	}
	return "", fmt.Errorf("textutil: unknown newline %q (want crlf, lf, cr or none)", name)
}

// NewlineName returns the name of the line ending nl.
func NewlineName(nl string) string {
	for _, n := range newlineNames {
		if n.value == nl {
			return n.name
		}
	}
	return "?"
}

// NextNewline returns the line ending after nl in the cycle crlf, lf, cr, none.
func NextNewline(nl string) string {
	for i, n := range newlineNames {
		if n.value == nl {
			return newlineNames[(i+1)%len(newlineNames)].value
		}
	}
	return NewlineCRLF
}

// ToHex renders data as space-separated uppercase hex pairs.
func ToHex(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(data) * 3)
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}

// FromHex parses hex digits, ignoring whitespace and the separators ':' and
// '-'. An odd number of digits is an error.
func FromHex(s string) ([]byte, error) {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n', ':', '-':
			return -1
		}
		return r
	}, s)
	data, err := hex.DecodeString(digits)
	if err != nil {
		return nil, fmt.Errorf("textutil: invalid hex %q: %w", s, err)
	}
	return data, nil
}

// ToCaret renders control characters below 0x20 in caret notation (^M for
// CR). With keepNewline, LF is left as is.
func ToCaret(s string, keepNewline bool) string {
	if !hasControl(s, keepNewline) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 && !(keepNewline && c == '\n') {
			b.WriteByte('^')
			b.WriteByte(c + 0x40)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func hasControl(s string, keepNewline bool) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 && !(keepNewline && s[i] == '\n') {
			return true
		}
	}
	return false
}

// CRLFFolder turns CRLF into LF in a stream that arrives in fragments. A CR
// at the end of a fragment is held back until the next fragment shows
// whether an LF follows it.
type CRLFFolder struct {
	pendingCR bool
}

// Fold returns the text of fragment with CRLF pairs replaced by LF.
func (f *CRLFFolder) Fold(fragment string) string {
	if fragment == "" {
		return ""
	}
	if f.pendingCR {
		f.pendingCR = false
		if fragment[0] != '\n' {
			fragment = "\r" + fragment
		}
	}
	fragment = strings.ReplaceAll(fragment, "\r\n", "\n")
	if strings.HasSuffix(fragment, "\r") {
		f.pendingCR = true
		fragment = fragment[:len(fragment)-1]
	}
	return fragment
}

// Flush returns a held-back CR, if any.
func (f *CRLFFolder) Flush() string {
	if f.pendingCR {
		f.pendingCR = false
		return "\r"
	}
	return ""
}

// Pending reports whether a CR is being held back.
func (f *CRLFFolder) Pending() bool { return f.pendingCR }

// EncodeLine builds the bytes for a typed line and the text to echo. In hex
// mode the input is parsed as hex and the echo is the normalised hex of the
// whole payload, newline included.
func EncodeLine(input, newline string, hexMode bool) (data []byte, echo string, err error) {
	if !hexMode {
		return []byte(input + newline), input, nil
	}
	payload, err := FromHex(input)
	if err != nil {
		return nil, "", err
	}
	payload = append(payload, newline...)
	return payload, ToHex(payload), nil
}
