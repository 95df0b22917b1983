// Package envelope packs a cipher text and the descriptor of the value it
// holds into the single string that is persisted for a key.
//
// Wire format, version 1:
//
//	<type>#<elem>#1V@<cipher text>
//
// <type> is the head tag of the value descriptor, <elem> the full tag of the
// element descriptor (empty unless the value is a list, map or set). The
// cipher text is standard base64 and never contains '#' or '@'. Envelopes
// already written must keep decoding: add versions, never change this one.
package envelope

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stevemurr/hawk/typedesc"
)

const (
	// Version is the envelope version written by Pack.
	Version = 1

	infoDelimiter = "#"
	dataDelimiter = "@"
	versionSuffix = "V"
)

// ErrMalformed is returned by Unpack for strings that are not envelopes.
var ErrMalformed = errors.New("envelope: malformed")

// Envelope is the unpacked form of a persisted value.
type Envelope struct {
	CipherText string
	Type       typedesc.Descriptor
	Elem       *typedesc.Descriptor
}

// New splits a full descriptor into the envelope's type and element parts.
func New(cipherText string, info typedesc.Descriptor) Envelope {
	return Envelope{CipherText: cipherText, Type: info.Head(), Elem: info.Elem}
}

// Info returns the full descriptor of the stored value.
func (e Envelope) Info() typedesc.Descriptor {
	d := e.Type.Head()
	d.Elem = e.Elem
	return d
}

// Pack returns the envelope string for the triple.
func (e Envelope) Pack() (string, error) {
	return Pack(e.CipherText, e.Type, e.Elem)
}

// Pack builds the envelope string. The element descriptor must be present
// exactly when t is a list, map or set.
func Pack(cipherText string, t typedesc.Descriptor, elem *typedesc.Descriptor) (string, error) {
	if strings.ContainsAny(cipherText, infoDelimiter+dataDelimiter) {
		return "", fmt.Errorf("envelope: cipher text contains a reserved character")
	}
	head := t.Head()
	full := head
	full.Elem = elem
	if err := full.Validate(); err != nil {
		return "", fmt.Errorf("envelope: %w", err)
	}
	elemTag := ""
	if elem != nil {
		elemTag = elem.String()
	}

	var sb strings.Builder
	sb.Grow(len(cipherText) + len(elemTag) + 16)
	sb.WriteString(head.HeadTag())
	sb.WriteString(infoDelimiter)
	sb.WriteString(elemTag)
	sb.WriteString(infoDelimiter)
	sb.WriteString(strconv.Itoa(Version))
	sb.WriteString(versionSuffix)
	sb.WriteString(dataDelimiter)
	sb.WriteString(cipherText)
	return sb.String(), nil
}

// Unpack parses an envelope string. Every failure wraps ErrMalformed.
func Unpack(s string) (Envelope, error) {
	info, cipherText, ok := strings.Cut(s, dataDelimiter)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: missing data delimiter", ErrMalformed)
	}
	if strings.Contains(cipherText, dataDelimiter) || strings.Contains(cipherText, infoDelimiter) {
		return Envelope{}, fmt.Errorf("%w: reserved character in cipher text", ErrMalformed)
	}
	parts := strings.Split(info, infoDelimiter)
	if len(parts) != 3 {
		return Envelope{}, fmt.Errorf("%w: expected 3 info fields, got %d", ErrMalformed, len(parts))
	}
	if err := checkVersion(parts[2]); err != nil {
		return Envelope{}, err
	}

	t, err := typedesc.ParseHead(parts[0])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	env := Envelope{CipherText: cipherText, Type: t}
	if parts[1] != "" {
		elem, err := typedesc.Parse(parts[1])
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		env.Elem = &elem
	}
	if t.Kind.Parametrized() != (env.Elem != nil) {
		return Envelope{}, fmt.Errorf("%w: element type present=%t for %s", ErrMalformed, env.Elem != nil, t.Kind)
	}
	return env, nil
}

func checkVersion(field string) error {
	num, ok := strings.CutSuffix(field, versionSuffix)
	if !ok {
		return fmt.Errorf("%w: missing version marker", ErrMalformed)
	}
	v, err := strconv.Atoi(num)
	if err != nil {
		return fmt.Errorf("%w: bad version %q", ErrMalformed, num)
	}
	if v < 1 || v > Version {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformed, v)
	}
	return nil
}
