// Package typedesc describes the shape of stored values.
//
// A Descriptor is produced when a value is written and travels with it inside
// the envelope. On read it is enough to rebuild the value (see Coerce) or to
// check that a caller's target type matches what was stored (see Compatible),
// without any schema kept outside the data itself.
//
// Descriptors have a compact tag form:
//
//	a        any (element type not known statically)
//	b        bool
//	i        signed integer
//	u        unsigned integer
//	f        floating point
//	s        string
//	x        byte string
//	o        object, optionally o{name} with a query-escaped type name
//	l(T)     ordered list of T
//	m(T)     string-keyed map of T
//	t(T)     set of T
//
// Changing a tag letter breaks every envelope already on disk.
package typedesc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidTag is returned when a tag does not follow the grammar.
	ErrInvalidTag = errors.New("typedesc: invalid tag")

	// ErrIncompatible is returned when a value does not match a descriptor.
	ErrIncompatible = errors.New("typedesc: incompatible value")
)

// Kind identifies how a value is reconstructed.
type Kind uint8

const (
	Any Kind = iota
	Bool
	Int
	Uint
	Float
	String
	Bytes
	Object
	List
	Map
	Set
)

var kindTags = map[Kind]byte{
	Any:    'a',
	Bool:   'b',
	Int:    'i',
	Uint:   'u',
	Float:  'f',
	String: 's',
	Bytes:  'x',
	Object: 'o',
	List:   'l',
	Map:    'm',
	Set:    't',
}

var tagKinds = func() map[byte]Kind {
	m := make(map[byte]Kind, len(kindTags))
	for k, t := range kindTags {
		m[t] = k
	}
	return m
}()

func (k Kind) String() string {
	switch k {
	case Any:
		return "any"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Uint:
		return "uint"
	case Float:
		return "float"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Object:
		return "object"
	case List:
		return "list"
	case Map:
		return "map"
	case Set:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Parametrized reports whether descriptors of this kind carry an element
// descriptor.
func (k Kind) Parametrized() bool {
	return k == List || k == Map || k == Set
}

// Descriptor is the tagged union describing one value.
type Descriptor struct {
	Kind Kind
	// Name is the Go type name of an Object. It is informational only.
	Name string
	// Elem describes the elements of a List, Map or Set and is nil otherwise.
	Elem *Descriptor
}

// Of is shorthand for a descriptor without element.
func Of(k Kind) Descriptor {
	return Descriptor{Kind: k}
}

// ListOf returns a List descriptor of elem.
func ListOf(elem Descriptor) Descriptor {
	return Descriptor{Kind: List, Elem: &elem}
}

// MapOf returns a Map descriptor of elem.
func MapOf(elem Descriptor) Descriptor {
	return Descriptor{Kind: Map, Elem: &elem}
}

// SetOf returns a Set descriptor of elem.
func SetOf(elem Descriptor) Descriptor {
	return Descriptor{Kind: Set, Elem: &elem}
}

// ObjectOf returns an Object descriptor carrying name.
func ObjectOf(name string) Descriptor {
	return Descriptor{Kind: Object, Name: name}
}

// Head returns d without its element descriptor.
func (d Descriptor) Head() Descriptor {
	return Descriptor{Kind: d.Kind, Name: d.Name}
}

// Equal reports whether two descriptors are identical, names included.
func (d Descriptor) Equal(o Descriptor) bool {
	if d.Kind != o.Kind || d.Name != o.Name {
		return false
	}
	if d.Elem == nil || o.Elem == nil {
		return d.Elem == nil && o.Elem == nil
	}
	return d.Elem.Equal(*o.Elem)
}

// Validate checks the element invariant throughout the descriptor.
func (d Descriptor) Validate() error {
	if _, ok := kindTags[d.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidTag, d.Kind)
	}
	if d.Kind.Parametrized() != (d.Elem != nil) {
		return fmt.Errorf("%w: %s must %shave an element type", ErrInvalidTag, d.Kind, notIf(d.Kind.Parametrized()))
	}
	if d.Name != "" && d.Kind != Object {
		return fmt.Errorf("%w: only objects carry a name", ErrInvalidTag)
	}
	if d.Elem != nil {
		return d.Elem.Validate()
	}
	return nil
}

func notIf(b bool) string {
	if b {
		return ""
	}
	return "not "
}

// HeadTag returns the tag of d's own kind, ignoring any element.
func (d Descriptor) HeadTag() string {
	var sb strings.Builder
	d.writeHead(&sb)
	return sb.String()
}

// String returns the full tag of d.
func (d Descriptor) String() string {
	var sb strings.Builder
	d.write(&sb)
	return sb.String()
}

func (d Descriptor) writeHead(sb *strings.Builder) {
	sb.WriteByte(kindTags[d.Kind])
	if d.Kind == Object && d.Name != "" {
		sb.WriteByte('{')
		sb.WriteString(url.QueryEscape(d.Name))
		sb.WriteByte('}')
	}
}

func (d Descriptor) write(sb *strings.Builder) {
	d.writeHead(sb)
	if d.Elem != nil {
		sb.WriteByte('(')
		d.Elem.write(sb)
		sb.WriteByte(')')
	}
}

// Parse reads a full tag as produced by String.
func Parse(tag string) (Descriptor, error) {
	p := parser{in: tag}
	d, err := p.descriptor(true)
	if err != nil {
		return Descriptor{}, err
	}
	if p.pos != len(p.in) {
		return Descriptor{}, fmt.Errorf("%w: trailing data in %q", ErrInvalidTag, tag)
	}
	return d, nil
}

// ParseHead reads a tag as produced by HeadTag. Parametrized kinds come back
// with a nil Elem.
func ParseHead(tag string) (Descriptor, error) {
	p := parser{in: tag}
	d, err := p.descriptor(false)
	if err != nil {
		return Descriptor{}, err
	}
	if p.pos != len(p.in) {
		return Descriptor{}, fmt.Errorf("%w: trailing data in %q", ErrInvalidTag, tag)
	}
	return d, nil
}

type parser struct {
	in  string
	pos int
}

func (p *parser) descriptor(withElem bool) (Descriptor, error) {
	if p.pos >= len(p.in) {
		return Descriptor{}, fmt.Errorf("%w: unexpected end of %q", ErrInvalidTag, p.in)
	}
	kind, ok := tagKinds[p.in[p.pos]]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: unknown kind %q in %q", ErrInvalidTag, p.in[p.pos], p.in)
	}
	p.pos++
	d := Descriptor{Kind: kind}

	if kind == Object && p.pos < len(p.in) && p.in[p.pos] == '{' {
		end := strings.IndexByte(p.in[p.pos:], '}')
		if end < 0 {
			return Descriptor{}, fmt.Errorf("%w: unterminated name in %q", ErrInvalidTag, p.in)
		}
		name, err := url.QueryUnescape(p.in[p.pos+1 : p.pos+end])
		if err != nil {
			return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidTag, err)
		}
		d.Name = name
		p.pos += end + 1
	}

	if !withElem || !kind.Parametrized() {
		return d, nil
	}
	if p.pos >= len(p.in) || p.in[p.pos] != '(' {
		return Descriptor{}, fmt.Errorf("%w: %s without element type in %q", ErrInvalidTag, kind, p.in)
	}
	p.pos++
	elem, err := p.descriptor(true)
	if err != nil {
		return Descriptor{}, err
	}
	if p.pos >= len(p.in) || p.in[p.pos] != ')' {
		return Descriptor{}, fmt.Errorf("%w: missing ')' in %q", ErrInvalidTag, p.in)
	}
	p.pos++
	d.Elem = &elem
	return d, nil
}

// Compatible reports whether a value stored as stored may be decoded into a
// target described by want. Any on either side is accepted, numbers widen
// towards Float, and Object and Map interchange since both are encoded as
// key/value documents.
func Compatible(stored, want Descriptor) bool {
	if want.Kind == Any || stored.Kind == Any {
		return true
	}
	switch want.Kind {
	case Float:
		return stored.Kind == Float || stored.Kind == Int || stored.Kind == Uint
	case Int, Uint:
		return stored.Kind == Int || stored.Kind == Uint
	case Object:
		return stored.Kind == Object || stored.Kind == Map
	case Map:
		if stored.Kind == Object {
			return want.Elem == nil || want.Elem.Kind == Any
		}
	}
	if stored.Kind != want.Kind {
		return false
	}
	if stored.Elem == nil || want.Elem == nil {
		return true
	}
	return Compatible(*stored.Elem, *want.Elem)
}
