package datastore

import (
	"fmt"
	"strings"
)

// DefaultDelim separates the elements of a physical key.
const DefaultDelim = ":"

// Key identifies an entry either by an already-joined physical key or by an
// ordered sequence of logical elements. Both forms are normalized to the
// physical-key string at the boundary of every Store operation.
type Key struct {
	raw   string
	elems []any
	seq   bool
}

// K wraps an already-joined key string.
func K(key string) Key {
	return Key{raw: key}
}

// Seq builds a Key from ordered elements. Elements may be strings, numbers,
// or fmt.Stringer values; anything else fails encoding with ErrInvalidKey.
func Seq(elems ...any) Key {
	return Key{elems: elems, seq: true}
}

func (k Key) elements() ([]string, error) {
	if !k.seq {
		if k.raw == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
		}
		return []string{k.raw}, nil
	}
	if len(k.elems) == 0 {
		return nil, fmt.Errorf("%w: no elements", ErrInvalidKey)
	}
	out := make([]string, len(k.elems))
	for i, e := range k.elems {
		s, err := elementString(e)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func elementString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(x), nil
	default:
		return "", fmt.Errorf("%w: element type %T", ErrInvalidKey, v)
	}
}

// Codec builds and parses the hierarchical keys of one namespace.
// The zero value is a nameless namespace with the default delimiter.
//
// Delim must not appear inside an individual key element, or addressing
// becomes ambiguous; the codec does not enforce this because round-tripped
// physical keys legitimately contain it.
type Codec struct {
	Name  string
	Delim string
}

func (c Codec) delim() string {
	if c.Delim == "" {
		return DefaultDelim
	}
	return c.Delim
}

// EncodeElements returns the ordered element sequence of the physical key:
// the namespace name followed by the key's own elements. The name is omitted
// when it is empty, or when the first element already starts with name+delim
// so that re-encoding a physical key never double-prefixes it.
func (c Codec) EncodeElements(k Key) ([]string, error) {
	elems, err := k.elements()
	if err != nil {
		return nil, err
	}
	if c.Name == "" || strings.HasPrefix(elems[0], c.Name+c.delim()) {
		return elems, nil
	}
	return append([]string{c.Name}, elems...), nil
}

// Encode returns the delimiter-joined physical key for k.
func (c Codec) Encode(k Key) (string, error) {
	elems, err := c.EncodeElements(k)
	if err != nil {
		return "", err
	}
	return strings.Join(elems, c.delim()), nil
}

// Decode splits a physical key back into its logical elements, dropping the
// leading namespace name when present.
func (c Codec) Decode(key string) []string {
	parts := strings.Split(key, c.delim())
	if c.Name != "" && len(parts) > 1 && parts[0] == c.Name {
		return parts[1:]
	}
	return parts
}

// MatchesPrefix reports whether key starts with prefix. Unless partial is
// set, the delimiter is appended to prefix first so that a namespace prefix
// like "cfg:Job.Foo" cannot spuriously match "cfg:Job.FooBar:x".
func (c Codec) MatchesPrefix(key, prefix string, partial bool) bool {
	if !partial {
		prefix += c.delim()
	}
	return strings.HasPrefix(key, prefix)
}

// SuffixAfter returns key with the matched prefix stripped, including the
// delimiter appended for whole-namespace matches. Keys that do not match are
// returned unchanged.
func (c Codec) SuffixAfter(key, prefix string, partial bool) string {
	if !partial {
		prefix += c.delim()
	}
	return strings.TrimPrefix(key, prefix)
}
