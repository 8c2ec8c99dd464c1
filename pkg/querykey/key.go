// Package querykey implements the structured composite identifier used to
// address cached resources.
//
// A Key is an ordered sequence of Parts. Two keys are considered identical
// when they have the same length and their parts are pairwise equal under
// Part.Equal — which, for structured records, ignores null-valued fields
// and is insensitive to field declaration order. This lets callers build
// keys like:
//
//	querykey.New("todos", querykey.Record{"status": "active", "page": 2})
//
// and have it compare equal to a key built with the fields in a different
// order, or with an extra null field thrown in.
package querykey

import (
	"fmt"
	"hash/maphash"
	"sort"
	"strings"
)

// Part is one element of a Key. The zero value is not a valid Part; use
// Scalar, Seq, or Rec to construct one.
type Part struct {
	kind partKind
	// scalar holds the value for kind == kindScalar.
	scalar any
	// seq holds the elements for kind == kindSeq.
	seq []Part
	// rec holds the fields for kind == kindRec, pre-sorted by name with
	// null-valued fields already dropped.
	rec []field
}

type partKind uint8

const (
	kindScalar partKind = iota
	kindSeq
	kindRec
)

type field struct {
	name  string
	value Part
}

// Record is the field-set shorthand used to build a structured-record
// Part. Supplying a nil value for a field elides that field entirely, on
// both sides of a later comparison.
type Record map[string]any

// Scalar wraps a single comparable leaf value (string, number, bool, or
// nil) as a Part.
func Scalar(v any) Part {
	return Part{kind: kindScalar, scalar: normalizeScalar(v)}
}

// Seq builds an ordered-sequence Part from already-built parts.
func Seq(parts ...Part) Part {
	cp := make([]Part, len(parts))
	copy(cp, parts)
	return Part{kind: kindSeq, seq: cp}
}

// Rec builds a structured-record Part from a Record map. Fields whose
// value is nil are dropped during construction, so equality and hashing
// never need to special-case them later.
func Rec(r Record) Part {
	fields := make([]field, 0, len(r))
	for name, v := range r {
		if v == nil {
			continue
		}
		fields = append(fields, field{name: name, value: PartOf(v)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })
	return Part{kind: kindRec, rec: fields}
}

// PartOf converts an arbitrary value into a Part: a Record becomes a
// structured record, a []any becomes an ordered sequence, anything else
// is treated as a scalar. A Part passed in is returned unchanged.
func PartOf(v any) Part {
	switch t := v.(type) {
	case Part:
		return t
	case Record:
		return Rec(t)
	case []any:
		parts := make([]Part, len(t))
		for i, e := range t {
			parts[i] = PartOf(e)
		}
		return Seq(parts...)
	default:
		return Scalar(t)
	}
}

func normalizeScalar(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return n
	}
}

// Key is an immutable ordered sequence of Parts, the unit of cache
// identity for the whole module.
type Key struct {
	parts []Part
}

// New builds a Key from arbitrary values, each converted via PartOf. A
// string argument is always treated as a scalar part, never as a
// sequence of characters.
func New(parts ...any) Key {
	ps := make([]Part, len(parts))
	for i, p := range parts {
		ps[i] = PartOf(p)
	}
	return Key{parts: ps}
}

// Parts returns the key's parts. The returned slice must not be mutated.
func (k Key) Parts() []Part { return k.parts }

// Len returns the number of parts in the key.
func (k Key) Len() int { return len(k.parts) }

// Equal reports whether two keys have the same length and pairwise-equal
// parts.
func (k Key) Equal(other Key) bool {
	if len(k.parts) != len(other.parts) {
		return false
	}
	for i := range k.parts {
		if !k.parts[i].Equal(other.parts[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether k's leading parts pairwise-equal prefix's
// parts and k is at least as long as prefix. Used by the filter algebra
// for non-exact key matches.
func (k Key) HasPrefix(prefix Key) bool {
	if len(k.parts) < len(prefix.parts) {
		return false
	}
	for i := range prefix.parts {
		if !k.parts[i].Equal(prefix.parts[i]) {
			return false
		}
	}
	return true
}

var hashSeed = maphash.MakeSeed()

// Hash returns a hash consistent with Equal: equal keys always hash to
// the same value. It is not stable across process restarts.
func (k Key) Hash() uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	for _, p := range k.parts {
		p.hash(&h)
		h.WriteByte(0) // part separator
	}
	return h.Sum64()
}

// String renders the key as a stable, human-readable debugging string.
// It is not a serialization format.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range k.parts {
		if i > 0 {
			b.WriteString(", ")
		}
		p.render(&b)
	}
	b.WriteByte(']')
	return b.String()
}

// Equal reports whether two parts are equal under the rules in §3 of the
// spec: scalars by value, sequences pairwise in order, records by
// sorted non-null field name/value pairs.
func (p Part) Equal(other Part) bool {
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case kindScalar:
		return p.scalar == other.scalar
	case kindSeq:
		if len(p.seq) != len(other.seq) {
			return false
		}
		for i := range p.seq {
			if !p.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case kindRec:
		if len(p.rec) != len(other.rec) {
			return false
		}
		for i := range p.rec {
			if p.rec[i].name != other.rec[i].name {
				return false
			}
			if !p.rec[i].value.Equal(other.rec[i].value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (p Part) hash(h *maphash.Hash) {
	switch p.kind {
	case kindScalar:
		h.WriteByte(byte(kindScalar))
		fmt.Fprintf(h, "%v", p.scalar)
	case kindSeq:
		h.WriteByte(byte(kindSeq))
		for _, e := range p.seq {
			e.hash(h)
			h.WriteByte(',')
		}
	case kindRec:
		h.WriteByte(byte(kindRec))
		for _, f := range p.rec {
			h.WriteString(f.name)
			h.WriteByte(':')
			f.value.hash(h)
			h.WriteByte(',')
		}
	}
}

func (p Part) render(b *strings.Builder) {
	switch p.kind {
	case kindScalar:
		fmt.Fprintf(b, "%v", p.scalar)
	case kindSeq:
		b.WriteByte('[')
		for i, e := range p.seq {
			if i > 0 {
				b.WriteString(", ")
			}
			e.render(b)
		}
		b.WriteByte(']')
	case kindRec:
		b.WriteByte('{')
		for i, f := range p.rec {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s: ", f.name)
			f.value.render(b)
		}
		b.WriteByte('}')
	}
}
