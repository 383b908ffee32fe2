// Package model defines the core data model shared by every stage of the
// matching engine: Document, Nugget, Attribute, DocumentBase, and the
// typed signal side-data attached to each of them.
package model

import "fmt"

// SignalKind tags the payload carried by a SignalValue.
type SignalKind string

const (
	KindFloat     SignalKind = "float"
	KindInt       SignalKind = "int"
	KindString    SignalKind = "string"
	KindVector    SignalKind = "vector"
	KindBytes     SignalKind = "bytes"
	KindNuggetRef SignalKind = "nugget-ref"
	// KindOpaque marks a signal kind this build does not recognize. Its
	// payload is carried verbatim in Bytes so the codec can round-trip it.
	KindOpaque SignalKind = "opaque"
)

// NuggetRef is a non-owning reference to a Nugget realized as coordinates
// into a DocumentBase rather than a pointer, so Nugget<->Document never
// forms an owning cycle.
type NuggetRef struct {
	DocIndex    int
	NuggetIndex int
}

// SignalValue is a tagged-variant value attached to a Document, Nugget, or
// Attribute. Exactly one of the typed fields is meaningful, selected by Kind;
// RawKind preserves an unrecognized kind string verbatim (KindOpaque).
type SignalValue struct {
	Kind      SignalKind
	Float     float64
	Int       int64
	Str       string
	Vector    []float64
	Bytes     []byte
	NuggetRef *NuggetRef
	RawKind   string
}

func FloatSignal(v float64) SignalValue  { return SignalValue{Kind: KindFloat, Float: v} }
func IntSignal(v int64) SignalValue      { return SignalValue{Kind: KindInt, Int: v} }
func StringSignal(v string) SignalValue  { return SignalValue{Kind: KindString, Str: v} }
func VectorSignal(v []float64) SignalValue {
	cp := make([]float64, len(v))
	copy(cp, v)
	return SignalValue{Kind: KindVector, Vector: cp}
}
func BytesSignal(v []byte) SignalValue {
	cp := make([]byte, len(v))
	copy(cp, v)
	return SignalValue{Kind: KindBytes, Bytes: cp}
}
func NuggetRefSignal(docIndex, nuggetIndex int) SignalValue {
	return SignalValue{Kind: KindNuggetRef, NuggetRef: &NuggetRef{DocIndex: docIndex, NuggetIndex: nuggetIndex}}
}
func OpaqueSignal(rawKind string, payload []byte) SignalValue {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return SignalValue{Kind: KindOpaque, RawKind: rawKind, Bytes: cp}
}

// SignalID identifies a recognized (or forward-compatible unknown) signal.
type SignalID string

// Recognized signal identifiers.
const (
	SignalLabel                  SignalID = "label"
	SignalTextEmbedding          SignalID = "text-embedding"
	SignalContextEmbedding       SignalID = "context-embedding"
	SignalLabelEmbedding         SignalID = "label-embedding"
	SignalCachedDistance         SignalID = "cached-distance"
	SignalCurrentlyHighestRanked SignalID = "currently-highest-ranked"
	SignalConfirmedMatch         SignalID = "confirmed-match"
	SignalProvenance             SignalID = "provenance"

	// SignalConfirmedNegative is bookkeeping for "rejected within this
	// document" — a reject forbids the nugget only within its own
	// document. It lives on the Nugget, scoped to the attribute, and is
	// dropped at persistence time like cached-distance.
	SignalConfirmedNegative SignalID = "confirmed-negative"
)

// scopeSep namespaces a signal identifier to the attribute currently being
// matched. currently-highest-ranked and confirmed-match are logically
// Document->Nugget maps keyed by attribute; since a DocumentBase persists
// confirmed matches for every attribute at once, the attribute name is
// folded into the signal ID rather than carried out-of-band.
const scopeSep = "\x1f"

// ScopedSignalID namespaces a base signal identifier to a specific attribute.
func ScopedSignalID(base SignalID, attrName string) SignalID {
	return SignalID(fmt.Sprintf("%s%s%s", base, scopeSep, attrName))
}

// transientSignals lists signal identifiers that must never survive
// serialization. Scoped IDs are checked against their base identifier.
var transientSignals = map[SignalID]bool{
	SignalCachedDistance:         true,
	SignalCurrentlyHighestRanked: true,
	SignalConfirmedNegative:      true,
}

// IsTransient reports whether id must be dropped by the persistence codec.
func IsTransient(id SignalID) bool {
	base := id
	for i := 0; i < len(id); i++ {
		if string(id[i]) == scopeSep {
			base = id[:i]
			break
		}
	}
	return transientSignals[base]
}

// Signals is the typed key/value side-data map carried by every Document,
// Nugget, and Attribute.
type Signals map[SignalID]SignalValue

func (s Signals) Get(id SignalID) (SignalValue, bool) {
	v, ok := s[id]
	return v, ok
}

func (s Signals) GetVector(id SignalID) ([]float64, bool) {
	v, ok := s[id]
	if !ok || v.Kind != KindVector {
		return nil, false
	}
	return v.Vector, true
}

func (s Signals) GetFloat(id SignalID) (float64, bool) {
	v, ok := s[id]
	if !ok || v.Kind != KindFloat {
		return 0, false
	}
	return v.Float, true
}

func (s Signals) GetString(id SignalID) (string, bool) {
	v, ok := s[id]
	if !ok || v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

func (s Signals) GetNuggetRef(id SignalID) (NuggetRef, bool) {
	v, ok := s[id]
	if !ok || v.Kind != KindNuggetRef || v.NuggetRef == nil {
		return NuggetRef{}, false
	}
	return *v.NuggetRef, true
}

func (s Signals) Set(id SignalID, v SignalValue) {
	s[id] = v
}

func (s Signals) Delete(id SignalID) {
	delete(s, id)
}

// Persistent returns a copy of s with every transient signal dropped.
func (s Signals) Persistent() Signals {
	out := make(Signals, len(s))
	for id, v := range s {
		if IsTransient(id) {
			continue
		}
		out[id] = v
	}
	return out
}

// Clone returns a deep-enough copy of s suitable for independent mutation.
func (s Signals) Clone() Signals {
	out := make(Signals, len(s))
	for id, v := range s {
		out[id] = v
	}
	return out
}
