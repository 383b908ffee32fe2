// Package codec implements the persistence round-trip: a
// self-describing binary encoding of a DocumentBase that drops transient
// signals and preserves unknown signal kinds verbatim. The wire format
// is msgpack with explicit struct tags.
package codec

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

// wireSignal is the on-disk shape of a model.SignalValue: one tag plus
// whichever field that tag selects. Unknown kinds (KindOpaque) carry
// RawKind and Bytes so a future decoder that understands the kind can
// recover it, and an older decoder preserves it unexamined.
type wireSignal struct {
	Kind    string    `msgpack:"kind"`
	Float   float64   `msgpack:"float,omitempty"`
	Int     int64     `msgpack:"int,omitempty"`
	Str     string    `msgpack:"str,omitempty"`
	Vector  []float64 `msgpack:"vector,omitempty"`
	Bytes   []byte    `msgpack:"bytes,omitempty"`
	DocIdx  int       `msgpack:"doc_idx,omitempty"`
	NugIdx  int       `msgpack:"nug_idx,omitempty"`
	RawKind string    `msgpack:"raw_kind,omitempty"`
}

type wireNugget struct {
	Start   int                   `msgpack:"start"`
	End     int                   `msgpack:"end"`
	Signals map[string]wireSignal `msgpack:"signals,omitempty"`
}

type wireDocument struct {
	Name    string                `msgpack:"name"`
	Text    string                `msgpack:"text"`
	Nuggets []wireNugget          `msgpack:"nuggets,omitempty"`
	Signals map[string]wireSignal `msgpack:"signals,omitempty"`
}

type wireAttribute struct {
	Name    string                `msgpack:"name"`
	Signals map[string]wireSignal `msgpack:"signals,omitempty"`
}

// wireBase is the top-level persisted container.
type wireBase struct {
	Attributes []wireAttribute `msgpack:"attributes"`
	Documents  []wireDocument  `msgpack:"documents"`
}

// Encode serializes base's persistent state, dropping every transient
// signal (cached-distance, currently-highest-ranked, confirmed-negative).
func Encode(base *model.DocumentBase) ([]byte, error) {
	w := wireBase{
		Attributes: make([]wireAttribute, len(base.Attributes)),
		Documents:  make([]wireDocument, len(base.Documents)),
	}
	for i, a := range base.Attributes {
		w.Attributes[i] = wireAttribute{Name: a.Name, Signals: encodeSignals(a.Signals)}
	}
	for i, d := range base.Documents {
		wd := wireDocument{Name: d.Name, Text: d.Text, Signals: encodeSignals(d.Signals)}
		wd.Nuggets = make([]wireNugget, len(d.Nuggets))
		for j, n := range d.Nuggets {
			wd.Nuggets[j] = wireNugget{Start: n.Start, End: n.End, Signals: encodeSignals(n.Signals)}
		}
		w.Documents[i] = wd
	}

	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, &matcherr.PersistenceError{Cause: err}
	}
	return data, nil
}

// Decode reconstructs a DocumentBase from data produced by Encode.
func Decode(data []byte) (*model.DocumentBase, error) {
	var w wireBase
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, &matcherr.PersistenceError{Cause: err}
	}

	base := model.NewDocumentBase()
	for _, wa := range w.Attributes {
		attr := model.NewAttribute(wa.Name)
		attr.Signals = decodeSignals(wa.Signals)
		if err := base.AddAttribute(attr); err != nil {
			return nil, err
		}
	}
	for _, wd := range w.Documents {
		doc := model.NewDocument(wd.Name, wd.Text)
		doc.Signals = decodeSignals(wd.Signals)
		for _, wn := range wd.Nuggets {
			n := model.NewNugget(0, wn.Start, wn.End) // DocIndex fixed up below
			n.Signals = decodeSignals(wn.Signals)
			if _, err := doc.AddNugget(n); err != nil {
				return nil, err
			}
		}
		if err := base.AddDocument(doc); err != nil {
			return nil, err
		}
	}
	base.FixupAfterDecode()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

func encodeSignals(signals model.Signals) map[string]wireSignal {
	persistent := signals.Persistent()
	if len(persistent) == 0 {
		return nil
	}
	out := make(map[string]wireSignal, len(persistent))
	for id, v := range persistent {
		ws := wireSignal{Kind: string(v.Kind)}
		switch v.Kind {
		case model.KindFloat:
			ws.Float = v.Float
		case model.KindInt:
			ws.Int = v.Int
		case model.KindString:
			ws.Str = v.Str
		case model.KindVector:
			ws.Vector = v.Vector
		case model.KindBytes:
			ws.Bytes = v.Bytes
		case model.KindNuggetRef:
			if v.NuggetRef != nil {
				ws.DocIdx = v.NuggetRef.DocIndex
				ws.NugIdx = v.NuggetRef.NuggetIndex
			}
		case model.KindOpaque:
			ws.RawKind = v.RawKind
			ws.Bytes = v.Bytes
		default:
			// A kind this build has never seen: treat as opaque so a
			// future decoder built after this one can still recover it.
			ws.Kind = string(model.KindOpaque)
			ws.RawKind = string(v.Kind)
			ws.Bytes = v.Bytes
		}
		out[string(id)] = ws
	}
	return out
}

func decodeSignals(wire map[string]wireSignal) model.Signals {
	out := make(model.Signals, len(wire))
	for id, ws := range wire {
		var v model.SignalValue
		switch model.SignalKind(ws.Kind) {
		case model.KindFloat:
			v = model.FloatSignal(ws.Float)
		case model.KindInt:
			v = model.IntSignal(ws.Int)
		case model.KindString:
			v = model.StringSignal(ws.Str)
		case model.KindVector:
			v = model.VectorSignal(ws.Vector)
		case model.KindBytes:
			v = model.BytesSignal(ws.Bytes)
		case model.KindNuggetRef:
			v = model.NuggetRefSignal(ws.DocIdx, ws.NugIdx)
		default:
			// A wire kind this build does not recognize: keep the kind
			// string itself so re-encoding does not lose it.
			raw := ws.RawKind
			if raw == "" {
				raw = ws.Kind
			}
			v = model.OpaqueSignal(raw, ws.Bytes)
		}
		out[model.SignalID(id)] = v
	}
	return out
}
