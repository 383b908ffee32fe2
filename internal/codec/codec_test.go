package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/wannadb/matching/internal/model"
)

// futureSignalID stands in for a signal identifier this build does not
// recognize, to exercise the codec's forward-compatible opaque-kind path.
const futureSignalID model.SignalID = "future-signal-v2"

func buildRoundTripBase(t *testing.T) *model.DocumentBase {
	t.Helper()
	base := model.NewDocumentBase()

	ceo := model.NewAttribute("ceo")
	ceo.Signals.Set(model.SignalLabel, model.StringSignal("ceo"))
	ceo.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{1, 0, 0}))
	if err := base.AddAttribute(ceo); err != nil {
		t.Fatal(err)
	}
	founder := model.NewAttribute("founder")
	founder.Signals.Set(model.SignalLabel, model.StringSignal("founder"))
	if err := base.AddAttribute(founder); err != nil {
		t.Fatal(err)
	}

	doc1 := model.NewDocument("doc1", "Tim Cook runs Apple.")
	n1 := model.NewNugget(0, 0, 8)
	n1.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{0.9, 0.1, 0}))
	n1.Signals.Set(model.SignalProvenance, model.StringSignal("prose:PERSON"))
	n1.Signals.Set(model.SignalCachedDistance, model.FloatSignal(0.12)) // transient
	if _, err := doc1.AddNugget(n1); err != nil {
		t.Fatal(err)
	}
	doc1.Signals.Set(model.ScopedSignalID(model.SignalCurrentlyHighestRanked, "ceo"), model.NuggetRefSignal(0, 0)) // transient
	if err := base.AddDocument(doc1); err != nil {
		t.Fatal(err)
	}
	model.SetConfirmedMatch(base, 0, 0, ceo) // persistent

	doc2 := model.NewDocument("doc2", "Bob works somewhere.")
	model.SetNoMatch(doc2, founder)
	if err := base.AddDocument(doc2); err != nil {
		t.Fatal(err)
	}

	doc3 := model.NewDocument("doc3", "")
	doc3.Signals.Set(futureSignalID, model.OpaqueSignal("future-kind-v2", []byte{1, 2, 3}))
	if err := base.AddDocument(doc3); err != nil {
		t.Fatal(err)
	}

	return base
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	base := buildRoundTripBase(t)

	data, err := Encode(base)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	opts := cmp.Options{
		cmpopts.IgnoreUnexported(model.DocumentBase{}, model.Document{}),
		cmpopts.EquateApprox(0, 1e-9),
	}
	if diff := cmp.Diff(persistentView(t, base), persistentView(t, decoded), opts...); diff != "" {
		t.Fatalf("round-trip mismatch on persistent state (-want +got):\n%s", diff)
	}
}

func TestDecodeDropsTransientSignals(t *testing.T) {
	base := buildRoundTripBase(t)
	data, err := Encode(base)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}

	doc1, _ := decoded.Document("doc1")
	if _, ok := doc1.Nuggets[0].Signals.Get(model.SignalCachedDistance); ok {
		t.Fatalf("expected cached-distance to be dropped by the codec")
	}
	if _, ok := doc1.Signals.Get(model.ScopedSignalID(model.SignalCurrentlyHighestRanked, "ceo")); ok {
		t.Fatalf("expected currently-highest-ranked to be dropped by the codec")
	}
}

func TestDecodePreservesUnknownSignalKindVerbatim(t *testing.T) {
	base := buildRoundTripBase(t)
	data, err := Encode(base)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	doc3, _ := decoded.Document("doc3")
	v, ok := doc3.Signals.Get(futureSignalID)
	if !ok || v.Kind != model.KindOpaque || v.RawKind != "future-kind-v2" {
		t.Fatalf("expected opaque signal preserved verbatim, got %+v ok=%v", v, ok)
	}
	if string(v.Bytes) != "\x01\x02\x03" {
		t.Fatalf("expected opaque payload preserved, got %v", v.Bytes)
	}
}

// persistentView deep-copies b with every transient signal dropped, so
// cmp compares only the durable, codec-persisted state: the original base
// legitimately still carries cached-distance and currently-highest-ranked
// signals a decode never reproduces.
func persistentView(t *testing.T, b *model.DocumentBase) *model.DocumentBase {
	t.Helper()
	out := model.NewDocumentBase()
	for _, a := range b.Attributes {
		attr := model.NewAttribute(a.Name)
		attr.Signals = a.Signals.Persistent()
		if err := out.AddAttribute(attr); err != nil {
			t.Fatal(err)
		}
	}
	for i, d := range b.Documents {
		doc := model.NewDocument(d.Name, d.Text)
		doc.Signals = d.Signals.Persistent()
		for _, n := range d.Nuggets {
			nn := model.NewNugget(i, n.Start, n.End)
			nn.Signals = n.Signals.Persistent()
			if _, err := doc.AddNugget(nn); err != nil {
				t.Fatal(err)
			}
		}
		if err := out.AddDocument(doc); err != nil {
			t.Fatal(err)
		}
	}
	return out
}
