package distance

import (
	"math"
	"testing"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

func TestCosineIdenticalVectorsIsZero(t *testing.T) {
	if got := Cosine([]float64{1, 2, 3}, []float64{1, 2, 3}); got != 0 {
		t.Fatalf("Cosine(v, v) = %v, want 0", got)
	}
}

func TestCosineOrthogonalVectorsIsOne(t *testing.T) {
	if got := Cosine([]float64{1, 0}, []float64{0, 1}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("Cosine(orthogonal) = %v, want 1", got)
	}
}

func TestCosineOppositeVectorsIsTwo(t *testing.T) {
	if got := Cosine([]float64{1, 0}, []float64{-1, 0}); math.Abs(got-2) > 1e-9 {
		t.Fatalf("Cosine(opposite) = %v, want 2", got)
	}
}

func TestCosineDegenerateInputsAreMaximallyDissimilar(t *testing.T) {
	cases := map[string][2][]float64{
		"empty u":        {nil, {1, 2}},
		"mismatched dim": {{1, 2, 3}, {1, 2}},
		"zero vector u":  {{0, 0}, {1, 2}},
	}
	for name, vecs := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Cosine(vecs[0], vecs[1]); got != 2.0 {
				t.Fatalf("Cosine(%v, %v) = %v, want 2.0", vecs[0], vecs[1], got)
			}
		})
	}
}

func TestLessTieBreaksByDocOrderThenOffset(t *testing.T) {
	a := Candidate{Nugget: &model.Nugget{Start: 5}, DocOrder: 0}
	b := Candidate{Nugget: &model.Nugget{Start: 1}, DocOrder: 1}
	if !Less(a, b) {
		t.Fatalf("expected earlier DocOrder to sort first regardless of offset")
	}
	c := Candidate{Nugget: &model.Nugget{Start: 1}, DocOrder: 0}
	d := Candidate{Nugget: &model.Nugget{Start: 5}, DocOrder: 0}
	if !Less(c, d) {
		t.Fatalf("expected earlier offset to sort first within the same document")
	}
}

func TestLabelEmbeddingMemoizesOnAttribute(t *testing.T) {
	calls := 0
	m := New(func(text string) ([]float64, error) {
		calls++
		return []float64{1, 0}, nil
	})
	attr := model.NewAttribute("ceo")
	attr.Signals.Set(model.SignalLabel, model.StringSignal("ceo"))

	if _, err := m.LabelEmbedding(attr); err != nil {
		t.Fatal(err)
	}
	if _, err := m.LabelEmbedding(attr); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("expected Embed called once and memoized, got %d calls", calls)
	}
}

func TestLabelEmbeddingRejectsEmptyLabel(t *testing.T) {
	m := New(func(text string) ([]float64, error) { return []float64{1}, nil })
	attr := &model.Attribute{Name: "", Signals: model.Signals{}}
	_, err := m.LabelEmbedding(attr)
	var missing *matcherr.MissingSignalError
	if !asMissing(err, &missing) {
		t.Fatalf("expected MissingSignalError for an attribute with no name and no label, got %v", err)
	}
}

func asMissing(err error, target **matcherr.MissingSignalError) bool {
	e, ok := err.(*matcherr.MissingSignalError)
	if ok {
		*target = e
	}
	return ok
}

func TestDistanceFallsBackToLabelWhenNoConfirmedPositives(t *testing.T) {
	m := New(nil)
	doc := model.NewDocument("doc1", "Tim Cook runs Apple.")
	n := model.NewNugget(0, 0, 8)
	n.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{1, 0}))
	attr := model.NewAttribute("ceo")
	attr.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{1, 0}))

	d, err := m.Distance(n, doc, attr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d != 0 {
		t.Fatalf("Distance = %v, want 0 (identical to label)", d)
	}
}

func TestDistancePrefersNearestConfirmedPositiveOverLabel(t *testing.T) {
	m := New(nil)
	doc := model.NewDocument("doc1", "x")
	n := model.NewNugget(0, 0, 1)
	n.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{0, 1})) // orthogonal to label
	attr := model.NewAttribute("ceo")
	attr.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{1, 0}))

	positive := model.NewNugget(1, 0, 1)
	positive.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{0, 1})) // identical to n

	d, err := m.Distance(n, doc, attr, []*model.Nugget{positive})
	if err != nil {
		t.Fatal(err)
	}
	if d != 0 {
		t.Fatalf("Distance = %v, want 0 (identical to nearest confirmed positive)", d)
	}
}

func TestDistanceEmbedsOnDemandAndMemoizes(t *testing.T) {
	calls := 0
	m := New(func(text string) ([]float64, error) {
		calls++
		return []float64{1, 0}, nil
	})
	doc := model.NewDocument("doc1", "Tim Cook runs Apple.")
	n := model.NewNugget(0, 0, 8) // no pre-seeded text-embedding
	attr := model.NewAttribute("ceo")
	attr.Signals.Set(model.SignalLabel, model.StringSignal("ceo"))

	if _, err := m.Distance(n, doc, attr, nil); err != nil {
		t.Fatal(err)
	}
	if calls != 2 { // nugget embedding + label embedding
		t.Fatalf("expected 2 embed calls (nugget + label), got %d", calls)
	}
	if _, err := m.Distance(n, doc, attr, nil); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected both embeddings memoized on second call, got %d calls", calls)
	}
}

func TestRankOrdersAscendingByDistance(t *testing.T) {
	m := New(nil)
	attr := model.NewAttribute("ceo")
	attr.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{1, 0}))

	doc := model.NewDocument("doc1", "Alice Bob TimCook")
	near := model.NewNugget(0, 12, 19)
	near.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{0.99, 0.1}))
	far := model.NewNugget(0, 0, 5)
	far.Signals.Set(model.SignalTextEmbedding, model.VectorSignal([]float64{0, 1}))
	docs := []*model.Document{doc}

	cands := []Candidate{{Nugget: far, DocOrder: 0}, {Nugget: near, DocOrder: 0}}
	ranked, dists, err := m.Rank(cands, docs, attr, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ranked[0].Nugget != near {
		t.Fatalf("expected the near nugget ranked first, got start=%d", ranked[0].Nugget.Start)
	}
	if dists[0] > dists[1] {
		t.Fatalf("expected ascending distances, got %v", dists)
	}
}
