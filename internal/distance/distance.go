// Package distance implements the effective-distance model: a
// cosine-based dissimilarity between a Nugget and an Attribute,
// sharpened by the set of confirmed-positive nuggets accumulated so far.
package distance

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

// Cosine computes cos_d(u, v) = 1 - (u·v)/(‖u‖·‖v‖), clamped to [0, 2].
// A zero-length or mismatched-dimension pair is maximally dissimilar (2.0)
// rather than a NaN, so downstream argmin/threshold logic never has to
// special-case degenerate embeddings.
func Cosine(u, v []float64) float64 {
	if len(u) == 0 || len(v) == 0 || len(u) != len(v) {
		return 2.0
	}
	normU := floats.Norm(u, 2)
	normV := floats.Norm(v, 2)
	if normU == 0 || normV == 0 {
		return 2.0
	}
	cos := floats.Dot(u, v) / (normU * normV)
	d := 1 - cos
	if d < 0 {
		d = 0
	}
	if d > 2 {
		d = 2
	}
	if math.IsNaN(d) {
		return 2.0
	}
	return d
}

// Candidate is a nugget under consideration for ranking, carrying just
// enough positional information to apply the tie-break rule.
type Candidate struct {
	Nugget   *model.Nugget
	DocOrder int // the document's position in the DocumentBase
}

// Less implements the ranking tie-break: earlier document order, then
// earlier nugget offset.
func Less(a, b Candidate) bool {
	if a.DocOrder != b.DocOrder {
		return a.DocOrder < b.DocOrder
	}
	return a.Nugget.Start < b.Nugget.Start
}

// Model computes the effective distance between nuggets and an attribute,
// given the current set of confirmed-positive nuggets. It does not cache
// distances; callers (the cell-decision and feedback-round layers) are
// responsible for memoizing onto the cached-distance signal and invalidating
// it when the confirmed set changes. Embeddings it produces on demand are
// memoized onto the text-embedding signal.
type Model struct {
	// Embed lazily produces a text embedding for text that has none yet
	// (a fresh attribute label, or a freshly synthesized custom nugget).
	// It must be supplied by the caller; the distance model never talks to
	// an embedding provider directly.
	Embed func(text string) ([]float64, error)
}

// New constructs a Model bound to an embedding function.
func New(embed func(text string) ([]float64, error)) *Model {
	return &Model{Embed: embed}
}

// LabelEmbedding returns attr's memoized label embedding, producing and
// memoizing it on first use. An attribute with an empty label is a
// configuration error.
func (m *Model) LabelEmbedding(attr *model.Attribute) ([]float64, error) {
	if v, ok := attr.Signals.GetVector(model.SignalTextEmbedding); ok {
		return v, nil
	}
	label := attr.Label()
	if label == "" {
		return nil, &matcherr.MissingSignalError{Entity: "attribute:" + attr.Name, SignalID: string(model.SignalLabel), Stage: "distance"}
	}
	emb, err := m.Embed(label)
	if err != nil {
		return nil, &matcherr.EmbeddingFailureError{Cause: err}
	}
	attr.Signals.Set(model.SignalTextEmbedding, model.VectorSignal(emb))
	return emb, nil
}

// Distance computes the effective distance of nugget against attr, given
// confirmed positives. doc supplies the nugget's surface text when an
// on-demand embedding is required.
func (m *Model) Distance(nugget *model.Nugget, doc *model.Document, attr *model.Attribute, confirmed []*model.Nugget) (float64, error) {
	nuggetEmb, err := m.nuggetEmbedding(nugget, doc)
	if err != nil {
		return 0, err
	}
	labelEmb, err := m.LabelEmbedding(attr)
	if err != nil {
		return 0, err
	}
	dLabel := Cosine(nuggetEmb, labelEmb)

	if len(confirmed) == 0 {
		return dLabel, nil
	}

	dConfirmed := math.Inf(1)
	for _, pos := range confirmed {
		posEmb, ok := pos.Signals.GetVector(model.SignalTextEmbedding)
		if !ok {
			continue
		}
		d := Cosine(nuggetEmb, posEmb)
		if d < dConfirmed {
			dConfirmed = d
		}
	}
	if math.IsInf(dConfirmed, 1) {
		return dLabel, nil
	}
	return math.Min(dLabel, dConfirmed), nil
}

func (m *Model) nuggetEmbedding(n *model.Nugget, doc *model.Document) ([]float64, error) {
	if v, ok := n.Signals.GetVector(model.SignalTextEmbedding); ok {
		return v, nil
	}
	emb, err := m.Embed(n.Text(doc))
	if err != nil {
		return nil, &matcherr.EmbeddingFailureError{Cause: err}
	}
	n.Signals.Set(model.SignalTextEmbedding, model.VectorSignal(emb))
	return emb, nil
}

// Rank sorts candidates ascending by their effective distance against attr,
// applying the document-order/offset tie-break when distances are equal.
// Returns parallel slices of candidates and their distances.
func (m *Model) Rank(candidates []Candidate, docs []*model.Document, attr *model.Attribute, confirmed []*model.Nugget) ([]Candidate, []float64, error) {
	dists := make([]float64, len(candidates))
	for i, c := range candidates {
		d, err := m.Distance(c.Nugget, docs[c.Nugget.DocIndex], attr, confirmed)
		if err != nil {
			return nil, nil, err
		}
		dists[i] = d
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := idx[i], idx[j]
		if dists[a] != dists[b] {
			return dists[a] < dists[b]
		}
		return Less(candidates[a], candidates[b])
	})
	rankedCands := make([]Candidate, len(candidates))
	rankedDists := make([]float64, len(candidates))
	for i, id := range idx {
		rankedCands[i] = candidates[id]
		rankedDists[i] = dists[id]
	}
	return rankedCands, rankedDists, nil
}
