// Package extractor implements a reference extractor: for each document
// it writes a list of (start, end, provenance-signals, text embedding)
// nuggets. It exists so the pipeline and demo CLI have a real
// collaborator to exercise — the extractor proper is an external
// component the matching engine only consumes through this narrow
// contract.
package extractor

import (
	"strings"

	"github.com/tsawler/prose/v3"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

// EmbedFunc produces a fixed-length embedding for a surface string. The
// extractor never talks to an embedding provider directly; callers
// supply one, same as distance.Model.Embed.
type EmbedFunc func(text string) ([]float64, error)

// ProseExtractor extracts nuggets from named-entity spans using the
// prose NLP library.
type ProseExtractor struct{}

// New constructs a ProseExtractor.
func New() *ProseExtractor { return &ProseExtractor{} }

// ExtractInto runs entity extraction over base.Documents[docIndex]'s text
// and adds one Nugget per detected entity span, each carrying a
// provenance signal (prose's label, e.g. "prose:PERSON") and a text
// embedding produced by embed. Zero-width or out-of-bounds spans from the
// NLP library are skipped rather than surfaced as errors, since they
// reflect tokenizer quirks, not a caller mistake.
func (e *ProseExtractor) ExtractInto(base *model.DocumentBase, docIndex int, embed EmbedFunc) (int, error) {
	doc := base.Documents[docIndex]
	pdoc, err := prose.NewDocument(doc.Text)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, ent := range pdoc.Entities() {
		if ent.Start < 0 || ent.End > len(doc.Text) || ent.Start >= ent.End {
			continue
		}
		n := model.NewNugget(docIndex, ent.Start, ent.End)
		n.Signals.Set(model.SignalProvenance, model.StringSignal("prose:"+strings.ToUpper(ent.Label)))
		emb, err := embed(n.Text(doc))
		if err != nil {
			return added, &matcherr.EmbeddingFailureError{Cause: err}
		}
		n.Signals.Set(model.SignalTextEmbedding, model.VectorSignal(emb))
		if _, err := doc.AddNugget(n); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
