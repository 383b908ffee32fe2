// Package celldecision implements the per-document cell-decision rule:
// for one attribute and one document, choose the nugget that
// minimizes effective distance, or leave the cell empty if even the best
// nugget exceeds the current threshold.
package celldecision

import (
	"github.com/wannadb/matching/internal/distance"
	"github.com/wannadb/matching/internal/model"
)

// Status classifies a document's cell for an attribute.
type Status string

const (
	// StatusMatched means Nugget is the chosen proposal (distance <= threshold).
	StatusMatched Status = "matched"
	// StatusEmpty means either the document has no nuggets, or every
	// nugget's distance exceeds the threshold.
	StatusEmpty Status = "empty"
	// StatusError means ranking this document failed; the error isolates
	// to this document rather than aborting the pipeline.
	StatusError Status = "error"
)

// Proposal is the outcome of deciding one document's cell for one attribute.
type Proposal struct {
	Status   Status
	Nugget   *model.Nugget // nil unless Status == StatusMatched
	Distance float64       // meaningful for StatusMatched and StatusEmpty (best distance found)
	Err      error         // non-nil iff Status == StatusError
}

// Decide picks doc's best nugget for attr given threshold tau and the current
// confirmed-positive set. A document with zero nuggets yields StatusEmpty
// with Distance left at its zero value.
func Decide(dm *distance.Model, doc *model.Document, attr *model.Attribute, confirmed []*model.Nugget, threshold float64) Proposal {
	if len(doc.Nuggets) == 0 {
		return Proposal{Status: StatusEmpty}
	}

	var best *model.Nugget
	bestDist := 0.0
	first := true
	for _, n := range doc.Nuggets {
		d, err := dm.Distance(n, doc, attr, confirmed)
		if err != nil {
			return Proposal{Status: StatusError, Err: err}
		}
		if first || d < bestDist || (d == bestDist && n.Start < best.Start) {
			best = n
			bestDist = d
			first = false
		}
	}

	if bestDist > threshold {
		return Proposal{Status: StatusEmpty, Distance: bestDist}
	}
	return Proposal{Status: StatusMatched, Nugget: best, Distance: bestDist}
}

// Apply writes the proposal's outcome onto doc's currently-highest-ranked
// and cached-distance signals, scoped to attr. docIndex is doc's stable
// position in the owning DocumentBase (model.NuggetRef is index-based, not
// pointer-based). This is the only function in this package that mutates
// the document base.
func Apply(docIndex int, doc *model.Document, attr *model.Attribute, p Proposal) {
	scopedRank := model.ScopedSignalID(model.SignalCurrentlyHighestRanked, attr.Name)
	switch p.Status {
	case StatusMatched:
		idx := -1
		for i, n := range doc.Nuggets {
			if n == p.Nugget {
				idx = i
				break
			}
		}
		doc.Signals.Set(scopedRank, model.NuggetRefSignal(docIndex, idx))
		p.Nugget.Signals.Set(model.SignalCachedDistance, model.FloatSignal(p.Distance))
	case StatusEmpty, StatusError:
		doc.Signals.Delete(scopedRank)
	}
}
