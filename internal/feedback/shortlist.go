package feedback

import (
	"context"
	"sort"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

// DefaultShortlistSize is how many candidates AskShortlist presents when
// the caller does not specify one.
const DefaultShortlistSize = 3

// AskShortlist is the shortlist alternative to the single-proposal
// round: instead of proposing a single nugget, it
// presents doc's top-K nuggets by effective distance and accepts a
// selection index as a confirm, "none of these" as a no-match, and a
// free-text span as a custom nugget — unifying all three answer shapes
// into the same Answer type the single-proposal path uses.
func (d *Driver) AskShortlist(ctx context.Context, ask InteractionCallback, docIdx int, k int) error {
	if k <= 0 {
		k = DefaultShortlistSize
	}
	doc := d.base.Documents[docIdx]
	if _, _, isSet := model.ConfirmedMatch(d.base, doc, d.attr); isSet {
		return nil
	}

	type scored struct {
		nugget *model.Nugget
		dist   float64
	}
	cands := make([]scored, 0, len(doc.Nuggets))
	for _, n := range doc.Nuggets {
		if d.confirmedNegative[n.Key()] {
			continue
		}
		dd, err := d.dist.Distance(n, doc, d.attr, d.confirmedPositive)
		if err != nil {
			d.errorDocs[docIdx] = err
			return err
		}
		cands = append(cands, scored{n, dd})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].nugget.Start < cands[j].nugget.Start
	})
	if len(cands) > k {
		cands = cands[:k]
	}

	entries := make([]ShortlistEntry, len(cands))
	for i, c := range cands {
		entries[i] = ShortlistEntry{Nugget: c.nugget, Distance: c.dist}
	}

	req := Request{
		Kind:       RequestChooseFromShortlist,
		Document:   doc,
		DocIndex:   docIdx,
		Attribute:  d.attr,
		Candidates: entries,
	}
	answer, err := ask(ctx, req)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return matcherr.UserCancelled
	}

	var prop bestProposal
	if answer.Kind == AnswerConfirm {
		if answer.SelectionIndex < 0 || answer.SelectionIndex >= len(entries) {
			return &matcherr.ConsistencyViolationError{Invariant: "shortlist selection index out of range"}
		}
		chosen := entries[answer.SelectionIndex]
		prop = bestProposal{nugget: chosen.Nugget, distance: chosen.Distance}
	}
	if answer.Kind == AnswerStop {
		d.state = StateDone
		return nil
	}
	if err := d.integrate(docIdx, prop, answer); err != nil {
		return err
	}
	d.rounds++
	return nil
}
