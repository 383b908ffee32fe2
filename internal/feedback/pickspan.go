package feedback

import (
	"context"

	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
)

// AskPickSpan issues a RequestPickSpan for docIdx: the manual entry point a
// client uses to annotate a document the automatic selection policy would
// never surface on its own — most often a document with zero extracted
// nuggets, which selectNext treats as "no candidate" and simply skips.
// It accepts AnswerCustomSpan, AnswerNoMatch, or
// AnswerStop.
func (d *Driver) AskPickSpan(ctx context.Context, ask InteractionCallback, docIdx int) error {
	doc := d.base.Documents[docIdx]
	if _, _, isSet := model.ConfirmedMatch(d.base, doc, d.attr); isSet {
		return nil
	}

	req := Request{
		Kind:      RequestPickSpan,
		Document:  doc,
		DocIndex:  docIdx,
		Attribute: d.attr,
	}
	answer, err := ask(ctx, req)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return matcherr.UserCancelled
	}
	if answer.Kind == AnswerStop {
		d.state = StateDone
		return nil
	}
	if err := d.integrate(docIdx, bestProposal{}, answer); err != nil {
		return err
	}
	d.rounds++
	return nil
}
