// Package feedback drives the human-in-the-loop matching rounds: it
// selects which document to ask about next, interprets the user's
// answer, and keeps confirmed matches and the distance threshold in
// sync after every round.
package feedback

import (
	"context"
	"fmt"

	"github.com/wannadb/matching/internal/distance"
	"github.com/wannadb/matching/internal/logging"
	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
	"github.com/wannadb/matching/internal/threshold"
)

// State is the driver's position in the feedback-round state machine.
type State string

const (
	StateInit    State = "init"
	StateRanked  State = "ranked"
	StateAsking  State = "asking"
	StateUpdated State = "updated"
	StateDone    State = "done"
)

// AnswerKind is the answer vocabulary a user (via the interaction
// callback) can give for a proposal.
type AnswerKind string

const (
	AnswerConfirm    AnswerKind = "confirm"
	AnswerReject     AnswerKind = "reject"
	AnswerCustomSpan AnswerKind = "custom-span"
	AnswerNoMatch    AnswerKind = "no-match"
	AnswerStop       AnswerKind = "stop"
)

// Answer is the user's response to a Request.
type Answer struct {
	Kind AnswerKind
	// SpanStart/SpanEnd are set only for AnswerCustomSpan: the user-picked
	// offsets, in the target document's text, of a span not already a
	// nugget.
	SpanStart int
	SpanEnd   int
	// SelectionIndex is set only for AnswerConfirm in response to a
	// RequestChooseFromShortlist: the chosen candidate's index into that
	// request's Candidates.
	SelectionIndex int
}

// RequestKind selects the shape of an interaction request.
type RequestKind string

const (
	RequestConfirmProposal     RequestKind = "confirm-proposal"
	RequestChooseFromShortlist RequestKind = "choose-from-shortlist"
	RequestPickSpan            RequestKind = "pick-span"
)

// ShortlistEntry is one candidate in a ChooseFromShortlist request.
type ShortlistEntry struct {
	Nugget   *model.Nugget
	Distance float64
}

// Request carries enough context for a client to render without a
// round-trip: document text and name are reachable through Document.
type Request struct {
	Kind            RequestKind
	Document        *model.Document
	DocIndex        int
	Attribute       *model.Attribute
	Nugget          *model.Nugget // set for RequestConfirmProposal
	CurrentDistance float64
	Candidates      []ShortlistEntry // set for RequestChooseFromShortlist
}

// InteractionCallback blocks the driver awaiting a user response.
type InteractionCallback func(ctx context.Context, req Request) (Answer, error)

// StatusCallback is fire-and-forget progress narration; it must never
// block the driver.
type StatusCallback func(stage string, progressFraction float64, message string)

// bestProposal is the driver's raw (threshold-unaware) ranking of a
// document's nuggets, used to pick which document to ask about next.
// Threshold application happens only at cell finalization (celldecision).
type bestProposal struct {
	nugget   *model.Nugget
	distance float64
}

// Driver runs one attribute's feedback rounds against a DocumentBase.
type Driver struct {
	base *model.DocumentBase
	attr *model.Attribute
	dist *distance.Model

	state State
	tau   float64

	confirmedPositive []*model.Nugget
	// confirmedNegative forbids a nugget from being re-proposed, scoped to
	// its own document only: a rejection says nothing about identical text
	// elsewhere.
	confirmedNegative map[model.NuggetKey]bool

	// errorDocs marks documents whose ranking failed this round; the
	// failure isolates to the document rather than aborting the loop.
	errorDocs map[int]error

	// MaxRounds bounds the feedback budget; 0 means unbounded (the loop
	// still terminates once every document is confirmed or has no
	// remaining candidate).
	MaxRounds int
	rounds    int
}

// NewDriver constructs a Driver for one attribute's matching pass.
func NewDriver(base *model.DocumentBase, attr *model.Attribute, dist *distance.Model) *Driver {
	return &Driver{
		base:              base,
		attr:              attr,
		dist:              dist,
		state:             StateInit,
		tau:               threshold.DefaultThreshold,
		confirmedNegative: make(map[model.NuggetKey]bool),
		errorDocs:         make(map[int]error),
	}
}

// State returns the driver's current state machine position.
func (d *Driver) State() State { return d.state }

// Threshold returns the current distance threshold tau.
func (d *Driver) Threshold() float64 { return d.tau }

// Rounds returns the number of feedback rounds completed so far.
func (d *Driver) Rounds() int { return d.rounds }

// ConfirmedPositives returns the attribute's confirmed-positive nuggets.
func (d *Driver) ConfirmedPositives() []*model.Nugget {
	return append([]*model.Nugget(nil), d.confirmedPositive...)
}

// Run drives INIT -> RANKED -> (ASKING -> UPDATED -> RANKED)* -> DONE,
// calling ask for every round and emit for progress narration. It returns
// matcherr.UserCancelled if ctx is cancelled between rounds; a
// cancellation that lands mid-ask discards the pending answer.
func (d *Driver) Run(ctx context.Context, ask InteractionCallback, emit StatusCallback) error {
	if d.state == StateInit {
		d.rankAllUnconfirmed()
		d.state = StateRanked
	}

	for {
		if err := ctx.Err(); err != nil {
			return matcherr.UserCancelled
		}
		if d.MaxRounds > 0 && d.rounds >= d.MaxRounds {
			d.state = StateDone
		}
		if d.state == StateDone {
			return nil
		}

		docIdx, prop, ok := d.selectNext()
		if !ok {
			d.state = StateDone
			return nil
		}

		doc := d.base.Documents[docIdx]
		req := Request{
			Kind:            RequestConfirmProposal,
			Document:        doc,
			DocIndex:        docIdx,
			Attribute:       d.attr,
			Nugget:          prop.nugget,
			CurrentDistance: prop.distance,
		}
		d.state = StateAsking
		logging.Debug("match", "round %d: proposing %q from %s (distance %.3f)",
			d.rounds+1, logging.Truncate(prop.nugget.Text(doc), 40), doc.Name, prop.distance)
		if emit != nil {
			emit("feedback", d.progress(), "awaiting answer for "+doc.Name)
		}

		answer, err := ask(ctx, req)
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			// Cancellation during ASKING discards the pending answer.
			return matcherr.UserCancelled
		}

		if answer.Kind == AnswerStop {
			d.state = StateDone
			return nil
		}

		if err := d.integrate(docIdx, prop, answer); err != nil {
			return err
		}
		d.rounds++
		d.state = StateUpdated
		d.state = StateRanked
	}
}

func (d *Driver) progress() float64 {
	total := len(d.base.Documents)
	if total == 0 {
		return 1
	}
	done := 0
	for _, doc := range d.base.Documents {
		if _, _, isSet := model.ConfirmedMatch(d.base, doc, d.attr); isSet {
			done++
		}
	}
	return float64(done) / float64(total)
}

// integrate applies one answer to the driver's state.
func (d *Driver) integrate(docIdx int, prop bestProposal, answer Answer) error {
	doc := d.base.Documents[docIdx]

	switch answer.Kind {
	case AnswerConfirm:
		if prop.nugget == nil {
			return &matcherr.ConsistencyViolationError{Invariant: "confirm answer without a proposed nugget"}
		}
		idx := nuggetIndexOf(doc, prop.nugget)
		model.SetConfirmedMatch(d.base, docIdx, idx, d.attr)
		d.confirmedPositive = append(d.confirmedPositive, prop.nugget)
		d.recomputeThreshold()
		d.rankAllUnconfirmed()

	case AnswerReject:
		if prop.nugget == nil {
			return &matcherr.ConsistencyViolationError{Invariant: "reject answer without a proposed nugget"}
		}
		d.confirmedNegative[prop.nugget.Key()] = true
		prop.nugget.Signals.Set(model.ScopedSignalID(model.SignalConfirmedNegative, d.attr.Name), model.FloatSignal(prop.distance))
		d.recomputeThreshold()
		d.rankOne(docIdx)

	case AnswerCustomSpan:
		n, err := d.synthesizeCustomNugget(doc, docIdx, answer.SpanStart, answer.SpanEnd)
		if err != nil {
			return err
		}
		idx := nuggetIndexOf(doc, n)
		model.SetConfirmedMatch(d.base, docIdx, idx, d.attr)
		d.confirmedPositive = append(d.confirmedPositive, n)
		d.recomputeThreshold()
		d.rankAllUnconfirmed()

	case AnswerNoMatch:
		model.SetNoMatch(doc, d.attr)
		doc.Signals.Delete(model.ScopedSignalID(model.SignalCurrentlyHighestRanked, d.attr.Name))
	}
	return nil
}

// synthesizeCustomNugget mints and embeds a new Nugget for a user-picked
// span not already present as a nugget. The
// provenance fingerprint is derived from the span's coordinates rather
// than minted randomly, so replaying the same answer sequence yields
// bit-identical signals.
func (d *Driver) synthesizeCustomNugget(doc *model.Document, docIdx, start, end int) (*model.Nugget, error) {
	if existing, ok := doc.NuggetAt(start, end); ok {
		return existing, nil
	}
	n := model.NewNugget(docIdx, start, end)
	fp := model.ShortID(fmt.Sprintf("%s:%d:%d", doc.Name, start, end))
	n.Signals.Set(model.SignalProvenance, model.StringSignal("user-custom-span:"+fp))
	if _, err := doc.AddNugget(n); err != nil {
		return nil, err
	}
	emb, err := d.dist.Embed(n.Text(doc))
	if err != nil {
		return nil, &matcherr.EmbeddingFailureError{Cause: err}
	}
	n.Signals.Set(model.SignalTextEmbedding, model.VectorSignal(emb))
	return n, nil
}

// selectNext picks which document to ask about next:
// among documents without a confirmed-match, the best (lowest effective
// distance) un-confirmed proposal, tie-broken by document order then
// nugget offset.
func (d *Driver) selectNext() (int, bestProposal, bool) {
	bestIdx := -1
	var best bestProposal
	for i, doc := range d.base.Documents {
		if _, _, isSet := model.ConfirmedMatch(d.base, doc, d.attr); isSet {
			continue
		}
		if _, hasErr := d.errorDocs[i]; hasErr {
			continue
		}
		ref, ok := doc.Signals.GetNuggetRef(model.ScopedSignalID(model.SignalCurrentlyHighestRanked, d.attr.Name))
		if !ok {
			continue
		}
		_, nugget, ok := d.base.Resolve(ref)
		if !ok {
			continue
		}
		dist, ok := nugget.Signals.GetFloat(model.SignalCachedDistance)
		if !ok {
			continue
		}
		cand := bestProposal{nugget: nugget, distance: dist}
		if bestIdx == -1 || cand.distance < best.distance ||
			(cand.distance == best.distance && less(i, cand.nugget, bestIdx, best.nugget)) {
			bestIdx = i
			best = cand
		}
	}
	if bestIdx == -1 {
		return 0, bestProposal{}, false
	}
	return bestIdx, best, true
}

func less(docA int, nA *model.Nugget, docB int, nB *model.Nugget) bool {
	if docA != docB {
		return docA < docB
	}
	return nA.Start < nB.Start
}

// rankAllUnconfirmed recomputes the best proposal for every document
// without a confirmed-match, invalidating any previous cached-distance.
func (d *Driver) rankAllUnconfirmed() {
	for i, doc := range d.base.Documents {
		if _, _, isSet := model.ConfirmedMatch(d.base, doc, d.attr); isSet {
			continue
		}
		d.rankOne(i)
	}
}

// rankOne recomputes a single document's best proposal.
func (d *Driver) rankOne(docIdx int) {
	doc := d.base.Documents[docIdx]
	scoped := model.ScopedSignalID(model.SignalCurrentlyHighestRanked, d.attr.Name)

	var best *model.Nugget
	bestDist := 0.0
	first := true
	for _, n := range doc.Nuggets {
		if d.confirmedNegative[n.Key()] {
			continue
		}
		dd, err := d.dist.Distance(n, doc, d.attr, d.confirmedPositive)
		if err != nil {
			doc.Signals.Delete(scoped)
			d.errorDocs[docIdx] = err
			return
		}
		if first || dd < bestDist || (dd == bestDist && n.Start < best.Start) {
			best = n
			bestDist = dd
			first = false
		}
	}
	delete(d.errorDocs, docIdx)
	if first {
		doc.Signals.Delete(scoped)
		return
	}
	idx := nuggetIndexOf(doc, best)
	doc.Signals.Set(scoped, model.NuggetRefSignal(docIdx, idx))
	best.Signals.Set(model.SignalCachedDistance, model.FloatSignal(bestDist))
}

// recomputeThreshold re-adapts tau from the current confirmed sets.
// Every confirmed positive's distance against the confirmed set
// (including itself) is trivially 0 — the nearest confirmed positive to
// a nugget is itself. Confirmed-negative distances
// are recomputed fresh against the current confirmed-positive set so a
// later confirm can still move tau.
func (d *Driver) recomputeThreshold() {
	posDists := make([]float64, len(d.confirmedPositive))
	negDists := make([]float64, 0, len(d.confirmedNegative))
	for key := range d.confirmedNegative {
		if key.DocIndex < 0 || key.DocIndex >= len(d.base.Documents) {
			continue
		}
		doc := d.base.Documents[key.DocIndex]
		n, ok := doc.NuggetAt(key.Start, key.End)
		if !ok {
			continue
		}
		dd, err := d.dist.Distance(n, doc, d.attr, d.confirmedPositive)
		if err != nil {
			continue
		}
		negDists = append(negDists, dd)
	}
	d.tau = threshold.Adapt(posDists, negDists)
	logging.Debug("threshold", "tau=%.3f (%d positives, %d negatives)", d.tau, len(posDists), len(negDists))
}

func nuggetIndexOf(doc *model.Document, n *model.Nugget) int {
	for i, candidate := range doc.Nuggets {
		if candidate == n {
			return i
		}
	}
	return -1
}
