package pipeline

import (
	"context"

	"github.com/wannadb/matching/internal/celldecision"
	"github.com/wannadb/matching/internal/distance"
	"github.com/wannadb/matching/internal/feedback"
	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
	"github.com/wannadb/matching/internal/threshold"
)

// EmbedAttributeStage computes and caches the attribute's label
// embedding, the entry stage of a matching run.
type EmbedAttributeStage struct {
	Dist *distance.Model
}

func (s *EmbedAttributeStage) Name() string { return "Embed Attribute" }

func (s *EmbedAttributeStage) Required() []SignalRequirement {
	return []SignalRequirement{{Entity: "attribute", Signal: model.SignalLabel}}
}

func (s *EmbedAttributeStage) Produced() []SignalRequirement {
	return []SignalRequirement{{Entity: "attribute", Signal: model.SignalTextEmbedding}}
}

func (s *EmbedAttributeStage) Run(ctx context.Context, rc *RunContext) error {
	_, err := s.Dist.LabelEmbedding(rc.Attribute)
	if rc.Stats != nil {
		rc.Stats.Record("attribute", rc.Attribute.Name)
	}
	return err
}

// ComputeInitialDistancesStage ranks every document's nuggets against the
// freshly embedded attribute label with no confirmed matches yet, seeding
// currently-highest-ranked / cached-distance for the feedback loop.
type ComputeInitialDistancesStage struct {
	Dist *distance.Model
}

func (s *ComputeInitialDistancesStage) Name() string { return "Compute Initial Distances" }

func (s *ComputeInitialDistancesStage) Required() []SignalRequirement {
	return []SignalRequirement{
		{Entity: "attribute", Signal: model.SignalTextEmbedding},
		{Entity: "nugget", Signal: model.SignalTextEmbedding},
	}
}

func (s *ComputeInitialDistancesStage) Produced() []SignalRequirement {
	return []SignalRequirement{{Entity: "nugget", Signal: model.SignalCachedDistance}}
}

func (s *ComputeInitialDistancesStage) Run(ctx context.Context, rc *RunContext) error {
	ranked, errored := 0, 0
	for docIdx, doc := range rc.Base.Documents {
		// Unbounded threshold: this stage only seeds the raw ranking the
		// feedback loop selects from, not the threshold-gated final cell
		// (that's Finalize Cells). A ranking error isolates to its document:
		// Apply clears that document's proposal and the stage goes on.
		prop := celldecision.Decide(s.Dist, doc, rc.Attribute, nil, maxDistance)
		celldecision.Apply(docIdx, doc, rc.Attribute, prop)
		switch prop.Status {
		case celldecision.StatusMatched:
			ranked++
		case celldecision.StatusError:
			errored++
		}
	}
	if rc.Stats != nil {
		rc.Stats.Record("documents_ranked", ranked)
		rc.Stats.Record("documents_errored", errored)
	}
	return nil
}

// maxDistance exceeds any possible cosine distance (range [0, 2]), so
// Decide here never rejects on threshold — only "no nuggets" yields empty.
const maxDistance = 2.0

// InteractiveFeedbackLoopStage drives the human-in-the-loop rounds
// to completion, then hands the resulting feedback.Driver
// to later stages via RunContext so Finalize Cells sees the adapted
// threshold and confirmed set.
type InteractiveFeedbackLoopStage struct {
	Dist *distance.Model
}

func (s *InteractiveFeedbackLoopStage) Name() string { return "Interactive Feedback Loop" }

func (s *InteractiveFeedbackLoopStage) Required() []SignalRequirement {
	return []SignalRequirement{{Entity: "attribute", Signal: model.SignalTextEmbedding}}
}

func (s *InteractiveFeedbackLoopStage) Produced() []SignalRequirement {
	return nil
}

func (s *InteractiveFeedbackLoopStage) Run(ctx context.Context, rc *RunContext) error {
	if rc.Ask == nil {
		return &matcherr.ResourceUnavailableError{ResourceID: "interaction-callback"}
	}
	d := feedback.NewDriver(rc.Base, rc.Attribute, s.Dist)
	d.MaxRounds = rc.MaxFeedbackRounds
	err := d.Run(ctx, rc.Ask, rc.Emit)
	rc.driver = d
	if rc.Stats != nil {
		rc.Stats.Record("rounds", d.Rounds())
		rc.Stats.Record("threshold", d.Threshold())
		rc.Stats.Record("confirmations", len(d.ConfirmedPositives()))
	}
	return err
}

// FinalizeCellsStage applies the threshold-gated per-document cell
// decision to every document, using the threshold the
// feedback loop adapted (or the default if the loop never ran).
type FinalizeCellsStage struct {
	Dist *distance.Model
}

func (s *FinalizeCellsStage) Name() string { return "Finalize Cells" }

func (s *FinalizeCellsStage) Required() []SignalRequirement {
	return []SignalRequirement{{Entity: "attribute", Signal: model.SignalTextEmbedding}}
}

func (s *FinalizeCellsStage) Produced() []SignalRequirement {
	return []SignalRequirement{{Entity: "nugget", Signal: model.SignalCachedDistance}}
}

func (s *FinalizeCellsStage) Run(ctx context.Context, rc *RunContext) error {
	tau := threshold.DefaultThreshold
	var confirmedPositive []*model.Nugget
	if rc.driver != nil {
		tau = rc.driver.Threshold()
		confirmedPositive = rc.driver.ConfirmedPositives()
	}

	matched, empty, errored := 0, 0, 0
	for docIdx, doc := range rc.Base.Documents {
		if nugget, isNoMatch, isSet := model.ConfirmedMatch(rc.Base, doc, rc.Attribute); isSet {
			if !isNoMatch && nugget != nil {
				matched++
			} else {
				empty++
			}
			continue
		}
		prop := celldecision.Decide(s.Dist, doc, rc.Attribute, confirmedPositive, tau)
		celldecision.Apply(docIdx, doc, rc.Attribute, prop)
		switch prop.Status {
		case celldecision.StatusMatched:
			matched++
		case celldecision.StatusEmpty:
			empty++
		case celldecision.StatusError:
			errored++
		}
	}
	if rc.Stats != nil {
		rc.Stats.Record("matched", matched)
		rc.Stats.Record("empty", empty)
		rc.Stats.Record("errored", errored)
	}
	return nil
}
