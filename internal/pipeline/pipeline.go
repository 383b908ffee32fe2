// Package pipeline implements the ordered-stage driver: it runs named
// stages over a DocumentBase, checking each stage's signal
// preconditions before running it and recording step-level statistics.
package pipeline

import (
	"context"
	"fmt"

	"github.com/wannadb/matching/internal/feedback"
	"github.com/wannadb/matching/internal/logging"
	"github.com/wannadb/matching/internal/matcherr"
	"github.com/wannadb/matching/internal/model"
	"github.com/wannadb/matching/internal/stats"
)

// SignalRequirement names a signal a stage needs present (or produces) on
// either Attribute or Nugget entities.
type SignalRequirement struct {
	Entity string // "attribute" or "nugget"
	Signal model.SignalID
}

// Stage is one step of the pipeline. Required/Produced
// describe the signal contract the driver checks before/records after
// running; Run does the actual work.
type Stage interface {
	Name() string
	Required() []SignalRequirement
	Produced() []SignalRequirement
	Run(ctx context.Context, rc *RunContext) error
}

// RunContext carries everything a stage needs: the base and attribute it
// is operating on, the interaction/status callbacks, a shared distance
// model, and the statistics recorder for this run.
type RunContext struct {
	Base      *model.DocumentBase
	Attribute *model.Attribute
	Ask       feedback.InteractionCallback
	Emit      feedback.StatusCallback
	Stats     *stats.Recorder

	// Seed is the explicit random seed carried on the pipeline config:
	// stages must be deterministic modulo this value and modulo user
	// answers.
	Seed int64

	// MaxFeedbackRounds bounds the Interactive Feedback Loop stage; 0 is
	// unbounded.
	MaxFeedbackRounds int

	// driver is populated by the Interactive Feedback Loop stage so that
	// Finalize Cells can read the adapted threshold and confirmed set
	// without the stages sharing any other mutable state.
	driver *feedback.Driver
}

// Config describes one pipeline run: the ordered stage list, the seed
// its stages must be deterministic modulo, and the feedback-round budget.
type Config struct {
	Stages []Stage
	Seed   int64
	// MaxFeedbackRounds bounds the Interactive Feedback Loop stage's
	// round budget; 0 means unbounded.
	MaxFeedbackRounds int
}

// Driver runs a Config's stages in order over one attribute of a
// DocumentBase, verifying each stage's signal preconditions first.
type Driver struct {
	cfg Config
}

// New constructs a Driver for cfg.
func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Run executes every configured stage in order against attr. It aborts
// with matcherr.MissingSignalError the first time a stage's precondition
// is unmet, leaving the DocumentBase in its last consistent state.
func (d *Driver) Run(ctx context.Context, base *model.DocumentBase, attr *model.Attribute, ask feedback.InteractionCallback, emit feedback.StatusCallback, recorder *stats.Recorder) (*RunContext, error) {
	rc := &RunContext{
		Base:              base,
		Attribute:         attr,
		Ask:               ask,
		Emit:              emit,
		Stats:             recorder,
		Seed:              d.cfg.Seed,
		MaxFeedbackRounds: d.cfg.MaxFeedbackRounds,
	}

	for _, stage := range d.cfg.Stages {
		if err := ctx.Err(); err != nil {
			return rc, matcherr.UserCancelled
		}
		if err := checkPreconditions(stage, base, attr); err != nil {
			logging.Info("pipeline", "aborting: %v", err)
			return rc, err
		}
		logging.Debug("pipeline", "running stage %q for attribute %q", stage.Name(), attr.Name)

		var stageErr error
		if recorder != nil {
			stageErr = recorder.Span(stage.Name(), func() error { return stage.Run(ctx, rc) })
		} else {
			stageErr = stage.Run(ctx, rc)
		}
		if stageErr != nil {
			return rc, stageErr
		}
		if recorder != nil {
			recorder.Enter(stage.Name() + ":produced")
			for _, req := range stage.Produced() {
				recorder.Record(string(req.Signal), checkHasAny(req, base, attr))
			}
			recorder.Leave()
		}
	}
	return rc, nil
}

// checkPreconditions verifies every required signal is present on the
// relevant entities before the stage runs. Attribute-scoped requirements
// check the attribute itself; nugget-scoped requirements check every
// nugget of every document (an empty document trivially satisfies them,
// since its cell is empty regardless).
func checkPreconditions(stage Stage, base *model.DocumentBase, attr *model.Attribute) error {
	for _, req := range stage.Required() {
		switch req.Entity {
		case "attribute":
			if _, ok := attr.Signals.Get(req.Signal); !ok {
				return &matcherr.MissingSignalError{
					Entity:   "attribute:" + attr.Name,
					SignalID: string(req.Signal),
					Stage:    stage.Name(),
				}
			}
		case "nugget":
			for _, doc := range base.Documents {
				for _, n := range doc.Nuggets {
					if _, ok := n.Signals.Get(req.Signal); !ok {
						return &matcherr.MissingSignalError{
							Entity:   fmt.Sprintf("nugget:%s[%d:%d]", doc.Name, n.Start, n.End),
							SignalID: string(req.Signal),
							Stage:    stage.Name(),
						}
					}
				}
			}
		}
	}
	return nil
}

func checkHasAny(req SignalRequirement, base *model.DocumentBase, attr *model.Attribute) bool {
	switch req.Entity {
	case "attribute":
		_, ok := attr.Signals.Get(req.Signal)
		return ok
	case "nugget":
		for _, doc := range base.Documents {
			for _, n := range doc.Nuggets {
				if _, ok := n.Signals.Get(req.Signal); ok {
					return true
				}
			}
		}
	}
	return false
}
