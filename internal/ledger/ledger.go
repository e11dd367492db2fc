// Package ledger is the append-only audit sink for model interactions.
package ledger

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flowstack-agency/leadflow/internal/cost"
	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/store"
)

// Entry describes one model invocation to be recorded.
type Entry struct {
	Type         model.InteractionType
	SubmissionID string
	Model        string
	InputTokens  int
	OutputTokens int
	Success      bool
	ErrorMessage string
}

// Ledger records interaction rows and computes their cost from the same
// pricing table the gateway uses, so billed and displayed figures never
// drift apart.
type Ledger struct {
	store store.Store
	costs *cost.Calculator
}

// New creates a Ledger on top of a store.
func New(st store.Store, costs *cost.Calculator) *Ledger {
	return &Ledger{store: st, costs: costs}
}

// Record appends one interaction row and returns its computed USD cost.
func (l *Ledger) Record(ctx context.Context, e Entry) (float64, error) {
	costUSD := l.costs.Completion(e.Model, e.InputTokens, e.OutputTokens)

	rec := &model.Interaction{
		Type:         e.Type,
		SubmissionID: e.SubmissionID,
		Model:        e.Model,
		InputTokens:  e.InputTokens,
		OutputTokens: e.OutputTokens,
		CostUSD:      costUSD,
		Success:      e.Success,
		ErrorMessage: e.ErrorMessage,
	}
	if err := l.store.InsertInteraction(ctx, rec); err != nil {
		return 0, eris.Wrap(err, "ledger: record interaction")
	}

	zap.L().Debug("interaction recorded",
		zap.String("type", string(e.Type)),
		zap.String("model", e.Model),
		zap.Bool("success", e.Success),
		zap.Float64("cost_usd", costUSD),
	)
	return costUSD, nil
}

// List returns interaction rows matching the filter, newest first.
func (l *Ledger) List(ctx context.Context, filter store.InteractionFilter) ([]model.Interaction, error) {
	recs, err := l.store.ListInteractions(ctx, filter)
	return recs, eris.Wrap(err, "ledger: list interactions")
}
