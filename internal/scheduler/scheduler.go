// Package scheduler turns a lead's recommended sequence into pending
// follow-up items. It is deterministic and makes no model calls.
package scheduler

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/store"
)

// Scheduler persists follow-up batches for scored leads.
type Scheduler struct {
	store     store.Store
	overrides map[model.SequenceName][]Step
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithOverrides replaces the cadence of the named sequences.
func WithOverrides(overrides map[model.SequenceName][]Step) Option {
	return func(s *Scheduler) {
		s.overrides = overrides
	}
}

// New creates a Scheduler on top of a store.
func New(st store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{store: st}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StepsFor resolves a sequence name to its cadence. Unrecognized names fall
// back to the minimal single-email sequence rather than erroring, so a bad
// model recommendation still produces a follow-up.
func (s *Scheduler) StepsFor(name model.SequenceName) []Step {
	if s.overrides != nil {
		if steps, ok := s.overrides[name]; ok {
			return steps
		}
	}
	if steps, ok := builtinSequences[name]; ok {
		return steps
	}
	return builtinSequences[model.SequenceMinimal]
}

// BuildItems computes the follow-up batch for a lead without persisting it.
// Sequence numbers are 1-based and scheduled_for grows with each step.
func (s *Scheduler) BuildItems(submissionID, leadScoreID string, name model.SequenceName, now time.Time) []model.FollowupItem {
	steps := s.StepsFor(name)

	items := make([]model.FollowupItem, 0, len(steps))
	for i, st := range steps {
		items = append(items, model.FollowupItem{
			SubmissionID:   submissionID,
			LeadScoreID:    leadScoreID,
			SequenceNumber: i + 1,
			EmailType:      st.EmailType,
			ScheduledFor:   now.Add(time.Duration(st.DelayHours) * time.Hour),
			Status:         model.FollowupPending,
		})
	}
	return items
}

// Schedule persists the follow-up batch for a scored lead. The batch lands
// whole or not at all. Returns the number of items scheduled.
func (s *Scheduler) Schedule(ctx context.Context, submissionID, leadScoreID string, name model.SequenceName, now time.Time) (int, error) {
	items := s.BuildItems(submissionID, leadScoreID, name, now)

	if err := s.store.InsertFollowups(ctx, items); err != nil {
		return 0, eris.Wrapf(err, "scheduler: schedule followups for %s", submissionID)
	}

	zap.L().Info("followups scheduled",
		zap.String("submission_id", submissionID),
		zap.String("sequence", string(name)),
		zap.Int("count", len(items)),
	)
	return len(items), nil
}
