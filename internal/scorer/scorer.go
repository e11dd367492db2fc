// Package scorer qualifies inbound leads with a model call and hands the
// result to the follow-up scheduler.
package scorer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/flowstack-agency/leadflow/internal/gateway"
	"github.com/flowstack-agency/leadflow/internal/ledger"
	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/resilience"
	"github.com/flowstack-agency/leadflow/internal/scheduler"
	"github.com/flowstack-agency/leadflow/internal/store"
)

// Completer is the slice of the gateway the scorer needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	ModelFor(p gateway.Purpose) string
}

// scoringTemperature favors determinism: this is a numeric and categorical
// decision, not prose.
const scoringTemperature = 0.2

const scoringMaxTokens = 1024

// Scorer runs the qualification pipeline for one submission at a time.
type Scorer struct {
	store     store.Store
	gateway   Completer
	ledger    *ledger.Ledger
	scheduler *scheduler.Scheduler

	// now is injectable for tests.
	now func() time.Time
}

// New creates a Scorer.
func New(st store.Store, gw Completer, led *ledger.Ledger, sched *scheduler.Scheduler) *Scorer {
	return &Scorer{
		store:     st,
		gateway:   gw,
		ledger:    led,
		scheduler: sched,
		now:       time.Now,
	}
}

// Result is what the contact-form caller sees. Scoring fallbacks and
// scheduling failures are deliberately invisible here.
type Result struct {
	Score              *model.LeadScore `json:"lead_score,omitempty"`
	FollowupsScheduled int              `json:"followups_scheduled"`
}

// ProcessLead scores one submission end to end: prompt, model call, parse
// with fallback, persist, transition the submission, schedule follow-ups.
func (s *Scorer) ProcessLead(ctx context.Context, submissionID string) (*Result, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, eris.Errorf("scorer: submission not found: %s", submissionID)
	}
	if strings.TrimSpace(sub.Email) == "" {
		return nil, s.failSubmission(ctx, submissionID, eris.Errorf("scorer: submission %s has no email", submissionID))
	}

	if err := s.store.UpdateSubmissionStatus(ctx, submissionID, model.SubmissionProcessing, nil); err != nil {
		return nil, err
	}

	res, err := s.gateway.Complete(ctx, gateway.Request{
		Purpose:     gateway.PurposeLeadScoring,
		System:      scoringSystemPrompt,
		User:        buildScoringPrompt(sub, s.now()),
		MaxTokens:   scoringMaxTokens,
		Temperature: floatPtr(scoringTemperature),
	})
	if err != nil {
		s.recordInteraction(ctx, ledger.Entry{
			Type:         model.InteractionLeadProcessing,
			SubmissionID: submissionID,
			Model:        s.gateway.ModelFor(gateway.PurposeLeadScoring),
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return nil, s.failSubmission(ctx, submissionID, eris.Wrapf(err, "scorer: score submission %s", submissionID))
	}

	s.recordInteraction(ctx, ledger.Entry{
		Type:         model.InteractionLeadProcessing,
		SubmissionID: submissionID,
		Model:        res.Model,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Success:      true,
	})

	score := parseScore(res.Text)
	score.SubmissionID = submissionID

	inserted, err := s.store.InsertLeadScore(ctx, score)
	if err != nil {
		return nil, s.failSubmission(ctx, submissionID, eris.Wrapf(err, "scorer: persist score for %s", submissionID))
	}
	if !inserted {
		// A retried request already scored this submission; its follow-ups
		// were scheduled on the first pass.
		existing, err := s.store.GetLeadScore(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		if err := s.completeSubmission(ctx, submissionID); err != nil {
			return nil, err
		}
		return &Result{Score: existing, FollowupsScheduled: 0}, nil
	}

	if err := s.completeSubmission(ctx, submissionID); err != nil {
		return nil, err
	}

	scheduled := s.dispatchFollowups(ctx, submissionID, score)

	zap.L().Info("lead scored",
		zap.String("submission_id", submissionID),
		zap.Int("score", score.Score),
		zap.String("category", string(score.Category)),
		zap.String("sequence", string(score.RecommendedSequence)),
		zap.Int("followups_scheduled", scheduled),
	)

	return &Result{Score: score, FollowupsScheduled: scheduled}, nil
}

// dispatchFollowups schedules the follow-up batch with bounded retry.
// Failure is logged but never propagated: the score and the completed
// submission must survive a scheduling outage.
func (s *Scorer) dispatchFollowups(ctx context.Context, submissionID string, score *model.LeadScore) int {
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = 200 * time.Millisecond
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = resilience.RetryLogger("scheduler", "schedule_followups")

	scheduled, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (int, error) {
		return s.scheduler.Schedule(ctx, submissionID, score.ID, score.RecommendedSequence, s.now())
	})
	if err != nil {
		zap.L().Error("followup scheduling failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
		return 0
	}
	return scheduled
}

func (s *Scorer) completeSubmission(ctx context.Context, submissionID string) error {
	processedAt := s.now().UTC()
	return s.store.UpdateSubmissionStatus(ctx, submissionID, model.SubmissionCompleted, &processedAt)
}

// failSubmission marks the submission failed and returns cause. A failure to
// record the failure itself is only logged; cause is the error that matters.
func (s *Scorer) failSubmission(ctx context.Context, submissionID string, cause error) error {
	if err := s.store.UpdateSubmissionStatus(ctx, submissionID, model.SubmissionFailed, nil); err != nil {
		zap.L().Error("failed to mark submission failed",
			zap.String("submission_id", submissionID),
			zap.Error(err),
		)
	}
	return cause
}

func (s *Scorer) recordInteraction(ctx context.Context, e ledger.Entry) {
	if _, err := s.ledger.Record(ctx, e); err != nil {
		zap.L().Warn("interaction record failed",
			zap.String("submission_id", e.SubmissionID),
			zap.Error(err),
		)
	}
}

// scoreOutput is the JSON contract the model is instructed to return.
type scoreOutput struct {
	Score                   *int     `json:"score"`
	Category                string   `json:"category"`
	Reasoning               string   `json:"reasoning"`
	BudgetIndicator         string   `json:"budget_indicator"`
	UrgencyIndicator        string   `json:"urgency_indicator"`
	DecisionMakerLikelihood int      `json:"decision_maker_likelihood"`
	IndustryFitScore        int      `json:"industry_fit_score"`
	RecommendedSequence     string   `json:"recommended_followup_sequence"`
	KeyTalkingPoints        []string `json:"key_talking_points"`
}

// parseScore turns raw model output into a LeadScore. It never fails: a lead
// mis-scored as warm beats a lead stuck behind a parse glitch.
func parseScore(raw string) *model.LeadScore {
	jsonStr, err := gateway.ExtractJSON(raw)
	if err != nil {
		return fallbackScore(raw)
	}

	var out scoreOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return fallbackScore(raw)
	}
	if out.Score == nil || !model.Category(out.Category).Valid() {
		return fallbackScore(raw)
	}

	seq := model.SequenceName(out.RecommendedSequence)
	if !seq.Valid() {
		seq = model.SequenceStandard
	}
	budget := out.BudgetIndicator
	if budget == "" {
		budget = "unknown"
	}
	urgency := out.UrgencyIndicator
	if urgency == "" {
		urgency = "low"
	}

	return &model.LeadScore{
		Score:                   clampScore(*out.Score),
		Category:                model.Category(out.Category),
		Reasoning:               out.Reasoning,
		BudgetIndicator:         budget,
		UrgencyIndicator:        urgency,
		DecisionMakerLikelihood: clampScore(out.DecisionMakerLikelihood),
		IndustryFitScore:        clampScore(out.IndustryFitScore),
		RecommendedSequence:     seq,
		TalkingPoints:           out.KeyTalkingPoints,
		RawOutput:               raw,
	}
}

// fallbackScore is the fixed default used when model output is unusable.
func fallbackScore(raw string) *model.LeadScore {
	return &model.LeadScore{
		Score:               50,
		Category:            model.CategoryWarm,
		Reasoning:           "Automatic default: model output could not be parsed as a lead score.",
		BudgetIndicator:     "unknown",
		UrgencyIndicator:    "low",
		RecommendedSequence: model.SequenceStandard,
		RawOutput:           raw,
	}
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func floatPtr(f float64) *float64 { return &f }
