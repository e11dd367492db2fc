// Package executor is the batch job that sends due follow-up emails. It is
// triggered externally (cron), claims items, generates copy through the
// gateway, and sends through the email provider.
package executor

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/flowstack-agency/leadflow/internal/gateway"
	"github.com/flowstack-agency/leadflow/internal/ledger"
	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/internal/store"
	"github.com/flowstack-agency/leadflow/pkg/resend"
)

// Completer is the slice of the gateway the executor needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	ModelFor(p gateway.Purpose) string
}

// DefaultLimit bounds one invocation's batch so a single run cannot
// monopolize the email provider's rate limit.
const DefaultLimit = 10

const (
	defaultItemTimeout = 30 * time.Second
	defaultItemDelay   = 500 * time.Millisecond
	emailMaxTokens     = 800
	emailTemperature   = 0.7
)

// Config tunes one Executor.
type Config struct {
	// From is the sender address for all follow-up email.
	From string

	// ItemTimeout bounds the external calls for one item so a slow
	// dependency cannot stall the whole batch.
	ItemTimeout time.Duration

	// ItemDelay is the courtesy pause between items. A provider rate-limit
	// nicety, not a correctness requirement.
	ItemDelay time.Duration
}

// Executor processes due follow-up items.
type Executor struct {
	store       store.Store
	gateway     Completer
	ledger      *ledger.Ledger
	emails      resend.Client
	from        string
	itemTimeout time.Duration
	limiter     *rate.Limiter

	// now is injectable for tests.
	now func() time.Time
}

// New creates an Executor.
func New(st store.Store, gw Completer, led *ledger.Ledger, emails resend.Client, cfg Config) *Executor {
	if cfg.ItemTimeout <= 0 {
		cfg.ItemTimeout = defaultItemTimeout
	}
	if cfg.ItemDelay <= 0 {
		cfg.ItemDelay = defaultItemDelay
	}
	return &Executor{
		store:       st,
		gateway:     gw,
		ledger:      led,
		emails:      emails,
		from:        cfg.From,
		itemTimeout: cfg.ItemTimeout,
		limiter:     rate.NewLimiter(rate.Every(cfg.ItemDelay), 1),
		now:         time.Now,
	}
}

// ItemResult reports the outcome for one follow-up item.
type ItemResult struct {
	ID           string          `json:"id"`
	SubmissionID string          `json:"submission_id"`
	EmailType    model.EmailType `json:"email_type"`
	Status       string          `json:"status"` // sent, failed or skipped
	Error        string          `json:"error,omitempty"`
}

// Summary aggregates one invocation.
type Summary struct {
	Processed int          `json:"processed"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Items     []ItemResult `json:"items"`
}

// ProcessDue claims and sends follow-up items that are due. One bad item
// never aborts the batch.
func (e *Executor) ProcessDue(ctx context.Context, limit int) (*Summary, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	items, err := e.store.DueFollowups(ctx, e.now().UTC(), limit)
	if err != nil {
		return nil, eris.Wrap(err, "executor: query due followups")
	}

	summary := &Summary{Items: make([]ItemResult, 0, len(items))}
	for i := range items {
		if i > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				return summary, eris.Wrap(err, "executor: batch interrupted")
			}
		}

		res := e.processItem(ctx, &items[i])
		summary.Items = append(summary.Items, res)
		summary.Processed++
		switch res.Status {
		case "sent":
			summary.Succeeded++
		case "failed":
			summary.Failed++
		case "skipped":
			summary.Skipped++
		}
	}

	zap.L().Info("followup batch processed",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

// ReleaseStale resets claims taken more than olderThan ago so the next poll
// can pick them up. Claim age decides staleness, so a fresh claim on a long
// overdue item stays with the run that owns it.
func (e *Executor) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return e.store.ReleaseStaleClaims(ctx, e.now().UTC().Add(-olderThan))
}

func (e *Executor) processItem(ctx context.Context, item *model.FollowupItem) ItemResult {
	res := ItemResult{ID: item.ID, SubmissionID: item.SubmissionID, EmailType: item.EmailType}

	claimed, err := e.store.ClaimFollowup(ctx, item.ID, e.now().UTC())
	if err != nil {
		return e.failed(ctx, item, res, eris.Wrap(err, "claim followup"))
	}
	if !claimed {
		// A concurrent run won the claim. A missed send is recoverable;
		// a double send is not.
		res.Status = "skipped"
		return res
	}

	// Bound the external calls for this item. Bookkeeping writes keep the
	// parent context so a timed-out item can still be marked failed.
	callCtx, cancel := context.WithTimeout(ctx, e.itemTimeout)
	defer cancel()

	sub, err := e.store.GetSubmission(callCtx, item.SubmissionID)
	if err != nil {
		return e.failed(ctx, item, res, eris.Wrap(err, "load submission"))
	}
	if sub == nil {
		return e.failed(ctx, item, res, eris.New("contact not found"))
	}

	score, err := e.store.GetLeadScore(callCtx, item.SubmissionID)
	if err != nil {
		// Personalization context is optional; proceed without it.
		zap.L().Warn("lead score unavailable for followup",
			zap.String("followup_id", item.ID),
			zap.Error(err),
		)
		score = nil
	}

	gen, err := e.gateway.Complete(callCtx, gateway.Request{
		Purpose:     gateway.PurposeEmailGeneration,
		System:      emailSystemPrompt,
		User:        buildEmailPrompt(item, sub, score),
		MaxTokens:   emailMaxTokens,
		Temperature: floatPtr(emailTemperature),
	})
	if err != nil {
		e.recordGeneration(ctx, item, nil, false, err.Error())
		return e.failed(ctx, item, res, eris.Wrap(err, "generate email"))
	}

	email, err := parseEmail(gen.Text)
	if err != nil {
		e.recordGeneration(ctx, item, gen, false, err.Error())
		return e.failed(ctx, item, res, err)
	}

	htmlBody := renderHTML(email.Body, email.CTAText, email.CTAURL)
	textBody := renderText(email.Body, email.CTAText, email.CTAURL)

	_, err = e.emails.Send(callCtx, resend.Email{
		From:    e.from,
		To:      sub.Email,
		Subject: email.Subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		e.recordGeneration(ctx, item, gen, false, err.Error())
		return e.failed(ctx, item, res, eris.Wrap(err, "send email"))
	}

	sentAt := e.now().UTC()
	if err := e.store.MarkFollowupSent(ctx, item.ID, email.Subject, htmlBody, sentAt); err != nil {
		// The email went out; the bookkeeping failure must not look like a
		// send failure to the caller.
		zap.L().Error("sent followup could not be marked",
			zap.String("followup_id", item.ID),
			zap.Error(err),
		)
	}
	e.recordGeneration(ctx, item, gen, true, "")

	res.Status = "sent"
	return res
}

// failed marks the item failed and records the error on the result. The
// batch continues regardless.
func (e *Executor) failed(ctx context.Context, item *model.FollowupItem, res ItemResult, cause error) ItemResult {
	if err := e.store.MarkFollowupFailed(ctx, item.ID, cause.Error()); err != nil {
		zap.L().Error("followup could not be marked failed",
			zap.String("followup_id", item.ID),
			zap.Error(err),
		)
	}
	res.Status = "failed"
	res.Error = cause.Error()
	return res
}

// recordGeneration appends the email_generation ledger row. The success flag
// mirrors the send outcome, not just the model call.
func (e *Executor) recordGeneration(ctx context.Context, item *model.FollowupItem, gen *gateway.Result, success bool, errMsg string) {
	entry := ledger.Entry{
		Type:         model.InteractionEmailGeneration,
		SubmissionID: item.SubmissionID,
		Model:        e.gateway.ModelFor(gateway.PurposeEmailGeneration),
		Success:      success,
		ErrorMessage: errMsg,
	}
	if gen != nil {
		entry.Model = gen.Model
		entry.InputTokens = gen.InputTokens
		entry.OutputTokens = gen.OutputTokens
	}
	if _, err := e.ledger.Record(ctx, entry); err != nil {
		zap.L().Warn("interaction record failed",
			zap.String("followup_id", item.ID),
			zap.Error(err),
		)
	}
}

// emailOutput is the JSON contract for generated email copy.
type emailOutput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	CTAText string `json:"cta_text"`
	CTAURL  string `json:"cta_url"`
}

func parseEmail(raw string) (*emailOutput, error) {
	jsonStr, err := gateway.ExtractJSON(raw)
	if err != nil {
		return nil, eris.Wrap(err, "executor: extract email JSON")
	}

	var out emailOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, eris.Wrap(err, "executor: parse email JSON")
	}
	if strings.TrimSpace(out.Subject) == "" || strings.TrimSpace(out.Body) == "" {
		return nil, eris.New("executor: email JSON missing subject or body")
	}
	return &out, nil
}

func floatPtr(f float64) *float64 { return &f }
