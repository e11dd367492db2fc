package store

import (
	"context"
	"time"

	"github.com/flowstack-agency/leadflow/internal/model"
)

// InteractionFilter specifies criteria for listing interaction records.
type InteractionFilter struct {
	Type  model.InteractionType `json:"interaction_type,omitempty"`
	From  time.Time             `json:"from,omitempty"`
	To    time.Time             `json:"to,omitempty"`
	Limit int                   `json:"limit,omitempty"`
}

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Submissions
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, processedAt *time.Time) error

	// Lead scores. InsertLeadScore is idempotent per submission: a second
	// insert for the same submission id reports inserted=false without error,
	// so a retried scoring request is a no-op instead of a duplicate row.
	InsertLeadScore(ctx context.Context, score *model.LeadScore) (inserted bool, err error)
	GetLeadScore(ctx context.Context, submissionID string) (*model.LeadScore, error)

	// Follow-up queue. InsertFollowups persists the whole batch or nothing.
	InsertFollowups(ctx context.Context, items []model.FollowupItem) error
	DueFollowups(ctx context.Context, now time.Time, limit int) ([]model.FollowupItem, error)
	// ClaimFollowup transitions pending->processing and stamps claimed_at;
	// claimed=false means a concurrent run won the race (or the item left
	// pending some other way).
	ClaimFollowup(ctx context.Context, id string, claimedAt time.Time) (claimed bool, err error)
	MarkFollowupSent(ctx context.Context, id, subject, body string, sentAt time.Time) error
	MarkFollowupFailed(ctx context.Context, id, errorMessage string) error
	CancelFollowups(ctx context.Context, submissionID string) (int, error)
	// ReleaseStaleClaims resets processing items whose claim was taken
	// before the cutoff back to pending so abandoned claims are retried on
	// a later poll. Staleness is judged by claimed_at, never scheduled_for:
	// an overdue item claimed moments ago is live work, not an orphan.
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int, error)

	// Interaction ledger (append-only)
	InsertInteraction(ctx context.Context, rec *model.Interaction) error
	ListInteractions(ctx context.Context, filter InteractionFilter) ([]model.Interaction, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
