package model

import (
	"time"
)

// SubmissionStatus represents the lifecycle state of a contact submission.
type SubmissionStatus string

const (
	SubmissionPending    SubmissionStatus = "pending"
	SubmissionProcessing SubmissionStatus = "processing"
	SubmissionCompleted  SubmissionStatus = "completed"
	SubmissionFailed     SubmissionStatus = "failed"
)

// Submission is one contact-form submission. Created once by the public
// form; this pipeline only transitions its status.
type Submission struct {
	ID           string           `json:"id"`
	FullName     string           `json:"full_name"`
	Email        string           `json:"email"`
	Phone        string           `json:"phone"`
	BusinessName string           `json:"business_name"`
	Website      string           `json:"website,omitempty"`
	Message      string           `json:"message,omitempty"`
	Status       SubmissionStatus `json:"status"`
	CreatedAt    time.Time        `json:"created_at"`
	ProcessedAt  *time.Time       `json:"processed_at,omitempty"`
}

// Category classifies a lead's sales readiness.
type Category string

const (
	CategoryHot         Category = "hot"
	CategoryWarm        Category = "warm"
	CategoryCold        Category = "cold"
	CategoryUnqualified Category = "unqualified"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryHot, CategoryWarm, CategoryCold, CategoryUnqualified:
		return true
	}
	return false
}

// SequenceName identifies a follow-up email sequence.
type SequenceName string

const (
	SequenceImmediate SequenceName = "immediate"
	SequenceStandard  SequenceName = "standard"
	SequenceNurture   SequenceName = "nurture"
	SequenceMinimal   SequenceName = "minimal"
)

// Valid reports whether s is a known sequence name.
func (s SequenceName) Valid() bool {
	switch s {
	case SequenceImmediate, SequenceStandard, SequenceNurture, SequenceMinimal:
		return true
	}
	return false
}

// LeadScore is the immutable qualification result for one submission.
type LeadScore struct {
	ID                      string       `json:"id"`
	SubmissionID            string       `json:"submission_id"`
	Score                   int          `json:"score"`
	Category                Category     `json:"category"`
	Reasoning               string       `json:"reasoning"`
	BudgetIndicator         string       `json:"budget_indicator"`
	UrgencyIndicator        string       `json:"urgency_indicator"`
	DecisionMakerLikelihood int          `json:"decision_maker_likelihood"`
	IndustryFitScore        int          `json:"industry_fit_score"`
	RecommendedSequence     SequenceName `json:"recommended_followup_sequence"`
	TalkingPoints           []string     `json:"key_talking_points,omitempty"`
	RawOutput               string       `json:"raw_output,omitempty"` // verbatim model reply, kept for audit
	CreatedAt               time.Time    `json:"created_at"`
}

// FollowupStatus represents the state of one scheduled follow-up email.
// pending -> processing -> sent | failed; cancelled is set externally
// (e.g. unsubscribe) and is never produced by the executor.
type FollowupStatus string

const (
	FollowupPending    FollowupStatus = "pending"
	FollowupProcessing FollowupStatus = "processing"
	FollowupSent       FollowupStatus = "sent"
	FollowupFailed     FollowupStatus = "failed"
	FollowupCancelled  FollowupStatus = "cancelled"
)

// EmailType identifies the kind of follow-up email within a sequence.
type EmailType string

const (
	EmailWelcome    EmailType = "welcome"
	EmailValueProp  EmailType = "value_prop"
	EmailCaseStudy  EmailType = "case_study"
	EmailDemoInvite EmailType = "demo_invite"
	EmailCheckIn    EmailType = "check_in"
	EmailFinal      EmailType = "final"
)

// Valid reports whether t is a known email type.
func (t EmailType) Valid() bool {
	switch t {
	case EmailWelcome, EmailValueProp, EmailCaseStudy, EmailDemoInvite, EmailCheckIn, EmailFinal:
		return true
	}
	return false
}

// FollowupItem is one scheduled email in a lead's sequence.
// Invariant: per submission, sequence numbers are contiguous from 1 and
// increase with ScheduledFor.
type FollowupItem struct {
	ID             string         `json:"id"`
	SubmissionID   string         `json:"submission_id"`
	LeadScoreID    string         `json:"lead_score_id,omitempty"`
	SequenceNumber int            `json:"sequence_number"`
	EmailType      EmailType      `json:"email_type"`
	ScheduledFor   time.Time      `json:"scheduled_for"`
	Status         FollowupStatus `json:"status"`
	EmailSubject   string         `json:"email_subject,omitempty"`
	EmailBody      string         `json:"email_body,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// InteractionType classifies why a model call was made.
type InteractionType string

const (
	InteractionChat            InteractionType = "chat"
	InteractionLeadProcessing  InteractionType = "lead_processing"
	InteractionEmailGeneration InteractionType = "email_generation"
)

// Interaction is an append-only audit row for one model invocation.
type Interaction struct {
	ID           string          `json:"id"`
	Type         InteractionType `json:"interaction_type"`
	SubmissionID string          `json:"submission_id,omitempty"`
	Model        string          `json:"model_used"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	CostUSD      float64         `json:"total_cost_usd"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
