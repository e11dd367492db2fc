package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowstack-agency/leadflow/internal/model"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func strPtr(s string) *string { return &s }

func TestPostgresCreateSubmission(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contact_submissions`).
		WithArgs(pgxmock.AnyArg(), "Dana Reyes", "dana@acmeplumbing.com", "555-0147",
			"Acme Plumbing", strPtr("https://acmeplumbing.com"), strPtr("Need help automating invoicing"),
			"pending", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sub := &model.Submission{
		FullName:     "Dana Reyes",
		Email:        "dana@acmeplumbing.com",
		Phone:        "555-0147",
		BusinessName: "Acme Plumbing",
		Website:      "https://acmeplumbing.com",
		Message:      "Need help automating invoicing",
	}
	err := s.CreateSubmission(context.Background(), sub)
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID, "id should be generated")
	assert.Equal(t, model.SubmissionPending, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSubmission(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM contact_submissions WHERE id`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "full_name", "email", "phone", "business_name",
			"website", "message", "status", "created_at", "processed_at",
		}).AddRow("sub-1", "Dana Reyes", "dana@acmeplumbing.com", "555-0147",
			"Acme Plumbing", strPtr("https://acmeplumbing.com"), (*string)(nil),
			model.SubmissionPending, created, (*time.Time)(nil)))

	sub, err := s.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "Dana Reyes", sub.FullName)
	assert.Equal(t, "https://acmeplumbing.com", sub.Website)
	assert.Empty(t, sub.Message)
	assert.Nil(t, sub.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetSubmissionNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contact_submissions WHERE id`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "full_name", "email", "phone", "business_name",
			"website", "message", "status", "created_at", "processed_at",
		}))

	sub, err := s.GetSubmission(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestPostgresUpdateSubmissionStatus(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectExec(`UPDATE contact_submissions SET status`).
		WithArgs("completed", &now, "sub-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateSubmissionStatus(context.Background(), "sub-1", model.SubmissionCompleted, &now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateSubmissionStatusNotFound(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE contact_submissions SET status`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateSubmissionStatus(context.Background(), "missing", model.SubmissionFailed, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPostgresInsertLeadScore(t *testing.T) {
	t.Parallel()

	t.Run("first insert lands", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgresStore(t)

		mock.ExpectExec(`INSERT INTO lead_scores`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		inserted, err := s.InsertLeadScore(context.Background(), &model.LeadScore{
			SubmissionID:        "sub-1",
			Score:               85,
			Category:            model.CategoryHot,
			RecommendedSequence: model.SequenceImmediate,
			TalkingPoints:       []string{"invoicing pain", "ready budget"},
		})
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate submission is a no-op", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgresStore(t)

		mock.ExpectExec(`INSERT INTO lead_scores`).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		inserted, err := s.InsertLeadScore(context.Background(), &model.LeadScore{
			SubmissionID: "sub-1",
			Score:        85,
			Category:     model.CategoryHot,
		})
		require.NoError(t, err)
		assert.False(t, inserted)
	})
}

func TestPostgresGetLeadScore(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	analysis := []byte(`{"key_talking_points":["invoicing pain"],"raw_output":"{\"score\":85}"}`)
	mock.ExpectQuery(`SELECT .+ FROM lead_scores WHERE submission_id`).
		WithArgs("sub-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "submission_id", "score", "category", "reasoning",
			"budget_indicator", "urgency_indicator", "decision_maker_likelihood",
			"industry_fit_score", "recommended_followup_sequence", "analysis", "created_at",
		}).AddRow("score-1", "sub-1", 85, model.CategoryHot, "clear budget signals",
			"high", "high", 90, 80, model.SequenceImmediate, analysis, created))

	sc, err := s.GetLeadScore(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, 85, sc.Score)
	assert.Equal(t, model.CategoryHot, sc.Category)
	assert.Equal(t, []string{"invoicing pain"}, sc.TalkingPoints)
	assert.Equal(t, `{"score":85}`, sc.RawOutput)
}

func TestPostgresInsertFollowups(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO followup_queue`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO followup_queue`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	items := []model.FollowupItem{
		{SubmissionID: "sub-1", SequenceNumber: 1, EmailType: model.EmailWelcome, ScheduledFor: base},
		{SubmissionID: "sub-1", SequenceNumber: 2, EmailType: model.EmailDemoInvite, ScheduledFor: base.Add(4 * time.Hour)},
	}
	err := s.InsertFollowups(context.Background(), items)
	require.NoError(t, err)
	assert.NotEmpty(t, items[0].ID)
	assert.Equal(t, model.FollowupPending, items[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertFollowupsRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO followup_queue`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO followup_queue`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	items := []model.FollowupItem{
		{SubmissionID: "sub-1", SequenceNumber: 1, EmailType: model.EmailWelcome},
		{SubmissionID: "sub-1", SequenceNumber: 2, EmailType: model.EmailCheckIn},
	}
	err := s.InsertFollowups(context.Background(), items)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDueFollowups(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM followup_queue`).
		WithArgs(now, 10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "submission_id", "lead_score_id", "sequence_number", "email_type",
			"scheduled_for", "status", "email_subject", "email_body", "error_message",
			"sent_at", "created_at",
		}).AddRow("fq-1", "sub-1", strPtr("score-1"), 1, model.EmailWelcome,
			now.Add(-time.Hour), model.FollowupPending, (*string)(nil), (*string)(nil),
			(*string)(nil), (*time.Time)(nil), now.Add(-2*time.Hour)))

	items, err := s.DueFollowups(context.Background(), now, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fq-1", items[0].ID)
	assert.Equal(t, "score-1", items[0].LeadScoreID)
	assert.Equal(t, model.EmailWelcome, items[0].EmailType)
}

func TestPostgresClaimFollowup(t *testing.T) {
	t.Parallel()

	claimedAt := time.Now().UTC()

	t.Run("pending item claimed", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec(`UPDATE followup_queue SET status = 'processing', claimed_at = \$2`).
			WithArgs("fq-1", claimedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		claimed, err := s.ClaimFollowup(context.Background(), "fq-1", claimedAt)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("already claimed elsewhere", func(t *testing.T) {
		t.Parallel()
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec(`UPDATE followup_queue SET status = 'processing', claimed_at = \$2`).
			WithArgs("fq-1", claimedAt).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		claimed, err := s.ClaimFollowup(context.Background(), "fq-1", claimedAt)
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestPostgresMarkFollowupSent(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	sentAt := time.Now().UTC()
	mock.ExpectExec(`UPDATE followup_queue SET status = 'sent'`).
		WithArgs("Welcome to FlowStack", "<html>...</html>", sentAt, "fq-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.MarkFollowupSent(context.Background(), "fq-1", "Welcome to FlowStack", "<html>...</html>", sentAt)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCancelFollowups(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE followup_queue SET status = 'cancelled'`).
		WithArgs("sub-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.CancelFollowups(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostgresReleaseStaleClaims(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	// The sweep must compare against claimed_at, not scheduled_for.
	cutoff := time.Now().UTC().Add(-30 * time.Minute)
	mock.ExpectExec(`UPDATE followup_queue SET status = 'pending', claimed_at = NULL WHERE status = 'processing' AND claimed_at <= \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := s.ReleaseStaleClaims(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPostgresInsertInteraction(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO agent_interactions`).
		WithArgs(pgxmock.AnyArg(), "lead_processing", strPtr("sub-1"), "gpt-4o",
			1000, 500, 0.0075, true, (*string)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertInteraction(context.Background(), &model.Interaction{
		Type:         model.InteractionLeadProcessing,
		SubmissionID: "sub-1",
		Model:        "gpt-4o",
		InputTokens:  1000,
		OutputTokens: 500,
		CostUSD:      0.0075,
		Success:      true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListInteractions(t *testing.T) {
	t.Parallel()
	s, mock := newMockPostgresStore(t)

	created := time.Date(2026, 3, 1, 12, 10, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .+ FROM agent_interactions WHERE true AND interaction_type = \$1.+LIMIT \$2`).
		WithArgs("chat", 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "interaction_type", "submission_id", "model_used", "input_tokens",
			"output_tokens", "total_cost_usd", "success", "error_message", "created_at",
		}).AddRow("int-1", model.InteractionChat, (*string)(nil), "gpt-4o-mini",
			120, 80, 0.000066, true, (*string)(nil), created))

	recs, err := s.ListInteractions(context.Background(), InteractionFilter{
		Type:  model.InteractionChat,
		Limit: 50,
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, model.InteractionChat, recs[0].Type)
	assert.Equal(t, "gpt-4o-mini", recs[0].Model)
	assert.Empty(t, recs[0].SubmissionID)
}
