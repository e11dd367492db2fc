package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/flowstack-agency/leadflow/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local
// development and tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contact_submissions (
	id            TEXT PRIMARY KEY,
	full_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	business_name TEXT NOT NULL DEFAULT '',
	website       TEXT,
	message       TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	processed_at  DATETIME
);

CREATE TABLE IF NOT EXISTS lead_scores (
	id                            TEXT PRIMARY KEY,
	submission_id                 TEXT NOT NULL UNIQUE REFERENCES contact_submissions(id),
	score                         INTEGER NOT NULL,
	category                      TEXT NOT NULL,
	reasoning                     TEXT NOT NULL DEFAULT '',
	budget_indicator              TEXT NOT NULL DEFAULT 'unknown',
	urgency_indicator             TEXT NOT NULL DEFAULT 'low',
	decision_maker_likelihood     INTEGER NOT NULL DEFAULT 0,
	industry_fit_score            INTEGER NOT NULL DEFAULT 0,
	recommended_followup_sequence TEXT NOT NULL DEFAULT 'standard',
	analysis                      TEXT,
	created_at                    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS followup_queue (
	id              TEXT PRIMARY KEY,
	submission_id   TEXT NOT NULL REFERENCES contact_submissions(id),
	lead_score_id   TEXT REFERENCES lead_scores(id),
	sequence_number INTEGER NOT NULL,
	email_type      TEXT NOT NULL,
	scheduled_for   DATETIME NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	email_subject   TEXT,
	email_body      TEXT,
	error_message   TEXT,
	sent_at         DATETIME,
	claimed_at      DATETIME,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS agent_interactions (
	id               TEXT PRIMARY KEY,
	interaction_type TEXT NOT NULL,
	submission_id    TEXT,
	model_used       TEXT NOT NULL DEFAULT '',
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	total_cost_usd   REAL NOT NULL DEFAULT 0,
	success          INTEGER NOT NULL DEFAULT 1,
	error_message    TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON contact_submissions(status);
CREATE INDEX IF NOT EXISTS idx_followup_queue_due ON followup_queue(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_followup_queue_submission ON followup_queue(submission_id);
CREATE INDEX IF NOT EXISTS idx_interactions_type_created ON agent_interactions(interaction_type, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = model.SubmissionPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contact_submissions (id, full_name, email, phone, business_name, website, message, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.FullName, sub.Email, sub.Phone, sub.BusinessName,
		nullable(sub.Website), nullable(sub.Message), string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert submission")
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	var website, message sql.NullString
	var processedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, email, phone, business_name, website, message, status, created_at, processed_at
		 FROM contact_submissions WHERE id = ?`,
		id,
	).Scan(&sub.ID, &sub.FullName, &sub.Email, &sub.Phone, &sub.BusinessName,
		&website, &message, &sub.Status, &sub.CreatedAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get submission %s", id)
	}
	sub.Website = website.String
	sub.Message = message.String
	if processedAt.Valid {
		t := processedAt.Time
		sub.ProcessedAt = &t
	}
	return &sub, nil
}

func (s *SQLiteStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, processedAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contact_submissions SET status = ?, processed_at = ? WHERE id = ?`,
		string(status), processedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update submission status %s", id)
	}
	return checkRowsAffected(res, "submission", id)
}

func (s *SQLiteStore) InsertLeadScore(ctx context.Context, score *model.LeadScore) (bool, error) {
	if score.ID == "" {
		score.ID = uuid.New().String()
	}
	if score.CreatedAt.IsZero() {
		score.CreatedAt = time.Now().UTC()
	}

	analysisJSON, err := json.Marshal(analysisBlob{
		KeyTalkingPoints: score.TalkingPoints,
		RawOutput:        score.RawOutput,
	})
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal analysis")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO lead_scores (id, submission_id, score, category, reasoning, budget_indicator, urgency_indicator, decision_maker_likelihood, industry_fit_score, recommended_followup_sequence, analysis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		score.ID, score.SubmissionID, score.Score, string(score.Category), score.Reasoning,
		score.BudgetIndicator, score.UrgencyIndicator, score.DecisionMakerLikelihood,
		score.IndustryFitScore, string(score.RecommendedSequence), string(analysisJSON), score.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert lead score for %s", score.SubmissionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetLeadScore(ctx context.Context, submissionID string) (*model.LeadScore, error) {
	var sc model.LeadScore
	var analysisJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, submission_id, score, category, reasoning, budget_indicator, urgency_indicator, decision_maker_likelihood, industry_fit_score, recommended_followup_sequence, analysis, created_at
		 FROM lead_scores WHERE submission_id = ?`,
		submissionID,
	).Scan(&sc.ID, &sc.SubmissionID, &sc.Score, &sc.Category, &sc.Reasoning,
		&sc.BudgetIndicator, &sc.UrgencyIndicator, &sc.DecisionMakerLikelihood,
		&sc.IndustryFitScore, &sc.RecommendedSequence, &analysisJSON, &sc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead score for %s", submissionID)
	}

	if analysisJSON.Valid && analysisJSON.String != "" {
		var blob analysisBlob
		if err := json.Unmarshal([]byte(analysisJSON.String), &blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
		}
		sc.TalkingPoints = blob.KeyTalkingPoints
		sc.RawOutput = blob.RawOutput
	}
	return &sc, nil
}

func (s *SQLiteStore) InsertFollowups(ctx context.Context, items []model.FollowupItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin followup batch")
	}
	defer tx.Rollback()

	for i := range items {
		it := &items[i]
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		if it.CreatedAt.IsZero() {
			it.CreatedAt = time.Now().UTC()
		}
		if it.Status == "" {
			it.Status = model.FollowupPending
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO followup_queue (id, submission_id, lead_score_id, sequence_number, email_type, scheduled_for, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, it.SubmissionID, nullable(it.LeadScoreID), it.SequenceNumber,
			string(it.EmailType), it.ScheduledFor, string(it.Status), it.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert followup %d for %s", it.SequenceNumber, it.SubmissionID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit followup batch")
}

func (s *SQLiteStore) DueFollowups(ctx context.Context, now time.Time, limit int) ([]model.FollowupItem, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, submission_id, lead_score_id, sequence_number, email_type, scheduled_for, status, email_subject, email_body, error_message, sent_at, created_at
		 FROM followup_queue
		 WHERE status = 'pending' AND scheduled_for <= ?
		 ORDER BY scheduled_for ASC
		 LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: due followups")
	}
	defer rows.Close()

	var items []model.FollowupItem
	for rows.Next() {
		var it model.FollowupItem
		var leadScoreID, subject, body, errMsg sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.SubmissionID, &leadScoreID, &it.SequenceNumber,
			&it.EmailType, &it.ScheduledFor, &it.Status, &subject, &body, &errMsg,
			&sentAt, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan followup")
		}
		it.LeadScoreID = leadScoreID.String
		it.EmailSubject = subject.String
		it.EmailBody = body.String
		it.ErrorMessage = errMsg.String
		if sentAt.Valid {
			t := sentAt.Time
			it.SentAt = &t
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: due followups iterate")
}

func (s *SQLiteStore) ClaimFollowup(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_queue SET status = 'processing', claimed_at = ? WHERE id = ? AND status = 'pending'`,
		claimedAt, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim followup %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkFollowupSent(ctx context.Context, id, subject, body string, sentAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_queue SET status = 'sent', email_subject = ?, email_body = ?, sent_at = ?, error_message = NULL WHERE id = ?`,
		subject, body, sentAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark followup sent %s", id)
	}
	return checkRowsAffected(res, "followup", id)
}

func (s *SQLiteStore) MarkFollowupFailed(ctx context.Context, id, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_queue SET status = 'failed', error_message = ? WHERE id = ?`,
		errorMessage, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark followup failed %s", id)
	}
	return checkRowsAffected(res, "followup", id)
}

func (s *SQLiteStore) CancelFollowups(ctx context.Context, submissionID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_queue SET status = 'cancelled' WHERE submission_id = ? AND status = 'pending'`,
		submissionID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: cancel followups for %s", submissionID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ReleaseStaleClaims(ctx context.Context, before time.Time) (int, error) {
	// Keyed on claimed_at: the schedule says when the email was due, not
	// when a run took ownership of it.
	res, err := s.db.ExecContext(ctx,
		`UPDATE followup_queue SET status = 'pending', claimed_at = NULL WHERE status = 'processing' AND claimed_at <= ?`,
		before,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: release stale claims")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) InsertInteraction(ctx context.Context, rec *model.Interaction) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_interactions (id, interaction_type, submission_id, model_used, input_tokens, output_tokens, total_cost_usd, success, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Type), nullable(rec.SubmissionID), rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.Success,
		nullable(rec.ErrorMessage), rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert interaction")
}

func (s *SQLiteStore) ListInteractions(ctx context.Context, filter InteractionFilter) ([]model.Interaction, error) {
	query := `SELECT id, interaction_type, submission_id, model_used, input_tokens, output_tokens, total_cost_usd, success, error_message, created_at
	          FROM agent_interactions WHERE 1=1`
	var args []any

	if filter.Type != "" {
		query += ` AND interaction_type = ?`
		args = append(args, string(filter.Type))
	}
	if !filter.From.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list interactions")
	}
	defer rows.Close()

	var recs []model.Interaction
	for rows.Next() {
		var r model.Interaction
		var submissionID, errorMessage sql.NullString
		if err := rows.Scan(&r.ID, &r.Type, &submissionID, &r.Model,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.Success,
			&errorMessage, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan interaction")
		}
		r.SubmissionID = submissionID.String
		r.ErrorMessage = errorMessage.String
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list interactions iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
