package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/flowstack-agency/leadflow/internal/db"
	"github.com/flowstack-agency/leadflow/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"get_submission":    `SELECT id, full_name, email, phone, business_name, website, message, status, created_at, processed_at FROM contact_submissions WHERE id = $1`,
	"update_submission": `UPDATE contact_submissions SET status = $1, processed_at = $2 WHERE id = $3`,
	"get_lead_score":    `SELECT id, submission_id, score, category, reasoning, budget_indicator, urgency_indicator, decision_maker_likelihood, industry_fit_score, recommended_followup_sequence, analysis, created_at FROM lead_scores WHERE submission_id = $1`,
	"claim_followup":    `UPDATE followup_queue SET status = 'processing', claimed_at = $2 WHERE id = $1 AND status = 'pending'`,
	"insert_interaction": `INSERT INTO agent_interactions (id, interaction_type, submission_id, model_used, input_tokens, output_tokens, total_cost_usd, success, error_message, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contact_submissions (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	full_name     TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL,
	phone         TEXT NOT NULL DEFAULT '',
	business_name TEXT NOT NULL DEFAULT '',
	website       TEXT,
	message       TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at  TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS lead_scores (
	id                            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id                 TEXT NOT NULL UNIQUE REFERENCES contact_submissions(id),
	score                         INTEGER NOT NULL,
	category                      TEXT NOT NULL,
	reasoning                     TEXT NOT NULL DEFAULT '',
	budget_indicator              TEXT NOT NULL DEFAULT 'unknown',
	urgency_indicator             TEXT NOT NULL DEFAULT 'low',
	decision_maker_likelihood     INTEGER NOT NULL DEFAULT 0,
	industry_fit_score            INTEGER NOT NULL DEFAULT 0,
	recommended_followup_sequence TEXT NOT NULL DEFAULT 'standard',
	analysis                      JSONB,
	created_at                    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS followup_queue (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	submission_id   TEXT NOT NULL REFERENCES contact_submissions(id),
	lead_score_id   TEXT REFERENCES lead_scores(id),
	sequence_number INTEGER NOT NULL,
	email_type      TEXT NOT NULL,
	scheduled_for   TIMESTAMPTZ NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	email_subject   TEXT,
	email_body      TEXT,
	error_message   TEXT,
	sent_at         TIMESTAMPTZ,
	claimed_at      TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS agent_interactions (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	interaction_type TEXT NOT NULL,
	submission_id    TEXT,
	model_used       TEXT NOT NULL DEFAULT '',
	input_tokens     INTEGER NOT NULL DEFAULT 0,
	output_tokens    INTEGER NOT NULL DEFAULT 0,
	total_cost_usd   DOUBLE PRECISION NOT NULL DEFAULT 0,
	success          BOOLEAN NOT NULL DEFAULT true,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_status ON contact_submissions(status);
CREATE INDEX IF NOT EXISTS idx_followup_queue_due ON followup_queue(status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_followup_queue_submission ON followup_queue(submission_id);
CREATE INDEX IF NOT EXISTS idx_interactions_type_created ON agent_interactions(interaction_type, created_at);
`

// analysisBlob is the JSONB column holding the audit payload of a score.
type analysisBlob struct {
	KeyTalkingPoints []string `json:"key_talking_points,omitempty"`
	RawOutput        string   `json:"raw_output,omitempty"`
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	if sub.Status == "" {
		sub.Status = model.SubmissionPending
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contact_submissions (id, full_name, email, phone, business_name, website, message, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.FullName, sub.Email, sub.Phone, sub.BusinessName,
		nullable(sub.Website), nullable(sub.Message), string(sub.Status), sub.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert submission")
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	var website, message *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, business_name, website, message, status, created_at, processed_at
		 FROM contact_submissions WHERE id = $1`,
		id,
	).Scan(&sub.ID, &sub.FullName, &sub.Email, &sub.Phone, &sub.BusinessName,
		&website, &message, &sub.Status, &sub.CreatedAt, &sub.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get submission %s", id)
	}
	if website != nil {
		sub.Website = *website
	}
	if message != nil {
		sub.Message = *message
	}
	return &sub, nil
}

func (s *PostgresStore) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, processedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE contact_submissions SET status = $1, processed_at = $2 WHERE id = $3`,
		string(status), processedAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update submission status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("submission not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) InsertLeadScore(ctx context.Context, score *model.LeadScore) (bool, error) {
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
		return false, eris.Wrap(err, "postgres: marshal analysis")
	}

	// The unique constraint on submission_id makes a retried insert a no-op,
	// which keeps caller-side retries of a timed-out scoring request safe.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO lead_scores (id, submission_id, score, category, reasoning, budget_indicator, urgency_indicator, decision_maker_likelihood, industry_fit_score, recommended_followup_sequence, analysis, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (submission_id) DO NOTHING`,
		score.ID, score.SubmissionID, score.Score, string(score.Category), score.Reasoning,
		score.BudgetIndicator, score.UrgencyIndicator, score.DecisionMakerLikelihood,
		score.IndustryFitScore, string(score.RecommendedSequence), analysisJSON, score.CreatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert lead score for %s", score.SubmissionID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetLeadScore(ctx context.Context, submissionID string) (*model.LeadScore, error) {
	var sc model.LeadScore
	var analysisJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, submission_id, score, category, reasoning, budget_indicator, urgency_indicator, decision_maker_likelihood, industry_fit_score, recommended_followup_sequence, analysis, created_at
		 FROM lead_scores WHERE submission_id = $1`,
		submissionID,
	).Scan(&sc.ID, &sc.SubmissionID, &sc.Score, &sc.Category, &sc.Reasoning,
		&sc.BudgetIndicator, &sc.UrgencyIndicator, &sc.DecisionMakerLikelihood,
		&sc.IndustryFitScore, &sc.RecommendedSequence, &analysisJSON, &sc.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get lead score for %s", submissionID)
	}

	if len(analysisJSON) > 0 {
		var blob analysisBlob
		if err := json.Unmarshal(analysisJSON, &blob); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis")
		}
		sc.TalkingPoints = blob.KeyTalkingPoints
		sc.RawOutput = blob.RawOutput
	}
	return &sc, nil
}

func (s *PostgresStore) InsertFollowups(ctx context.Context, items []model.FollowupItem) error {
	if len(items) == 0 {
		return nil
	}

	// Single transaction: the batch lands whole or not at all.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin followup batch")
	}
	defer tx.Rollback(ctx)

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
		_, err := tx.Exec(ctx,
			`INSERT INTO followup_queue (id, submission_id, lead_score_id, sequence_number, email_type, scheduled_for, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			it.ID, it.SubmissionID, nullable(it.LeadScoreID), it.SequenceNumber,
			string(it.EmailType), it.ScheduledFor, string(it.Status), it.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert followup %d for %s", it.SequenceNumber, it.SubmissionID)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit followup batch")
}

func (s *PostgresStore) DueFollowups(ctx context.Context, now time.Time, limit int) ([]model.FollowupItem, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, submission_id, lead_score_id, sequence_number, email_type, scheduled_for, status, email_subject, email_body, error_message, sent_at, created_at
		 FROM followup_queue
		 WHERE status = 'pending' AND scheduled_for <= $1
		 ORDER BY scheduled_for ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: due followups")
	}
	defer rows.Close()

	var items []model.FollowupItem
	for rows.Next() {
		it, err := scanFollowup(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: due followups iterate")
}

func (s *PostgresStore) ClaimFollowup(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	// Conditional update: only one concurrent executor run can move the
	// item out of pending, so an item is never sent twice. The claim
	// timestamp is what the stale sweep keys on.
	tag, err := s.pool.Exec(ctx,
		`UPDATE followup_queue SET status = 'processing', claimed_at = $2 WHERE id = $1 AND status = 'pending'`,
		id, claimedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim followup %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkFollowupSent(ctx context.Context, id, subject, body string, sentAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE followup_queue SET status = 'sent', email_subject = $1, email_body = $2, sent_at = $3, error_message = NULL WHERE id = $4`,
		subject, body, sentAt, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark followup sent %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("followup not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkFollowupFailed(ctx context.Context, id, errorMessage string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE followup_queue SET status = 'failed', error_message = $1 WHERE id = $2`,
		errorMessage, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark followup failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("followup not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CancelFollowups(ctx context.Context, submissionID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE followup_queue SET status = 'cancelled' WHERE submission_id = $1 AND status = 'pending'`,
		submissionID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: cancel followups for %s", submissionID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ReleaseStaleClaims(ctx context.Context, before time.Time) (int, error) {
	// Staleness is judged by when the claim was taken, not by the item's
	// schedule: an overdue item claimed moments ago is still live work in
	// another run, and releasing it would allow a second send.
	tag, err := s.pool.Exec(ctx,
		`UPDATE followup_queue SET status = 'pending', claimed_at = NULL WHERE status = 'processing' AND claimed_at <= $1`,
		before,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: release stale claims")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) InsertInteraction(ctx context.Context, rec *model.Interaction) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO agent_interactions (id, interaction_type, submission_id, model_used, input_tokens, output_tokens, total_cost_usd, success, error_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, string(rec.Type), nullable(rec.SubmissionID), rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.Success,
		nullable(rec.ErrorMessage), rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert interaction")
}

func (s *PostgresStore) ListInteractions(ctx context.Context, filter InteractionFilter) ([]model.Interaction, error) {
	query := `SELECT id, interaction_type, submission_id, model_used, input_tokens, output_tokens, total_cost_usd, success, error_message, created_at
	          FROM agent_interactions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(` AND interaction_type = $%d`, argIdx)
		args = append(args, string(filter.Type))
		argIdx++
	}
	if !filter.From.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.From)
		argIdx++
	}
	if !filter.To.IsZero() {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, filter.To)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list interactions")
	}
	defer rows.Close()

	var recs []model.Interaction
	for rows.Next() {
		var r model.Interaction
		var submissionID, errorMessage *string
		if err := rows.Scan(&r.ID, &r.Type, &submissionID, &r.Model,
			&r.InputTokens, &r.OutputTokens, &r.CostUSD, &r.Success,
			&errorMessage, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan interaction")
		}
		if submissionID != nil {
			r.SubmissionID = *submissionID
		}
		if errorMessage != nil {
			r.ErrorMessage = *errorMessage
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list interactions iterate")
}

// scanFollowup reads one followup_queue row.
func scanFollowup(row pgx.Row) (*model.FollowupItem, error) {
	var it model.FollowupItem
	var leadScoreID, subject, body, errMsg *string

	err := row.Scan(&it.ID, &it.SubmissionID, &leadScoreID, &it.SequenceNumber,
		&it.EmailType, &it.ScheduledFor, &it.Status, &subject, &body, &errMsg,
		&it.SentAt, &it.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan followup")
	}
	if leadScoreID != nil {
		it.LeadScoreID = *leadScoreID
	}
	if subject != nil {
		it.EmailSubject = *subject
	}
	if body != nil {
		it.EmailBody = *body
	}
	if errMsg != nil {
		it.ErrorMessage = *errMsg
	}
	return &it, nil
}

// nullable maps "" to NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
