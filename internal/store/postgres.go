package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Apps ---

func (s *PostgresStore) CreateApp(ctx context.Context, app *models.App) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO apps (id, name, owners, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		app.ID, app.Name, app.Owners, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetApp(ctx context.Context, id uuid.UUID) (*models.App, error) {
	var a models.App
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, owners, created_at, updated_at FROM apps WHERE id = $1`, id,
	).Scan(&a.ID, &a.Name, &a.Owners, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &a, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, app_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AppID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, app_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.AppID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, appID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, app_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE app_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, appID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.AppID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, appID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND app_id = $2 AND deleted_at IS NULL`, id, appID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Events ---

func (s *PostgresStore) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, app_id, environment, event_type, occurred_at, session_id, route, version,
		                     user_info, payload, fingerprint, trace_id, attachment_keys, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		event.ID, event.AppID, event.Environment, event.Type, event.Timestamp, event.SessionID,
		event.Route, event.Version, event.User, event.Payload, event.Fingerprint, event.TraceID,
		event.AttachmentKeys, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Event, error) {
	var ev models.Event
	err := s.pool.QueryRow(ctx,
		`SELECT id, app_id, environment, event_type, occurred_at, session_id, route, version,
		        user_info, payload, fingerprint, trace_id, attachment_keys, created_at
		 FROM events WHERE id = $1 AND app_id = $2`, id, appID).
		Scan(&ev.ID, &ev.AppID, &ev.Environment, &ev.Type, &ev.Timestamp, &ev.SessionID,
			&ev.Route, &ev.Version, &ev.User, &ev.Payload, &ev.Fingerprint, &ev.TraceID,
			&ev.AttachmentKeys, &ev.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &ev, nil
}

func (s *PostgresStore) AttachEventFiles(ctx context.Context, eventID uuid.UUID, keys []string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE events SET attachment_keys = attachment_keys || $2 WHERE id = $1`, eventID, keys)
	if err != nil {
		return fmt.Errorf("attach event files: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Issues ---

const issueColumns = `id, app_id, environment, status, severity, title, description, issue_type,
	primary_fingerprint, event_refs, occurrences_total, occurrences_24h, unique_users_24h_est,
	reported_by, assigned_to, resolution_note, merged_into, tags, last_analyzed_at,
	created_at, last_seen_at, resolved_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	var i models.Issue
	err := row.Scan(&i.ID, &i.AppID, &i.Environment, &i.Status, &i.Severity, &i.Title,
		&i.Description, &i.Type, &i.Fingerprint, &i.EventRefs, &i.OccurrencesTotal,
		&i.Occurrences24h, &i.UniqueUsers24hEst, &i.ReportedBy, &i.AssignedTo,
		&i.ResolutionNote, &i.MergedInto, &i.Tags, &i.LastAnalyzedAt,
		&i.CreatedAt, &i.LastSeenAt, &i.ResolvedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *PostgresStore) FindOpenIssueByFingerprint(ctx context.Context, appID uuid.UUID, environment, fp string) (*models.Issue, error) {
	issue, err := scanIssue(s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues
		 WHERE app_id = $1 AND environment = $2 AND primary_fingerprint = $3
		   AND status NOT IN ('resolved', 'wont_fix')`,
		appID, environment, fp))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find open issue by fingerprint: %w", err)
	}
	return issue, nil
}

// CreateIssue inserts the seed as a new issue. The partial unique index on
// (app_id, environment, primary_fingerprint) over non-terminal rows makes
// concurrent find-or-create safe: the losing insert fails with
// ErrDuplicateKey and the caller retries the occurrence as an append.
func (s *PostgresStore) CreateIssue(ctx context.Context, seed models.IssueSeed) (*models.Issue, error) {
	issue, err := scanIssue(s.pool.QueryRow(ctx,
		`INSERT INTO issues (id, app_id, environment, status, severity, title, description, issue_type,
		                     primary_fingerprint, event_refs, occurrences_total, occurrences_24h,
		                     unique_users_24h_est, reported_by, assigned_to, tags,
		                     created_at, last_seen_at, updated_at)
		 VALUES ($1, $2, $3, 'new', $4, $5, $6, $7, $8, ARRAY[$9]::uuid[], 1, 1, 0, $10, $11, $12, $13, $13, $13)
		 RETURNING `+issueColumns,
		uuid.New(), seed.AppID, seed.Environment, seed.Severity, seed.Title, seed.Description,
		seed.Type, seed.Fingerprint, seed.EventID, seed.ReportedBy, seed.AssignedTo,
		seed.Tags, seed.SeenAt))
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("create issue: %w", err)
	}
	return issue, nil
}

// AppendEventAndIncrement is a single-statement atomic update: counters are
// incremented in place, never read-modify-written, so concurrent appends to
// the same issue cannot lose updates. The 24h counter resets once the issue
// has been quiet for a day.
func (s *PostgresStore) AppendEventAndIncrement(ctx context.Context, issueID, eventID uuid.UUID, seenAt time.Time) (*models.Issue, error) {
	issue, err := scanIssue(s.pool.QueryRow(ctx,
		`UPDATE issues SET
		   event_refs = CASE WHEN $2 = ANY(event_refs) THEN event_refs ELSE array_append(event_refs, $2) END,
		   occurrences_total = occurrences_total + 1,
		   occurrences_24h = CASE WHEN last_seen_at < $3::timestamptz - interval '24 hours'
		                          THEN 1 ELSE occurrences_24h + 1 END,
		   last_seen_at = GREATEST(last_seen_at, $3),
		   updated_at = NOW()
		 WHERE id = $1 AND status NOT IN ('resolved', 'wont_fix')
		 RETURNING `+issueColumns,
		issueID, eventID, seenAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("append event to issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) GetIssue(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Issue, error) {
	issue, err := scanIssue(s.pool.QueryRow(ctx,
		`SELECT `+issueColumns+` FROM issues WHERE id = $1 AND app_id = $2`, id, appID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) ListIssues(ctx context.Context, filter IssueFilter) ([]*models.Issue, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{"app_id = $1"}
	args := []any{filter.AppID}
	argIdx := 2

	if filter.Environment != "" {
		conditions = append(conditions, fmt.Sprintf("environment = $%d", argIdx))
		args = append(args, filter.Environment)
		argIdx++
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.MinSeverity.Valid() {
		conditions = append(conditions, fmt.Sprintf("severity <= $%d", argIdx))
		args = append(args, filter.MinSeverity)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("last_seen_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM issues WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+issueColumns+` FROM issues WHERE %s ORDER BY last_seen_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, total, rows.Err()
}

func (s *PostgresStore) UpdateIssue(ctx context.Context, id uuid.UUID, appID uuid.UUID, update IssueUpdate) (*models.Issue, error) {
	query := `UPDATE issues SET updated_at = NOW()`
	args := []any{id, appID}
	argIdx := 3

	addSet := func(col string, val any) {
		query += fmt.Sprintf(", %s = $%d", col, argIdx)
		args = append(args, val)
		argIdx++
	}

	if update.Status != nil {
		addSet("status", *update.Status)
		if models.TerminalStatus(*update.Status) {
			query += ", resolved_at = NOW()"
		} else {
			query += ", resolved_at = NULL, merged_into = NULL"
		}
	}
	if update.Severity != nil {
		addSet("severity", *update.Severity)
	}
	if update.Title != nil {
		addSet("title", *update.Title)
	}
	if update.Description != nil {
		addSet("description", *update.Description)
	}
	if update.AssignedTo != nil {
		addSet("assigned_to", *update.AssignedTo)
	}
	if update.ResolutionNote != nil {
		addSet("resolution_note", *update.ResolutionNote)
	}
	if update.Tags != nil {
		addSet("tags", update.Tags)
	}

	query += " WHERE id = $1 AND app_id = $2 RETURNING " + issueColumns

	issue, err := scanIssue(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			// Reopening an issue whose fingerprint is now held by a newer
			// open issue would break the dedup invariant.
			return nil, ErrDuplicateKey
		}
		return nil, fmt.Errorf("update issue: %w", err)
	}
	return issue, nil
}

func (s *PostgresStore) SetUniqueUsersEstimate(ctx context.Context, issueID uuid.UUID, estimate int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE issues SET unique_users_24h_est = $2, updated_at = NOW() WHERE id = $1`,
		issueID, estimate)
	if err != nil {
		return fmt.Errorf("set unique users estimate: %w", err)
	}
	return nil
}

// TransactionalMerge locks target and sources in id order, unions event
// refs, sums counters into the target, and resolves every source with a
// merged_into pointer. The whole merge commits or rolls back as one unit.
func (s *PostgresStore) TransactionalMerge(ctx context.Context, appID, targetID uuid.UUID, sourceIDs []uuid.UUID) (*models.Issue, error) {
	if len(sourceIDs) == 0 {
		return nil, fmt.Errorf("merge: no source issues")
	}

	allIDs := append([]uuid.UUID{targetID}, sourceIDs...)

	var merged *models.Issue
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+issueColumns+` FROM issues
			 WHERE id = ANY($1) AND app_id = $2 ORDER BY id FOR UPDATE`,
			allIDs, appID)
		if err != nil {
			return fmt.Errorf("lock issues: %w", err)
		}

		locked := make(map[uuid.UUID]*models.Issue, len(allIDs))
		for rows.Next() {
			issue, err := scanIssue(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan issue: %w", err)
			}
			locked[issue.ID] = issue
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		target, ok := locked[targetID]
		if !ok {
			return ErrNotFound
		}

		refSet := make(map[uuid.UUID]bool, len(target.EventRefs))
		refs := append([]uuid.UUID{}, target.EventRefs...)
		for _, r := range refs {
			refSet[r] = true
		}

		sumTotal, sum24h := 0, 0
		lastSeen := target.LastSeenAt
		for _, srcID := range sourceIDs {
			src, ok := locked[srcID]
			if !ok {
				return ErrNotFound
			}
			if src.ID == targetID {
				return fmt.Errorf("merge: target cannot be its own source")
			}
			sumTotal += src.OccurrencesTotal
			sum24h += src.Occurrences24h
			if src.LastSeenAt.After(lastSeen) {
				lastSeen = src.LastSeenAt
			}
			for _, r := range src.EventRefs {
				if !refSet[r] {
					refSet[r] = true
					refs = append(refs, r)
				}
			}
		}

		merged, err = scanIssue(tx.QueryRow(ctx,
			`UPDATE issues SET
			   event_refs = $2,
			   occurrences_total = occurrences_total + $3,
			   occurrences_24h = occurrences_24h + $4,
			   last_seen_at = GREATEST(last_seen_at, $5),
			   updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+issueColumns,
			targetID, refs, sumTotal, sum24h, lastSeen))
		if err != nil {
			return fmt.Errorf("update merge target: %w", err)
		}

		tag, err := tx.Exec(ctx,
			`UPDATE issues SET status = 'resolved', merged_into = $2, resolved_at = NOW(), updated_at = NOW()
			 WHERE id = ANY($1)`,
			sourceIDs, targetID)
		if err != nil {
			return fmt.Errorf("resolve merge sources: %w", err)
		}
		if int(tag.RowsAffected()) != len(sourceIDs) {
			return fmt.Errorf("merge: expected %d sources, updated %d", len(sourceIDs), tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("transactional merge: %w", err)
	}
	return merged, nil
}

// --- Analysis Results ---

func (s *PostgresStore) CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO analysis_results (id, issue_id, app_id, job_id, provider, model, root_cause,
			                               confidence, summary, next_action, suggested_patch, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			result.ID, result.IssueID, result.AppID, result.JobID, result.Provider,
			result.Model, result.RootCause, result.Confidence, result.Summary,
			result.NextAction, result.SuggestedPatch, result.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert analysis result: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE issues SET last_analyzed_at = $2, updated_at = NOW() WHERE id = $1`,
			result.IssueID, result.CreatedAt)
		if err != nil {
			return fmt.Errorf("stamp issue analysis time: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create analysis result: %w", err)
	}
	return nil
}

const analysisColumns = `id, issue_id, app_id, job_id, provider, model, root_cause, confidence,
	summary, next_action, suggested_patch, created_at`

func scanAnalysis(row rowScanner) (*models.AnalysisResult, error) {
	var r models.AnalysisResult
	err := row.Scan(&r.ID, &r.IssueID, &r.AppID, &r.JobID, &r.Provider, &r.Model,
		&r.RootCause, &r.Confidence, &r.Summary, &r.NextAction, &r.SuggestedPatch, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) GetLatestAnalysis(ctx context.Context, issueID uuid.UUID) (*models.AnalysisResult, error) {
	r, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results
		 WHERE issue_id = $1 ORDER BY created_at DESC LIMIT 1`, issueID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest analysis: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetAnalysisByJobID(ctx context.Context, jobID uuid.UUID) (*models.AnalysisResult, error) {
	r, err := scanAnalysis(s.pool.QueryRow(ctx,
		`SELECT `+analysisColumns+` FROM analysis_results WHERE job_id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis by job: %w", err)
	}
	return r, nil
}

// --- Jobs ---

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, app_id, type, status, issue_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.AppID, job.Type, job.Status, job.IssueID, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, appID uuid.UUID) (*models.Job, error) {
	var j models.Job
	err := s.pool.QueryRow(ctx,
		`SELECT id, app_id, type, status, issue_id, error_message, started_at, completed_at, created_at, updated_at
		 FROM jobs WHERE id = $1 AND app_id = $2`, id, appID,
	).Scan(&j.ID, &j.AppID, &j.Type, &j.Status, &j.IssueID, &j.ErrorMessage,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

var validJobTransitions = map[string][]string{
	models.JobStatusPending: {models.JobStatusRunning},
	models.JobStatusRunning: {models.JobStatusCompleted, models.JobStatusFailed},
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}

	valid := false
	for _, a := range validJobTransitions[currentStatus] {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid job status transition: %s -> %s", currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE jobs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.JobStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.JobStatusCompleted || status == models.JobStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.IssueID != nil {
		query += fmt.Sprintf(", issue_id = $%d", argIdx)
		args = append(args, *params.IssueID)
		argIdx++
	}

	query += " WHERE id = $1"

	_, err = s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
