// Package postgres implements repository.Repository on PostgreSQL through
// database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed repository.
type Store struct {
	db    *sql.DB
	types *pgtype.Map
}

var _ repository.Repository = (*Store)(nil)

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return db, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, types: pgtype.NewMap()}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// translate maps driver errors onto the repository sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return repository.ErrConflict
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// =============================================================================
// Users
// =============================================================================

const userColumns = `id, email, password_hash, name, org_name, role, plan, plan_expires_at,
	plan_activated_at, plan_cancelled, plan_cancelled_at, pending_plan,
	monthly_application_count, monthly_application_reset_at, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u                                   domain.User
		role, plan, pending                 string
		expires, activated, cancelled, reset sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.OrgName, &role, &plan, &expires,
		&activated, &u.PlanCancelled, &cancelled, &pending,
		&u.MonthlyApplicationCount, &reset, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	u.Role = domain.Role(role)
	u.Plan = domain.Plan(plan)
	u.PendingPlan = domain.Plan(pending)
	u.PlanExpiresAt = timePtr(expires)
	u.PlanActivatedAt = timePtr(activated)
	u.PlanCancelledAt = timePtr(cancelled)
	u.MonthlyApplicationResetAt = timePtr(reset)
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.OrgName, string(u.Role), string(u.Plan), nullTime(u.PlanExpiresAt),
		nullTime(u.PlanActivatedAt), u.PlanCancelled, nullTime(u.PlanCancelledAt), string(u.PendingPlan),
		u.MonthlyApplicationCount, nullTime(u.MonthlyApplicationResetAt), u.CreatedAt, u.UpdatedAt)
	return translate(err)
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
}

func (s *Store) UpdatePlanState(ctx context.Context, id uuid.UUID, state domain.PlanState) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $2, plan = $3, plan_expires_at = $4, plan_activated_at = $5,
			plan_cancelled = $6, plan_cancelled_at = $7, pending_plan = $8, updated_at = NOW()
		WHERE id = $1`,
		id, string(state.Role), string(state.Plan), nullTime(state.PlanExpiresAt), nullTime(state.PlanActivatedAt),
		state.PlanCancelled, nullTime(state.PlanCancelledAt), string(state.PendingPlan))
	if err != nil {
		return translate(err)
	}
	return requireRow(res)
}

func (s *Store) ClaimRole(ctx context.Context, id uuid.UUID, state domain.PlanState, orgName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET role = $2, plan = $3, plan_expires_at = $4, plan_activated_at = $5,
			plan_cancelled = $6, plan_cancelled_at = $7, pending_plan = $8,
			org_name = CASE WHEN $9 = '' THEN org_name ELSE $9 END, updated_at = NOW()
		WHERE id = $1 AND role = ''`,
		id, string(state.Role), string(state.Plan), nullTime(state.PlanExpiresAt), nullTime(state.PlanActivatedAt),
		state.PlanCancelled, nullTime(state.PlanCancelledAt), string(state.PendingPlan), orgName)
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	return false, s.userExists(ctx, id)
}

func (s *Store) ConsumeApplicationQuota(ctx context.Context, id uuid.UUID, limit int, window time.Duration, now time.Time) (int, bool, error) {
	windowStart := now.Add(-window)

	var count int
	err := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			monthly_application_count = CASE
				WHEN monthly_application_reset_at IS NULL OR monthly_application_reset_at <= $3 THEN 1
				ELSE monthly_application_count + 1
			END,
			monthly_application_reset_at = CASE
				WHEN monthly_application_reset_at IS NULL OR monthly_application_reset_at <= $3 THEN $4
				ELSE monthly_application_reset_at
			END,
			updated_at = $4
		WHERE id = $1 AND $2 > 0
			AND (monthly_application_reset_at IS NULL OR monthly_application_reset_at <= $3
				OR monthly_application_count < $2)
		RETURNING monthly_application_count`,
		id, limit, windowStart, now).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, translate(err)
	}

	// Nothing updated: either the user is missing or the quota is spent.
	err = s.db.QueryRowContext(ctx, `SELECT monthly_application_count FROM users WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return 0, false, translate(err)
	}
	return count, false, nil
}

func (s *Store) ReleaseApplicationQuota(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET monthly_application_count = GREATEST(monthly_application_count - 1, 0)
		WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return requireRow(res)
}

func (s *Store) userExists(ctx context.Context, id uuid.UUID) error {
	var one int
	return translate(s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = $1`, id).Scan(&one))
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		sess.TokenHash, sess.UserID, sess.ExpiresAt, sess.CreatedAt)
	return translate(err)
}

func (s *Store) GetSession(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	var sess domain.Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, expires_at, created_at FROM sessions
		WHERE token_hash = $1 AND expires_at > $2`, tokenHash, now).
		Scan(&sess.TokenHash, &sess.UserID, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return translate(err)
}

// =============================================================================
// Jobs
// =============================================================================

const jobColumns = `id, ngo_id, title, slug, description, location, remote, skills, status, created_at, updated_at`

func (s *Store) scanJob(row interface{ Scan(...any) error }) (*domain.Job, error) {
	var (
		j      domain.Job
		status string
	)
	err := row.Scan(&j.ID, &j.NGOID, &j.Title, &j.Slug, &j.Description, &j.Location, &j.Remote,
		s.types.SQLScanner(&j.Skills), &status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	j.Status = domain.JobStatus(status)
	return &j, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	skills := j.Skills
	if skills == nil {
		skills = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		j.ID, j.NGOID, j.Title, j.Slug, j.Description, j.Location, j.Remote, skills, string(j.Status),
		j.CreatedAt, j.UpdatedAt)
	return translate(err)
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

func (s *Store) CountOpenJobs(ctx context.Context, ngoID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE ngo_id = $1 AND status = 'open'`, ngoID).Scan(&n)
	return n, translate(err)
}

func (s *Store) ListOpenJobs(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	return s.queryJobs(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'open'
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

func (s *Store) ListJobsByNGO(ctx context.Context, ngoID uuid.UUID) ([]domain.Job, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE ngo_id = $1 ORDER BY created_at DESC`, ngoID)
}

func (s *Store) SetJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET status = $2, updated_at = $3 WHERE id = $1`, id, string(status), now)
	if err != nil {
		return translate(err)
	}
	return requireRow(res)
}

// =============================================================================
// Applications
// =============================================================================

const applicationColumns = `id, job_id, volunteer_id, cover_letter, status, timeline, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (*domain.Application, error) {
	var (
		a        domain.Application
		status   string
		timeline pqtype.NullRawMessage
	)
	err := row.Scan(&a.ID, &a.JobID, &a.VolunteerID, &a.CoverLetter, &status, &timeline, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	a.Status = domain.ApplicationStatus(status)
	if timeline.Valid {
		if err := json.Unmarshal(timeline.RawMessage, &a.Timeline); err != nil {
			return nil, fmt.Errorf("decode timeline: %w", err)
		}
	}
	return &a, nil
}

func encodeTimeline(entries []domain.TimelineEntry) (pqtype.NullRawMessage, error) {
	if len(entries) == 0 {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("encode timeline: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (s *Store) CreateApplication(ctx context.Context, a *domain.Application) error {
	timeline, err := encodeTimeline(a.Timeline)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.JobID, a.VolunteerID, a.CoverLetter, string(a.Status), timeline, a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	return scanApplication(s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

func (s *Store) FindActiveApplication(ctx context.Context, volunteerID, jobID uuid.UUID) (*domain.Application, error) {
	return scanApplication(s.db.QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE volunteer_id = $1 AND job_id = $2 AND status <> 'withdrawn'`, volunteerID, jobID))
}

func (s *Store) ListApplicationsByVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]domain.Application, error) {
	return s.queryApplications(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE volunteer_id = $1 ORDER BY created_at DESC`, volunteerID)
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	return s.queryApplications(ctx, `
		SELECT `+applicationColumns+` FROM applications WHERE job_id = $1 ORDER BY created_at DESC`, jobID)
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, entry domain.TimelineEntry) error {
	raw, err := json.Marshal([]domain.TimelineEntry{entry})
	if err != nil {
		return fmt.Errorf("encode timeline: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET status = $2, timeline = COALESCE(timeline, '[]'::jsonb) || $3::jsonb, updated_at = $4
		WHERE id = $1`,
		id, string(entry.Status), pqtype.NullRawMessage{RawMessage: raw, Valid: true}, entry.At)
	if err != nil {
		return translate(err)
	}
	return requireRow(res)
}

// =============================================================================
// Orders
// =============================================================================

const orderColumns = `id, user_id, plan_target, provider, provider_order_id, amount, currency, receipt,
	status, payment_id, paid_at, created_at, updated_at`

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		o.ID, o.UserID, string(o.PlanTarget), o.Provider, o.ProviderOrderID, o.Amount, o.Currency, o.Receipt,
		string(o.Status), o.PaymentID, nullTime(o.PaidAt), o.CreatedAt, o.UpdatedAt)
	return translate(err)
}

func (s *Store) GetOrderByProviderID(ctx context.Context, providerOrderID string) (*domain.Order, error) {
	var (
		o                  domain.Order
		planTarget, status string
		paidAt             sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE provider_order_id = $1`, providerOrderID).
		Scan(&o.ID, &o.UserID, &planTarget, &o.Provider, &o.ProviderOrderID, &o.Amount, &o.Currency, &o.Receipt,
			&status, &o.PaymentID, &paidAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	o.PlanTarget = domain.Plan(planTarget)
	o.Status = domain.OrderStatus(status)
	o.PaidAt = timePtr(paidAt)
	return &o, nil
}

func (s *Store) TransitionOrder(ctx context.Context, providerOrderID string, from, to domain.OrderStatus, paymentID string, at time.Time) (bool, error) {
	var (
		res sql.Result
		err error
	)
	switch to {
	case domain.OrderStatusPaid:
		res, err = s.db.ExecContext(ctx, `
			UPDATE orders SET status = $3, payment_id = $4, paid_at = $5, updated_at = $5
			WHERE provider_order_id = $1 AND status = $2`,
			providerOrderID, string(from), string(to), paymentID, at)
	case domain.OrderStatusCreated:
		res, err = s.db.ExecContext(ctx, `
			UPDATE orders SET status = $3, payment_id = '', paid_at = NULL, updated_at = $4
			WHERE provider_order_id = $1 AND status = $2`,
			providerOrderID, string(from), string(to), at)
	default:
		res, err = s.db.ExecContext(ctx, `
			UPDATE orders SET status = $3, updated_at = $4
			WHERE provider_order_id = $1 AND status = $2`,
			providerOrderID, string(from), string(to), at)
	}
	if err != nil {
		return false, translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE provider_order_id = $1`, providerOrderID).Scan(&one)
	return false, translate(err)
}

// =============================================================================
// Settings
// =============================================================================

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT free_applications_per_window, ngo_base_job_limit FROM platform_settings WHERE id = 1`).
		Scan(&st.FreeApplicationsPerWindow, &st.NGOBaseJobLimit)
	if err != nil {
		return domain.Settings{}, translate(err)
	}
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO platform_settings (id, free_applications_per_window, ngo_base_job_limit, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			free_applications_per_window = EXCLUDED.free_applications_per_window,
			ngo_base_job_limit = EXCLUDED.ngo_base_job_limit,
			updated_at = NOW()`,
		st.FreeApplicationsPerWindow, st.NGOBaseJobLimit)
	return translate(err)
}
