package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/staylink/verification-service/internal/domain"
)

// SubjectRepository persists verification subjects together with their groups.
// Create fails with domain.ErrSubjectExists for a duplicate id or a second
// partner subject for the same owner.
// Save is guarded by the subject version: it fails with domain.ErrVersionConflict
// when the stored version differs from expectedVersion.
type SubjectRepository interface {
	Create(ctx context.Context, subject *domain.VerificationSubject) error
	GetByID(ctx context.Context, id string) (*domain.VerificationSubject, error)
	GetPartnerByOwner(ctx context.Context, ownerID string) (*domain.VerificationSubject, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.VerificationSubject, error)
	ListAwaitingReview(ctx context.Context, limit, offset int) ([]domain.VerificationSubject, error)
	Save(ctx context.Context, subject *domain.VerificationSubject, expectedVersion int64) error
}

type subjectRepository struct {
	pool *pgxpool.Pool
}

// NewSubjectRepository returns a Postgres-backed implementation.
func NewSubjectRepository(pool *pgxpool.Pool) SubjectRepository {
	return &subjectRepository{pool: pool}
}

const subjectColumns = `id, kind, owner_id, overall_status, override_status, override_reason, override_by, override_at,
       reverification_hold, onboarding_completed, is_listed, event_sequence, version, created_at, updated_at`

func (r *subjectRepository) Create(ctx context.Context, subject *domain.VerificationSubject) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        INSERT INTO verification_subjects (id, kind, owner_id, overall_status, override_status, override_reason, override_by,
            override_at, reverification_hold, onboarding_completed, is_listed, event_sequence, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,1)
        RETURNING version, created_at, updated_at`
	status, reason, by, at := overrideColumns(subject.Override)
	if err := tx.QueryRow(ctx, query,
		subject.ID,
		subject.Kind,
		subject.OwnerID,
		subject.OverallStatus,
		status, reason, by, at,
		subject.ReverificationHold,
		subject.OnboardingCompleted,
		subject.IsListed,
		subject.EventSequence,
	).Scan(&subject.Version, &subject.CreatedAt, &subject.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSubjectExists
		}
		return fmt.Errorf("insert subject: %w", err)
	}
	if err := upsertGroups(ctx, tx, subject); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *subjectRepository) Save(ctx context.Context, subject *domain.VerificationSubject, expectedVersion int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const query = `
        UPDATE verification_subjects
        SET overall_status=$1, override_status=$2, override_reason=$3, override_by=$4, override_at=$5,
            reverification_hold=$6, onboarding_completed=$7, is_listed=$8, event_sequence=$9,
            version=version+1, updated_at=NOW()
        WHERE id=$10 AND version=$11
        RETURNING version, updated_at`
	status, reason, by, at := overrideColumns(subject.Override)
	err = tx.QueryRow(ctx, query,
		subject.OverallStatus,
		status, reason, by, at,
		subject.ReverificationHold,
		subject.OnboardingCompleted,
		subject.IsListed,
		subject.EventSequence,
		subject.ID,
		expectedVersion,
	).Scan(&subject.Version, &subject.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if err := upsertGroups(ctx, tx, subject); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *subjectRepository) GetByID(ctx context.Context, id string) (*domain.VerificationSubject, error) {
	query := `SELECT ` + subjectColumns + ` FROM verification_subjects WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *subjectRepository) GetPartnerByOwner(ctx context.Context, ownerID string) (*domain.VerificationSubject, error) {
	query := `SELECT ` + subjectColumns + ` FROM verification_subjects WHERE owner_id=$1 AND kind='partner'`
	return r.fetchSingle(ctx, query, ownerID)
}

func (r *subjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.VerificationSubject, error) {
	query := `SELECT ` + subjectColumns + ` FROM verification_subjects WHERE owner_id=$1 ORDER BY created_at ASC`
	return r.fetchMany(ctx, query, ownerID)
}

func (r *subjectRepository) ListAwaitingReview(ctx context.Context, limit, offset int) ([]domain.VerificationSubject, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + subjectColumns + ` FROM verification_subjects s
        WHERE s.reverification_hold
           OR EXISTS (SELECT 1 FROM document_groups g WHERE g.subject_id=s.id AND g.status IN ('pending','manual_review'))
        ORDER BY s.updated_at ASC LIMIT $1 OFFSET $2`
	return r.fetchMany(ctx, query, limit, offset)
}

func (r *subjectRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.VerificationSubject, error) {
	subject, err := scanSubject(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubjectNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadGroups(ctx, subject); err != nil {
		return nil, err
	}
	return subject, nil
}

func (r *subjectRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.VerificationSubject, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var result []domain.VerificationSubject
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		result = append(result, *subject)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		if err := r.loadGroups(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *subjectRepository) loadGroups(ctx context.Context, subject *domain.VerificationSubject) error {
	const query = `
        SELECT kind, status, rejection_reason, artifacts, submitted_at, reviewed_at, reviewed_by
        FROM document_groups WHERE subject_id=$1 ORDER BY position ASC`
	rows, err := r.pool.Query(ctx, query, subject.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	subject.Groups = subject.Groups[:0]
	for rows.Next() {
		var (
			group  domain.DocumentGroup
			reason *string
		)
		if err := rows.Scan(
			&group.Kind,
			&group.Status,
			&reason,
			&group.Artifacts,
			&group.SubmittedAt,
			&group.ReviewedAt,
			&group.ReviewedBy,
		); err != nil {
			return err
		}
		if reason != nil {
			group.RejectionReason = *reason
		}
		if group.Artifacts == nil {
			group.Artifacts = map[string]string{}
		}
		subject.Groups = append(subject.Groups, group)
	}
	return rows.Err()
}

func upsertGroups(ctx context.Context, tx pgx.Tx, subject *domain.VerificationSubject) error {
	const query = `
        INSERT INTO document_groups (subject_id, kind, position, status, rejection_reason, artifacts, submitted_at, reviewed_at, reviewed_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (subject_id, kind) DO UPDATE
        SET status=EXCLUDED.status, rejection_reason=EXCLUDED.rejection_reason, artifacts=EXCLUDED.artifacts,
            submitted_at=EXCLUDED.submitted_at, reviewed_at=EXCLUDED.reviewed_at, reviewed_by=EXCLUDED.reviewed_by`
	batch := &pgx.Batch{}
	for i, group := range subject.Groups {
		var reason *string
		if group.RejectionReason != "" {
			r := group.RejectionReason
			reason = &r
		}
		artifacts := group.Artifacts
		if artifacts == nil {
			artifacts = map[string]string{}
		}
		batch.Queue(query,
			subject.ID,
			group.Kind,
			i,
			group.Status,
			reason,
			artifacts,
			group.SubmittedAt,
			group.ReviewedAt,
			group.ReviewedBy,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert document groups: %w", err)
	}
	return nil
}

func scanSubject(row pgx.Row) (*domain.VerificationSubject, error) {
	var (
		subject        domain.VerificationSubject
		overrideStatus *string
		overrideReason *string
		overrideBy     *string
		overrideAt     *time.Time
	)
	if err := row.Scan(
		&subject.ID,
		&subject.Kind,
		&subject.OwnerID,
		&subject.OverallStatus,
		&overrideStatus,
		&overrideReason,
		&overrideBy,
		&overrideAt,
		&subject.ReverificationHold,
		&subject.OnboardingCompleted,
		&subject.IsListed,
		&subject.EventSequence,
		&subject.Version,
		&subject.CreatedAt,
		&subject.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if overrideStatus != nil {
		ov := &domain.Override{Status: domain.OverallStatus(*overrideStatus)}
		if overrideReason != nil {
			ov.Reason = *overrideReason
		}
		if overrideBy != nil {
			ov.SetBy = *overrideBy
		}
		if overrideAt != nil {
			ov.SetAt = *overrideAt
		}
		subject.Override = ov
	}
	return &subject, nil
}

func overrideColumns(ov *domain.Override) (status, reason, by *string, at *time.Time) {
	if ov == nil {
		return nil, nil, nil, nil
	}
	s := string(ov.Status)
	status = &s
	if ov.Reason != "" {
		r := ov.Reason
		reason = &r
	}
	if ov.SetBy != "" {
		b := ov.SetBy
		by = &b
	}
	if !ov.SetAt.IsZero() {
		t := ov.SetAt
		at = &t
	}
	return status, reason, by, at
}
