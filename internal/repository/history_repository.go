package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/staylink/verification-service/internal/domain"
)

// HistoryRepository stores audit entries for verification subjects.
type HistoryRepository interface {
	Create(ctx context.Context, history *domain.VerificationHistory) error
	ListBySubject(ctx context.Context, subjectID string) ([]domain.VerificationHistory, error)
}

type historyRepository struct {
	pool *pgxpool.Pool
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(pool *pgxpool.Pool) HistoryRepository {
	return &historyRepository{pool: pool}
}

func (r *historyRepository) Create(ctx context.Context, history *domain.VerificationHistory) error {
	const query = `
        INSERT INTO verification_history (subject_id, changed_by_type, changed_by_id, change_type, group_kind, old_value, new_value)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.SubjectID,
		history.ChangedByType,
		history.ChangedByID,
		history.ChangeType,
		history.GroupKind,
		jsonMap(history.OldValue),
		jsonMap(history.NewValue),
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *historyRepository) ListBySubject(ctx context.Context, subjectID string) ([]domain.VerificationHistory, error) {
	const query = `
        SELECT id, subject_id, changed_by_type, changed_by_id, change_type, group_kind, old_value, new_value, created_at
        FROM verification_history WHERE subject_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.VerificationHistory
	for rows.Next() {
		var history domain.VerificationHistory
		if err := rows.Scan(
			&history.ID,
			&history.SubjectID,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.ChangeType,
			&history.GroupKind,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

func jsonMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// InMemoryHistoryRepository is an append-only in-process audit log.
type InMemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.VerificationHistory
}

// NewInMemoryHistoryRepository builds an empty log.
func NewInMemoryHistoryRepository() *InMemoryHistoryRepository {
	return &InMemoryHistoryRepository{entries: make(map[string][]domain.VerificationHistory)}
}

func (r *InMemoryHistoryRepository) Create(_ context.Context, history *domain.VerificationHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = time.Now()
	r.entries[history.SubjectID] = append(r.entries[history.SubjectID], *history)
	return nil
}

func (r *InMemoryHistoryRepository) ListBySubject(_ context.Context, subjectID string) ([]domain.VerificationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := append([]domain.VerificationHistory(nil), r.entries[subjectID]...)
	sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
