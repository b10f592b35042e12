package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/staylink/verification-service/internal/domain"
)

// InMemorySubjectRepository keeps subjects in process. It applies the same
// version precondition as the Postgres implementation.
type InMemorySubjectRepository struct {
	mu       sync.RWMutex
	subjects map[string]*domain.VerificationSubject
	now      func() time.Time
}

// NewInMemorySubjectRepository builds an empty store.
func NewInMemorySubjectRepository() *InMemorySubjectRepository {
	return &InMemorySubjectRepository{
		subjects: make(map[string]*domain.VerificationSubject),
		now:      time.Now,
	}
}

func (r *InMemorySubjectRepository) Create(_ context.Context, subject *domain.VerificationSubject) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.subjects[subject.ID]; exists {
		return domain.ErrSubjectExists
	}
	if subject.Kind == domain.SubjectKindPartner {
		for _, existing := range r.subjects {
			if existing.Kind == domain.SubjectKindPartner && existing.OwnerID == subject.OwnerID {
				return domain.ErrSubjectExists
			}
		}
	}
	now := r.now()
	subject.Version = 1
	subject.CreatedAt = now
	subject.UpdatedAt = now
	r.subjects[subject.ID] = subject.Clone()
	return nil
}

func (r *InMemorySubjectRepository) GetByID(_ context.Context, id string) (*domain.VerificationSubject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	subject, ok := r.subjects[id]
	if !ok {
		return nil, domain.ErrSubjectNotFound
	}
	return subject.Clone(), nil
}

func (r *InMemorySubjectRepository) GetPartnerByOwner(_ context.Context, ownerID string) (*domain.VerificationSubject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, subject := range r.subjects {
		if subject.Kind == domain.SubjectKindPartner && subject.OwnerID == ownerID {
			return subject.Clone(), nil
		}
	}
	return nil, domain.ErrSubjectNotFound
}

func (r *InMemorySubjectRepository) ListByOwner(_ context.Context, ownerID string) ([]domain.VerificationSubject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.VerificationSubject
	for _, subject := range r.subjects {
		if subject.OwnerID == ownerID {
			result = append(result, *subject.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemorySubjectRepository) ListAwaitingReview(_ context.Context, limit, offset int) ([]domain.VerificationSubject, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	r.mu.RLock()
	var matches []domain.VerificationSubject
	for _, subject := range r.subjects {
		if awaitingReview(subject) {
			matches = append(matches, *subject.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool { return matches[i].UpdatedAt.Before(matches[j].UpdatedAt) })
	if offset >= len(matches) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	return matches[offset:end], nil
}

func (r *InMemorySubjectRepository) Save(_ context.Context, subject *domain.VerificationSubject, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.subjects[subject.ID]
	if !ok {
		return domain.ErrSubjectNotFound
	}
	if stored.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	subject.Version = expectedVersion + 1
	subject.UpdatedAt = r.now()
	r.subjects[subject.ID] = subject.Clone()
	return nil
}

func awaitingReview(subject *domain.VerificationSubject) bool {
	if subject.ReverificationHold {
		return true
	}
	for _, group := range subject.Groups {
		if group.Status == domain.GroupStatusPending || group.Status == domain.GroupStatusManualReview {
			return true
		}
	}
	return false
}
