package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/repository"
)

// maxSaveAttempts bounds reload-and-reapply rounds after a version conflict.
const maxSaveAttempts = 3

// mutation applies one change to a freshly loaded subject. retry is true when
// an earlier attempt lost a version race; mutations must then re-check their
// precondition strictly instead of treating the current state as already applied.
// Returning changed=false makes the call a no-op: nothing is written.
type mutation func(subject *domain.VerificationSubject, retry bool) (changed bool, err error)

// subjectWriter runs versioned read-modify-write cycles and the bookkeeping
// that follows a successful write.
type subjectWriter struct {
	subjects   repository.SubjectRepository
	history    repository.HistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func newSubjectWriter(subjects repository.SubjectRepository, history repository.HistoryRepository, dispatcher events.Dispatcher, metrics *observability.Metrics, logger *zap.Logger) subjectWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return subjectWriter{
		subjects:   subjects,
		history:    history,
		dispatcher: dispatcher,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// mutate loads subjectID, applies fn and saves with the loaded version as
// precondition. A successful write bumps the subject's event sequence in the
// same save. Transition failures after a lost race become StaleWriteError.
func (w *subjectWriter) mutate(ctx context.Context, subjectID string, fn mutation) (*domain.VerificationSubject, bool, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		subject, err := w.subjects.GetByID(ctx, subjectID)
		if err != nil {
			return nil, false, err
		}
		expected := subject.Version
		retry := attempt > 1

		changed, err := fn(subject, retry)
		if err != nil {
			var transitionErr *domain.TransitionError
			if retry && errors.As(err, &transitionErr) {
				w.metrics.RecordStaleWrite()
				return nil, false, &domain.StaleWriteError{Transition: transitionErr}
			}
			if errors.As(err, &transitionErr) {
				w.metrics.RecordInvalidTransition()
			}
			return nil, false, err
		}
		if !changed {
			return subject, false, nil
		}

		subject.NextSequence()
		if err := w.subjects.Save(ctx, subject, expected); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				w.logger.Debug("version conflict, reloading",
					zap.String("subject_id", subjectID),
					zap.Int64("expected_version", expected),
					zap.Int("attempt", attempt))
				continue
			}
			return nil, false, err
		}
		return subject, true, nil
	}
	w.metrics.RecordStaleWrite()
	return nil, false, &domain.StaleWriteError{}
}

// record appends an audit entry. The state change is already committed, so a
// failure is logged rather than returned.
func (w *subjectWriter) record(ctx context.Context, entry *domain.VerificationHistory) {
	if w.history == nil {
		return
	}
	if err := w.history.Create(ctx, entry); err != nil {
		w.logger.Warn("history append failed",
			zap.String("subject_id", entry.SubjectID),
			zap.String("change_type", string(entry.ChangeType)),
			zap.Error(err))
	}
}

func (w *subjectWriter) publishEvent(ctx context.Context, subject *domain.VerificationSubject, event events.Event) {
	if w.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = w.now()
	}
	event.SubjectID = subject.ID
	event.SubjectKind = subject.Kind
	event.OwnerID = subject.OwnerID
	event.Sequence = subject.EventSequence
	_ = w.dispatcher.Publish(ctx, event)
}

func partnerActor(userID string) events.Actor {
	return events.Actor{Type: domain.ActorTypePartner, ID: &userID}
}

func operatorActor(operatorID string) events.Actor {
	return events.Actor{Type: domain.ActorTypeOperator, ID: &operatorID}
}

func groupKindPtr(kind domain.GroupKind) *domain.GroupKind {
	return &kind
}
