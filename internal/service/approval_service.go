package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/repository"
)

// ApprovalService holds the operator-side review operations.
type ApprovalService struct {
	subjects repository.SubjectRepository
	history  repository.HistoryRepository
	writer   subjectWriter
}

// ApprovalDependencies bundles collaborators for the approval service.
type ApprovalDependencies struct {
	SubjectRepo repository.SubjectRepository
	HistoryRepo repository.HistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewApprovalService constructs the service.
func NewApprovalService(deps ApprovalDependencies) *ApprovalService {
	return &ApprovalService{
		subjects: deps.SubjectRepo,
		history:  deps.HistoryRepo,
		writer:   newSubjectWriter(deps.SubjectRepo, deps.HistoryRepo, deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// ApproveGroup approves one document group. Approving an already approved
// group returns the current subject and emits nothing.
func (s *ApprovalService) ApproveGroup(ctx context.Context, operator *domain.Operator, subjectID string, kind domain.GroupKind) (*domain.VerificationSubject, error) {
	return s.decide(ctx, operator, subjectID, kind, domain.EventApprove, "")
}

// RejectGroup rejects one document group with a mandatory reason.
func (s *ApprovalService) RejectGroup(ctx context.Context, operator *domain.Operator, subjectID string, kind domain.GroupKind, reason string) (*domain.VerificationSubject, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrMissingReason
	}
	return s.decide(ctx, operator, subjectID, kind, domain.EventReject, reason)
}

// FlagForManualReview moves a pending group to manual review.
func (s *ApprovalService) FlagForManualReview(ctx context.Context, operator *domain.Operator, subjectID string, kind domain.GroupKind) (*domain.VerificationSubject, error) {
	return s.decide(ctx, operator, subjectID, kind, domain.EventFlagForManualReview, "")
}

func (s *ApprovalService) decide(ctx context.Context, operator *domain.Operator, subjectID string, kind domain.GroupKind, event domain.GroupEvent, reason string) (*domain.VerificationSubject, error) {
	if operator == nil {
		return nil, domain.ErrForbidden
	}

	var oldStatus domain.GroupStatus
	subject, changed, err := s.writer.mutate(ctx, subjectID, func(subject *domain.VerificationSubject, retry bool) (bool, error) {
		group := subject.Group(kind)
		if group == nil {
			return false, fmt.Errorf("%w: %s has no %s group", domain.ErrUnknownValue, subject.Kind, kind)
		}
		if !retry && alreadyDecided(group, event, reason) {
			return false, nil
		}

		oldStatus = group.Status
		if err := group.Apply(event, reason); err != nil {
			return false, err
		}
		now := s.writer.now()
		group.ReviewedAt = &now
		reviewer := operator.ID
		group.ReviewedBy = &reviewer
		if event != domain.EventFlagForManualReview {
			subject.ReverificationHold = false
		}
		subject.Recompute()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return subject, nil
	}

	group := subject.Group(kind)
	s.writer.metrics.RecordDecision(string(event), string(kind))
	s.writer.logger.Info("document group reviewed",
		zap.String("subject_id", subject.ID),
		zap.String("group_kind", string(kind)),
		zap.String("event", string(event)),
		zap.String("status", string(group.Status)),
		zap.String("overall_status", string(subject.OverallStatus)),
		zap.Int64("sequence", subject.EventSequence),
		zap.String("operator_id", operator.ID))

	s.writer.record(ctx, &domain.VerificationHistory{
		SubjectID:     subject.ID,
		ChangedByType: domain.ActorTypeOperator,
		ChangedByID:   &operator.ID,
		ChangeType:    domain.ChangeTypeGroupStatus,
		GroupKind:     groupKindPtr(kind),
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": group.Status, "reason": group.RejectionReason},
	})
	s.writer.publishEvent(ctx, subject, events.Event{
		Type:  decisionEventType(event),
		Actor: operatorActor(operator.ID),
		Payload: events.GroupDecisionPayload{
			GroupKind:     kind,
			OldStatus:     oldStatus,
			NewStatus:     group.Status,
			Reason:        group.RejectionReason,
			OverallStatus: subject.OverallStatus,
		},
	})
	return subject, nil
}

// alreadyDecided reports whether the group already reflects the requested outcome.
func alreadyDecided(group *domain.DocumentGroup, event domain.GroupEvent, reason string) bool {
	switch event {
	case domain.EventApprove:
		return group.Status == domain.GroupStatusApproved
	case domain.EventReject:
		return group.Status == domain.GroupStatusRejected && group.RejectionReason == reason
	case domain.EventFlagForManualReview:
		return group.Status == domain.GroupStatusManualReview
	default:
		return false
	}
}

func decisionEventType(event domain.GroupEvent) events.EventType {
	switch event {
	case domain.EventApprove:
		return events.EventGroupApproved
	case domain.EventReject:
		return events.EventGroupRejected
	default:
		return events.EventGroupFlagged
	}
}

// SetOverallStatus records an operator's holistic decision on a property.
// Rejection and suspension require a reason.
func (s *ApprovalService) SetOverallStatus(ctx context.Context, operator *domain.Operator, propertyID string, status domain.OverallStatus, reason string) (*domain.VerificationSubject, error) {
	if operator == nil {
		return nil, domain.ErrForbidden
	}
	if !status.IsOverrideStatus() {
		return nil, fmt.Errorf("%w: %q cannot be set by an operator", domain.ErrUnknownValue, status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" && (status == domain.OverallRejected || status == domain.OverallSuspended) {
		return nil, domain.ErrMissingReason
	}

	var oldStatus domain.OverallStatus
	subject, changed, err := s.writer.mutate(ctx, propertyID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if subject.Kind != domain.SubjectKindProperty {
			return false, fmt.Errorf("%w: overall status can only be set on properties", domain.ErrUnknownValue)
		}
		if ov := subject.Override; ov != nil && ov.Status == status && ov.Reason == reason {
			return false, nil
		}
		oldStatus = subject.OverallStatus
		subject.Override = &domain.Override{
			Status: status,
			Reason: reason,
			SetBy:  operator.ID,
			SetAt:  s.writer.now(),
		}
		subject.ReverificationHold = false
		subject.Recompute()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return subject, nil
	}

	s.afterOverrideChange(ctx, operator, subject, oldStatus, reason, false)
	return subject, nil
}

// ClearOverride returns a property to its derived status. It is the way to lift a suspension.
func (s *ApprovalService) ClearOverride(ctx context.Context, operator *domain.Operator, propertyID string) (*domain.VerificationSubject, error) {
	if operator == nil {
		return nil, domain.ErrForbidden
	}

	var oldStatus domain.OverallStatus
	subject, changed, err := s.writer.mutate(ctx, propertyID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if subject.Kind != domain.SubjectKindProperty {
			return false, fmt.Errorf("%w: only properties carry overrides", domain.ErrUnknownValue)
		}
		if subject.Override == nil {
			return false, nil
		}
		oldStatus = subject.OverallStatus
		subject.Override = nil
		subject.Recompute()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return subject, nil
	}

	s.afterOverrideChange(ctx, operator, subject, oldStatus, "", true)
	return subject, nil
}

func (s *ApprovalService) afterOverrideChange(ctx context.Context, operator *domain.Operator, subject *domain.VerificationSubject, oldStatus domain.OverallStatus, reason string, cleared bool) {
	action := "override"
	if cleared {
		action = "clear_override"
	}
	s.writer.metrics.RecordDecision(action, "")
	s.writer.logger.Info("overall status changed",
		zap.String("subject_id", subject.ID),
		zap.String("old_status", string(oldStatus)),
		zap.String("new_status", string(subject.OverallStatus)),
		zap.Bool("cleared", cleared),
		zap.Int64("sequence", subject.EventSequence),
		zap.String("operator_id", operator.ID))

	s.writer.record(ctx, &domain.VerificationHistory{
		SubjectID:     subject.ID,
		ChangedByType: domain.ActorTypeOperator,
		ChangedByID:   &operator.ID,
		ChangeType:    domain.ChangeTypeOverride,
		OldValue:      map[string]any{"overall_status": oldStatus},
		NewValue:      map[string]any{"overall_status": subject.OverallStatus, "reason": reason, "cleared": cleared},
	})
	s.writer.publishEvent(ctx, subject, events.Event{
		Type:  events.EventOverallStatusChanged,
		Actor: operatorActor(operator.ID),
		Payload: events.OverallStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: subject.OverallStatus,
			Reason:    reason,
			Cleared:   cleared,
		},
	})
}

// GetSubject returns any subject for operator review.
func (s *ApprovalService) GetSubject(ctx context.Context, subjectID string) (*domain.VerificationSubject, error) {
	return s.subjects.GetByID(ctx, subjectID)
}

// ReviewQueue lists subjects with at least one group awaiting review, or a reverification hold.
func (s *ApprovalService) ReviewQueue(ctx context.Context, limit, offset int) ([]domain.VerificationSubject, error) {
	return s.subjects.ListAwaitingReview(ctx, limit, offset)
}

// History returns the audit trail of a subject.
func (s *ApprovalService) History(ctx context.Context, subjectID string) ([]domain.VerificationHistory, error) {
	if _, err := s.subjects.GetByID(ctx, subjectID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListBySubject(ctx, subjectID)
}
