package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/repository"
	"github.com/staylink/verification-service/internal/storage"
)

// Warnings surfaced to the submitter alongside a subject.
const (
	WarningPendingReverification = "PENDING_REVERIFICATION"
	WarningVerifiedBadgeHidden   = "VERIFIED_BADGE_HIDDEN"
)

// SubmissionResult is a subject plus the warnings the submitter should see.
type SubmissionResult struct {
	Subject  *domain.VerificationSubject
	Warnings []string
}

// SubmissionService holds the submitter-side operations: registering subjects,
// uploading into groups (including resubmission after rejection), listing
// toggles and the reverification hook.
type SubmissionService struct {
	subjects      repository.SubjectRepository
	store         storage.ArtifactStore
	policy        storage.Policy
	uploadTimeout time.Duration
	writer        subjectWriter
}

// SubmissionDependencies bundles collaborators for the submission service.
type SubmissionDependencies struct {
	SubjectRepo   repository.SubjectRepository
	HistoryRepo   repository.HistoryRepository
	Store         storage.ArtifactStore
	Policy        storage.Policy
	UploadTimeout time.Duration
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewSubmissionService constructs the service.
func NewSubmissionService(deps SubmissionDependencies) *SubmissionService {
	return &SubmissionService{
		subjects:      deps.SubjectRepo,
		store:         deps.Store,
		policy:        deps.Policy,
		uploadTimeout: deps.UploadTimeout,
		writer:        newSubjectWriter(deps.SubjectRepo, deps.HistoryRepo, deps.Dispatcher, deps.Metrics, deps.Logger),
	}
}

// EnsurePartnerSubject returns the partner subject of ownerID, creating an
// empty one if needed. A concurrent first call that wins the create is read back.
func (s *SubmissionService) EnsurePartnerSubject(ctx context.Context, ownerID string) (*domain.VerificationSubject, error) {
	subject, err := s.subjects.GetPartnerByOwner(ctx, ownerID)
	if err == nil {
		return subject, nil
	}
	if !errors.Is(err, domain.ErrSubjectNotFound) {
		return nil, err
	}
	subject = domain.NewVerificationSubject(uuid.NewString(), domain.SubjectKindPartner, ownerID)
	err = s.subjects.Create(ctx, subject)
	if errors.Is(err, domain.ErrSubjectExists) {
		return s.subjects.GetPartnerByOwner(ctx, ownerID)
	}
	if err != nil {
		return nil, err
	}
	return subject, nil
}

// RegisterProperty creates an empty property subject owned by ownerID.
func (s *SubmissionService) RegisterProperty(ctx context.Context, ownerID string) (*domain.VerificationSubject, error) {
	subject := domain.NewVerificationSubject(uuid.NewString(), domain.SubjectKindProperty, ownerID)
	if err := s.subjects.Create(ctx, subject); err != nil {
		return nil, err
	}
	s.writer.logger.Info("property registered", zap.String("subject_id", subject.ID), zap.String("owner_id", ownerID))
	return subject, nil
}

// GetPartnerSubject returns the caller's partner subject.
func (s *SubmissionService) GetPartnerSubject(ctx context.Context, ownerID string) (*SubmissionResult, error) {
	subject, err := s.EnsurePartnerSubject(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}, nil
}

// GetProperty returns a property subject owned by ownerID. Other owners'
// properties are reported as not found.
func (s *SubmissionService) GetProperty(ctx context.Context, ownerID, propertyID string) (*SubmissionResult, error) {
	subject, err := s.subjects.GetByID(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if err := checkOwnedProperty(subject, ownerID); err != nil {
		return nil, err
	}
	return &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}, nil
}

// ListProperties returns every property subject owned by ownerID.
func (s *SubmissionService) ListProperties(ctx context.Context, ownerID string) ([]domain.VerificationSubject, error) {
	all, err := s.subjects.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	properties := all[:0]
	for _, subject := range all {
		if subject.Kind == domain.SubjectKindProperty {
			properties = append(properties, subject)
		}
	}
	return properties, nil
}

// SubmitPartnerIdentity uploads into the caller's identity group.
func (s *SubmissionService) SubmitPartnerIdentity(ctx context.Context, ownerID string, uploads []storage.Upload) (*SubmissionResult, error) {
	subject, err := s.EnsurePartnerSubject(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.SubmitGroup(ctx, ownerID, subject.ID, domain.GroupKindIdentity, uploads)
}

// SubmitGroup uploads artifacts into one group and fires submit. It is both the
// first submission and the resubmission path after a rejection: the reason is
// cleared, uploaded slots replace the stored ones, other slots and sibling
// groups are untouched. Uploads complete before any state is written, so a
// failed or timed-out upload leaves the subject unchanged.
func (s *SubmissionService) SubmitGroup(ctx context.Context, ownerID, subjectID string, kind domain.GroupKind, uploads []storage.Upload) (*SubmissionResult, error) {
	current, err := s.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if current.OwnerID != ownerID {
		return nil, domain.ErrSubjectNotFound
	}
	if current.Group(kind) == nil {
		return nil, fmt.Errorf("%w: %s has no %s group", domain.ErrUnknownValue, current.Kind, kind)
	}
	if !domain.CanSubmit(current, kind) {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrSubmissionLocked, kind, current.Group(kind).Status)
	}
	if err := s.validateUploads(current.Group(kind), uploads); err != nil {
		return nil, err
	}

	refs, err := s.storeUploads(ctx, subjectID, kind, uploads)
	if err != nil {
		return nil, err
	}

	var (
		oldGroupStatus  domain.GroupStatus
		oldOverall      domain.OverallStatus
		overrideCleared bool
	)
	subject, _, err := s.writer.mutate(ctx, subjectID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if !domain.CanSubmit(subject, kind) {
			return false, fmt.Errorf("%w: %s is %s", domain.ErrSubmissionLocked, kind, subject.Group(kind).Status)
		}
		group := subject.Group(kind)
		oldGroupStatus = group.Status
		oldOverall = domain.ResolveOverallStatus(subject)

		group.MergeArtifacts(refs)
		if missing := group.MissingSlots(); len(missing) > 0 {
			return false, fmt.Errorf("%w: %v", domain.ErrIncompleteArtifacts, missing)
		}
		if err := group.Apply(domain.EventSubmit, ""); err != nil {
			return false, err
		}
		now := s.writer.now()
		group.SubmittedAt = &now

		overrideCleared = false
		if ov := subject.Override; ov != nil && ov.Status != domain.OverallSuspended {
			subject.Override = nil
			overrideCleared = true
		}
		subject.Recompute()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	group := subject.Group(kind)
	s.writer.metrics.RecordSubmission(string(kind))
	s.writer.logger.Info("document group submitted",
		zap.String("subject_id", subject.ID),
		zap.String("group_kind", string(kind)),
		zap.String("old_status", string(oldGroupStatus)),
		zap.String("overall_status", string(subject.OverallStatus)),
		zap.Bool("override_cleared", overrideCleared),
		zap.Int64("sequence", subject.EventSequence))

	slots := make([]string, 0, len(refs))
	for slot := range refs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	s.writer.record(ctx, &domain.VerificationHistory{
		SubjectID:     subject.ID,
		ChangedByType: domain.ActorTypePartner,
		ChangedByID:   &ownerID,
		ChangeType:    domain.ChangeTypeGroupStatus,
		GroupKind:     groupKindPtr(kind),
		OldValue:      map[string]any{"status": oldGroupStatus},
		NewValue:      map[string]any{"status": group.Status, "slots": slots, "override_cleared": overrideCleared},
	})
	s.writer.publishEvent(ctx, subject, events.Event{
		Type:  events.EventGroupSubmitted,
		Actor: partnerActor(ownerID),
		Payload: events.GroupDecisionPayload{
			GroupKind:     kind,
			OldStatus:     oldGroupStatus,
			NewStatus:     group.Status,
			OverallStatus: subject.OverallStatus,
		},
	})

	result := &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}
	if oldOverall == domain.OverallVerified && subject.OverallStatus != domain.OverallVerified {
		s.writer.publishEvent(ctx, subject, events.Event{
			Type:  events.EventReverificationRequired,
			Actor: partnerActor(ownerID),
			Payload: events.ReverificationPayload{
				Trigger:   string(kind),
				OldStatus: oldOverall,
				NewStatus: subject.OverallStatus,
				IsListed:  subject.IsListed,
			},
		})
		result.Warnings = appendWarning(result.Warnings, WarningVerifiedBadgeHidden)
	}
	return result, nil
}

func (s *SubmissionService) validateUploads(group *domain.DocumentGroup, uploads []storage.Upload) error {
	if len(uploads) == 0 {
		return fmt.Errorf("%w: no files uploaded", domain.ErrIncompleteArtifacts)
	}
	seen := make(map[string]struct{}, len(uploads))
	for _, upload := range uploads {
		if !domain.IsKnownSlot(group.Kind, upload.Slot) {
			return fmt.Errorf("%w: slot %q for %s", domain.ErrUnknownValue, upload.Slot, group.Kind)
		}
		if _, dup := seen[upload.Slot]; dup {
			return fmt.Errorf("%w: slot %q uploaded twice", domain.ErrUnknownValue, upload.Slot)
		}
		seen[upload.Slot] = struct{}{}
		if err := s.policy.Check(upload); err != nil {
			return err
		}
	}

	var missing []string
	for _, slot := range domain.RequiredSlots(group.Kind) {
		if _, uploaded := seen[slot]; uploaded {
			continue
		}
		if group.Artifacts[slot] == "" {
			missing = append(missing, slot)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrIncompleteArtifacts, missing)
	}
	return nil
}

func (s *SubmissionService) storeUploads(ctx context.Context, subjectID string, kind domain.GroupKind, uploads []storage.Upload) (map[string]string, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: no artifact store configured", domain.ErrUploadRejected)
	}
	if s.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.uploadTimeout)
		defer cancel()
	}

	refs := make(map[string]string, len(uploads))
	for _, upload := range uploads {
		upload.SubjectID = subjectID
		upload.GroupKind = kind
		ref, err := s.store.Put(ctx, upload)
		if err != nil {
			s.writer.logger.Warn("artifact upload failed",
				zap.String("subject_id", subjectID),
				zap.String("group_kind", string(kind)),
				zap.String("slot", upload.Slot),
				zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrUploadRejected, upload.Slot, err)
		}
		refs[upload.Slot] = ref
	}
	return refs, nil
}

// ToggleListing sets a property's listed flag. It depends on onboarding only,
// never on verification status.
func (s *SubmissionService) ToggleListing(ctx context.Context, ownerID, propertyID string, listed bool) (*SubmissionResult, error) {
	var old bool
	subject, changed, err := s.writer.mutate(ctx, propertyID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if err := checkOwnedProperty(subject, ownerID); err != nil {
			return false, err
		}
		if !domain.CanToggleListing(subject) {
			return false, domain.ErrOnboardingIncomplete
		}
		if subject.IsListed == listed {
			return false, nil
		}
		old = subject.IsListed
		subject.IsListed = listed
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.writer.record(ctx, &domain.VerificationHistory{
			SubjectID:     subject.ID,
			ChangedByType: domain.ActorTypePartner,
			ChangedByID:   &ownerID,
			ChangeType:    domain.ChangeTypeListing,
			OldValue:      map[string]any{"is_listed": old},
			NewValue:      map[string]any{"is_listed": listed},
		})
	}
	return &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}, nil
}

// MarkOnboardingCompleted is the hook the onboarding surface calls once every
// required non-document field exists.
func (s *SubmissionService) MarkOnboardingCompleted(ctx context.Context, ownerID, propertyID string) (*SubmissionResult, error) {
	subject, _, err := s.writer.mutate(ctx, propertyID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if err := checkOwnedProperty(subject, ownerID); err != nil {
			return false, err
		}
		if subject.OnboardingCompleted {
			return false, nil
		}
		subject.OnboardingCompleted = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}, nil
}

// RecordFieldEdit applies the reverification policy after the property editor
// changed field. Editing a reviewed field of a verified property sends it back
// to pending and notifies the operator queue; the listed flag is left alone.
func (s *SubmissionService) RecordFieldEdit(ctx context.Context, ownerID, propertyID, field string) (*SubmissionResult, error) {
	var oldOverall domain.OverallStatus
	subject, changed, err := s.writer.mutate(ctx, propertyID, func(subject *domain.VerificationSubject, _ bool) (bool, error) {
		if err := checkOwnedProperty(subject, ownerID); err != nil {
			return false, err
		}
		oldOverall = domain.ResolveOverallStatus(subject)
		if oldOverall != domain.OverallVerified || !domain.RequiresReverification(subject, field) {
			return false, nil
		}
		if subject.Override != nil && subject.Override.Status == domain.OverallVerified {
			subject.Override = nil
		}
		subject.ReverificationHold = true
		subject.Recompute()
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	result := &SubmissionResult{Subject: subject, Warnings: StandingWarnings(subject)}
	if !changed {
		return result, nil
	}

	s.writer.logger.Info("reverification required",
		zap.String("subject_id", subject.ID),
		zap.String("field", field),
		zap.Bool("is_listed", subject.IsListed),
		zap.Int64("sequence", subject.EventSequence))
	s.writer.record(ctx, &domain.VerificationHistory{
		SubjectID:     subject.ID,
		ChangedByType: domain.ActorTypePartner,
		ChangedByID:   &ownerID,
		ChangeType:    domain.ChangeTypeReverification,
		OldValue:      map[string]any{"overall_status": oldOverall},
		NewValue:      map[string]any{"overall_status": subject.OverallStatus, "field": field},
	})
	s.writer.publishEvent(ctx, subject, events.Event{
		Type:  events.EventReverificationRequired,
		Actor: partnerActor(ownerID),
		Payload: events.ReverificationPayload{
			Trigger:   field,
			OldStatus: oldOverall,
			NewStatus: subject.OverallStatus,
			IsListed:  subject.IsListed,
		},
	})
	if subject.IsListed {
		result.Warnings = appendWarning(result.Warnings, WarningVerifiedBadgeHidden)
	}
	return result, nil
}

// StandingWarnings lists warnings that follow from the subject's state alone.
func StandingWarnings(subject *domain.VerificationSubject) []string {
	var warnings []string
	if subject != nil && subject.ReverificationHold {
		warnings = append(warnings, WarningPendingReverification)
	}
	return warnings
}

func appendWarning(warnings []string, warning string) []string {
	for _, w := range warnings {
		if w == warning {
			return warnings
		}
	}
	return append(warnings, warning)
}

func checkOwnedProperty(subject *domain.VerificationSubject, ownerID string) error {
	if subject.OwnerID != ownerID {
		return domain.ErrSubjectNotFound
	}
	if subject.Kind != domain.SubjectKindProperty {
		return fmt.Errorf("%w: %s is not a property", domain.ErrUnknownValue, subject.ID)
	}
	return nil
}
