package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/staylink/verification-service/internal/config"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/events"
	"github.com/staylink/verification-service/internal/observability"
	"github.com/staylink/verification-service/internal/repository"
	"github.com/staylink/verification-service/internal/storage"
)

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handler(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memoryStore struct {
	mu   sync.Mutex
	puts int
	err  error
}

func (s *memoryStore) Put(_ context.Context, upload storage.Upload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.puts++
	return fmt.Sprintf("mem://%s/%s/%s/%d", upload.SubjectID, upload.GroupKind, upload.Slot, s.puts), nil
}

func pngUpload(slot string) storage.Upload {
	return storage.Upload{
		Slot:        slot,
		Filename:    slot + ".png",
		ContentType: "image/png",
		Size:        3,
		Body:        strings.NewReader("img"),
	}
}

func pngUploads(slots ...string) []storage.Upload {
	out := make([]storage.Upload, 0, len(slots))
	for _, slot := range slots {
		out = append(out, pngUpload(slot))
	}
	return out
}

type WorkflowSuite struct {
	suite.Suite
	ctx        context.Context
	subjects   *repository.InMemorySubjectRepository
	history    *repository.InMemoryHistoryRepository
	store      *memoryStore
	log        *eventLog
	approvals  *ApprovalService
	submission *SubmissionService
	operator   *domain.Operator
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.ctx = context.Background()
	s.subjects = repository.NewInMemorySubjectRepository()
	s.history = repository.NewInMemoryHistoryRepository()
	s.store = &memoryStore{}
	s.log = &eventLog{}
	s.approvals, s.submission = s.build(s.subjects)
	s.operator = &domain.Operator{ID: "op-1", Name: "Reviewer", Role: domain.OperatorRoleReviewer, Active: true}
}

func (s *WorkflowSuite) build(subjects repository.SubjectRepository) (*ApprovalService, *SubmissionService) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, t := range []events.EventType{
		events.EventGroupSubmitted, events.EventGroupApproved, events.EventGroupRejected,
		events.EventGroupFlagged, events.EventOverallStatusChanged, events.EventReverificationRequired,
	} {
		dispatcher.Subscribe(t, s.log.handler)
	}
	metrics := observability.NewMetrics()
	approvals := NewApprovalService(ApprovalDependencies{
		SubjectRepo: subjects,
		HistoryRepo: s.history,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})
	submission := NewSubmissionService(SubmissionDependencies{
		SubjectRepo: subjects,
		HistoryRepo: s.history,
		Store:       s.store,
		Policy:      storage.NewPolicy(config.UploadConfig{MaxBytes: 1024, AllowedMimeTypes: []string{"image/png"}}),
		Dispatcher:  dispatcher,
		Metrics:     metrics,
	})
	return approvals, submission
}

func (s *WorkflowSuite) partner(owner string) *domain.VerificationSubject {
	subject, err := s.submission.EnsurePartnerSubject(s.ctx, owner)
	s.Require().NoError(err)
	return subject
}

// verifiedProperty registers, submits and approves every group of a property.
func (s *WorkflowSuite) verifiedProperty(owner string) *domain.VerificationSubject {
	property, err := s.submission.RegisterProperty(s.ctx, owner)
	s.Require().NoError(err)
	slots := map[domain.GroupKind]string{
		domain.GroupKindOwnership: "deed",
		domain.GroupKindTax:       "certificate",
		domain.GroupKindBanking:   "statement",
	}
	for kind, slot := range slots {
		_, err := s.submission.SubmitGroup(s.ctx, owner, property.ID, kind, pngUploads(slot))
		s.Require().NoError(err)
		_, err = s.approvals.ApproveGroup(s.ctx, s.operator, property.ID, kind)
		s.Require().NoError(err)
	}
	got, err := s.subjects.GetByID(s.ctx, property.ID)
	s.Require().NoError(err)
	s.Require().Equal(domain.OverallVerified, got.OverallStatus)
	return got
}

func (s *WorkflowSuite) TestScenarioA_FirstIdentitySubmission() {
	p := s.partner("host-1")
	s.Equal(domain.OverallNotSubmitted, p.OverallStatus)

	res, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)

	identity := res.Subject.Group(domain.GroupKindIdentity)
	s.Equal(domain.GroupStatusPending, identity.Status)
	s.Equal(domain.OverallPending, res.Subject.OverallStatus)
	s.False(domain.CanEdit(identity))
	s.Len(identity.Artifacts, 3)
	s.Len(s.log.ofType(events.EventGroupSubmitted), 1)
}

func (s *WorkflowSuite) TestFirstSubmissionNeedsEverySlot() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitGroup(s.ctx, "host-1", p.ID, domain.GroupKindIdentity, pngUploads("front"))
	s.ErrorIs(err, domain.ErrIncompleteArtifacts)
	s.Equal(0, s.store.puts)

	_, err = s.submission.SubmitGroup(s.ctx, "host-1", p.ID, domain.GroupKindIdentity, pngUploads("front", "selfie", "back", "profile"))
	s.ErrorIs(err, domain.ErrUnknownValue)
}

func (s *WorkflowSuite) TestScenarioB_RejectThenPartialResubmission() {
	p := s.partner("host-1")
	first, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)
	before := first.Subject.Group(domain.GroupKindIdentity).Clone()

	rejected, err := s.approvals.RejectGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity, "Photo blurry")
	s.Require().NoError(err)
	identity := rejected.Group(domain.GroupKindIdentity)
	s.Equal(domain.GroupStatusRejected, identity.Status)
	s.Equal("Photo blurry", identity.RejectionReason)
	s.True(domain.CanEdit(identity))
	s.Equal(domain.OverallRejected, rejected.OverallStatus)

	res, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front"))
	s.Require().NoError(err)
	identity = res.Subject.Group(domain.GroupKindIdentity)
	s.Equal(domain.GroupStatusPending, identity.Status)
	s.Empty(identity.RejectionReason)
	s.NotEqual(before.Artifacts["front"], identity.Artifacts["front"])
	s.Equal(before.Artifacts["back"], identity.Artifacts["back"])
	s.Equal(before.Artifacts["profile"], identity.Artifacts["profile"])
}

func (s *WorkflowSuite) TestRejectionPushCarriesReasonVerbatim() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)

	reason := "Passport photo is blurry; please retake in daylight, both pages"
	_, err = s.approvals.RejectGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity, reason)
	s.Require().NoError(err)

	rejected := s.log.ofType(events.EventGroupRejected)
	s.Require().Len(rejected, 1)
	payload := rejected[0].Payload.(events.GroupDecisionPayload)
	s.Equal(reason, payload.Reason)
	s.Equal("host-1", rejected[0].OwnerID)
}

func (s *WorkflowSuite) TestScenarioC_OneNonApprovedGroupBlocksVerification() {
	property, err := s.submission.RegisterProperty(s.ctx, "host-1")
	s.Require().NoError(err)
	for kind, slot := range map[domain.GroupKind]string{
		domain.GroupKindOwnership: "deed",
		domain.GroupKindTax:       "certificate",
		domain.GroupKindBanking:   "statement",
	} {
		_, err := s.submission.SubmitGroup(s.ctx, "host-1", property.ID, kind, pngUploads(slot))
		s.Require().NoError(err)
	}
	_, err = s.approvals.ApproveGroup(s.ctx, s.operator, property.ID, domain.GroupKindOwnership)
	s.Require().NoError(err)
	got, err := s.approvals.ApproveGroup(s.ctx, s.operator, property.ID, domain.GroupKindTax)
	s.Require().NoError(err)

	s.Equal(domain.GroupStatusPending, got.Group(domain.GroupKindBanking).Status)
	s.Equal(domain.OverallPending, got.OverallStatus)
}

func (s *WorkflowSuite) TestScenarioD_EditingVerifiedPropertyKeepsListing() {
	property := s.verifiedProperty("host-1")
	_, err := s.submission.MarkOnboardingCompleted(s.ctx, "host-1", property.ID)
	s.Require().NoError(err)
	_, err = s.submission.ToggleListing(s.ctx, "host-1", property.ID, true)
	s.Require().NoError(err)

	res, err := s.submission.RecordFieldEdit(s.ctx, "host-1", property.ID, "ownership")
	s.Require().NoError(err)
	s.Equal(domain.OverallPending, res.Subject.OverallStatus)
	s.True(res.Subject.IsListed)
	s.True(res.Subject.ReverificationHold)
	s.Contains(res.Warnings, WarningPendingReverification)
	s.Contains(res.Warnings, WarningVerifiedBadgeHidden)
	s.Len(s.log.ofType(events.EventReverificationRequired), 1)

	_, err = s.submission.RecordFieldEdit(s.ctx, "host-1", property.ID, "ownership")
	s.Require().NoError(err)
	s.Len(s.log.ofType(events.EventReverificationRequired), 1)

	reverified, err := s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallVerified, "")
	s.Require().NoError(err)
	s.False(reverified.ReverificationHold)
	s.Equal(domain.OverallVerified, reverified.OverallStatus)
	s.True(reverified.IsListed)
}

func (s *WorkflowSuite) TestNonReviewedFieldEditIsIgnored() {
	property := s.verifiedProperty("host-1")
	res, err := s.submission.RecordFieldEdit(s.ctx, "host-1", property.ID, "description")
	s.Require().NoError(err)
	s.Equal(domain.OverallVerified, res.Subject.OverallStatus)
	s.Empty(res.Warnings)
}

func (s *WorkflowSuite) TestIdempotentApproval() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)

	first, err := s.approvals.ApproveGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity)
	s.Require().NoError(err)
	second, err := s.approvals.ApproveGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity)
	s.Require().NoError(err)

	s.Equal(first.Version, second.Version)
	s.Equal(first.EventSequence, second.EventSequence)
	s.Equal(domain.OverallVerified, second.OverallStatus)
	s.Len(s.log.ofType(events.EventGroupApproved), 1)
}

func (s *WorkflowSuite) TestApproveFromWrongStateIsInvalidTransition() {
	p := s.partner("host-1")
	_, err := s.approvals.ApproveGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity)
	s.ErrorIs(err, domain.ErrInvalidTransition)
	s.NotErrorIs(err, domain.ErrStaleWrite)

	var te *domain.TransitionError
	s.Require().True(errors.As(err, &te))
	s.Equal(domain.GroupStatusNotSubmitted, te.Current)
}

func (s *WorkflowSuite) TestMissingReasonRejectedBeforeMutation() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)
	before, err := s.subjects.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)

	_, err = s.approvals.RejectGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity, "   ")
	s.ErrorIs(err, domain.ErrMissingReason)

	after, err := s.subjects.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(before.Version, after.Version)
	s.Equal(domain.GroupStatusPending, after.Group(domain.GroupKindIdentity).Status)
}

func (s *WorkflowSuite) TestSequenceIncreasesPerMutation() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)
	_, err = s.approvals.FlagForManualReview(s.ctx, s.operator, p.ID, domain.GroupKindIdentity)
	s.Require().NoError(err)
	got, err := s.approvals.RejectGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity, "expired")
	s.Require().NoError(err)

	s.Equal(int64(3), got.EventSequence)
	s.Equal(domain.OverallRejected, got.OverallStatus)
	rejected := s.log.ofType(events.EventGroupRejected)
	s.Require().Len(rejected, 1)
	s.Equal(int64(3), rejected[0].Sequence)

	history, err := s.approvals.History(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Len(history, 3)
}

func (s *WorkflowSuite) TestOverrideLifetime() {
	property := s.verifiedProperty("host-1")

	got, err := s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallRejected, "fraudulent deed")
	s.Require().NoError(err)
	s.Equal(domain.OverallRejected, got.OverallStatus)
	s.Len(s.log.ofType(events.EventOverallStatusChanged), 1)

	// Same call again is a no-op.
	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallRejected, "fraudulent deed")
	s.Require().NoError(err)
	s.Len(s.log.ofType(events.EventOverallStatusChanged), 1)

	cleared, err := s.approvals.ClearOverride(s.ctx, s.operator, property.ID)
	s.Require().NoError(err)
	s.Nil(cleared.Override)
	s.Equal(domain.OverallVerified, cleared.OverallStatus)
}

func (s *WorkflowSuite) TestSubmissionClearsRejectedOverrideButNotSuspension() {
	property, err := s.submission.RegisterProperty(s.ctx, "host-1")
	s.Require().NoError(err)

	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallRejected, "incomplete listing")
	s.Require().NoError(err)
	res, err := s.submission.SubmitGroup(s.ctx, "host-1", property.ID, domain.GroupKindTax, pngUploads("certificate"))
	s.Require().NoError(err)
	s.Nil(res.Subject.Override)
	s.Equal(domain.OverallPending, res.Subject.OverallStatus)

	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallSuspended, "chargebacks")
	s.Require().NoError(err)
	_, err = s.submission.SubmitGroup(s.ctx, "host-1", property.ID, domain.GroupKindBanking, pngUploads("statement"))
	s.ErrorIs(err, domain.ErrSubmissionLocked)
}

func (s *WorkflowSuite) TestSetOverallStatusValidation() {
	property, err := s.submission.RegisterProperty(s.ctx, "host-1")
	s.Require().NoError(err)

	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallSuspended, "")
	s.ErrorIs(err, domain.ErrMissingReason)
	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallPending, "x")
	s.ErrorIs(err, domain.ErrUnknownValue)

	p := s.partner("host-1")
	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, p.ID, domain.OverallVerified, "")
	s.ErrorIs(err, domain.ErrUnknownValue)
}

func (s *WorkflowSuite) TestResubmittingVerifiedOverridePropertyHidesBadge() {
	property, err := s.submission.RegisterProperty(s.ctx, "host-1")
	s.Require().NoError(err)
	_, err = s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallVerified, "")
	s.Require().NoError(err)
	_, err = s.submission.MarkOnboardingCompleted(s.ctx, "host-1", property.ID)
	s.Require().NoError(err)
	_, err = s.submission.ToggleListing(s.ctx, "host-1", property.ID, true)
	s.Require().NoError(err)

	res, err := s.submission.SubmitGroup(s.ctx, "host-1", property.ID, domain.GroupKindOwnership, pngUploads("deed"))
	s.Require().NoError(err)
	s.Equal(domain.OverallPending, res.Subject.OverallStatus)
	s.True(res.Subject.IsListed)
	s.Contains(res.Warnings, WarningVerifiedBadgeHidden)
	s.Len(s.log.ofType(events.EventReverificationRequired), 1)
}

func (s *WorkflowSuite) TestListingGatedByOnboardingOnly() {
	property, err := s.submission.RegisterProperty(s.ctx, "host-1")
	s.Require().NoError(err)

	_, err = s.submission.ToggleListing(s.ctx, "host-1", property.ID, true)
	s.ErrorIs(err, domain.ErrOnboardingIncomplete)

	_, err = s.submission.MarkOnboardingCompleted(s.ctx, "host-1", property.ID)
	s.Require().NoError(err)
	res, err := s.submission.ToggleListing(s.ctx, "host-1", property.ID, true)
	s.Require().NoError(err)
	s.True(res.Subject.IsListed)
	s.Equal(domain.OverallPending, res.Subject.OverallStatus)

	_, err = s.submission.ToggleListing(s.ctx, "someone-else", property.ID, false)
	s.ErrorIs(err, domain.ErrSubjectNotFound)
}

func (s *WorkflowSuite) TestFailedUploadLeavesStateUnchanged() {
	p := s.partner("host-1")
	s.store.err = context.DeadlineExceeded

	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.ErrorIs(err, domain.ErrUploadRejected)

	got, err := s.subjects.GetByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(domain.GroupStatusNotSubmitted, got.Group(domain.GroupKindIdentity).Status)
	s.Equal(p.Version, got.Version)
	s.Empty(s.log.ofType(events.EventGroupSubmitted))
}

func (s *WorkflowSuite) TestOversizedUploadRejected() {
	s.partner("host-1")
	big := pngUpload("front")
	big.Size = 4096
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", []storage.Upload{big, pngUpload("back"), pngUpload("profile")})
	s.ErrorIs(err, domain.ErrUploadRejected)
	s.Equal(0, s.store.puts)
}

// barrierRepository holds the first two loads until both have happened, so
// two writers start from the same version.
type barrierRepository struct {
	*repository.InMemorySubjectRepository
	mu    sync.Mutex
	loads int
	ready chan struct{}
}

func (r *barrierRepository) GetByID(ctx context.Context, id string) (*domain.VerificationSubject, error) {
	subject, err := r.InMemorySubjectRepository.GetByID(ctx, id)
	r.mu.Lock()
	r.loads++
	n := r.loads
	if n == 2 {
		close(r.ready)
	}
	r.mu.Unlock()
	if n <= 2 {
		<-r.ready
	}
	return subject, err
}

func (s *WorkflowSuite) TestScenarioE_ConcurrentApprovals() {
	p := s.partner("host-1")
	_, err := s.submission.SubmitPartnerIdentity(s.ctx, "host-1", pngUploads("front", "back", "profile"))
	s.Require().NoError(err)

	barrier := &barrierRepository{InMemorySubjectRepository: s.subjects, ready: make(chan struct{})}
	approvals, _ := s.build(barrier)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	results := make([]*domain.VerificationSubject, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = approvals.ApproveGroup(s.ctx, s.operator, p.ID, domain.GroupKindIdentity)
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for i := range errs {
		if errs[i] == nil {
			succeeded++
			s.Equal(domain.GroupStatusApproved, results[i].Group(domain.GroupKindIdentity).Status)
			continue
		}
		failed++
		s.ErrorIs(errs[i], domain.ErrInvalidTransition)
		s.ErrorIs(errs[i], domain.ErrStaleWrite)
		var te *domain.TransitionError
		s.Require().True(errors.As(errs[i], &te))
		s.Equal(domain.GroupStatusApproved, te.Current)
	}
	s.Equal(1, succeeded)
	s.Equal(1, failed)
	s.Len(s.log.ofType(events.EventGroupApproved), 1)
}

func TestStandingWarnings(t *testing.T) {
	require.Empty(t, StandingWarnings(&domain.VerificationSubject{}))
	require.Equal(t, []string{WarningPendingReverification}, StandingWarnings(&domain.VerificationSubject{ReverificationHold: true}))
	require.Equal(t, []string{"a"}, appendWarning([]string{"a"}, "a"))
}

// lateCreateRepository lets another writer create the partner subject right
// after the first lookup misses.
type lateCreateRepository struct {
	*repository.InMemorySubjectRepository
	winner *domain.VerificationSubject
	missed bool
}

func (r *lateCreateRepository) GetPartnerByOwner(ctx context.Context, ownerID string) (*domain.VerificationSubject, error) {
	if !r.missed {
		r.missed = true
		if err := r.InMemorySubjectRepository.Create(ctx, r.winner); err != nil {
			return nil, err
		}
		return nil, domain.ErrSubjectNotFound
	}
	return r.InMemorySubjectRepository.GetPartnerByOwner(ctx, ownerID)
}

func (s *WorkflowSuite) TestEnsurePartnerSubjectLosingCreateReturnsWinner() {
	winner := domain.NewVerificationSubject("partner-winner", domain.SubjectKindPartner, "host-1")
	repo := &lateCreateRepository{InMemorySubjectRepository: s.subjects, winner: winner}
	_, submission := s.build(repo)

	got, err := submission.EnsurePartnerSubject(s.ctx, "host-1")
	s.Require().NoError(err)
	s.Equal("partner-winner", got.ID)

	owned, err := s.subjects.ListByOwner(s.ctx, "host-1")
	s.Require().NoError(err)
	s.Len(owned, 1)

	dup := domain.NewVerificationSubject("partner-dup", domain.SubjectKindPartner, "host-1")
	s.ErrorIs(s.subjects.Create(s.ctx, dup), domain.ErrSubjectExists)
}

func (s *WorkflowSuite) TestConcurrentEnsurePartnerSubjectAgree() {
	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			subject, err := s.submission.EnsurePartnerSubject(s.ctx, "host-1")
			errs[i] = err
			if err == nil {
				ids[i] = subject.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range errs {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
}

// rejectedSiblingProperty has one rejected group under a verified override.
func (s *WorkflowSuite) rejectedSiblingProperty(owner string) *domain.VerificationSubject {
	property, err := s.submission.RegisterProperty(s.ctx, owner)
	s.Require().NoError(err)
	_, err = s.submission.SubmitGroup(s.ctx, owner, property.ID, domain.GroupKindOwnership, pngUploads("deed"))
	s.Require().NoError(err)
	_, err = s.approvals.RejectGroup(s.ctx, s.operator, property.ID, domain.GroupKindOwnership, "Deed is unsigned.")
	s.Require().NoError(err)
	got, err := s.approvals.SetOverallStatus(s.ctx, s.operator, property.ID, domain.OverallVerified, "")
	s.Require().NoError(err)
	s.Require().Equal(domain.OverallVerified, got.OverallStatus)
	return got
}

func (s *WorkflowSuite) TestClearingVerifiedOverrideFallsBackToRejectedGroup() {
	property := s.rejectedSiblingProperty("host-1")

	cleared, err := s.approvals.ClearOverride(s.ctx, s.operator, property.ID)
	s.Require().NoError(err)
	s.Nil(cleared.Override)
	s.Equal(domain.OverallRejected, cleared.OverallStatus)
	s.Equal(domain.GroupStatusRejected, cleared.Group(domain.GroupKindOwnership).Status)
}

func (s *WorkflowSuite) TestReverificationWithRejectedGroupResolvesRejected() {
	property := s.rejectedSiblingProperty("host-1")

	res, err := s.submission.RecordFieldEdit(s.ctx, "host-1", property.ID, "ownership")
	s.Require().NoError(err)
	s.Nil(res.Subject.Override)
	s.True(res.Subject.ReverificationHold)
	s.Equal(domain.OverallRejected, res.Subject.OverallStatus)
	s.Contains(res.Warnings, WarningPendingReverification)

	required := s.log.ofType(events.EventReverificationRequired)
	s.Require().Len(required, 1)
	payload, ok := required[0].Payload.(events.ReverificationPayload)
	s.Require().True(ok)
	s.Equal(domain.OverallVerified, payload.OldStatus)
	s.Equal(domain.OverallRejected, payload.NewStatus)
}
